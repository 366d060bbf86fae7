package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/zawnaing-2024/vmaster/internal/app"
)

var errBackendFailed = errors.New("backend check failed")

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Inspect VPN backends",
}

var backendListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List backends with their usage",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			list, err := a.Repo.ListBackends(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("%-36s %-20s %-12s %-11s %s\n", "ID", "NAME", "KIND", "STATUS", "USAGE")
			for _, b := range list {
				cmd.Printf("%-36s %-20s %-12s %-11s %d/%d\n", b.ID, b.Name, b.Kind, b.Status, b.CurrentAccounts, b.MaxAccounts)
			}
			return nil
		})
	},
}

var backendTestCmd = &cobra.Command{
	Use:          "test <backend-id>",
	Short:        "Check that a backend's management interface answers",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			b, err := a.Repo.GetBackend(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := a.Registry.TestConnection(cmd.Context(), b)
			if err != nil {
				return err
			}
			if res.OK {
				cmd.Printf("%s (%s): OK\n", b.Name, b.Kind)
				return nil
			}
			cmd.Printf("%s (%s): FAILED: %s\n", b.Name, b.Kind, res.Error)
			return errBackendFailed
		})
	},
}

func init() {
	backendCmd.AddCommand(backendListCmd)
	backendCmd.AddCommand(backendTestCmd)
}
