package main

import (
	"github.com/spf13/cobra"

	"github.com/zawnaing-2024/vmaster/internal/app"
	"github.com/zawnaing-2024/vmaster/internal/auth"
	"github.com/zawnaing-2024/vmaster/internal/lifecycle"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Maintain VPN accounts",
}

var resumeDeletionsCmd = &cobra.Command{
	Use:          "resume-deletions",
	Short:        "Finish account removals that were interrupted",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			report, err := a.Lifecycle.ResumePendingDeletions(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range report.Accounts {
				line := r.AccountID + " " + string(r.Kind) + " " + string(r.Outcome)
				if r.Error != "" {
					line += ": " + r.Error
				}
				cmd.Println(line)
			}
			cmd.Printf("%d accounts processed, %d failed\n", len(report.Accounts), report.Count(lifecycle.OutcomeFailed))
			return nil
		})
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:          "hash-password <password>",
	Short:        "Print a bcrypt hash for auth.admin_password_hash",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		cmd.Println(hash)
		return nil
	},
}

func init() {
	accountsCmd.AddCommand(resumeDeletionsCmd)
}
