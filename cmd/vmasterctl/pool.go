package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zawnaing-2024/vmaster/internal/app"
	"github.com/zawnaing-2024/vmaster/internal/core"
)

var (
	poolKind  string
	poolFile  string
	poolNotes string
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage pre-provisioned credentials",
}

var poolImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import credentials into the pool",
	Long: `Imports one credential per line. auth-tunnel lines are "username:password";
relay lines are a UUID or a full client configuration. Blank and malformed
lines are skipped. Reads standard input when --file is "-".

      $ vmasterctl pool import --kind relay --file uuids.txt`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := core.BackendKind(poolKind)
		if !kind.Pooled() {
			return fmt.Errorf("--kind must be auth-tunnel or relay")
		}

		raw, err := readInput(poolFile)
		if err != nil {
			return err
		}

		return withApp(cmd, func(a *app.App) error {
			n, err := a.Pool.BulkImport(cmd.Context(), kind, raw, poolNotes)
			if err != nil {
				return err
			}
			cmd.Printf("Imported %d %s credentials\n", n, kind)
			return nil
		})
	},
}

var poolStatsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Show pool totals per kind",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			stats, err := a.Pool.Stats(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("%-12s %8s %8s %9s\n", "KIND", "TOTAL", "ASSIGNED", "AVAILABLE")
			for _, s := range stats {
				cmd.Printf("%-12s %8d %8d %9d\n", s.Kind, s.Total, s.Assigned, s.Available)
			}
			return nil
		})
	},
}

func readInput(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("--file is required")
	}
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(b), nil
}

func init() {
	poolImportCmd.Flags().StringVar(&poolKind, "kind", "", "Credential kind (auth-tunnel or relay)")
	poolImportCmd.Flags().StringVarP(&poolFile, "file", "f", "", "File with one credential per line, - for stdin")
	poolImportCmd.Flags().StringVar(&poolNotes, "notes", "", "Notes stored with every imported credential")
	_ = poolImportCmd.MarkFlagRequired("kind")

	poolCmd.AddCommand(poolImportCmd)
	poolCmd.AddCommand(poolStatsCmd)
}
