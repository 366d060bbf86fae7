package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/zawnaing-2024/vmaster/internal/db"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:          "up",
	Short:        "Apply all pending migrations",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		conn, err := db.NewConnection(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close()

		if err := db.MigrateUp(conn); err != nil {
			return err
		}
		return printVersion(cmd, conn)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:          "down",
	Short:        "Roll back migrations",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		conn, err := db.NewConnection(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close()

		if err := db.MigrateDown(conn, migrateSteps); err != nil {
			return err
		}
		return printVersion(cmd, conn)
	},
}

func printVersion(cmd *cobra.Command, conn *sqlx.DB) error {
	version, dirty, err := db.MigrationVersion(conn)
	if err != nil {
		return err
	}
	cmd.Printf("Schema version %d (dirty=%t)\n", version, dirty)
	return nil
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}
