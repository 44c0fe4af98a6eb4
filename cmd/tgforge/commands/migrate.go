package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tgforge/tgforge/internal/cli/output"
	"github.com/tgforge/tgforge/pkg/config"
	"github.com/tgforge/tgforge/pkg/migrate"
)

var migrateDownSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database schema migrations",
	Long: `Manage schema migrations for the bot database.

Migration scripts live in the configured migrations directory as numbered
SQL pairs (NNNN_name.up.sql / NNNN_name.down.sql) and apply to the
configured database (SQLite or PostgreSQL).

Examples:
  # Apply all pending migrations
  tgforge migrate up

  # Roll back the last migration
  tgforge migrate down

  # Show current and head revisions
  tgforge migrate status

  # Create a new migration pair
  tgforge migrate create add audit log`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrator()
		if err != nil {
			return err
		}

		ctx := context.Background()
		before := m.CurrentRevision(ctx)
		if err := m.Apply(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		after := m.CurrentRevision(ctx)
		if before == after {
			fmt.Println("Database schema already up to date")
		} else {
			fmt.Printf("Database migrated to revision %s\n", after)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrator()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := m.Rollback(ctx, migrateDownSteps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}

		if current := m.CurrentRevision(ctx); current != "" {
			fmt.Printf("Database rolled back to revision %s\n", current)
		} else {
			fmt.Println("Database rolled back to empty schema")
		}
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current schema revision",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrator()
		if err != nil {
			return err
		}

		status, err := m.Status(context.Background())
		if err != nil {
			return err
		}

		current := status.CurrentRevision
		if current == "" {
			current = "(none)"
		}
		head := status.HeadRevision
		if head == "" {
			head = "(none)"
		}

		fmt.Println()
		_ = output.KeyValueTable(os.Stdout, [][2]string{
			{"Current revision", current},
			{"Head revision", head},
			{"Pending", fmt.Sprintf("%t", status.HasPending)},
			{"Dirty", fmt.Sprintf("%t", status.Dirty)},
		})
		fmt.Println()
		return nil
	},
}

var migrateHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List all known migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrator()
		if err != nil {
			return err
		}

		history, err := m.History(context.Background())
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Println("No migration scripts found")
			return nil
		}

		table := output.NewTableData("REVISION", "NAME", "APPLIED")
		for _, entry := range history {
			applied := ""
			if entry.Applied {
				applied = "yes"
			}
			table.AddRow(entry.Revision, strings.ReplaceAll(entry.Name, "_", " "), applied)
		}

		fmt.Println()
		_ = output.PrintTable(os.Stdout, table)
		fmt.Println()
		return nil
	},
}

var migrateStampCmd = &cobra.Command{
	Use:   "stamp <revision>",
	Short: "Mark a revision as applied without running it",
	Long: `Mark the database as being at the given revision without executing
any migration scripts. Useful when a schema was created out of band.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrator()
		if err != nil {
			return err
		}

		if err := m.Stamp(context.Background(), args[0]); err != nil {
			return fmt.Errorf("stamp failed: %w", err)
		}

		fmt.Printf("Database stamped at revision %s\n", args[0])
		return nil
	},
}

var migrateCreateCmd = &cobra.Command{
	Use:   "create <message>",
	Short: "Create a new migration script pair",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrator()
		if err != nil {
			return err
		}

		paths, err := m.Create(strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("failed to create migration: %w", err)
		}

		fmt.Println("Created:")
		for _, path := range paths {
			fmt.Printf("  %s\n", path)
		}
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "Number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateHistoryCmd)
	migrateCmd.AddCommand(migrateStampCmd)
	migrateCmd.AddCommand(migrateCreateCmd)
}

// newMigrator loads configuration and builds the migration engine the
// same way the runtime does.
func newMigrator() (*migrate.Migrator, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	return migrate.New(migrate.Config{
		Database: cfg.Database,
		Path:     cfg.Migrations.Path,
		Timeout:  cfg.Migrations.Timeout,
	})
}
