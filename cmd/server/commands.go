package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/grid"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema and seed the grid, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, dialect, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			settings, err := config.LoadGrid(cfg.GridConfigPath)
			if err != nil {
				return err
			}
			return prepare(cmd.Context(), db, dialect, settings)
		},
	}
}

func newPromoteCommand() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "promote <account>",
		Short: "Change the role of an account's user (default ADMIN)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != model.RoleAdmin && role != model.RoleUser {
				return fmt.Errorf("role must be %s or %s", model.RoleAdmin, model.RoleUser)
			}
			cfg := config.Load()
			db, _, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := repository.NewUserRepo(db).SetRole(ctx, model.AccountID(args[0]), role); err != nil {
				return fmt.Errorf("promote %s: %w", args[0], err)
			}
			log.Printf("account %s is now %s", args[0], role)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", model.RoleAdmin, "role to assign (ADMIN|USER)")
	return cmd
}

// openDB connects to the configured engine.
func openDB(cfg config.Config) (*sql.DB, database.Dialect, error) {
	if cfg.DBDriver == string(database.SQLite) {
		db, err := database.OpenSQLite(cfg.DBPath)
		return db, database.SQLite, err
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	return db, database.MySQL, err
}

// prepare applies the schema and seeds the grid.  Both steps are
// idempotent.
func prepare(ctx context.Context, db *sql.DB, dialect database.Dialect, settings config.GridSettings) error {
	if err := database.Migrate(ctx, db, dialect); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := grid.Seed(ctx, repository.NewCellRepo(db, dialect), settings.Layout()); err != nil {
		return fmt.Errorf("seed grid: %w", err)
	}
	return nil
}
