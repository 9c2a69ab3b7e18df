package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpattn/unidata/internal/config"
	"github.com/rpattn/unidata/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down, revert) PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Storage.Driver != config.DriverPostgres {
				return fmt.Errorf("migrations only apply to the %s driver; %s creates its schema on open",
					config.DriverPostgres, a.cfg.Storage.Driver)
			}
			if down > 0 {
				return db.RollbackMigrations(a.cfg.Database, down, a.log)
			}
			return db.RunMigrations(a.cfg.Database, a.log)
		},
	}

	cmd.Flags().IntVar(&down, "down", 0, "Number of migrations to revert")
	return cmd
}
