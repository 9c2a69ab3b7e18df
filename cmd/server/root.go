package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rpattn/unidata/internal/config"
	"github.com/rpattn/unidata/internal/db"
	"github.com/rpattn/unidata/internal/ingestion"
	"github.com/rpattn/unidata/internal/logging"
	"github.com/rpattn/unidata/internal/repository"
	"github.com/rpattn/unidata/internal/repository/sqlite"
)

// app holds what every subcommand needs once configuration is loaded.
type app struct {
	cfg config.Config
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		a          app
	)

	cmd := &cobra.Command{
		Use:           "unidata",
		Short:         "University spreadsheet ingestion service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", ".", "Directory containing config.yaml")

	cmd.AddCommand(
		newServeCmd(&a),
		newMigrateCmd(&a),
		newIngestCmd(&a),
		newReconcileCmd(&a),
	)
	return cmd
}

// openStore connects the configured store. The returned closer releases it.
func (a *app) openStore(ctx context.Context) (repository.Store, func(), error) {
	switch a.cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, a.cfg.Storage.SQLitePath, a.log)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.DriverPostgres:
		conn, err := db.NewConnection(ctx, a.cfg.Database, a.log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return repository.NewPostgresStore(conn), conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
}

func (a *app) newService(store repository.Store) *ingestion.Service {
	return ingestion.NewService(store, a.cfg.Ingestion, ingestion.WithLogger(a.log))
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
