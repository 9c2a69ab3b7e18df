package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/rpattn/unidata/internal/auth"
	"github.com/rpattn/unidata/internal/config"
	"github.com/rpattn/unidata/internal/db"
	"github.com/rpattn/unidata/internal/ingestion"
	"github.com/rpattn/unidata/internal/middleware"
)

func newServeCmd(a *app) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP upload API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if a.cfg.Storage.Driver == config.DriverPostgres && !skipMigrations {
				if err := db.RunMigrations(a.cfg.Database, a.log); err != nil {
					return err
				}
			}

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			handler := ingestion.NewHTTPHandler(a.newService(store), a.log)

			router := chi.NewRouter()
			router.Use(chimiddleware.RequestID)
			router.Use(chimiddleware.Recoverer)
			router.Use(middleware.Logging(a.log))
			router.Use(auth.Uploader)
			router.Use(cors.New(cors.Options{
				AllowedOrigins:   a.cfg.Server.AllowedOrigins,
				AllowCredentials: true,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
				AllowedHeaders:   []string{"*"},
			}).Handler)

			router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
			router.Handle("/metrics", promhttp.Handler())
			handler.Routes(router)

			server := &http.Server{
				Addr:         a.cfg.Server.Addr,
				Handler:      router,
				ReadTimeout:  2 * time.Minute,
				WriteTimeout: 5 * time.Minute,
				IdleTimeout:  60 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				a.log.WithField("addr", server.Addr).Info("starting upload API")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				return err
			case <-ctx.Done():
			}
			a.log.Info("shutting down server")

			timeout := a.cfg.Server.ShutdownTimeout
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			a.log.Info("server exited")
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply database migrations on start")
	return cmd
}
