package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/CrmAssist/internal/crmdb/migrations"
	"github.com/JonMunkholm/CrmAssist/internal/web"
)

var (
	serveAddr    string
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web interface and JSON API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides ADDR)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "Apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveMigrate {
		applied, err := migrations.NewRunner().Up(ctx, a.db, 0)
		if err != nil {
			return err
		}
		if applied > 0 {
			a.logger.Info("applied migrations", slog.Int("count", applied))
		}
	}
	a.loadSchema(ctx)

	addr := a.cfg.HTTP.Address
	if serveAddr != "" {
		addr = serveAddr
	}

	handler := web.New(web.Deps{
		Assistant: a.assistant,
		Dashboard: a.dashboard,
		Executor:  a.executor,
		Schema:    a.schema,
		DB:        a.db,
		Examples:  a.builder.Examples(),
		Logger:    a.logger,
	}).Routes()

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting web server",
			slog.String("addr", addr),
			slog.String("db_driver", a.cfg.DB.Driver),
			slog.Bool("ai_available", a.assistant.Available()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.logger.Info("shutting down web server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return err
	}
	return nil
}
