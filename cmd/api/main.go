package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"okey-server/internal/database"
	"okey-server/internal/database/migrations"
	"okey-server/internal/server"
)

var port int

var rootCmd = &cobra.Command{
	Use:          "okey-server",
	Short:        "Okey rules and session server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := server.LoadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = port
		}
		return serve(cmd.Context(), cfg, newLogger(cfg))
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := server.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is not set")
		}
		if err := migrations.Up(cmd.Context(), cfg.DatabaseURL); err != nil {
			return err
		}
		logger := newLogger(cfg)
		logger.Info().Msg("Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.Flags().IntVar(&port, "port", 8080, "listen port, overrides PORT")
	rootCmd.AddCommand(migrateCmd)
}

func newLogger(cfg server.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.LogFormat == "json" {
		log = zerolog.New(os.Stdout)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return log.Level(level).With().Timestamp().Logger()
}

func serve(ctx context.Context, cfg server.Config, log zerolog.Logger) error {
	var (
		store server.MatchStore
		db    database.Service
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		store = server.NewPostgresStore(db.Pool())
	} else {
		log.Warn().Msg("DATABASE_URL not set, matches are kept in memory only")
		store = server.NewMemoryStore()
	}

	srv := server.NewServer(cfg, log, store, db)
	if err := srv.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to restore matches, starting empty")
	}
	httpServer := srv.HTTPServer()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background tasks finish before shutdown saves, so nothing deletes a
	// match after it has been written for the restart.
	tasksCtx, stopTasks := context.WithCancel(context.Background())
	var tasks errgroup.Group
	tasks.Go(func() error { return srv.Run(tasksCtx) })

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("Listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server error: %w", err)
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received, press Ctrl+C again to force")
	case runErr = <-serveErr:
	}
	stop()

	stopTasks()
	if err := tasks.Wait(); err != nil {
		log.Error().Err(err).Msg("Background task failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown save")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	log.Info().Msg("Graceful shutdown complete")
	return runErr
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
