package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/soundstats/internal/auth"
	"github.com/desertthunder/soundstats/internal/repositories"
	"github.com/desertthunder/soundstats/internal/server"
	"github.com/desertthunder/soundstats/internal/services"
	"github.com/desertthunder/soundstats/internal/session"
	"github.com/desertthunder/soundstats/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve wires the credential store, authenticator, gateway, and handlers
// together and runs the HTTP server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	if err := config.Validate(); err != nil {
		return err
	}

	store, err := session.NewStore(config.Session)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	authenticator, err := auth.NewAuthenticator(config.Credentials.Spotify.Map(), r.logger)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	gateway := services.NewGateway(authenticator, r.logger)

	var history *repositories.HistoryRepository
	if config.Database.Path != "" {
		db, err := shared.NewDatabase(config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

		if err := shared.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		history = repositories.NewHistoryRepository(db)
	} else {
		r.logger.Warn("no database path configured, play history archiving disabled")
	}

	router := server.NewBasicRouter()
	router.Use(server.Recovery(r.logger), server.Logging(r.logger))
	router.Handler(server.NewAuthHandler(authenticator, store, config.Web.FrontendURL, config.Web.ErrorRedirect, r.logger))
	router.Handler(server.NewStatsHandler(gateway, store, history, r.logger))

	httpServer := &http.Server{
		Addr:    config.Server.Addr(),
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("starting stats backend", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		r.logger.Info("shutting down", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		httpServer.Close()
		return fmt.Errorf("failed to drain connections: %w", err)
	}

	return nil
}
