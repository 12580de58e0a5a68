package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"csgo-tracker/internal/config"
	"csgo-tracker/internal/constants"
	"csgo-tracker/internal/coordinator"
	fxmodules "csgo-tracker/internal/fx"
	"csgo-tracker/internal/server"
	"csgo-tracker/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	apiServer *server.Server,
	coord *coordinator.Coordinator,
	sharing *service.SharingService,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: constants.RequestTimeout,
	}

	backgroundCtx, stopBackground := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Codes queued before the last shutdown go back on the
			// queue; they get dispatched once workers re-register.
			if err := sharing.RequeuePending(ctx); err != nil {
				return err
			}

			go coord.RunJanitor(backgroundCtx)
			go sharing.RunSweeper(backgroundCtx)

			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			stopBackground()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
