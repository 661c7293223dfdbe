package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/relayhub/internal/app"
	"github.com/vovakirdan/relayhub/internal/config"
	"github.com/vovakirdan/relayhub/internal/log"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the hub with its HTTP and websocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := log.New("info", "console")

			cfg, cfgPath, err := config.Load(bootLogger, flagConfig)
			if err != nil {
				bootLogger.Error().Err(err).Msg("failed to load config")
				return err
			}
			cfg.UpdateFrom(config.Config{Addr: addr, LogLevel: flagLogLevel})

			logger := log.New(cfg.LogLevel, cfg.LogFormat)
			logger.Info().Str("config", cfgPath).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to build application")
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting relayhub")
			if err := application.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "override HTTP listen address")
	return cmd
}
