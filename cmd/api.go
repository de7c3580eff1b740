package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"thumbq/internal/api"
	"thumbq/internal/app"
	"thumbq/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func apiCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "api",
		Short: "Start API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.Scheduler.QueueBackend != app.BackendRedis {
				log.Warn().Msg("API server with an in-memory queue: submitted tasks are only visible to this process")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(log.Logger.WithContext(ctx), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info().Msgf("API server using queue: %s, store: %s", cfg.Scheduler.QueueBackend, cfg.Scheduler.StoreBackend)
			return api.NewServer(a.APIDeps()).Run(ctx, port)
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	return command
}
