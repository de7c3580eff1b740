package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"thumbq/internal/api"
	"thumbq/internal/app"
	"thumbq/internal/config"
	"thumbq/internal/worker"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func standaloneCmd() *cobra.Command {
	var (
		port    int
		workers int
	)

	var command = &cobra.Command{
		Use:   "standalone",
		Short: "Start API server and worker pool in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if workers > 0 {
				cfg.Scheduler.Workers = workers
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = log.Logger.WithContext(ctx)

			a, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return worker.Serve(gctx, a, cfg.Scheduler.TaskTimeout+10*time.Second)
			})
			g.Go(func() error {
				return api.NewServer(a.APIDeps()).Run(gctx, port)
			})
			return g.Wait()
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	command.Flags().IntVarP(&workers, "workers", "w", 0, "Number of workers (0 uses Scheduler_Workers)")
	return command
}
