package cmd

import (
	"thumbq/internal/worker"
	"time"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	var (
		workers     int
		metricsPort int
		grace       time.Duration
	)

	var command = &cobra.Command{
		Use:   "worker",
		Short: "Start worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return worker.Run(worker.Config{
				Workers:     workers,
				MetricsPort: metricsPort,
				Grace:       grace,
			})
		},
	}

	command.Flags().IntVarP(&workers, "workers", "w", 0, "Number of workers (0 uses Scheduler_Workers)")
	command.Flags().IntVar(&metricsPort, "metrics-port", 0, "Port for the /metrics endpoint (0 disables it)")
	command.Flags().DurationVar(&grace, "grace", 0, "How long shutdown waits for in-flight tasks (0 uses task timeout + 10s)")

	return command
}
