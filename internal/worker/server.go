package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"thumbq/internal/app"
	"thumbq/internal/config"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	// Workers overrides the configured pool size when positive.
	Workers int
	// MetricsPort serves /metrics when positive.
	MetricsPort int
	// Grace bounds how long shutdown waits for in-flight tasks.
	Grace time.Duration
}

func Run(cfg Config) error {
	appCfg := config.Load()
	if cfg.Workers > 0 {
		appCfg.Scheduler.Workers = cfg.Workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	a, err := app.Build(ctx, appCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.MetricsPort > 0 {
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: a.MetricsHandler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Ctx(ctx).Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	return Serve(ctx, a, grace(cfg.Grace, appCfg))
}

// Serve runs the scheduler until ctx is cancelled or it fails, then stops it,
// waiting up to grace for in-flight tasks.
func Serve(ctx context.Context, a *app.App, grace time.Duration) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}

	failed := make(chan error, 1)
	go func() { failed <- a.Scheduler.Wait() }()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).Info().Msg("shutdown requested, draining in-flight tasks")
	case err := <-failed:
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("scheduler stopped with error")
			return err
		}
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	return a.Scheduler.Stop(sctx)
}

func grace(d time.Duration, c *config.Config) time.Duration {
	if d > 0 {
		return d
	}
	return c.Scheduler.TaskTimeout + 10*time.Second
}
