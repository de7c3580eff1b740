// Package app builds the scheduler and its backends from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"thumbq/internal/api"
	"thumbq/internal/config"
	"thumbq/internal/infra/kafka"
	"thumbq/internal/infra/memstore"
	"thumbq/internal/infra/postgres"
	"thumbq/internal/infra/redisq"
	"thumbq/internal/metrics"
	"thumbq/internal/notify"
	"thumbq/internal/ports"
	"thumbq/internal/queue"
	"thumbq/internal/scheduler"
	"thumbq/internal/usecase"
	"thumbq/internal/work"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	NotifierLog   = "log"
	NotifierInbox = "inbox"
	NotifierKafka = "kafka"
)

type App struct {
	Scheduler *scheduler.Scheduler
	// Inbox is set when the inbox notifier is enabled.
	Inbox    *redisq.Inbox
	Registry *prometheus.Registry

	redis   *redisq.Client
	closers []func()
}

// Build connects every configured backend. The returned App must be closed.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewPromMetrics(a.Registry)

	q, movers, err := a.queue(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	store, err := a.store(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	n, err := a.notifier(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	sc := cfg.Scheduler
	a.Scheduler = scheduler.New(scheduler.Options{
		Queue:       q,
		Store:       store,
		Work:        work.NewSimulated(cfg.Work),
		Notifier:    n,
		Metrics:     m,
		Movers:      movers,
		Workers:       sc.Workers,
		TaskTimeout:   sc.TaskTimeout,
		NotifyTimeout: sc.NotifyTimeout,
		Retry: usecase.Retrier{
			Attempts:    sc.MaxAttempts,
			BaseBackoff: sc.BaseBackoff,
			MaxBackoff:  sc.MaxBackoff,
			Metrics:     m,
		},
		DispatchDelayMin: sc.DispatchDelayMin,
		DispatchDelayMax: sc.DispatchDelayMax,
	})

	log.Ctx(ctx).Info().
		Str("queue", sc.QueueBackend).
		Str("store", sc.StoreBackend).
		Strs("notifiers", sc.Notifiers).
		Msg("backends ready")
	return a, nil
}

// APIDeps exposes the app to the HTTP layer.
func (a *App) APIDeps() api.Deps {
	d := api.Deps{
		Scheduler: a.Scheduler,
		Metrics:   a.MetricsHandler(),
	}
	if a.Inbox != nil {
		d.Inbox = a.Inbox
	}
	return d
}

func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}

// Close releases backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(f func()) { a.closers = append(a.closers, f) }

func (a *App) redisClient(ctx context.Context, cfg config.Redis) (*redisq.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	c := redisq.New(cfg)
	if err := c.Connect(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	a.redis = c
	a.onClose(func() {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("close redis")
		}
	})
	return c, nil
}

func (a *App) queue(ctx context.Context, cfg *config.Config) (ports.Queue, []ports.Mover, error) {
	switch backend := strings.ToLower(cfg.Scheduler.QueueBackend); backend {
	case BackendMemory, "":
		q := queue.NewMemory()
		a.onClose(q.Close)
		return q, nil, nil
	case BackendRedis:
		c, err := a.redisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		q := redisq.NewQueue(c, cfg.Scheduler.PollInterval)
		return q, []ports.Mover{redisq.NewMover(q, cfg.Scheduler.MoverInterval)}, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", backend)
	}
}

func (a *App) store(ctx context.Context, cfg *config.Config) (ports.Store, error) {
	switch backend := strings.ToLower(cfg.Scheduler.StoreBackend); backend {
	case BackendMemory, "":
		return memstore.New(), nil
	case BackendRedis:
		c, err := a.redisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return redisq.NewStore(c), nil
	case BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.onClose(pool.Close)
		s := postgres.NewStore(pool)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func (a *App) notifier(ctx context.Context, cfg *config.Config) (ports.Notifier, error) {
	var out notify.Multi
	for _, name := range cfg.Scheduler.Notifiers {
		switch name = strings.ToLower(strings.TrimSpace(name)); name {
		case "":
		case NotifierLog:
			out = append(out, notify.Log{})
		case NotifierInbox:
			c, err := a.redisClient(ctx, cfg.Redis)
			if err != nil {
				return nil, err
			}
			a.Inbox = redisq.NewInbox(c)
			out = append(out, a.Inbox)
		case NotifierKafka:
			client, err := kafka.NewClient(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Scheduler.NotifyTimeout)
			if err != nil {
				return nil, err
			}
			a.onClose(client.Close)
			out = append(out, kafka.New(client, cfg.Kafka.Topic))
		default:
			return nil, fmt.Errorf("unknown notifier %q", name)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no notifier configured")
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}
