// Package engine assembles the monitoring engine from configuration: the
// store, checkers, result processor, notification dispatcher and scheduler.
package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pulsewatch/pulsewatch/internal/archive"
	"github.com/pulsewatch/pulsewatch/internal/broadcast"
	"github.com/pulsewatch/pulsewatch/internal/checker"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/processor"
	"github.com/pulsewatch/pulsewatch/internal/resilience"
	"github.com/pulsewatch/pulsewatch/internal/scheduler"
)

// Options configures New.
type Options struct {
	Config *config.Config
	Logger zerolog.Logger

	// Broadcaster receives real-time events. Optional.
	Broadcaster broadcast.Broadcaster
}

// Engine holds the assembled components.
type Engine struct {
	Store      monitor.Repository
	Monitors   *monitor.Service
	Registry   *resilience.Registry
	Dispatcher *notify.Dispatcher
	Processor  *processor.Processor
	Scheduler  *scheduler.Scheduler

	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New wires the engine. The scheduler is created but not started.
func New(ctx context.Context, opts Options) (*Engine, error) {
	cfg := opts.Config
	log := opts.Logger
	e := &Engine{
		Registry: resilience.NewRegistry(),
		logger:   log,
	}

	var notifyRepo notify.Repository
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		e.pool = pool
		e.Store = monitor.NewPostgresRepository(pool)
		notifyRepo = notify.NewPostgresRepository(pool)
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
	case config.StoreMemory:
		e.Store = monitor.NewInMemoryRepository()
		notifyRepo = notify.NewInMemoryRepository()
		log.Warn().Msg("using in-memory store - data is lost on restart")
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
	e.Monitors = monitor.NewService(e.Store)

	senders := []notify.Sender{
		notify.NewWebhookSender(e.Registry, nil),
		notify.NewSlackSender(e.Registry, nil),
	}
	var mailer notify.Mailer
	if cfg.SMTP.Configured() {
		email := notify.NewEmailSender(cfg.SMTP, e.Registry)
		senders = append(senders, email)
		mailer = email
		log.Info().Str("smtp_host", cfg.SMTP.Host).Msg("email delivery enabled")
	}

	e.Dispatcher = notify.NewDispatcher(notify.Config{
		Repository: notifyRepo,
		Senders:    senders,
		Mailer:     mailer,
		Retry: resilience.RetryPolicy{
			MaxRetries: uint64(cfg.Notify.MaxRetries),
			Delay:      cfg.Notify.RetryDelay,
		},
		Logger: log,
	})

	var archiver processor.Archiver
	if cfg.Archive.Table != "" {
		client, err := archive.NewDynamoDBClient(ctx, cfg.Archive.Region)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("archive client: %w", err)
		}
		archiver = archive.NewDynamoDBArchiver(client, archive.Config{
			Table:     cfg.Archive.Table,
			Retention: cfg.Archive.Retention,
		})
		log.Info().Str("table", cfg.Archive.Table).Msg("check archive enabled")
	}

	e.Processor = processor.New(processor.Config{
		Store:       e.Store,
		Notifier:    e.Dispatcher,
		Broadcaster: opts.Broadcaster,
		Archiver:    archiver,
		Region:      cfg.Engine.Region,
		Logger:      log,
	})

	e.Scheduler = scheduler.New(scheduler.SchedulerConfig{
		Config: scheduler.Config{
			TickInterval: cfg.Engine.TickInterval,
			Concurrency:  cfg.Engine.Concurrency,
		},
		Store:     e.Store,
		Checker:   checker.NewRegistry(checker.Config{}),
		Processor: e.Processor,
		Logger:    log,
	})

	return e, nil
}

// Close waits for in-flight notifications and releases the database pool.
// The scheduler must be stopped first.
func (e *Engine) Close() {
	if e.Dispatcher != nil {
		e.Dispatcher.Wait()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}
