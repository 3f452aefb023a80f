// Package app assembles the notifier's dependency graph from configuration.
// The long-running notifier and the scheduled Lambda both build through New,
// so the two entry points cannot drift apart in how they wire the core.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reportnotify/internal/config"
	"reportnotify/internal/db"
	"reportnotify/internal/external"
	"reportnotify/internal/notifications"
	"reportnotify/internal/oauth"
	"reportnotify/internal/queue"
	"reportnotify/internal/scheduler"
)

// Broker dial tuning for EVENTS_BACKEND=amqp.
const (
	amqpDialAttempts = 5
	amqpDialDelay    = time.Second
	amqpDialMaxDelay = 10 * time.Second
)

// App holds the wired components. Fields are exported so entry points can
// mount handlers and start loops without knowing how they were built.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool

	Tokens     *oauth.TokenManager
	Resolver   *notifications.RecipientResolver
	Dispatcher *notifications.Dispatcher
	Scheduler  *scheduler.DeadlineScheduler

	Metrics notifications.Metrics
	// MetricsHandler is set only for the prometheus backend.
	MetricsHandler http.Handler

	closers []func() error
}

// New connects to Postgres, applies migrations when configured, and wires the
// token manager, resolver, dispatcher and scheduler. The caller must Close
// the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(pool); err != nil {
			_ = a.Close()
			return nil, err
		}
		logger.InfoContext(ctx, "database migrations applied")
	}

	metrics, metricsHandler, err := newMetrics(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Metrics = metrics
	a.MetricsHandler = metricsHandler

	events, closeEvents, err := newEventPublisher(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if closeEvents != nil {
		a.closers = append(a.closers, closeEvents)
	}

	clients, err := external.NewClientRegistry(cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	reports := db.NewReportRequestRepository(pool)
	users := db.NewUserRepository(pool)

	a.Tokens = oauth.NewTokenManager(
		db.NewTokenStore(pool),
		clients.Zalo,
		oauth.Config{
			AppID:         cfg.Zalo.AppID,
			AppSecret:     cfg.Zalo.AppSecret,
			RefreshBuffer: cfg.Zalo.RefreshBuffer,
		},
		logger.With("component", "oauth"),
		oauth.WithRecorder(metrics),
	)

	a.Resolver = notifications.NewRecipientResolver(a.Tokens, clients.Zalo, users, logger.With("component", "resolver"))

	a.Dispatcher = notifications.NewDispatcher(notifications.DispatcherConfig{
		Tokens:   a.Tokens,
		Sender:   clients.Zalo,
		Resolver: a.Resolver,
		Reports:  reports,
		Events:   events,
		Metrics:  metrics,
		Location: cfg.Scheduler.Location(),
		Logger:   logger.With("component", "dispatcher"),
	})

	a.Scheduler = scheduler.NewDeadlineScheduler(scheduler.Config{
		Reports:    reports,
		Dispatcher: a.Dispatcher,
		Tokens:     a.Tokens,
		Locks:      db.NewJobLockRepository(pool),
		History:    db.NewJobHistoryRepository(pool),
		Metrics:    metrics,
		Policy: scheduler.Policy{
			ElapsedThreshold: cfg.Scheduler.ElapsedThreshold,
			MinRemaining:     cfg.Scheduler.MinRemaining,
		},
		Interval: cfg.Scheduler.Interval,
		LockTTL:  cfg.Scheduler.LockTTL,
		Logger:   logger.With("component", "scheduler"),
	})

	logger.InfoContext(ctx, "application wired",
		"metrics_backend", cfg.Observability.MetricsBackend,
		"events_backend", cfg.Events.Backend,
		"scheduler_interval", cfg.Scheduler.Interval.String(),
	)
	return a, nil
}

// Close releases the broker connection and the database pool, in reverse
// order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config (region=%s): %w", cfg.AWS.Region, err)
	}
	return awsCfg, nil
}

// newMetrics selects the delivery metrics backend. The returned handler is
// non-nil only for prometheus.
func newMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notifications.Metrics, http.Handler, error) {
	switch cfg.Observability.MetricsBackend {
	case "cloudwatch":
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		return notifications.NewCloudWatchMetrics(client, cfg.Observability.MetricNamespace, logger), nil, nil

	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		return notifications.NewPrometheusMetrics(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil

	case "", "none":
		return notifications.NoopMetrics{}, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown metrics backend %q", cfg.Observability.MetricsBackend)
	}
}

// newEventPublisher selects where dispatch events go. The close func is nil
// when the backend holds no connection.
func newEventPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notifications.EventPublisher, func() error, error) {
	switch cfg.Events.Backend {
	case "sqs":
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		return queue.NewSQSPublisher(client, cfg.Events.SQSQueueURL, logger), nil, nil

	case "amqp":
		conn, err := queue.DialWithRetry(ctx, queue.DialOptions{
			URL:           cfg.Events.AMQPURL.Unmask(),
			RetryAttempts: amqpDialAttempts,
			Delay:         amqpDialDelay,
			MaxDelay:      amqpDialMaxDelay,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to broker: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("opening broker channel: %w", err)
		}
		pub, err := queue.NewAMQPPublisher(ch, cfg.Events.Exchange, logger)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return pub, func() error {
			return errors.Join(pub.Close(), conn.Close())
		}, nil

	case "", "none":
		return queue.NoopPublisher{}, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}
