package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"

	"propertyvet/internal/platform/config"
	"propertyvet/internal/platform/kafka"
	httpmetrics "propertyvet/internal/platform/metrics"
	"propertyvet/internal/platform/migrate"
	"propertyvet/internal/platform/postgres"
	"propertyvet/internal/platform/redis"
	"propertyvet/internal/platform/tracing"
	"propertyvet/internal/screening/dispatcher"
	"propertyvet/internal/screening/engine"
	screeningHandler "propertyvet/internal/screening/handler"
	"propertyvet/internal/screening/metrics"
	"propertyvet/internal/screening/publish"
	"propertyvet/internal/screening/ratelimit"
	"propertyvet/internal/screening/service"
	audit "propertyvet/pkg/platform/audit"
	auditpublisher "propertyvet/pkg/platform/audit/publisher"
	auditmemory "propertyvet/pkg/platform/audit/store/memory"
	auditpostgres "propertyvet/pkg/platform/audit/store/postgres"
	"propertyvet/pkg/platform/middleware/auth"
	"propertyvet/pkg/platform/privacy"
)

const devPseudonymKey = "propertyvet-dev-pseudonym-key"

type app struct {
	cfg    config.Config
	log    *slog.Logger
	reg    *prometheus.Registry
	http   *httpmetrics.Metrics
	health map[string]func(context.Context) error

	controller *service.Controller
	handler    *screeningHandler.Handler
	validator  auth.TokenValidator
	reports    *publish.Publisher
	audit      *auditpublisher.Publisher

	redis    *redis.Client
	pool     *pgxpool.Pool
	db       *sql.DB
	kafka    *kgo.Client
	shutdown tracing.ShutdownFunc
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		log:    log,
		reg:    prometheus.NewRegistry(),
		health: map[string]func(context.Context) error{},
	}
	ready := false
	defer func() {
		if !ready {
			a.close(context.Background())
		}
	}()

	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.http = httpmetrics.New(a.reg)
	m := metrics.New(a.reg)

	shutdown, err := tracing.Init(ctx, cfg.Tracing, log)
	if err != nil {
		return nil, err
	}
	a.shutdown = shutdown
	client := tracing.InstrumentClient(&http.Client{})

	if err := a.connect(ctx); err != nil {
		return nil, err
	}

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if a.db != nil {
		auditStore = auditpostgres.New(a.db)
	}
	a.audit = auditpublisher.NewPublisher(auditStore, auditpublisher.WithAsyncBuffer(1024), auditpublisher.WithLogger(log))

	registry, err := engine.Registry(cfg.Providers, client)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}
	limits := engine.RateLimits(cfg.Screening)
	var limiter ratelimit.Limiter = ratelimit.NewMemory(limits)
	if a.redis != nil {
		limiter = ratelimit.NewRedis(a.redis.Client, limits, ratelimit.WithLogger(log))
	}
	dcfg, err := engine.DispatcherConfig(cfg.Screening)
	if err != nil {
		return nil, err
	}
	weights, err := engine.Weights(cfg.Screening)
	if err != nil {
		return nil, err
	}
	decider, err := engine.Decider(cfg.Screening)
	if err != nil {
		return nil, err
	}

	sinks, err := a.sinks(client)
	if err != nil {
		return nil, err
	}
	a.reports = publish.NewPublisher(sinks,
		publish.WithBuffer(cfg.Publish.Buffer),
		publish.WithSinkTimeout(cfg.Publish.SinkTimeout),
		publish.WithLogger(log),
		publish.WithMetrics(m),
	)

	key := cfg.Privacy.PseudonymKey
	if key == "" {
		log.Warn("no pseudonym key configured, using the development key")
		key = devPseudonymKey
	}
	pseudonyms, err := privacy.New(key)
	if err != nil {
		return nil, err
	}

	d := dispatcher.New(dcfg, registry, limiter, dispatcher.WithLogger(log), dispatcher.WithMetrics(m))
	a.controller = service.New(engine.ControllerConfig(cfg.Screening), d, decider, weights,
		service.WithRegistry(registry),
		service.WithLimiter(limiter),
		service.WithPublisher(a.reports),
		service.WithAuditor(a.audit),
		service.WithPseudonymizer(pseudonyms),
		service.WithLogger(log),
		service.WithMetrics(m),
	)
	a.handler = screeningHandler.New(a.controller, log)
	if cfg.Auth.Enabled {
		a.validator = auth.NewHMACValidator(cfg.Auth.SigningKey, cfg.Auth.Issuer)
	}
	ready = true
	return a, nil
}

// connect opens the optional infrastructure clients.
func (a *app) connect(ctx context.Context) error {
	var err error
	if a.redis, err = redis.New(ctx, a.cfg.Redis); err != nil {
		return err
	}
	if a.redis != nil {
		a.health["redis"] = a.redis.Health
	}

	if a.cfg.Postgres.URL != "" {
		if a.db, err = migrate.Open(ctx, a.cfg.Postgres.URL); err != nil {
			return err
		}
		if a.cfg.Postgres.Migrate {
			version, err := migrate.Up(ctx, a.db, a.log)
			if err != nil {
				return err
			}
			a.log.Info("database schema ready", "version", version)
		}
		if a.pool, err = postgres.New(ctx, a.cfg.Postgres); err != nil {
			return err
		}
		a.health["postgres"] = a.pool.Ping
	}

	if a.kafka, err = kafka.New(a.cfg.Kafka); err != nil {
		return err
	}
	if a.kafka != nil {
		if err := kafka.EnsureTopic(ctx, a.kafka, a.cfg.Kafka, a.log); err != nil {
			return err
		}
		a.health["kafka"] = func(ctx context.Context) error { return kafka.Health(ctx, a.kafka) }
	}
	return nil
}

func (a *app) sinks(client *http.Client) ([]publish.Sink, error) {
	sinks := []publish.Sink{
		publish.NewAuditSink(a.audit),
		publish.NewWebhookSink(a.cfg.Publish.WebhookURL, publish.WithWebhookClient(client)),
	}
	if dir := a.cfg.Publish.ReportDir; dir != "" {
		file, err := publish.NewFileSink(dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, file)
	}
	if a.kafka != nil {
		sinks = append(sinks, publish.NewKafkaSink(a.kafka, a.cfg.Kafka.Topic))
	}
	if a.pool != nil {
		sinks = append(sinks, publish.NewPostgresSink(a.pool))
	}
	return sinks, nil
}

// close releases resources in dependency order: in-flight checks first, then
// their publishers, then the clients those publishers use.
func (a *app) close(ctx context.Context) {
	if a.controller != nil {
		if err := a.controller.Wait(ctx); err != nil {
			a.log.Warn("in-flight checks abandoned at shutdown", "error", err)
		}
	}
	if a.reports != nil {
		if err := a.reports.Close(ctx); err != nil {
			a.log.Warn("report publisher did not drain", "error", err)
		}
	}
	if a.audit != nil {
		a.audit.Close()
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.log.Warn("tracer shutdown failed", "error", err)
		}
	}
}
