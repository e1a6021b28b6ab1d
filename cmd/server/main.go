package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fedcred/internal/credential/cache"
	"fedcred/internal/credential/export"
	credentialhandler "fedcred/internal/credential/handler"
	"fedcred/internal/credential/integrity"
	credentialmetrics "fedcred/internal/credential/metrics"
	"fedcred/internal/credential/models"
	credentialservice "fedcred/internal/credential/service"
	credentialstore "fedcred/internal/credential/store"
	"fedcred/internal/credential/workers/sweep"
	jwttoken "fedcred/internal/jwt_token"
	"fedcred/internal/platform/config"
	"fedcred/internal/platform/database"
	"fedcred/internal/platform/health"
	"fedcred/internal/platform/httpserver"
	"fedcred/internal/platform/kafka/producer"
	"fedcred/internal/platform/logger"
	"fedcred/internal/platform/objectstore"
	"fedcred/internal/platform/redis"
	"fedcred/internal/platform/tracer"
	"fedcred/pkg/platform/audit"
	"fedcred/pkg/platform/audit/outbox"
	outboxmetrics "fedcred/pkg/platform/audit/outbox/metrics"
	outboxmemory "fedcred/pkg/platform/audit/outbox/store/memory"
	outboxpostgres "fedcred/pkg/platform/audit/outbox/store/postgres"
	outboxworker "fedcred/pkg/platform/audit/outbox/worker"
	"fedcred/pkg/platform/audit/publisher"
	"fedcred/pkg/platform/middleware/auth"
	"fedcred/pkg/platform/middleware/device"
	"fedcred/pkg/platform/middleware/metadata"
	"fedcred/pkg/platform/middleware/request"
	"fedcred/pkg/platform/middleware/requesttime"
)

const (
	maxBodyBytes      = 1 << 20
	poolStatsInterval = 15 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server terminated", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// infra holds the optional backends; a nil field means that backend is not configured.
type infra struct {
	db       *database.Pool
	redis    *redis.Client
	producer *producer.Producer
	s3       *objectstore.S3Store
}

func (i *infra) close(log *slog.Logger) {
	if i.producer != nil {
		if err := i.producer.Close(); err != nil {
			log.Warn("kafka producer close failed", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("database close failed", "error", err)
		}
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing fedcred",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
		"postgres", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
		"kafka", cfg.Kafka.Brokers != "",
		"object_store", cfg.ObjectStore.Bucket != "",
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	backends, err := connect(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer backends.close(log)

	codec, err := integrity.NewCodec([]byte(cfg.Credential.ChecksumKey))
	if err != nil {
		return fmt.Errorf("integrity codec: %w", err)
	}
	if cfg.Credential.ChecksumKey == "" {
		log.Warn("CHECKSUM_KEY not set; checksums are unkeyed BLAKE2b")
	}

	credMetrics := credentialmetrics.New(reg)

	// Storage: Postgres with a transactional outbox, or in memory for development.
	var (
		store       credentialservice.Store
		outboxStore outbox.Store
		txOpts      []credentialservice.Option
	)
	if backends.db != nil {
		store = credentialstore.NewPostgres(backends.db.DB())
		pgOutbox := outboxpostgres.New(backends.db.DB())
		outboxStore = pgOutbox
		txOpts = append(txOpts,
			credentialservice.WithOutbox(pgOutbox),
			credentialservice.WithTx(newCredentialPostgresTx(backends.db.DB(), cfg.Credential.StoreTimeout)),
		)
	} else {
		log.Warn("DATABASE_URL not set; using in-memory store")
		store = credentialstore.NewInMemory()
		memOutbox := outboxmemory.New()
		outboxStore = memOutbox
		txOpts = append(txOpts, credentialservice.WithOutbox(memOutbox))
	}

	auditPublisher := publisher.NewPublisher(outboxStore, publisher.WithPublisherLogger(log))
	defer auditPublisher.Close()
	auditor := audit.NewLogger(log, auditPublisher)

	opts := append(txOpts,
		credentialservice.WithLogger(log),
		credentialservice.WithAuditor(auditor),
		credentialservice.WithMetrics(credMetrics),
		credentialservice.WithTracer(tracer.NewOTel()),
	)
	if backends.redis != nil {
		opts = append(opts, credentialservice.WithStatsCache(cache.NewStatsCache(backends.redis.Client, cfg.Redis.StatsCacheTTL, cache.WithLogger(log))))
	}

	svc, err := credentialservice.New(store, codec, credentialservice.Config{
		BaseURL:               cfg.Credential.BaseURL,
		DefaultValidityMonths: cfg.Credential.DefaultValidityMonths,
		InitialStatus:         models.Status(cfg.Credential.InitialStatus),
		MaxBatch:              cfg.Credential.MaxBatch,
		BulkWorkers:           cfg.Credential.BulkWorkers,
		ItemTimeout:           cfg.Credential.ItemTimeout,
		StoreTimeout:          cfg.Credential.StoreTimeout,
		RetryInitialInterval:  cfg.Credential.RetryInitialInterval,
		SweepBatchSize:        cfg.Sweep.BatchSize,
	}, opts...)
	if err != nil {
		return fmt.Errorf("credential service: %w", err)
	}

	var uploader export.Uploader
	if backends.s3 != nil {
		uploader = backends.s3
	}
	exporter, err := export.New(svc, uploader,
		export.WithLogger(log),
		export.WithAuditor(auditor),
		export.WithMetrics(credMetrics),
	)
	if err != nil {
		return fmt.Errorf("exporter: %w", err)
	}

	// Background workers.
	relay := outboxworker.New(outboxStore, outboxPublisher(backends),
		outboxworker.WithTopic(cfg.Kafka.Topic),
		outboxworker.WithBatchSize(cfg.Kafka.BatchSize),
		outboxworker.WithPollInterval(cfg.Kafka.PollInterval),
		outboxworker.WithRetention(cfg.Kafka.Retention),
		outboxworker.WithMetrics(outboxmetrics.New(reg)),
		outboxworker.WithLogger(log),
	)
	relay.Start(ctx)

	var sweeper *sweep.Worker
	if cfg.Sweep.Enabled {
		sweeper, err = sweep.New(svc,
			sweep.WithInterval(cfg.Sweep.Interval),
			sweep.WithRunTimeout(cfg.Sweep.Interval),
			sweep.WithLogger(log),
		)
		if err != nil {
			return fmt.Errorf("sweep worker: %w", err)
		}
		if err := sweeper.Start(ctx); err != nil {
			return fmt.Errorf("start sweep worker: %w", err)
		}
	}

	if backends.redis != nil {
		go recordPoolStats(ctx, backends.redis)
	}

	router, err := newRouter(cfg, log, reg, backends, credentialhandler.New(svc, exporter, log))
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server gracefully")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if sweeper != nil {
		if err := sweeper.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("sweep shutdown: %w", err))
		}
	}
	if err := relay.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("outbox shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// connect opens every configured backend. Postgres is migrated before use.
func connect(ctx context.Context, cfg config.Config, reg prometheus.Registerer, log *slog.Logger) (*infra, error) {
	backends := &infra{}

	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		backends.db = db
		if err := db.RegisterMetrics(reg); err != nil {
			backends.close(log)
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			backends.close(log)
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		log.Info("database connected and migrated")
	}

	rc, err := redis.New(cfg.Redis, redis.NewPoolMetrics(reg))
	if err != nil {
		backends.close(log)
		return nil, err
	}
	backends.redis = rc

	if cfg.Kafka.Brokers != "" {
		pcfg := producer.DefaultConfig(cfg.Kafka.Brokers)
		pcfg.Acks = cfg.Kafka.Acks
		p, err := producer.New(pcfg, log)
		if err != nil {
			backends.close(log)
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		backends.producer = p
		if err := p.EnsureTopic(ctx, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			log.Warn("could not ensure kafka topic", "topic", cfg.Kafka.Topic, "error", err)
		}
	}

	s3, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		backends.close(log)
		return nil, fmt.Errorf("object store: %w", err)
	}
	backends.s3 = s3

	return backends, nil
}

// outboxPublisher relays to Kafka when brokers are configured. Without them
// entries are marked processed and pruned by retention.
func outboxPublisher(backends *infra) outboxworker.Publisher {
	if backends.producer != nil {
		return backends.producer
	}
	return producer.NewNoopProducer()
}

func newRouter(cfg config.Config, log *slog.Logger, reg *prometheus.Registry, backends *infra, credentials *credentialhandler.Handler) (http.Handler, error) {
	proxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.NewMiddleware(&metadata.Config{TrustedProxies: proxies}).Handler)
	r.Use(device.Middleware)
	r.Use(request.Logger(log))
	r.Use(request.Timeout(cfg.Server.RequestTimeout))
	r.Use(request.LatencyMiddleware(request.NewMetrics(reg), routePattern))
	r.Use(request.BodyLimit(maxBodyBytes))

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	checks := health.New(cfg.Environment)
	if backends.db != nil {
		checks.RegisterCheck("postgres", backends.db.Health)
	}
	if backends.redis != nil {
		checks.RegisterCheck("redis", backends.redis.Health)
	}
	if backends.producer != nil {
		checks.RegisterCheck("kafka", backends.producer.Ping)
	}
	if backends.s3 != nil {
		checks.RegisterCheck("object_store", backends.s3.Health)
	}
	checks.Register(r)

	tokens := jwttoken.NewJWTService(cfg.Auth.SigningKey(), cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, cfg.Auth.TokenTTL)
	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(auth.RequireAuth(tokens.Validator(), log))
		credentials.Register(r)
	})

	return r, nil
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func recordPoolStats(ctx context.Context, rc *redis.Client) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rc.RecordPoolStats()
		}
	}
}
