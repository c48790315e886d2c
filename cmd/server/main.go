package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"signet/internal/compliance/catalog"
	"signet/internal/compliance/evaluator"
	compliancemetrics "signet/internal/compliance/metrics"
	"signet/internal/document/events"
	documentmetrics "signet/internal/document/metrics"
	"signet/internal/document/otp"
	"signet/internal/document/service"
	"signet/internal/document/signature"
	"signet/internal/document/store"
	"signet/internal/document/sweeper"
	"signet/internal/document/template"
	"signet/internal/gate"
	jwttoken "signet/internal/jwt_token"
	"signet/internal/platform/blob"
	"signet/internal/platform/config"
	"signet/internal/platform/httpserver"
	"signet/internal/platform/kafka"
	"signet/internal/platform/logger"
	"signet/internal/platform/metrics"
	"signet/internal/platform/postgres"
	platformredis "signet/internal/platform/redis"
	"signet/internal/rbac"
	"signet/pkg/platform/audit"
	auditpublisher "signet/pkg/platform/audit/publisher"
	auditmemory "signet/pkg/platform/audit/store/memory"
	auditpostgres "signet/pkg/platform/audit/store/postgres"
)

// main wires dependencies, exposes the HTTP router and owns the server
// lifecycle. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("signet exited", "error", err)
		os.Exit(1)
	}
}

// infra holds the connections opened at startup so they close in reverse
// order on shutdown.
type infra struct {
	db      *sql.DB
	redis   *platformredis.Client
	closers []func()
}

func (i *infra) close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	inf := &infra{}
	defer inf.close()

	if cfg.Storage.Backend == "postgres" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return err
		}
		inf.db = db
		inf.closers = append(inf.closers, func() { _ = db.Close() })
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		inf.redis = redisClient
		inf.closers = append(inf.closers, func() { _ = redisClient.Close() })
	}

	// Audit
	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if inf.db != nil {
		auditStore = auditpostgres.New(inf.db)
	}
	auditor := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(1024),
		auditpublisher.WithLogger(log),
	)
	inf.closers = append(inf.closers, auditor.Close)

	// Templates and requirements
	templates, err := template.LoadFile(cfg.Documents.TemplatesFile)
	if err != nil {
		return err
	}
	requirements, err := catalog.LoadFile(cfg.Compliance.CatalogFile)
	if err != nil {
		return err
	}
	if err := requirements.CheckTypes(templates.Types()); err != nil {
		return err
	}
	roles, err := rbac.LoadFile(cfg.Compliance.RolesFile)
	if err != nil {
		return err
	}

	documents, err := openDocumentStore(ctx, cfg, inf)
	if err != nil {
		return err
	}
	publisher, err := newEventPublisher(ctx, cfg.Kafka, log, inf)
	if err != nil {
		return err
	}

	// Compliance
	complianceMetrics := compliancemetrics.New()
	evalOpts := []evaluator.Option{
		evaluator.WithLogger(log),
		evaluator.WithMetrics(complianceMetrics),
		evaluator.WithTimeout(cfg.Compliance.EvaluationTimeout),
	}
	switch {
	case cfg.Compliance.CacheTTL <= 0:
		log.Info("compliance cache disabled")
	case inf.redis != nil:
		evalOpts = append(evalOpts, evaluator.WithCache(evaluator.NewRedisCache(inf.redis.Client, log), cfg.Compliance.CacheTTL))
	default:
		cache, err := evaluator.NewMemoryCache(cfg.Compliance.CacheSize)
		if err != nil {
			return fmt.Errorf("create compliance cache: %w", err)
		}
		evalOpts = append(evalOpts, evaluator.WithCache(cache, cfg.Compliance.CacheTTL))
	}
	eval := evaluator.New(documents, requirements, evalOpts...)
	accessGate := gate.New(roles, eval,
		gate.WithAuditor(auditor),
		gate.WithLogger(log),
		gate.WithMetrics(complianceMetrics),
	)

	// Documents
	documentMetrics := documentmetrics.New()
	serviceOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(documentMetrics),
		service.WithAuditor(auditor),
		service.WithGenerateTimeout(cfg.Documents.GenerateTimeout),
		service.WithRevealOTP(cfg.IsDev()),
	}
	signerOpts := []signature.Option{
		signature.WithLogger(log),
		signature.WithMetrics(documentMetrics),
		signature.WithPublisher(publisher),
		signature.WithAuditor(auditor),
		signature.WithInvalidator(eval),
	}
	if cfg.Documents.RequireOTP {
		var otpStore otp.Store = otp.NewInMemoryStore()
		if inf.redis != nil {
			otpStore = otp.NewRedisStore(inf.redis.Client)
		}
		challenges := otp.NewService(otpStore, otp.WithTTL(cfg.Documents.OTPTTL))
		serviceOpts = append(serviceOpts, service.WithOTP(challenges, cfg.Documents.OTPTTL))
		signerOpts = append(signerOpts, signature.WithOTP(challenges))
	}
	documentService := service.New(documents, templates, serviceOpts...)
	signer := signature.New(documents, signerOpts...)
	expiry := sweeper.New(documents, cfg.Documents.SweepInterval,
		sweeper.WithLogger(log),
		sweeper.WithMetrics(documentMetrics),
	)

	app := &application{
		cfg:         cfg,
		log:         log,
		inf:         inf,
		documents:   documentService,
		signer:      signer,
		evaluator:   eval,
		catalog:     requirements,
		roles:       roles,
		gate:        accessGate,
		sweeper:     expiry,
		auditStore:  auditStore,
		auditor:     auditor,
		tokens:      jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience),
		httpMetrics: metrics.New(),
	}
	srv := httpserver.New(cfg.Addr, app.routes(), max(cfg.Documents.GenerateTimeout, cfg.Compliance.EvaluationTimeout))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting signet", "addr", cfg.Addr, "store", cfg.Storage.Backend, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := expiry.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("signet stopped")
		return nil
	})
	return g.Wait()
}

func openDocumentStore(ctx context.Context, cfg config.Server, inf *infra) (store.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return store.NewInMemory(), nil
	case "file", "":
		return store.OpenFileStore(cfg.Storage.FileDir)
	case "postgres":
		blobs, err := openBlobStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(inf.db, blobs), nil
	default:
		return nil, fmt.Errorf("unknown DOCUMENT_STORE %q", cfg.Storage.Backend)
	}
}

func openBlobStore(ctx context.Context, cfg config.Server) (blob.Store, error) {
	if cfg.Minio.Endpoint == "" {
		return blob.NewDir(cfg.Storage.FileDir)
	}
	m, err := blob.NewMinio(cfg.Minio)
	if err != nil {
		return nil, err
	}
	if err := m.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func newEventPublisher(ctx context.Context, cfg config.Kafka, log *slog.Logger, inf *infra) (events.Publisher, error) {
	if len(cfg.Brokers) == 0 {
		log.Info("no kafka brokers configured, logging document events")
		return events.NewLogPublisher(log), nil
	}
	client, err := kafka.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := kafka.EnsureTopic(ctx, client, cfg.Topic, 3); err != nil {
		client.Close()
		return nil, err
	}
	inf.closers = append(inf.closers, func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Flush(flushCtx)
		client.Close()
	})
	return events.NewKafkaPublisher(client, cfg.Topic, log), nil
}
