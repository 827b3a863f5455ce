// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"nivaran/internal/audit"
	"nivaran/internal/collab"
	"nivaran/internal/delivery"
	"nivaran/internal/delivery/markers"
	"nivaran/internal/docstore"
	"nivaran/internal/grievance"
	grievanceHandler "nivaran/internal/grievance/handler"
	"nivaran/internal/grievance/store"
	"nivaran/internal/grounding"
	"nivaran/internal/officer"
	"nivaran/internal/pipeline"
	"nivaran/internal/platform/config"
	"nivaran/internal/platform/httpserver"
	"nivaran/internal/platform/logger"
	platformredis "nivaran/internal/platform/redis"
	"nivaran/internal/redact"
	httptransport "nivaran/internal/transport/http"
	"nivaran/pkg/platform/retry"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httptransport.HealthChecker{}

	// Persistence: Postgres when configured, in-memory otherwise.
	var (
		records   store.RecordStore
		auditDB   audit.Store
		directory officer.Directory
	)
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		records = store.NewPostgres(pool)
		auditDB = audit.NewPostgresStore(pool)
		directory = officer.NewPostgresDirectory(pool)
		checks["postgres"] = httptransport.HealthCheckFunc(pool.Ping)
		log.Info("using postgres persistence")
	} else {
		records = store.NewInMemory()
		auditDB = audit.NewInMemoryStore()
		directory = officer.NewInMemoryDirectory()
		log.Warn("using in-memory persistence; state is lost on restart")
	}

	// Documents and delivery markers live in Redis when available.
	var (
		docs     docstore.Store
		markerDB markers.Store
	)
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		docs = docstore.NewRedisStore(redisClient.Client, cfg.EphemeralTTL)
		markerDB = markers.NewRedisStore(redisClient.Client)
		checks["redis"] = httptransport.HealthCheckFunc(redisClient.Health)
		log.Info("using redis for documents and delivery markers")
	} else {
		docs = docstore.NewInMemoryStore(docstore.WithTTL(cfg.EphemeralTTL))
		markerDB = markers.NewInMemoryStore()
	}

	// Audit trail, optionally mirrored to Kafka for compliance.
	auditOpts := []audit.PublisherOption{}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = sink.Close(closeCtx)
		}()
		auditOpts = append(auditOpts, audit.WithSink(sink))
		log.Info("audit mirror enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	auditor := audit.NewPublisher(auditDB, auditOpts...)

	// Collaborators: HTTP adapters, or in-process stubs for development.
	var (
		transcriber pipeline.Transcriber
		translator  pipeline.Translator
		searcher    grounding.Searcher
		tagger      redact.Tagger
		renderer    pipeline.Renderer
		userSender  delivery.Sender
		mailSender  delivery.Sender
	)
	if cfg.DevStubs {
		transcriber = collab.StubTranscriber{}
		translator = collab.StubTranslator{}
		searcher = collab.StubSearcher{}
		tagger = collab.StubTagger{}
		renderer = collab.StubRenderer{}
		userSender = &collab.StubSender{Channel: string(grievance.ChannelUser), Logger: log}
		mailSender = &collab.StubSender{Channel: string(grievance.ChannelOfficer), Logger: log}
		log.Warn("collaborator stubs enabled; no external calls will be made")
	} else {
		transcriber = collab.NewSpeechAdapter(collab.NewClient(cfg.Collaborators.SpeechURL))
		translator = collab.NewTranslateAdapter(collab.NewClient(cfg.Collaborators.TranslateURL))
		searcher = collab.NewSearchAdapter(collab.NewClient(cfg.Collaborators.SearchURL))
		tagger = collab.NewTaggerAdapter(collab.NewClient(cfg.Collaborators.TaggerURL))
		renderer = collab.NewRendererAdapter(collab.NewClient(cfg.Collaborators.RendererURL))
		userSender = collab.NewMessagingSender(collab.NewClient(cfg.Collaborators.MessagingURL))
		mailSender = collab.NewEmailSender(collab.NewClient(cfg.Collaborators.EmailURL))
	}

	policy := retry.Default()
	coordinator := delivery.NewCoordinator(markerDB, map[grievance.Channel]delivery.Sender{
		grievance.ChannelUser:    userSender,
		grievance.ChannelOfficer: mailSender,
	}, policy, log)

	orchestrator := pipeline.NewOrchestrator(
		records,
		auditor,
		docs,
		directory,
		coordinator,
		transcriber,
		translator,
		grounding.NewEngine(searcher, grounding.WithThreshold(cfg.GroundingThreshold)),
		renderer,
		redact.NewRedactor(tagger),
		log,
		pipeline.WithRetryPolicy(policy),
	)

	service := pipeline.NewService(
		ctx,
		records,
		orchestrator,
		auditor,
		[]byte(cfg.IdentityHashKey),
		cfg.PipelineDeadline,
		int(cfg.MaxConcurrentRuns),
		log,
	)
	service.StartSweeper(ctx, time.Hour, cfg.EphemeralTTL)
	service.StartRecovery(ctx, 30*time.Second, 2*time.Minute)

	router := httptransport.NewRouter(httptransport.Config{
		Grievances: grievanceHandler.New(service, log),
		Logger:     log,
		Checks:     checks,
	})
	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting nivaran server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("draining http server")
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
