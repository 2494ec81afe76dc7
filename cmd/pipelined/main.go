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

	adviceengine "github.com/cellforge-labs/cellforge-go/internal/advice"
	"github.com/cellforge-labs/cellforge-go/internal/api"
	"github.com/cellforge-labs/cellforge-go/internal/orchestrator"
	"github.com/cellforge-labs/cellforge-go/internal/platform/auth"
	"github.com/cellforge-labs/cellforge-go/internal/platform/env"
	"github.com/cellforge-labs/cellforge-go/internal/platform/httpserver"
	"github.com/cellforge-labs/cellforge-go/internal/platform/objectstore"
	"github.com/cellforge-labs/cellforge-go/internal/platform/postgres"
	"github.com/cellforge-labs/cellforge-go/internal/progress"
	repopg "github.com/cellforge-labs/cellforge-go/internal/repo/postgres"
	"github.com/cellforge-labs/cellforge-go/internal/runner"
	"github.com/cellforge-labs/cellforge-go/internal/sessions"
	"github.com/cellforge-labs/cellforge-go/internal/stepconfig"
	storageobjectstore "github.com/cellforge-labs/cellforge-go/internal/storage/objectstore"
	"github.com/cellforge-labs/cellforge-go/internal/worker"
)

const service = "pipelined"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("PIPELINED_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("PIPELINED_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	stepCatalogPath := env.String("PIPELINED_STEP_CATALOG", "configs/steps.yaml")
	workers, err := env.Int("PIPELINED_WORKERS", 4)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	queueSize, err := env.Int("PIPELINED_QUEUE_SIZE", 64)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	taskBudget, err := env.Duration("PIPELINED_TASK_BUDGET", 30*time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	reapInterval, err := env.Duration("PIPELINED_REAP_INTERVAL", time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	store, err := storageobjectstore.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("object store init failed", "error", err)
		os.Exit(2)
	}

	datasetStore := repopg.NewDatasetStore(db)
	stepStore := repopg.NewStepStore(db)
	sessionStore := repopg.NewSessionStore(db)
	runStore := repopg.NewStepRunStore(db)
	artifactStore := repopg.NewArtifactStore(db)
	adviceStore := repopg.NewAdviceStore(db)

	catalog, err := stepconfig.LoadCatalog(stepCatalogPath)
	if err != nil {
		logger.Error("invalid step catalog", "path", stepCatalogPath, "error", err)
		os.Exit(2)
	}
	seedCtx, cancelSeed := context.WithTimeout(ctx, 10*time.Second)
	for _, step := range catalog.Domain() {
		if err := stepStore.UpsertStep(seedCtx, step); err != nil {
			cancelSeed()
			logger.Error("seed step catalog", "step_type", string(step.Type), "error", err)
			os.Exit(1)
		}
	}
	cancelSeed()

	notifier := progress.NewNotifier(logger)
	engine := adviceengine.NewEngine(adviceStore, logger)
	registry := runner.NewRegistry(runner.SimulatedRunners(store, storeCfg.BucketArtifacts)...)

	orch := orchestrator.New(orchestrator.Deps{
		Runs:      runStore,
		Artifacts: artifactStore,
		Sessions:  sessionStore,
		Datasets:  datasetStore,
		Registry:  registry,
		Engine:    engine,
		Store:     store,
		Bucket:    storeCfg.BucketArtifacts,
		Notifier:  notifier,
		Logger:    logger,
	})

	pool := worker.NewPool(worker.Config{
		Workers:    workers,
		QueueSize:  queueSize,
		TaskBudget: taskBudget,
	}, orch.Execute, logger)
	pool.Start(ctx)
	defer pool.Wait()

	reaper := worker.NewReaper(runStore, taskBudget, reapInterval, logger)
	go reaper.Run(ctx)

	sessionSvc := sessions.NewService(sessionStore, runStore, artifactStore, db, logger)
	applier := adviceengine.NewApplier(adviceStore, runStore, db, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz(service))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			service,
			httpserver.ReadinessCheck{
				Name:  "postgres",
				Check: httpserver.WithTimeout(750*time.Millisecond, db.PingContext),
			},
		),
	)

	api.New(api.Deps{
		Logger:    logger,
		Datasets:  datasetStore,
		Steps:     stepStore,
		Sessions:  sessionStore,
		Runs:      runStore,
		Artifacts: artifactStore,
		Advice:    adviceStore,
		Service:   sessionSvc,
		Applier:   applier,
		Notifier:  notifier,
		Pool:      pool,
	}).Register(mux)

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	authenticator, err := auth.BuildAuthenticator(ctx, authCfg)
	if err != nil {
		logger.Error("auth init failed", "error", err)
		os.Exit(2)
	}

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		SkipPrefixes:  []string{"/healthz", "/readyz"},
	}.Wrap(mux)

	cfg := httpserver.Config{
		Service:         service,
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
