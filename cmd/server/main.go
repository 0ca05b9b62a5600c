package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ridou/Omnii-One-sub008/internal/clients/redis"
	"github.com/Ridou/Omnii-One-sub008/internal/data/graph"
	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	httpH "github.com/Ridou/Omnii-One-sub008/internal/http/handlers"
	"github.com/Ridou/Omnii-One-sub008/internal/observability"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/envutil"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/neo4jdb"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/openai"
	"github.com/Ridou/Omnii-One-sub008/internal/server"
	"github.com/Ridou/Omnii-One-sub008/internal/services"
)

func main() {
	// Logger
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "omnii-graph-pipeline",
		Environment: logMode,
		Version:     envutil.String("SERVICE_VERSION", "dev"),
	})
	defer func() { _ = otelShutdown(context.Background()) }()

	// Graph store
	graphClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init Neo4j client", "error", err)
		os.Exit(1)
	}
	if graphClient == nil {
		log.Error("NEO4J_URI not set, the pipeline needs a graph store")
		os.Exit(1)
	}
	defer func() { _ = graphClient.Close(context.Background()) }()
	graph.EnsureSchema(ctx, graphClient, log)

	// Extractor
	extractor, err := openai.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init extractor client", "error", err)
		os.Exit(1)
	}
	if extractor == nil {
		log.Error("OPENAI_API_KEY not set, extraction needs an extractor")
		os.Exit(1)
	}

	// Result cache (optional)
	cache, err := redis.NewResultCache(log)
	if err != nil {
		log.Warn("Redis init failed, extraction cache disabled", "error", err)
	}
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	// Repos
	log.Info("Setting up repos...")
	entityRepo := graph.NewEntityRepo(graphClient, log)
	reviewQueueRepo := graph.NewReviewQueueRepo(graphClient, log)
	suggestionRepo := graph.NewSuggestionRepo(graphClient, log)

	// Pattern catalog
	catalog, err := services.LoadPatternCatalog(envutil.String("PATTERN_CATALOG_PATH", ""))
	if err != nil {
		log.Error("Could not load pattern catalog", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up services...")
	maxWorkers := envutil.Int("PIPELINE_MAX_WORKERS", 8)
	minSuggestionConfidence := envutil.Float("MIN_SUGGESTION_CONFIDENCE", types.DefaultMinSuggestionConfidence)

	calibrator := services.NewCalibrator(services.DefaultCalibrationConfig())
	extractionService := services.NewExtractionService(log, extractor, entityRepo, calibrator, cache, maxWorkers)
	qualityGateService := services.NewQualityGateService(log, calibrator, reviewQueueRepo, entityRepo)
	crossSourceService := services.NewCrossSourceService(log, entityRepo, catalog, minSuggestionConfidence, maxWorkers)
	suggestionService := services.NewSuggestionService(log, suggestionRepo, entityRepo)

	// Handlers
	log.Info("Setting up handlers...")
	routerCfg := server.RouterConfig{
		Log:                log,
		ExtractionHandler:  httpH.NewExtractionHandler(log, extractionService),
		QualityGateHandler: httpH.NewQualityGateHandler(log, qualityGateService),
		InferenceHandler:   httpH.NewInferenceHandler(log, crossSourceService, suggestionService),
		SuggestionHandler:  httpH.NewSuggestionHandler(log, suggestionService),
		HealthHandler:      httpH.NewHealthHandler(graphClient, cache),
	}

	port := envutil.String("PORT", "8080")
	srv := server.NewServer(routerCfg, ":"+port)
	log.Info("Server listening", "port", port)
	if err := srv.Run(ctx); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
