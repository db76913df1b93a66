package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/vinetrail/vinetrail-backend/config"
	"github.com/vinetrail/vinetrail-backend/db"
	"github.com/vinetrail/vinetrail-backend/handlers"
	"github.com/vinetrail/vinetrail-backend/internal/store/postgres"
	"github.com/vinetrail/vinetrail-backend/logger"
	proposalsvc "github.com/vinetrail/vinetrail-backend/models/proposal/service"
	importsvc "github.com/vinetrail/vinetrail-backend/models/smartimport/service"
	"github.com/vinetrail/vinetrail-backend/pkg/docparse"
	"github.com/vinetrail/vinetrail-backend/pkg/filestore"
	"github.com/vinetrail/vinetrail-backend/pkg/llm"
	"github.com/vinetrail/vinetrail-backend/pkg/payments"
	"github.com/vinetrail/vinetrail-backend/router"
	"github.com/vinetrail/vinetrail-backend/services"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// Initialize logger
	logger.InitLogger()
	log := logger.GetLogger()
	defer func() { _ = logger.Close() }()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewConnector().Connect(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.RunMigrations(cfg.Database.URL()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	proposalStore := postgres.NewProposalStore(pool)
	venueStore := postgres.NewVenueStore(pool)
	brandStore := postgres.NewBrandStore(pool)

	// Redis backs the rate limiters only; requests are let through while it is down.
	redisClient := redis.NewClient(config.ConfigureRedisOptions(&cfg.Redis))
	defer redisClient.Close()
	if err := config.TestRedisConnection(redisClient); err != nil {
		log.Warnw("Redis unavailable, rate limiting will fail open", "error", err)
	}

	// Notifications
	workerPool := services.NewWorkerPool(cfg.WorkerPool, prometheus.DefaultRegisterer)
	workerPool.Start()

	emailService := services.NewEmailService(&cfg.Email)
	notifier := services.NewProposalNotifier(proposalStore, brandStore, emailService,
		cfg.Email.StaffAddress, cfg.Server.PublicBaseURL)

	// Proposals
	paymentRegistry := payments.NewStripeRegistry(cfg.Payments.KeyForBrand)
	proposalService := proposalsvc.NewProposalService(proposalStore, paymentRegistry, workerPool, notifier,
		proposalsvc.WithDefaultCurrency(cfg.Payments.Currency))

	// Smart import
	var importService *importsvc.ImportService
	if cfg.SmartImport.Enabled {
		importService, err = newImportService(ctx, cfg, venueStore)
		if err != nil {
			log.Fatalf("Failed to initialize smart import: %v", err)
		}
	} else {
		log.Info("Smart import disabled")
	}

	healthService := services.NewHealthService(pool, redisClient, workerPool, cfg.Server.Version)

	r := router.SetupRouter(router.Dependencies{
		Config:               cfg,
		RedisClient:          redisClient,
		ProposalHandler:      handlers.NewProposalHandler(proposalService),
		AdminProposalHandler: handlers.NewAdminProposalHandler(proposalService),
		SmartImportHandler:   newSmartImportHandler(importService, venueStore),
		HealthHandler:        handlers.NewHealthHandler(healthService),
		Logger:               log,
		SmartImportEnabled:   importService != nil,
	})

	// Uploads and model calls are slow, so the write timeout covers a full
	// extraction with one retry.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2*cfg.LLM.RequestTimeout() + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infow("Starting server", "port", cfg.Server.Port, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownTimeout := time.Duration(cfg.WorkerPool.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Server forced to shutdown", "error", err)
	}
	// Drain notification jobs after the last request has committed.
	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		log.Warnw("Notification jobs still running at shutdown", "error", err)
	}
	log.Info("Server stopped")
}

func newImportService(ctx context.Context, cfg *config.Config, venues importsvc.VenueLister) (*importsvc.ImportService, error) {
	storage, err := newArchiveStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, err
	}

	client := llm.NewAnthropicClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.MaxTokens,
		llm.WithBaseURL(cfg.LLM.BaseURL))
	extractor := importsvc.NewExtractor(client, importsvc.ExtractorConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		CallTimeout: cfg.LLM.RequestTimeout(),
	}, prometheus.DefaultRegisterer)

	parser := docparse.NewRegistry(docparse.WithMinPDFTextLength(cfg.SmartImport.MinPDFTextLength))

	return importsvc.NewImportService(parser, extractor, venues, storage, importsvc.ImportConfig{
		MaxFiles:            cfg.SmartImport.MaxFiles,
		MaxFileSizeBytes:    cfg.SmartImport.MaxFileSizeBytes,
		VenueMatchThreshold: cfg.SmartImport.VenueMatchThreshold,
	}), nil
}

// newArchiveStorage selects where uploaded documents are kept.
func newArchiveStorage(ctx context.Context, cfg *config.StorageConfig) (filestore.Storage, error) {
	switch cfg.Driver {
	case "local":
		return filestore.NewLocalStorage(cfg.LocalPath)
	case "s3":
		return filestore.NewS3Storage(ctx, filestore.S3Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	default:
		return filestore.Nop{}, nil
	}
}

// newSmartImportHandler keeps the venue catalogue available when smart import
// is off. A nil *ImportService must not reach the handler as a non-nil interface.
func newSmartImportHandler(imports *importsvc.ImportService, venues handlers.VenueLister) *handlers.SmartImportHandler {
	var svc handlers.SmartImportService
	if imports != nil {
		svc = imports
	}
	return handlers.NewSmartImportHandler(svc, venues)
}
