/**
 * Engine entrypoint: wires every singleton in dependency order and runs
 * the ingest worker pool until terminated.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nexusdoc/docengine/internal/config"
	"github.com/nexusdoc/docengine/internal/embedding"
	"github.com/nexusdoc/docengine/internal/evaluate"
	"github.com/nexusdoc/docengine/internal/imageextract"
	"github.com/nexusdoc/docengine/internal/llm"
	"github.com/nexusdoc/docengine/internal/logging"
	"github.com/nexusdoc/docengine/internal/objectstorage"
	"github.com/nexusdoc/docengine/internal/orchestrator"
	"github.com/nexusdoc/docengine/internal/progress"
	"github.com/nexusdoc/docengine/internal/quota"
	"github.com/nexusdoc/docengine/internal/store"
	"github.com/nexusdoc/docengine/internal/summarize"
)

func main() {
	if err := godotenv.Load(".env.docengine"); err != nil {
		log.Printf("warning: no .env.docengine file found, relying on process environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.NewLogger("engine")
	if cfg.NodeEnv == "development" {
		logger = logging.NewDevelopmentLogger("engine")
	}

	logger.Info("starting document engine", "nodeEnv", cfg.NodeEnv)

	log.Println("initializing quota manager...")
	quotaManager := quota.New(defaultQuotaLimits(), mustLoadLocation(cfg.QuotaTimezone, logger))
	logger.Info("quota manager ready", "dailyTokenBudget", cfg.DailyTokenBudget)

	log.Println("initializing LLM provider manager...")
	remoteA := llm.NewRemoteAProvider(cfg.ProviderAAPIKey, cfg.ProviderABaseURL)
	remoteB := llm.NewRemoteBProvider(cfg.ProviderBAPIKey, cfg.ProviderBBaseURL)
	llmManager := llm.NewManager(remoteA, remoteB, llm.PreferredProvider(cfg.PreferredProvider), cfg.LLMFallbackEnabled, quotaManager, logger)
	logger.Info("LLM provider manager ready", "preferred", cfg.PreferredProvider, "fallback", cfg.LLMFallbackEnabled)

	log.Println("initializing progress bus...")
	bus := progress.NewBus(cfg.ProgressMaxSubscribers, cfg.ProgressConnTimeout, cfg.ProgressHeartbeat)
	logger.Info("progress bus ready", "maxSubscribers", cfg.ProgressMaxSubscribers)

	log.Println("initializing document store...")
	documentStore, err := newDocumentStore(cfg)
	if err != nil {
		logger.Error("failed to initialize document store", "error", err)
		log.Fatalf("failed to initialize document store: %v", err)
	}
	logger.Info("document store ready")

	log.Println("initializing object storage...")
	objStorage, err := objectstorage.NewLocalFilesystemStorage(cfg.StorageBaseDir)
	if err != nil {
		logger.Error("failed to initialize object storage", "error", err)
		log.Fatalf("failed to initialize object storage: %v", err)
	}
	logger.Info("object storage ready", "baseDir", cfg.StorageBaseDir)

	log.Println("initializing image extractor...")
	imageExtractor := imageextract.New(cfg.OutputImageDir, imageStorageAdapter{objStorage}, cfg.TesseractPath, logger)
	logger.Info("image extractor ready", "ocrEnabled", cfg.OCREnabled)

	log.Println("initializing embedding service...")
	embeddingClient, err := embedding.New(cfg.EmbeddingAPIKey, "", cfg.EmbeddingModel, 1024, logger)
	if err != nil {
		logger.Error("failed to initialize embedding client", "error", err)
		log.Fatalf("failed to initialize embedding client: %v", err)
	}
	embeddingIndex, err := embedding.NewQdrantIndex(cfg.QdrantURL, cfg.QdrantCollection, 1024)
	if err != nil {
		logger.Error("failed to initialize embedding index", "error", err)
		log.Fatalf("failed to initialize embedding index: %v", err)
	}
	embeddingService := embedding.NewService(embeddingClient, embeddingIndex, cfg.EmbeddingModel, cfg.EmbeddingBatchSize, logger)
	logger.Info("embedding service ready", "model", cfg.EmbeddingModel, "batchSize", cfg.EmbeddingBatchSize)

	log.Println("initializing summarization and evaluation services...")
	summarizer := summarize.NewService(llmManager, logger)
	evaluator := evaluate.NewService(llmManager, logger)
	logger.Info("summarization and evaluation services ready")

	log.Println("initializing document orchestrator...")
	orch := orchestrator.New(documentStore, imageExtractor, embeddingService, summarizer, evaluator, bus, logger, orchestrator.Config{
		OverallTimeout:  cfg.DocumentTaskTimeout,
		ImageExtraction: imageextract.Options{EnableOCR: cfg.OCREnabled, OCRLang: cfg.OCRLang},
	})
	logger.Info("document orchestrator ready")

	log.Println("initializing worker pool...")
	pool, err := orchestrator.NewPool(orchestrator.PoolConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   cfg.QueueName,
		Concurrency: cfg.WorkerPoolSize,
	}, orch, logger)
	if err != nil {
		logger.Error("failed to initialize worker pool", "error", err)
		log.Fatalf("failed to initialize worker pool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		logger.Error("failed to start worker pool", "error", err)
		log.Fatalf("failed to start worker pool: %v", err)
	}

	logger.Info("document engine started",
		"workerPoolSize", cfg.WorkerPoolSize,
		"queue", cfg.QueueName,
		"storageBaseDir", cfg.StorageBaseDir,
	)
	log.Println("document engine is ready to accept ingest jobs")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh

	log.Println("shutdown signal received, draining in-flight jobs...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := pool.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping worker pool", "error", err)
		log.Printf("error stopping worker pool: %v", err)
	} else {
		log.Println("worker pool stopped")
	}

	if closer, ok := documentStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("error closing document store", "error", err)
			log.Printf("error closing document store: %v", err)
		} else {
			log.Println("document store closed")
		}
	}

	logger.Info("document engine shut down cleanly")
	log.Println("shutdown complete")
}

// imageStorageAdapter narrows objectstorage.ObjectStorage down to the
// single-method Storage contract imageextract expects, returning the
// saved path as the image's storage id.
type imageStorageAdapter struct {
	backing objectstorage.ObjectStorage
}

func (a imageStorageAdapter) Save(ctx context.Context, data []byte, fileName string) (string, error) {
	obj, err := a.backing.Save(ctx, data, fileName, objectstorage.SaveOptions{CreateSubdirs: true, NameStrategy: objectstorage.NameUUID})
	if err != nil {
		return "", err
	}
	return obj.Path, nil
}

func newDocumentStore(cfg *config.Config) (store.DocumentStore, error) {
	if cfg.DatabaseURL == "" {
		log.Println("no DATABASE_URL configured, falling back to in-memory document store")
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(cfg.DatabaseURL)
}

func mustLoadLocation(name string, logger *logging.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("failed to load quota timezone, defaulting to UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}

// defaultQuotaLimits mirrors the engine's documented per-model daily
// budget tiers. Operators needing different caps configure them through
// a future config surface; this table is the bundled default.
func defaultQuotaLimits() map[string]quota.Limits {
	return map[string]quota.Limits{
		"cheap-fast-model":    {RPM: 60, TPM: 200000, RPD: 5000},
		"exp-fast-model":      {RPM: 30, TPM: 150000, RPD: 2000},
		"standard-fast-model": {RPM: 30, TPM: 150000, RPD: 2000},
		"premium-model":       {RPM: 10, TPM: 100000, RPD: 500},
		"exp-premium-model":   {RPM: 10, TPM: 100000, RPD: 500},
	}
}
