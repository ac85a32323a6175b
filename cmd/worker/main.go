package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dallisoft/ingest-backend/config"
	"github.com/dallisoft/ingest-backend/pkg/ai"
	"github.com/dallisoft/ingest-backend/pkg/ai/gemini"
	"github.com/dallisoft/ingest-backend/pkg/ai/openai"
	"github.com/dallisoft/ingest-backend/pkg/milvus"
	"github.com/dallisoft/ingest-backend/pkg/minio"
	"github.com/dallisoft/ingest-backend/pkg/pipeline"
	"github.com/dallisoft/ingest-backend/pkg/queue"
	"github.com/dallisoft/ingest-backend/pkg/repository"
	"github.com/dallisoft/ingest-backend/pkg/worker"

	database "github.com/dallisoft/ingest-backend/pkg/db"
	logx "github.com/dallisoft/ingest-backend/pkg/logger"
)

const gracefulShutdownTimeout = 60 * time.Second

func main() {
	if err := config.Init(config.ParseConfigFlag()); err != nil {
		log.Fatal(err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, _ := logx.GetZapLogger(ctx)
	defer func() {
		// can't handle the error due to https://github.com/uber-go/zap/issues/880
		_ = logger.Sync()
	}()

	db := database.GetSharedConnection()
	defer database.Close(db)
	if err := database.Ping(ctx, db); err != nil {
		logger.Fatal("Database is unreachable", zap.Error(err))
	}

	redisClient := redis.NewClient(&config.Config.Cache.Redis.RedisOptions)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Redis is unreachable", zap.Error(err))
	}

	minioClient, err := minio.NewMinioClientAndInitBucket(ctx)
	if err != nil {
		logger.Fatal("Failed to initialize object storage", zap.Error(err))
	}

	vectorDB, err := milvus.NewMilvusClient(ctx, config.Config.Milvus.Host, config.Config.Milvus.Port)
	if err != nil {
		logger.Fatal("Failed to connect to vector store", zap.Error(err))
	}
	defer vectorDB.Close()
	if healthy, err := vectorDB.GetHealth(ctx); err != nil || !healthy {
		logger.Fatal("Vector store is unhealthy", zap.Error(err))
	}

	embeddingClient, err := openai.NewClient(config.Config.Model.OpenAI.APIKey)
	if err != nil {
		logger.Fatal("Failed to initialize embedding client", zap.Error(err))
	}
	tokenizer, err := openai.NewTokenizer()
	if err != nil {
		logger.Fatal("Failed to load tokenizer", zap.Error(err))
	}

	// Augmentation and OCR degrade gracefully when unconfigured: tasks that
	// need them fail, everything else proceeds.
	var ocrClient ai.OCRClient
	var augmenter ai.AugmentationClient
	if config.Config.Model.Gemini.APIKey != "" {
		geminiClient, err := gemini.NewClient(ctx, config.Config.Model.Gemini.APIKey)
		if err != nil {
			logger.Fatal("Failed to initialize Gemini client", zap.Error(err))
		}
		ocrClient = geminiClient
		augmenter = geminiClient
	} else {
		logger.Warn("No Gemini API key configured, OCR and augmentation are disabled")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "ingest-worker"
	}
	taskQueue, err := queue.New(ctx, redisClient, queue.Config{
		Stream:            config.Config.Queue.Stream,
		ConsumerGroup:     config.Config.Queue.ConsumerGroup,
		Consumer:          hostname,
		VisibilityTimeout: config.Config.Queue.VisibilityTimeout,
		BlockTimeout:      config.Config.Queue.BlockTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize task queue", zap.Error(err))
	}

	repo := repository.NewRepository(db)
	workerCfg := config.Config.Worker

	chunker := pipeline.NewChunker(
		pipeline.NewRegistry(),
		minioClient,
		tokenizer,
		ocrClient,
		augmenter,
		config.Config.Server.MaxFileSize,
		logger,
	)
	embedder := pipeline.NewEmbedder(
		embeddingClient,
		tokenizer,
		semaphore.NewWeighted(workerCfg.EmbedConcurrency),
		workerCfg.EmbedBatchSize,
		logger,
	)
	indexer := pipeline.NewIndexer(vectorDB, repo, workerCfg.DocBulkSize, logger)
	p := pipeline.NewPipeline(
		repo,
		chunker,
		embedder,
		indexer,
		embeddingClient,
		semaphore.NewWeighted(workerCfg.ParseConcurrency),
		logger,
	)

	w := worker.NewWorker(taskQueue, p, workerCfg.TaskConcurrency, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			logger.Error("Worker loop exited with error", zap.Error(err))
		}
	}()
	logger.Info("Worker is running",
		zap.String("stream", config.Config.Queue.Stream),
		zap.String("consumer", hostname),
		zap.Int64("taskConcurrency", workerCfg.TaskConcurrency))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down, draining in-flight tasks")
	cancel()

	select {
	case <-done:
		logger.Info("Worker drained")
	case <-time.After(gracefulShutdownTimeout):
		logger.Warn("Drain timed out, exiting with tasks in flight")
	}
}
