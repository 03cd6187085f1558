package main

import (
	"context"
	"log"
	"time"

	"oraculo-bot/internal/ai"
	"oraculo-bot/internal/config"
	"oraculo-bot/internal/logger"
	"oraculo-bot/internal/queue"
	"oraculo-bot/internal/telemetry"
	"oraculo-bot/services"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger.InitLogger(cfg)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
		metrics = nil
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB: ", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	embedClient := ai.NewEmbeddingClient(cfg)
	store := services.NewMongoStore(mongoClient, cfg.DBName, cfg.VectorSearchEnabled, cfg.VectorIndexName)
	ragService, err := services.NewRAGService(cfg, store, embedClient.Embed, ai.CountTokens, metrics)
	if err != nil {
		log.Fatal("Failed to build retrieval pipeline: ", err)
	}

	addr, password, db, err := config.RedisConnOpts(cfg)
	if err != nil {
		log.Fatal("Invalid Redis configuration: ", err)
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     addr,
		Password: password,
		DB:       db,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"ingest":  3,
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ragService, mongoClient, cfg.DBName)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.ProcessIngest)

	logger.Info("Starting ingestion worker", "redis", cfg.RedisURL, "concurrency", 4)
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker: ", err)
	}
}
