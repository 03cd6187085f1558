package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oraculo-bot/internal/ai"
	"oraculo-bot/internal/bot"
	"oraculo-bot/internal/config"
	"oraculo-bot/internal/logger"
	"oraculo-bot/internal/telemetry"
	"oraculo-bot/routes"
	"oraculo-bot/services"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer(cfg, "oraculo-bot")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}

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

	chatClient := ai.NewChatClient(cfg, metrics)
	embedClient := ai.NewEmbeddingClient(cfg)

	var ragService *services.RAGService
	if cfg.RAGEnabled {
		store := services.NewMongoStore(mongoClient, cfg.DBName, cfg.VectorSearchEnabled, cfg.VectorIndexName)
		ragService, err = services.NewRAGService(cfg, store, embedClient.Embed, ai.CountTokens, metrics)
		if err != nil {
			log.Fatal("Failed to build retrieval pipeline: ", err)
		}
	}

	moderation := services.NewModerationLogger(cfg.ModerationLogFile, cfg.WarnFile)
	fetcher := services.NewWebpageFetcher(cfg.RequestTimeout, cfg.MaxFileSize)

	discordBot, err := bot.New(cfg, chatClient, ragService, fetcher, moderation, mongoClient)
	if err != nil {
		log.Fatal("Failed to create bot: ", err)
	}
	if err := discordBot.Start(); err != nil {
		log.Fatal("Failed to start bot: ", err)
	}
	defer discordBot.Stop()

	var maintenance *services.MaintenanceService
	if ragService != nil {
		maintenance = services.NewMaintenanceService(ragService, cfg.FileStorageDir+"/staging")
		if err := maintenance.Start(); err != nil {
			logger.Warn("Maintenance scheduler failed to start", "error", err)
		} else {
			defer maintenance.Stop()
		}
	}

	// The admin API is optional; an empty port disables it.
	var srv *http.Server
	if cfg.AdminPort != "" && ragService != nil {
		redisClient, err := config.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, admin API runs without rate limiting or queue", "error", err)
			redisClient = nil
		}

		var queueClient *asynq.Client
		if redisClient != nil {
			addr, password, db, err := config.RedisConnOpts(cfg)
			if err != nil {
				log.Fatal("Invalid Redis configuration: ", err)
			}
			queueClient = asynq.NewClient(asynq.RedisClientOpt{
				Addr:     addr,
				Password: password,
				DB:       db,
			})
			defer queueClient.Close()
		}

		exportService := services.NewExportService(ragService, moderation)
		router := routes.SetupAdminRouter(&routes.AdminDeps{
			Cfg:         cfg,
			RAG:         ragService,
			Export:      exportService,
			QueueClient: queueClient,
			Mongo:       mongoClient,
			Redis:       redisClient,
		})

		srv = &http.Server{
			Addr:    ":" + cfg.AdminPort,
			Handler: router,
		}

		go func() {
			logger.Info("Admin API listening", "port", cfg.AdminPort)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("Admin API failed: ", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Admin API forced to shut down", "error", err)
		}
	}
}
