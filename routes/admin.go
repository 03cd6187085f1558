package routes

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"oraculo-bot/internal/config"
	"oraculo-bot/internal/logger"
	"oraculo-bot/internal/queue"
	"oraculo-bot/middleware"
	"oraculo-bot/models"
	"oraculo-bot/services"
	"oraculo-bot/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// AdminDeps carries everything the admin API needs.
type AdminDeps struct {
	Cfg         *config.Config
	RAG         *services.RAGService
	Export      *services.ExportService
	QueueClient *asynq.Client
	Mongo       *mongo.Client
	Redis       *redis.Client
}

// SetupAdminRouter builds the gin engine for the admin HTTP API: token
// issuance, document management, store info, and export.
func SetupAdminRouter(deps *AdminDeps) *gin.Engine {
	gin.SetMode(deps.Cfg.GinMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if deps.Cfg.OtelEnabled {
		router.Use(otelgin.Middleware("oraculo-bot"))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     deps.Cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if deps.Redis != nil {
		router.Use(middleware.RateLimitMiddleware(deps.Redis, deps.Cfg))
	}

	router.GET("/health", handleHealth(deps))
	router.POST("/auth/token", handleIssueToken(deps.Cfg))

	api := router.Group("/")
	api.Use(middleware.RequireAdminAuth(deps.Cfg))
	{
		api.POST("/documents", handleUploadDocument(deps))
		api.GET("/documents", handleListDocuments(deps))
		api.GET("/documents/status/:taskID", handleIngestionStatus(deps))
		api.GET("/documents/:hash", handleGetDocument(deps))
		api.DELETE("/documents/:hash", handleDeleteDocument(deps))
		api.GET("/store/info", handleStoreInfo(deps))
		api.GET("/export", handleExport(deps))
	}

	return router
}

func handleHealth(deps *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := gin.H{"status": "ok", "time": time.Now().UTC()}
		if deps.Mongo != nil {
			if err := deps.Mongo.Ping(ctx, nil); err != nil {
				status["status"] = "degraded"
				status["mongo"] = "unreachable"
			}
		}
		c.JSON(http.StatusOK, status)
	}
}

type tokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// handleIssueToken exchanges the admin API key for a short-lived JWT. The
// key itself is never stored; only its bcrypt hash lives in configuration.
func handleIssueToken(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "api_key is required", nil)
			return
		}

		if cfg.AdminAPIKeyHash == "" || !utils.CheckAPIKey(req.APIKey, cfg.AdminAPIKeyHash) {
			utils.RespondWithUnauthorized(c, "Invalid API key")
			return
		}

		token, err := utils.GenerateAdminToken(cfg.JWTSecret, time.Hour)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue token", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_in": int(time.Hour.Seconds()),
		})
	}
}

// handleUploadDocument ingests small uploads synchronously and stages larger
// ones for the queue worker, returning a task id for status polling.
func handleUploadDocument(deps *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", nil)
			return
		}
		defer file.Close()

		if header.Size > deps.Cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				"File size exceeds maximum limit", gin.H{"limit": deps.Cfg.MaxFileSize})
			return
		}

		content, err := io.ReadAll(io.LimitReader(file, deps.Cfg.MaxFileSize+1))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}
		if int64(len(content)) > deps.Cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				"File size exceeds maximum limit", gin.H{"limit": deps.Cfg.MaxFileSize})
			return
		}

		// Small files are processed inline; larger ones go through the queue
		// so the request returns promptly.
		if deps.QueueClient == nil || header.Size <= deps.Cfg.SyncProcessingLimit {
			result, err := deps.RAG.AddDocument(c.Request.Context(), header.Filename, content)
			if err != nil {
				respondIngestError(c, err)
				return
			}
			status := http.StatusCreated
			if result.Duplicate {
				status = http.StatusOK
			}
			c.JSON(status, result)
			return
		}

		enqueueIngestion(c, deps, header.Filename, content)
	}
}

func enqueueIngestion(c *gin.Context, deps *AdminDeps, filename string, content []byte) {
	taskID := uuid.NewString()

	stageDir := filepath.Join(deps.Cfg.FileStorageDir, "staging")
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		utils.RespondWithInternalError(c, "Failed to stage upload", nil)
		return
	}

	stagePath := filepath.Join(stageDir, taskID)
	if err := os.WriteFile(stagePath, content, 0600); err != nil {
		utils.RespondWithInternalError(c, "Failed to stage upload", nil)
		return
	}

	ingestions := deps.Mongo.Database(deps.Cfg.DBName).Collection("ingestions")
	record := models.Ingestion{
		TaskID:      taskID,
		Filename:    filename,
		Status:      models.IngestionPending,
		SubmittedAt: time.Now(),
	}
	if _, err := ingestions.InsertOne(c.Request.Context(), record); err != nil {
		os.Remove(stagePath)
		utils.RespondWithInternalError(c, "Failed to create ingestion record", nil)
		return
	}

	task, err := queue.NewIngestTask(taskID, filename, stagePath)
	if err == nil {
		_, err = deps.QueueClient.Enqueue(task)
	}
	if err != nil {
		os.Remove(stagePath)
		ingestions.DeleteOne(c.Request.Context(), bson.M{"task_id": taskID})
		utils.RespondWithInternalError(c, "Failed to enqueue ingestion task", nil)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":  taskID,
		"filename": filename,
		"status":   models.IngestionPending,
	})
}

func handleIngestionStatus(deps *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("taskID")

		ingestions := deps.Mongo.Database(deps.Cfg.DBName).Collection("ingestions")
		var record models.Ingestion
		err := ingestions.FindOne(c.Request.Context(), bson.M{"task_id": taskID}).Decode(&record)
		if err == mongo.ErrNoDocuments {
			utils.RespondWithNotFound(c, "Unknown task id")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read ingestion status", nil)
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

func handleListDocuments(deps *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, err := deps.RAG.ListDocuments(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
	}
}

func handleGetDocument(deps *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := c.Param("hash")

		doc, err := deps.RAG.GetDocument(c.Request.Context(), hash)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read document", nil)
			return
		}
		if doc == nil {
			utils.RespondWithNotFound(c, "No document with that hash")
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func handleDeleteDocument(deps *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := c.Param("hash")

		deleted, err := deps.RAG.RemoveDocument(c.Request.Context(), hash)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to delete document", nil)
			return
		}
		if !deleted {
			utils.RespondWithNotFound(c, "No document with that hash")
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true, "content_hash": hash})
	}
}

func handleStoreInfo(deps *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := deps.RAG.Info(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read store info", nil)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func handleExport(deps *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.DefaultQuery("format", "xlsx") == "json" {
			payload, err := deps.Export.ExportJSON(c.Request.Context())
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to generate export", nil)
				return
			}
			c.JSON(http.StatusOK, payload)
			return
		}

		data, err := deps.Export.ExportWorkbook(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to generate export", nil)
			return
		}

		c.Header("Content-Disposition", "attachment; filename="+services.ExportFilename())
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	}
}

func respondIngestError(c *gin.Context, err error) {
	logger.Warn("Document ingestion rejected",
		"request_id", middleware.GetRequestID(c),
		"error", err,
	)

	switch {
	case utils.IsUnsupportedFormat(err):
		utils.RespondWithError(c, http.StatusUnsupportedMediaType, "unsupported_format",
			"Unsupported document format", gin.H{"supported": services.SupportedExtensions()})
	case utils.IsTooLarge(err):
		utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
			"File size exceeds maximum limit", nil)
	case utils.IsEmptyDocument(err):
		utils.RespondWithBadRequest(c, "No text could be extracted from the document", nil)
	case utils.IsRetryable(err):
		utils.RespondWithError(c, http.StatusServiceUnavailable, "temporarily_unavailable",
			"Ingestion failed temporarily, please retry", nil)
	default:
		utils.RespondWithInternalError(c, "Failed to ingest document", nil)
	}
}
