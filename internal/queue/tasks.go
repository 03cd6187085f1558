package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"oraculo-bot/internal/logger"
	"oraculo-bot/models"
	"oraculo-bot/services"
	"oraculo-bot/utils"
)

const TaskIngestDocument = "document:ingest"

// IngestPayload points the worker at a staged upload. Content stays on disk
// rather than in the Redis payload; the staging path is removed once the
// task finishes.
type IngestPayload struct {
	TaskID   string `json:"task_id"`
	Filename string `json:"filename"`
	FilePath string `json:"file_path"`
}

// NewIngestTask builds the asynq task for one staged upload.
func NewIngestTask(taskID, filename, filePath string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		TaskID:   taskID,
		Filename: filename,
		FilePath: filePath,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("ingest"),
	), nil
}

// ingestionUpdater is the slice of mongo.Collection the processor needs to
// record task progress.
type ingestionUpdater interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// TaskProcessor handles queued ingestion tasks, recording progress in the
// ingestions collection so the admin API can answer status queries.
type TaskProcessor struct {
	rag        *services.RAGService
	ingestions ingestionUpdater
}

func NewTaskProcessor(rag *services.RAGService, client *mongo.Client, dbName string) *TaskProcessor {
	return &TaskProcessor{
		rag:        rag,
		ingestions: client.Database(dbName).Collection("ingestions"),
	}
}

// ProcessIngest runs the ingestion pipeline on a staged upload. Retryable
// pipeline errors bubble up so asynq retries the task; everything else is
// recorded as failed and skipped.
func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info("Processing ingestion task", "task_id", payload.TaskID, "filename", payload.Filename)
	p.updateStatus(payload.TaskID, models.IngestionProcessing, bson.M{})

	content, err := os.ReadFile(payload.FilePath)
	if err != nil {
		p.markFailed(payload.TaskID, fmt.Sprintf("staged file unreadable: %v", err))
		return fmt.Errorf("read staged file: %v: %w", err, asynq.SkipRetry)
	}

	result, err := p.rag.AddDocument(ctx, payload.Filename, content)
	if err != nil {
		if utils.IsRetryable(err) && !retriesExhausted(ctx) {
			// Leave the staged file and the processing status in place so
			// the retry starts clean.
			logger.Warn("Ingestion task failed, will retry", "task_id", payload.TaskID, "error", err)
			return err
		}
		// Terminal either way: fatal error, or the last allowed attempt of
		// a retryable one. The status record must not stay "processing".
		p.markFailed(payload.TaskID, err.Error())
		os.Remove(payload.FilePath)
		if utils.IsRetryable(err) {
			return err
		}
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	status := models.IngestionStored
	if result.Duplicate {
		status = models.IngestionDuplicate
	}
	now := time.Now()
	p.updateStatus(payload.TaskID, status, bson.M{
		"content_hash": result.ContentHash,
		"chunk_count":  result.ChunkCount,
		"completed_at": now,
	})

	os.Remove(payload.FilePath)
	logger.Info("Ingestion task finished",
		"task_id", payload.TaskID,
		"status", status,
		"chunks", result.ChunkCount,
	)
	return nil
}

// retriesExhausted reports whether this execution is the task's final
// allowed attempt. Outside an asynq handler the counters are absent and the
// answer is false.
func retriesExhausted(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

func (p *TaskProcessor) markFailed(taskID, message string) {
	now := time.Now()
	p.updateStatus(taskID, models.IngestionFailed, bson.M{
		"error_message": message,
		"completed_at":  now,
	})
}

func (p *TaskProcessor) updateStatus(taskID, status string, extra bson.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fields := bson.M{"status": status}
	for k, v := range extra {
		fields[k] = v
	}

	if _, err := p.ingestions.UpdateOne(ctx,
		bson.M{"task_id": taskID},
		bson.M{"$set": fields},
	); err != nil {
		logger.Error("Failed to update ingestion status", "task_id", taskID, "status", status, "error", err)
	}
}
