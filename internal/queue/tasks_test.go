package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"oraculo-bot/internal/config"
	"oraculo-bot/models"
	"oraculo-bot/services"
	"oraculo-bot/utils"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// recordingUpdater captures every status write so tests can assert on the
// ingestion record lifecycle.
type recordingUpdater struct {
	updates []bson.M
}

func (r *recordingUpdater) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	set := update.(bson.M)["$set"].(bson.M)
	r.updates = append(r.updates, set)
	return &mongo.UpdateResult{MatchedCount: 1}, nil
}

func (r *recordingUpdater) lastStatus() string {
	if len(r.updates) == 0 {
		return ""
	}
	status, _ := r.updates[len(r.updates)-1]["status"].(string)
	return status
}

type memoryStore struct {
	docs     map[string]*models.Document
	storeErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: make(map[string]*models.Document)}
}

func (m *memoryStore) FindByHash(ctx context.Context, contentHash string) (*models.Document, error) {
	return m.docs[contentHash], nil
}

func (m *memoryStore) StoreDocument(ctx context.Context, doc *models.Document, chunks []string, embed services.EmbedFunc) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	doc.ChunkCount = len(chunks)
	m.docs[doc.ContentHash] = doc
	return nil
}

func (m *memoryStore) Search(ctx context.Context, query string, limit int, threshold float64, embed services.EmbedFunc) ([]services.SearchResult, error) {
	return nil, nil
}

func (m *memoryStore) Delete(ctx context.Context, contentHash string) (bool, error) {
	_, ok := m.docs[contentHash]
	delete(m.docs, contentHash)
	return ok, nil
}

func (m *memoryStore) Info(ctx context.Context) (*services.StoreInfo, error) {
	return &services.StoreInfo{DocumentCount: int64(len(m.docs))}, nil
}

func (m *memoryStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	return nil, nil
}

func newTestProcessor(t *testing.T, store services.DocumentStore) (*TaskProcessor, *recordingUpdater) {
	t.Helper()

	cfg := &config.Config{
		ChunkSize:           1000,
		ChunkOverlap:        200,
		MaxFileSize:         10 << 20,
		MaxContextTokens:    3000,
		SimilarityThreshold: 0.7,
		SearchLimit:         10,
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
	rag, err := services.NewRAGService(cfg, store, embed, func(s string) int { return len(s) / 4 }, nil)
	if err != nil {
		t.Fatalf("NewRAGService failed: %v", err)
	}

	updater := &recordingUpdater{}
	return &TaskProcessor{rag: rag, ingestions: updater}, updater
}

func stageUpload(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to stage file: %v", err)
	}
	return path
}

func ingestTask(t *testing.T, taskID, filename, path string) *asynq.Task {
	t.Helper()
	task, err := NewIngestTask(taskID, filename, path)
	if err != nil {
		t.Fatalf("NewIngestTask failed: %v", err)
	}
	return task
}

func TestProcessIngestStoresDocument(t *testing.T) {
	store := newMemoryStore()
	processor, updater := newTestProcessor(t, store)

	path := stageUpload(t, "task-1", "Article 5 guarantees equality before the law.")
	task := ingestTask(t, "task-1", "constitution.txt", path)

	if err := processor.ProcessIngest(context.Background(), task); err != nil {
		t.Fatalf("ProcessIngest failed: %v", err)
	}

	if got := updater.lastStatus(); got != models.IngestionStored {
		t.Fatalf("final status = %q, want %q", got, models.IngestionStored)
	}
	last := updater.updates[len(updater.updates)-1]
	if last["content_hash"] == "" || last["content_hash"] == nil {
		t.Fatal("stored status update is missing the content hash")
	}
	if last["chunk_count"] != 1 {
		t.Fatalf("chunk_count = %v, want 1", last["chunk_count"])
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("staged file should be removed after a successful ingestion")
	}
}

func TestProcessIngestDuplicateReportsDuplicateStatus(t *testing.T) {
	store := newMemoryStore()
	processor, updater := newTestProcessor(t, store)

	first := stageUpload(t, "task-1", "Same clause text.")
	if err := processor.ProcessIngest(context.Background(), ingestTask(t, "task-1", "v1.txt", first)); err != nil {
		t.Fatalf("first ingestion failed: %v", err)
	}

	second := stageUpload(t, "task-2", "Same clause text.")
	if err := processor.ProcessIngest(context.Background(), ingestTask(t, "task-2", "v2.txt", second)); err != nil {
		t.Fatalf("second ingestion failed: %v", err)
	}

	if got := updater.lastStatus(); got != models.IngestionDuplicate {
		t.Fatalf("final status = %q, want %q", got, models.IngestionDuplicate)
	}
}

func TestProcessIngestFatalErrorMarksFailed(t *testing.T) {
	store := newMemoryStore()
	store.storeErr = &utils.StoreError{Op: "store", Retryable: false, Err: errors.New("schema mismatch")}
	processor, updater := newTestProcessor(t, store)

	path := stageUpload(t, "task-1", "Clause text.")
	err := processor.ProcessIngest(context.Background(), ingestTask(t, "task-1", "clause.txt", path))
	if err == nil {
		t.Fatal("expected an error from the failed store")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("fatal errors must skip retries, got %v", err)
	}

	if got := updater.lastStatus(); got != models.IngestionFailed {
		t.Fatalf("final status = %q, want %q", got, models.IngestionFailed)
	}
	last := updater.updates[len(updater.updates)-1]
	if msg, _ := last["error_message"].(string); msg == "" {
		t.Fatal("failed status update is missing the error message")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("staged file should be removed once the task is terminal")
	}
}

func TestProcessIngestRetryableErrorKeepsStagedFile(t *testing.T) {
	store := newMemoryStore()
	store.storeErr = &utils.StoreError{Op: "store", Retryable: true, Err: errors.New("connection reset")}
	processor, updater := newTestProcessor(t, store)

	path := stageUpload(t, "task-1", "Clause text.")
	err := processor.ProcessIngest(context.Background(), ingestTask(t, "task-1", "clause.txt", path))
	if err == nil {
		t.Fatal("expected the retryable error to surface")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("retryable errors must not skip retries before the attempts run out")
	}

	// The record stays in processing and the staged file survives so the
	// next attempt starts clean.
	if got := updater.lastStatus(); got != models.IngestionProcessing {
		t.Fatalf("status after a retryable failure = %q, want %q", got, models.IngestionProcessing)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("staged file should still exist for the retry: %v", err)
	}
}

func TestProcessIngestBadPayloadSkipsRetry(t *testing.T) {
	processor, updater := newTestProcessor(t, newMemoryStore())

	task := asynq.NewTask(TaskIngestDocument, []byte("{not json"))
	err := processor.ProcessIngest(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payloads must skip retries, got %v", err)
	}
	if len(updater.updates) != 0 {
		t.Fatal("no status should be written for an undecodable payload")
	}
}

func TestProcessIngestMissingStagedFileMarksFailed(t *testing.T) {
	processor, updater := newTestProcessor(t, newMemoryStore())

	task := ingestTask(t, "task-1", "gone.txt", filepath.Join(t.TempDir(), "missing"))
	err := processor.ProcessIngest(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("an unreadable staged file must skip retries, got %v", err)
	}
	if got := updater.lastStatus(); got != models.IngestionFailed {
		t.Fatalf("final status = %q, want %q", got, models.IngestionFailed)
	}
}
