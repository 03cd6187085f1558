package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oraculo-bot/internal/config"
	"oraculo-bot/internal/logger"
	"oraculo-bot/internal/telemetry"
	"oraculo-bot/models"
	"oraculo-bot/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ragTracer = otel.Tracer("oraculo-bot/services")

const contextHeader = "Relevant context from legal documents:"

const contextSeparator = "\n\n---\n\n"

// AddResult reports the outcome of a document ingestion.
type AddResult struct {
	ContentHash string `json:"content_hash"`
	Filename    string `json:"filename"`
	ChunkCount  int    `json:"chunk_count"`
	Duplicate   bool   `json:"duplicate"`
}

// RAGService drives the ingestion and retrieval pipeline: extract, hash,
// dedup, chunk, embed, store on the way in; search and budgeted context
// assembly on the way out.
type RAGService struct {
	loader  *DocumentLoader
	chunker *Chunker
	store   DocumentStore
	embed   EmbedFunc

	countTokens func(string) int

	maxContextTokens    int
	similarityThreshold float64
	searchLimit         int

	metrics *telemetry.Metrics
}

func NewRAGService(cfg *config.Config, store DocumentStore, embed EmbedFunc, countTokens func(string) int, metrics *telemetry.Metrics) (*RAGService, error) {
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	return &RAGService{
		loader:              NewDocumentLoader(cfg.MaxFileSize),
		chunker:             chunker,
		store:               store,
		embed:               embed,
		countTokens:         countTokens,
		maxContextTokens:    cfg.MaxContextTokens,
		similarityThreshold: cfg.SimilarityThreshold,
		searchLimit:         cfg.SearchLimit,
		metrics:             metrics,
	}, nil
}

// AddDocument runs the full ingestion pipeline on an uploaded file. Content
// identity is the hash of the extracted text, so the same document uploaded
// under two filenames is stored once.
func (r *RAGService) AddDocument(ctx context.Context, filename string, content []byte) (*AddResult, error) {
	start := time.Now()

	var span trace.Span
	ctx, span = ragTracer.Start(ctx, "rag.add_document",
		trace.WithAttributes(attribute.String("document.filename", filename)))
	defer span.End()

	text, err := r.loader.Extract(filename, content)
	if err != nil {
		r.recordIngestion("failed", 0, start)
		return nil, err
	}

	contentHash := utils.ContentHash(text)

	existing, err := r.store.FindByHash(ctx, contentHash)
	if err != nil {
		r.recordIngestion("failed", 0, start)
		return nil, err
	}
	if existing != nil {
		logger.Info("Duplicate document skipped", "filename", filename, "hash", contentHash, "stored_as", existing.Filename)
		r.recordIngestion("duplicate", 0, start)
		return &AddResult{
			ContentHash: contentHash,
			Filename:    existing.Filename,
			ChunkCount:  existing.ChunkCount,
			Duplicate:   true,
		}, nil
	}

	chunks := r.chunker.Chunk(text)
	if len(chunks) == 0 {
		r.recordIngestion("failed", 0, start)
		return nil, fmt.Errorf("%s: %w", filename, utils.ErrEmptyDocument)
	}

	archived, err := utils.CompressText(text)
	if err != nil {
		logger.Warn("Failed to archive extracted text", "filename", filename, "error", err)
		archived = nil
	}

	doc := &models.Document{
		ContentHash:  contentHash,
		Filename:     filename,
		MimeType:     strings.TrimPrefix(strings.ToLower(detectFormat(filename, content)), "."),
		SizeBytes:    int64(len(content)),
		IngestedAt:   time.Now(),
		ArchivedText: archived,
	}

	if err := r.store.StoreDocument(ctx, doc, chunks, r.embed); err != nil {
		r.recordIngestion("failed", 0, start)
		return nil, err
	}

	r.recordIngestion("stored", len(chunks), start)
	return &AddResult{
		ContentHash: contentHash,
		Filename:    filename,
		ChunkCount:  len(chunks),
	}, nil
}

// RemoveDocument deletes a document by content hash. It reports whether the
// document existed.
func (r *RAGService) RemoveDocument(ctx context.Context, contentHash string) (bool, error) {
	return r.store.Delete(ctx, contentHash)
}

// RetrieveContext searches the store for chunks relevant to the query and
// assembles them into a context block bounded by the token budget. It
// returns "" when nothing clears the similarity threshold; that is not an
// error, the conversation simply proceeds without document context.
func (r *RAGService) RetrieveContext(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}

	start := time.Now()

	var span trace.Span
	ctx, span = ragTracer.Start(ctx, "rag.retrieve_context")
	defer span.End()

	results, err := r.store.Search(ctx, query, r.searchLimit, r.similarityThreshold, r.embed)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(contextHeader)
	used := r.countTokens(contextHeader)
	included := 0

	for _, result := range results {
		entry := fmt.Sprintf("%s[%s] %s", contextSeparator, result.Filename, result.Text)
		cost := r.countTokens(entry)
		if used+cost > r.maxContextTokens {
			// Results arrive best first; once one chunk is over budget we
			// stop rather than skip ahead to weaker matches.
			break
		}
		sb.WriteString(entry)
		used += cost
		included++
	}

	if included == 0 {
		return "", nil
	}

	if r.metrics != nil {
		r.metrics.RecordRetrieval(int64(included), time.Since(start).Seconds())
	}

	logger.Debug("Assembled retrieval context",
		"candidates", len(results),
		"included", included,
		"tokens", used,
	)
	return sb.String(), nil
}

// Info returns store statistics for status commands.
func (r *RAGService) Info(ctx context.Context) (*StoreInfo, error) {
	return r.store.Info(ctx)
}

// ListDocuments returns the stored document inventory.
func (r *RAGService) ListDocuments(ctx context.Context) ([]models.Document, error) {
	return r.store.ListDocuments(ctx)
}

// GetDocument returns one stored document by content hash, or nil when no
// document with that hash exists.
func (r *RAGService) GetDocument(ctx context.Context, contentHash string) (*models.Document, error) {
	return r.store.FindByHash(ctx, contentHash)
}

func (r *RAGService) recordIngestion(status string, chunks int, start time.Time) {
	if r.metrics != nil {
		r.metrics.RecordIngestion(status, int64(chunks), time.Since(start).Seconds())
	}
}
