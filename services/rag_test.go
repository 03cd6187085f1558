package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"oraculo-bot/internal/config"
	"oraculo-bot/models"
	"oraculo-bot/utils"
)

// fakeStore is an in-memory DocumentStore for pipeline tests.
type fakeStore struct {
	docs    map[string]*models.Document
	chunks  map[string][]string
	results []SearchResult

	storeErr  error
	searchErr error
	cleaned   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:   make(map[string]*models.Document),
		chunks: make(map[string][]string),
	}
}

func (f *fakeStore) FindByHash(ctx context.Context, contentHash string) (*models.Document, error) {
	return f.docs[contentHash], nil
}

func (f *fakeStore) StoreDocument(ctx context.Context, doc *models.Document, chunks []string, embed EmbedFunc) error {
	for _, chunk := range chunks {
		if _, err := embed(ctx, chunk); err != nil {
			f.cleaned = append(f.cleaned, doc.ContentHash)
			return err
		}
	}
	if f.storeErr != nil {
		f.cleaned = append(f.cleaned, doc.ContentHash)
		return f.storeErr
	}
	doc.ChunkCount = len(chunks)
	f.docs[doc.ContentHash] = doc
	f.chunks[doc.ContentHash] = chunks
	return nil
}

func (f *fakeStore) Search(ctx context.Context, query string, limit int, threshold float64, embed EmbedFunc) ([]SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if _, err := embed(ctx, query); err != nil {
		return nil, err
	}
	results := f.results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeStore) Delete(ctx context.Context, contentHash string) (bool, error) {
	if _, ok := f.docs[contentHash]; !ok {
		return false, nil
	}
	delete(f.docs, contentHash)
	delete(f.chunks, contentHash)
	return true, nil
}

func (f *fakeStore) Info(ctx context.Context) (*StoreInfo, error) {
	total := 0
	for _, chunks := range f.chunks {
		total += len(chunks)
	}
	return &StoreInfo{DocumentCount: int64(len(f.docs)), ChunkCount: int64(total)}, nil
}

func (f *fakeStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	for _, doc := range f.docs {
		docs = append(docs, *doc)
	}
	return docs, nil
}

func okEmbed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func wordTokens(text string) int {
	return len(strings.Fields(text))
}

func testRAGConfig() *config.Config {
	return &config.Config{
		ChunkSize:           1000,
		ChunkOverlap:        200,
		MaxFileSize:         10 << 20,
		MaxContextTokens:    3000,
		SimilarityThreshold: 0.7,
		SearchLimit:         10,
	}
}

func newTestRAG(t *testing.T, cfg *config.Config, store DocumentStore, embed EmbedFunc) *RAGService {
	t.Helper()
	rag, err := NewRAGService(cfg, store, embed, wordTokens, nil)
	if err != nil {
		t.Fatalf("NewRAGService failed: %v", err)
	}
	return rag
}

func TestAddDocumentStoresChunks(t *testing.T) {
	store := newFakeStore()
	rag := newTestRAG(t, testRAGConfig(), store, okEmbed)

	content := []byte(strings.Repeat("All parties agree to the terms herein. ", 80))
	result, err := rag.AddDocument(context.Background(), "contract.txt", content)
	if err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	if result.Duplicate {
		t.Fatal("first upload should not be a duplicate")
	}
	if result.ChunkCount == 0 {
		t.Fatal("expected at least one chunk")
	}
	if result.ContentHash != utils.ContentHash(strings.TrimSpace(string(content))) {
		t.Fatal("result hash should be the hash of the normalized extracted text")
	}
	if store.docs[result.ContentHash] == nil {
		t.Fatal("document record not stored")
	}
}

func TestAddDocumentDeduplicatesByContent(t *testing.T) {
	store := newFakeStore()
	rag := newTestRAG(t, testRAGConfig(), store, okEmbed)

	content := []byte("identical contract body")
	first, err := rag.AddDocument(context.Background(), "v1.txt", content)
	if err != nil {
		t.Fatalf("first AddDocument failed: %v", err)
	}

	// Same content, different filename.
	second, err := rag.AddDocument(context.Background(), "renamed.txt", content)
	if err != nil {
		t.Fatalf("second AddDocument failed: %v", err)
	}

	if !second.Duplicate {
		t.Fatal("re-upload of identical content should be reported as duplicate")
	}
	if second.ContentHash != first.ContentHash {
		t.Fatal("duplicate should carry the original hash")
	}
	if second.Filename != "v1.txt" {
		t.Fatalf("duplicate should report the stored filename, got %q", second.Filename)
	}
	if len(store.docs) != 1 {
		t.Fatalf("store should hold exactly one document, has %d", len(store.docs))
	}
}

func TestAddDocumentPropagatesRetryableEmbedError(t *testing.T) {
	store := newFakeStore()
	rateLimited := &utils.EmbeddingError{StatusCode: 429, Retryable: true, Err: errors.New("rate limited")}
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, rateLimited
	}
	rag := newTestRAG(t, testRAGConfig(), store, embed)

	_, err := rag.AddDocument(context.Background(), "doc.txt", []byte("some contract text"))
	if err == nil {
		t.Fatal("expected an error when embedding fails")
	}
	if !utils.IsRetryable(err) {
		t.Fatalf("429 embedding failure should be retryable, got %v", err)
	}
	if len(store.docs) != 0 {
		t.Fatal("no document should be stored after an embedding failure")
	}
	if len(store.cleaned) == 0 {
		t.Fatal("partial writes should have been cleaned up")
	}
}

func TestAddDocumentRejectsUnsupportedFormat(t *testing.T) {
	store := newFakeStore()
	rag := newTestRAG(t, testRAGConfig(), store, okEmbed)

	_, err := rag.AddDocument(context.Background(), "image.png", []byte{0x89, 'P', 'N', 'G'})
	if !utils.IsUnsupportedFormat(err) {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestRetrieveContextEmptyQuery(t *testing.T) {
	store := newFakeStore()
	searchCalled := false
	embed := func(ctx context.Context, text string) ([]float32, error) {
		searchCalled = true
		return []float32{1}, nil
	}
	rag := newTestRAG(t, testRAGConfig(), store, embed)

	got, err := rag.RetrieveContext(context.Background(), "   ")
	if err != nil {
		t.Fatalf("RetrieveContext failed: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
	if searchCalled {
		t.Fatal("blank query should not reach the store")
	}
}

func TestRetrieveContextNoMatches(t *testing.T) {
	store := newFakeStore()
	rag := newTestRAG(t, testRAGConfig(), store, okEmbed)

	got, err := rag.RetrieveContext(context.Background(), "anything about torts")
	if err != nil {
		t.Fatalf("RetrieveContext failed: %v", err)
	}
	if got != "" {
		t.Fatalf("no matches should give empty context, got %q", got)
	}
}

func TestRetrieveContextAssemblesHeaderAndProvenance(t *testing.T) {
	store := newFakeStore()
	store.results = []SearchResult{
		{Text: "liability is limited to direct damages", Score: 0.95, Filename: "msa.pdf"},
		{Text: "termination requires thirty days notice", Score: 0.85, Filename: "msa.pdf"},
	}
	rag := newTestRAG(t, testRAGConfig(), store, okEmbed)

	got, err := rag.RetrieveContext(context.Background(), "what is the liability cap")
	if err != nil {
		t.Fatalf("RetrieveContext failed: %v", err)
	}

	if !strings.HasPrefix(got, "Relevant context from legal documents:") {
		t.Fatalf("context should open with the header, got %q", got)
	}
	if !strings.Contains(got, "[msa.pdf]") {
		t.Fatal("context should carry the source filename")
	}
	if !strings.Contains(got, "\n\n---\n\n") {
		t.Fatal("chunks should be separated by the divider")
	}
	if strings.Index(got, "liability") > strings.Index(got, "termination") {
		t.Fatal("chunks should appear best match first")
	}
}

func TestRetrieveContextHonorsTokenBudget(t *testing.T) {
	cfg := testRAGConfig()
	cfg.MaxContextTokens = 20

	store := newFakeStore()
	store.results = []SearchResult{
		{Text: strings.Repeat("word ", 10), Score: 0.95, Filename: "a.txt"},
		{Text: strings.Repeat("word ", 10), Score: 0.90, Filename: "b.txt"},
		{Text: strings.Repeat("word ", 10), Score: 0.85, Filename: "c.txt"},
	}
	rag := newTestRAG(t, cfg, store, okEmbed)

	got, err := rag.RetrieveContext(context.Background(), "query")
	if err != nil {
		t.Fatalf("RetrieveContext failed: %v", err)
	}

	if !strings.Contains(got, "[a.txt]") {
		t.Fatal("best match should be included")
	}
	if strings.Contains(got, "[c.txt]") {
		t.Fatal("weakest match should be cut by the token budget")
	}
	if wordTokens(got) > 20+5 {
		t.Fatalf("assembled context far exceeds the budget: %d tokens", wordTokens(got))
	}
}

func TestRetrieveContextBudgetTooSmallForAnyChunk(t *testing.T) {
	cfg := testRAGConfig()
	cfg.MaxContextTokens = 3

	store := newFakeStore()
	store.results = []SearchResult{
		{Text: strings.Repeat("word ", 50), Score: 0.95, Filename: "a.txt"},
	}
	rag := newTestRAG(t, cfg, store, okEmbed)

	got, err := rag.RetrieveContext(context.Background(), "query")
	if err != nil {
		t.Fatalf("RetrieveContext failed: %v", err)
	}
	if got != "" {
		t.Fatalf("when nothing fits the budget the context must be empty, got %q", got)
	}
}

func TestRetrieveContextPropagatesStoreError(t *testing.T) {
	store := newFakeStore()
	store.searchErr = &utils.StoreError{Op: "search", Retryable: true, Err: errors.New("connection reset")}
	rag := newTestRAG(t, testRAGConfig(), store, okEmbed)

	_, err := rag.RetrieveContext(context.Background(), "query")
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
	if !utils.IsRetryable(err) {
		t.Fatalf("store outage should be retryable, got %v", err)
	}
}

func TestRemoveDocument(t *testing.T) {
	store := newFakeStore()
	rag := newTestRAG(t, testRAGConfig(), store, okEmbed)

	result, err := rag.AddDocument(context.Background(), "doc.txt", []byte("body text"))
	if err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	deleted, err := rag.RemoveDocument(context.Background(), result.ContentHash)
	if err != nil {
		t.Fatalf("RemoveDocument failed: %v", err)
	}
	if !deleted {
		t.Fatal("stored document should be deletable")
	}

	// Deleting again is a no-op, not an error.
	deleted, err = rag.RemoveDocument(context.Background(), result.ContentHash)
	if err != nil {
		t.Fatalf("second RemoveDocument failed: %v", err)
	}
	if deleted {
		t.Fatal("second delete should report nothing removed")
	}
}
