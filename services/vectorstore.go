package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"oraculo-bot/internal/logger"
	"oraculo-bot/models"
	"oraculo-bot/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EmbedFunc produces the vector for a piece of text. The store depends on
// this narrow function type rather than on a concrete embedding client.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// SearchResult is one chunk returned by a similarity search.
type SearchResult struct {
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
	Filename     string  `json:"filename"`
	DocumentHash string  `json:"document_hash"`
	ChunkIndex   int     `json:"chunk_index"`
}

// StoreInfo summarises the store contents for status commands.
type StoreInfo struct {
	DocumentCount int64 `json:"document_count"`
	ChunkCount    int64 `json:"chunk_count"`
}

// DocumentStore is the persistence boundary of the RAG pipeline.
type DocumentStore interface {
	FindByHash(ctx context.Context, contentHash string) (*models.Document, error)
	StoreDocument(ctx context.Context, doc *models.Document, chunks []string, embed EmbedFunc) error
	Search(ctx context.Context, query string, limit int, threshold float64, embed EmbedFunc) ([]SearchResult, error)
	Delete(ctx context.Context, contentHash string) (bool, error)
	Info(ctx context.Context) (*StoreInfo, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
}

// MongoStore persists documents and their embedded chunks in MongoDB.
// Similarity search runs in Go over the candidate chunks unless the Atlas
// $vectorSearch path is enabled.
type MongoStore struct {
	documents    *mongo.Collection
	chunks       *mongo.Collection
	atlasSearch  bool
	atlasIndex   string
	numCandidate int
}

func NewMongoStore(client *mongo.Client, dbName string, atlasSearch bool, atlasIndex string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		documents:    db.Collection("documents"),
		chunks:       db.Collection("chunks"),
		atlasSearch:  atlasSearch,
		atlasIndex:   atlasIndex,
		numCandidate: 200,
	}
}

// FindByHash returns the document with the given content hash, or nil when
// it is not stored.
func (s *MongoStore) FindByHash(ctx context.Context, contentHash string) (*models.Document, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"content_hash": contentHash}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, &utils.StoreError{Op: "find", Retryable: true, Err: err}
	}
	return &doc, nil
}

// StoreDocument embeds every chunk and writes the document record plus its
// chunks. On any failure it removes whatever was written for this hash so
// the document is either fully stored or absent.
func (s *MongoStore) StoreDocument(ctx context.Context, doc *models.Document, chunks []string, embed EmbedFunc) error {
	if len(chunks) == 0 {
		return &utils.StoreError{Op: "store", Retryable: false, Err: fmt.Errorf("no chunks to store")}
	}

	for i, text := range chunks {
		vector, err := embed(ctx, text)
		if err != nil {
			s.cleanup(doc.ContentHash)
			return fmt.Errorf("embedding chunk %d/%d: %w", i+1, len(chunks), err)
		}

		chunk := models.DocumentChunk{
			DocumentHash: doc.ContentHash,
			ChunkIndex:   i,
			Text:         text,
			Vector:       vector,
			Filename:     doc.Filename,
			CreatedAt:    time.Now(),
		}

		filter := bson.M{"document_hash": doc.ContentHash, "chunk_index": i}
		update := bson.M{"$set": chunk}
		opts := options.Update().SetUpsert(true)

		if _, err := s.chunks.UpdateOne(ctx, filter, update, opts); err != nil {
			s.cleanup(doc.ContentHash)
			return &utils.StoreError{Op: "store", Retryable: true, Err: err}
		}
	}

	doc.ChunkCount = len(chunks)
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now()
	}

	filter := bson.M{"content_hash": doc.ContentHash}
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)

	if _, err := s.documents.UpdateOne(ctx, filter, update, opts); err != nil {
		s.cleanup(doc.ContentHash)
		return &utils.StoreError{Op: "store", Retryable: true, Err: err}
	}

	logger.Info("Stored document", "filename", doc.Filename, "hash", doc.ContentHash, "chunks", len(chunks))
	return nil
}

// cleanup removes any partial writes for a hash. Runs on a fresh context so
// a cancelled ingestion context does not leave orphans behind.
func (s *MongoStore) cleanup(contentHash string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_hash": contentHash}); err != nil {
		logger.Error("Failed to clean up chunks after store failure", "hash", contentHash, "error", err)
	}
	if _, err := s.documents.DeleteOne(ctx, bson.M{"content_hash": contentHash}); err != nil {
		logger.Error("Failed to clean up document after store failure", "hash", contentHash, "error", err)
	}
}

// Search embeds the query and returns chunks scoring at or above the
// threshold, best first, capped at limit. The threshold filter is applied
// before the limit so weak matches never displace strong ones.
func (s *MongoStore) Search(ctx context.Context, query string, limit int, threshold float64, embed EmbedFunc) ([]SearchResult, error) {
	queryVector, err := embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	if s.atlasSearch {
		results, err := s.searchAtlas(ctx, queryVector, limit, threshold)
		if err == nil {
			return results, nil
		}
		logger.Warn("Atlas vector search failed, falling back to in-process scan", "error", err)
	}

	return s.searchLocal(ctx, queryVector, limit, threshold)
}

// searchLocal scans every stored chunk and scores it by cosine similarity.
func (s *MongoStore) searchLocal(ctx context.Context, queryVector []float32, limit int, threshold float64) ([]SearchResult, error) {
	cursor, err := s.chunks.Find(ctx, bson.M{})
	if err != nil {
		return nil, &utils.StoreError{Op: "search", Retryable: true, Err: err}
	}
	defer cursor.Close(ctx)

	var results []SearchResult
	for cursor.Next(ctx) {
		var chunk models.DocumentChunk
		if err := cursor.Decode(&chunk); err != nil {
			return nil, &utils.StoreError{Op: "search", Retryable: false, Err: err}
		}

		score := CosineSimilarity(queryVector, chunk.Vector)
		if score < threshold {
			continue
		}

		results = append(results, SearchResult{
			Text:         chunk.Text,
			Score:        score,
			Filename:     chunk.Filename,
			DocumentHash: chunk.DocumentHash,
			ChunkIndex:   chunk.ChunkIndex,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, &utils.StoreError{Op: "search", Retryable: true, Err: err}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// searchAtlas uses the $vectorSearch aggregation stage, available on MongoDB
// Atlas with a vector index over the chunks collection. The stage is asked
// for the full candidate window; the threshold filter runs before the caller
// limit so weak matches never crowd out qualifying ones.
func (s *MongoStore) searchAtlas(ctx context.Context, queryVector []float32, limit int, threshold float64) ([]SearchResult, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.atlasIndex},
			{Key: "path", Value: "vector"},
			{Key: "queryVector", Value: queryVector},
			{Key: "numCandidates", Value: s.numCandidate},
			{Key: "limit", Value: s.numCandidate},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "text", Value: 1},
			{Key: "filename", Value: 1},
			{Key: "document_hash", Value: 1},
			{Key: "chunk_index", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := s.chunks.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []SearchResult
	for cursor.Next(ctx) {
		var row struct {
			Text         string  `bson:"text"`
			Filename     string  `bson:"filename"`
			DocumentHash string  `bson:"document_hash"`
			ChunkIndex   int     `bson:"chunk_index"`
			Score        float64 `bson:"score"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			Text:         row.Text,
			Score:        row.Score,
			Filename:     row.Filename,
			DocumentHash: row.DocumentHash,
			ChunkIndex:   row.ChunkIndex,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return thresholdThenLimit(results, threshold, limit), nil
}

// thresholdThenLimit drops results under the similarity threshold, then caps
// the survivors at limit. Both search paths promise this order.
func thresholdThenLimit(results []SearchResult, threshold float64, limit int) []SearchResult {
	kept := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// Delete removes a document and its chunks. It reports whether anything was
// deleted; deleting an absent hash is not an error.
func (s *MongoStore) Delete(ctx context.Context, contentHash string) (bool, error) {
	chunkResult, err := s.chunks.DeleteMany(ctx, bson.M{"document_hash": contentHash})
	if err != nil {
		return false, &utils.StoreError{Op: "delete", Retryable: true, Err: err}
	}

	docResult, err := s.documents.DeleteOne(ctx, bson.M{"content_hash": contentHash})
	if err != nil {
		return false, &utils.StoreError{Op: "delete", Retryable: true, Err: err}
	}

	deleted := chunkResult.DeletedCount > 0 || docResult.DeletedCount > 0
	if deleted {
		logger.Info("Deleted document", "hash", contentHash, "chunks", chunkResult.DeletedCount)
	}
	return deleted, nil
}

// Info returns document and chunk counts.
func (s *MongoStore) Info(ctx context.Context) (*StoreInfo, error) {
	docCount, err := s.documents.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, &utils.StoreError{Op: "info", Retryable: true, Err: err}
	}
	chunkCount, err := s.chunks.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, &utils.StoreError{Op: "info", Retryable: true, Err: err}
	}
	return &StoreInfo{DocumentCount: docCount, ChunkCount: chunkCount}, nil
}

// ListDocuments returns every stored document, newest first, without the
// archived text payload.
func (s *MongoStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "ingested_at", Value: -1}}).
		SetProjection(bson.M{"archived_text": 0})

	cursor, err := s.documents.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, &utils.StoreError{Op: "list", Retryable: true, Err: err}
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, &utils.StoreError{Op: "list", Retryable: true, Err: err}
	}
	return docs, nil
}

// CosineSimilarity returns the cosine of the angle between two vectors, or 0
// when either vector is empty, zero, or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
