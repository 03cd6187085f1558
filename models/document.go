package models

import "time"

// Document represents one ingested legal document. Identity is the SHA-256
// hash of the extracted text, so re-uploading identical content under a
// different filename is a no-op.
type Document struct {
	ContentHash  string    `bson:"content_hash" json:"content_hash"`
	Filename     string    `bson:"filename" json:"filename"`
	MimeType     string    `bson:"mime_type" json:"mime_type"`
	SizeBytes    int64     `bson:"size_bytes" json:"size_bytes"`
	ChunkCount   int       `bson:"chunk_count" json:"chunk_count"`
	IngestedAt   time.Time `bson:"ingested_at" json:"ingested_at"`
	ArchivedText []byte    `bson:"archived_text,omitempty" json:"-"` // gzip of extracted text
}

// DocumentChunk is one embedded segment of a document, keyed by
// {content_hash, chunk_index} so upserts are idempotent and retryable.
type DocumentChunk struct {
	DocumentHash string    `bson:"document_hash" json:"document_hash"`
	ChunkIndex   int       `bson:"chunk_index" json:"chunk_index"`
	Text         string    `bson:"text" json:"text"`
	Vector       []float32 `bson:"vector" json:"-"`
	Filename     string    `bson:"filename" json:"filename"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// Ingestion tracks an asynchronous ingestion task submitted through the
// admin API.
type Ingestion struct {
	TaskID       string     `bson:"task_id" json:"task_id"`
	Filename     string     `bson:"filename" json:"filename"`
	Status       string     `bson:"status" json:"status"` // pending, processing, stored, duplicate, failed
	ContentHash  string     `bson:"content_hash,omitempty" json:"content_hash,omitempty"`
	ChunkCount   int        `bson:"chunk_count,omitempty" json:"chunk_count,omitempty"`
	ErrorMessage string     `bson:"error_message,omitempty" json:"error_message,omitempty"`
	SubmittedAt  time.Time  `bson:"submitted_at" json:"submitted_at"`
	CompletedAt  *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Ingestion status constants
const (
	IngestionPending    = "pending"
	IngestionProcessing = "processing"
	IngestionStored     = "stored"
	IngestionDuplicate  = "duplicate"
	IngestionFailed     = "failed"
)
