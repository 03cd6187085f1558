package utils

import (
	"errors"
	"fmt"
)

// Sentinel errors for document ingestion. They are wrapped with file details
// at the point of failure and matched with errors.Is by callers.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrTooLarge          = errors.New("document exceeds maximum size")
	ErrEmptyDocument     = errors.New("document contains no extractable text")
)

// ExtractionError wraps a parser failure (corrupt or encrypted file).
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingError wraps a failure from the embeddings API. Rate limits and
// timeouts are retryable; auth failures are not.
type EmbeddingError struct {
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *EmbeddingError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("embedding request failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding request failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// CompletionError wraps a failure from the chat completion API with the same
// retryable/fatal split as EmbeddingError.
type CompletionError struct {
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *CompletionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion request failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion request failed: %v", e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// StoreError wraps a vector store failure.
type StoreError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsUnsupportedFormat reports whether the error stems from an unknown
// document format.
func IsUnsupportedFormat(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat)
}

// IsTooLarge reports whether the error stems from the file size cap.
func IsTooLarge(err error) bool {
	return errors.Is(err, ErrTooLarge)
}

// IsEmptyDocument reports whether extraction produced no text.
func IsEmptyDocument(err error) bool {
	return errors.Is(err, ErrEmptyDocument)
}

// IsRetryable reports whether the error is a transient condition worth
// retrying (rate limit, timeout, 5xx, store unavailable).
func IsRetryable(err error) bool {
	var embErr *EmbeddingError
	if errors.As(err, &embErr) {
		return embErr.Retryable
	}
	var compErr *CompletionError
	if errors.As(err, &compErr) {
		return compErr.Retryable
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Retryable
	}
	return false
}
