package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oraculo-bot/internal/config"
	"oraculo-bot/internal/logger"
	"oraculo-bot/utils"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"
)

// EmbeddingClient produces dense vectors for document chunks and search
// queries. Ingestion embeds one chunk per call, so a token-bucket limiter
// keeps bulk uploads under the provider's rate ceiling.
type EmbeddingClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
}

func NewEmbeddingClient(cfg *config.Config) *EmbeddingClient {
	client := openai.NewClient(
		option.WithAPIKey(cfg.EmbeddingsAPIKey),
		option.WithBaseURL(cfg.EmbeddingsBaseURL),
		option.WithMaxRetries(0),
	)

	return &EmbeddingClient{
		client:  client,
		model:   cfg.EmbeddingsModel,
		timeout: cfg.RequestTimeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.EmbeddingsRPS), cfg.EmbeddingsBurst),
	}
}

// Embed returns the vector for a single piece of text.
func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, &utils.EmbeddingError{Retryable: true, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, classifyEmbeddingError(err)
	}
	if len(resp.Data) == 0 {
		return nil, &utils.EmbeddingError{Retryable: true, Err: fmt.Errorf("no embedding returned")}
	}

	raw := resp.Data[0].Embedding
	vector := make([]float32, len(raw))
	for i, v := range raw {
		vector[i] = float32(v)
	}

	logger.Debug("Embedded text", "model", e.model, "chars", len(text), "dims", len(vector))
	return vector, nil
}

func classifyEmbeddingError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &utils.EmbeddingError{Retryable: true, Err: err}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &utils.EmbeddingError{StatusCode: apiErr.StatusCode, Retryable: true, Err: err}
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return &utils.EmbeddingError{StatusCode: apiErr.StatusCode, Retryable: false, Err: err}
		case apiErr.StatusCode >= 500:
			return &utils.EmbeddingError{StatusCode: apiErr.StatusCode, Retryable: true, Err: err}
		default:
			return &utils.EmbeddingError{StatusCode: apiErr.StatusCode, Retryable: false, Err: err}
		}
	}

	return &utils.EmbeddingError{Retryable: true, Err: err}
}
