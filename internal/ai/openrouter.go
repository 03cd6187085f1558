package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oraculo-bot/internal/config"
	"oraculo-bot/internal/logger"
	"oraculo-bot/internal/telemetry"
	"oraculo-bot/models"
	"oraculo-bot/utils"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/sony/gobreaker"
)

// Usage reports token consumption for one completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatClient talks to the OpenRouter chat completion API. OpenRouter speaks
// the OpenAI wire protocol, so the client is the OpenAI SDK pointed at the
// OpenRouter base URL. The client never retries internally; retry policy
// belongs to the caller.
type ChatClient struct {
	client      openai.Client
	model       string
	system      string
	timeout     time.Duration
	temperature float64
	maxTokens   int
	breaker     *gobreaker.CircuitBreaker
	metrics     *telemetry.Metrics
}

func NewChatClient(cfg *config.Config, metrics *telemetry.Metrics) *ChatClient {
	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenRouterAPIKey),
		option.WithBaseURL(cfg.OpenRouterBaseURL),
		option.WithMaxRetries(0),
		option.WithHeader("HTTP-Referer", "https://oraculo-bot.local"),
		option.WithHeader("X-Title", "Oraculo Discord Chatbot"),
	)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "OpenRouterAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			if metrics != nil {
				metrics.RecordCircuitBreakerState(name, to.String())
			}
		},
	})

	return &ChatClient{
		client:      client,
		model:       cfg.ModelDefault,
		system:      cfg.SystemPrompt,
		timeout:     cfg.RequestTimeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxOutputTokens,
		breaker:     breaker,
		metrics:     metrics,
	}
}

// Model returns the configured default model identifier.
func (c *ChatClient) Model() string { return c.model }

// Complete sends the conversation to OpenRouter and returns the assistant
// reply. A non-empty ragContext is injected as an additional system message
// ahead of the conversation turns; the turn order itself is preserved.
func (c *ChatClient) Complete(ctx context.Context, history []models.ChatMessage, ragContext string) (string, Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := BuildMessages(c.system, ragContext, history)

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	}

	start := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return "", Usage{}, classifyCompletionError(err)
	}

	completion := result.(*openai.ChatCompletion)
	if len(completion.Choices) == 0 {
		return "", Usage{}, &utils.CompletionError{Retryable: true, Err: fmt.Errorf("no choices returned")}
	}

	content := completion.Choices[0].Message.Content
	if content == "" {
		return "", Usage{}, &utils.CompletionError{Retryable: true, Err: fmt.Errorf("empty completion content")}
	}

	usage := Usage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}

	if c.metrics != nil {
		c.metrics.RecordCompletion(c.model, int64(usage.TotalTokens), time.Since(start).Seconds())
	}

	logger.Debug("Completion finished",
		"model", c.model,
		"messages", len(messages),
		"tokens", usage.TotalTokens,
	)

	return content, usage, nil
}

// ListModels returns the model identifiers available on OpenRouter.
func (c *ChatClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, classifyCompletionError(err)
	}

	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// BuildMessages assembles the wire message list: base system prompt first,
// then the RAG context as its own system message, then the conversation in
// order. Exported for the message-order tests.
func BuildMessages(systemPrompt, ragContext string, history []models.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)

	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	if ragContext != "" {
		messages = append(messages, openai.SystemMessage(ragContext))
	}

	for _, m := range history {
		switch m.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case models.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	return messages
}

func classifyCompletionError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &utils.CompletionError{Retryable: true, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &utils.CompletionError{Retryable: true, Err: err}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &utils.CompletionError{StatusCode: apiErr.StatusCode, Retryable: true, Err: err}
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return &utils.CompletionError{StatusCode: apiErr.StatusCode, Retryable: false, Err: err}
		case apiErr.StatusCode >= 500:
			return &utils.CompletionError{StatusCode: apiErr.StatusCode, Retryable: true, Err: err}
		default:
			return &utils.CompletionError{StatusCode: apiErr.StatusCode, Retryable: false, Err: err}
		}
	}

	// Network-level failure with no HTTP status.
	return &utils.CompletionError{Retryable: true, Err: err}
}
