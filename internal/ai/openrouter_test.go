package ai

import (
	"context"
	"errors"
	"testing"

	"oraculo-bot/models"
	"oraculo-bot/utils"

	"github.com/sony/gobreaker"
)

func TestBuildMessagesOrder(t *testing.T) {
	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "first question"},
		{Role: models.RoleAssistant, Content: "first answer"},
		{Role: models.RoleUser, Content: "second question"},
	}

	messages := BuildMessages("you are a legal assistant", "retrieved context", history)

	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	// System prompt first, context second, then the turns in order.
	if messages[0].OfSystem == nil || messages[0].OfSystem.Content.OfString.Value != "you are a legal assistant" {
		t.Fatal("first message should be the base system prompt")
	}
	if messages[1].OfSystem == nil || messages[1].OfSystem.Content.OfString.Value != "retrieved context" {
		t.Fatal("second message should be the retrieval context")
	}
	if messages[2].OfUser == nil || messages[3].OfAssistant == nil || messages[4].OfUser == nil {
		t.Fatal("conversation turns should keep their roles and order")
	}
}

func TestBuildMessagesWithoutContext(t *testing.T) {
	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "question"},
	}

	messages := BuildMessages("system prompt", "", history)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages when no context, got %d", len(messages))
	}
	if messages[1].OfUser == nil {
		t.Fatal("the user turn should directly follow the system prompt")
	}
}

func TestBuildMessagesWithoutSystemPrompt(t *testing.T) {
	messages := BuildMessages("", "", []models.ChatMessage{
		{Role: models.RoleUser, Content: "question"},
	})
	if len(messages) != 1 {
		t.Fatalf("expected just the user turn, got %d messages", len(messages))
	}
}

func TestClassifyCompletionErrorTimeout(t *testing.T) {
	err := classifyCompletionError(context.DeadlineExceeded)

	var compErr *utils.CompletionError
	if !errors.As(err, &compErr) {
		t.Fatalf("expected *utils.CompletionError, got %T", err)
	}
	if !compErr.Retryable {
		t.Fatal("timeouts should be retryable")
	}
	if !utils.IsRetryable(err) {
		t.Fatal("IsRetryable should agree")
	}
}

func TestClassifyCompletionErrorOpenBreaker(t *testing.T) {
	err := classifyCompletionError(gobreaker.ErrOpenState)
	if !utils.IsRetryable(err) {
		t.Fatal("an open circuit breaker is a transient condition")
	}
}

func TestClassifyCompletionErrorNetworkFailure(t *testing.T) {
	err := classifyCompletionError(errors.New("connection refused"))

	var compErr *utils.CompletionError
	if !errors.As(err, &compErr) {
		t.Fatalf("expected *utils.CompletionError, got %T", err)
	}
	if !compErr.Retryable {
		t.Fatal("network failures without a status should be retryable")
	}
	if compErr.StatusCode != 0 {
		t.Fatalf("no HTTP status expected, got %d", compErr.StatusCode)
	}
}
