package bot

import (
	"fmt"
	"sync"
	"testing"

	"oraculo-bot/models"
)

func TestHistoryAppendAndRead(t *testing.T) {
	h := NewHistoryStore(6)

	h.Append("chan1", models.ChatMessage{Role: models.RoleUser, Content: "hello"})
	h.Append("chan1", models.ChatMessage{Role: models.RoleAssistant, Content: "hi there"})

	msgs := h.Messages("chan1")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[1].Content != "hi there" {
		t.Fatal("messages out of order")
	}
}

func TestHistoryEvictsOldestTurns(t *testing.T) {
	h := NewHistoryStore(2) // window of 4 messages

	for i := 0; i < 5; i++ {
		h.Append("chan1", models.ChatMessage{Role: models.RoleUser, Content: fmt.Sprintf("q%d", i)})
		h.Append("chan1", models.ChatMessage{Role: models.RoleAssistant, Content: fmt.Sprintf("a%d", i)})
	}

	msgs := h.Messages("chan1")
	if len(msgs) != 4 {
		t.Fatalf("expected window of 4 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "q3" {
		t.Fatalf("oldest surviving message should be q3, got %q", msgs[0].Content)
	}
	if msgs[3].Content != "a4" {
		t.Fatalf("newest message should be a4, got %q", msgs[3].Content)
	}
}

func TestHistoryChannelsAreIsolated(t *testing.T) {
	h := NewHistoryStore(6)

	h.Append("chan1", models.ChatMessage{Role: models.RoleUser, Content: "in one"})
	h.Append("chan2", models.ChatMessage{Role: models.RoleUser, Content: "in two"})

	if got := h.Messages("chan1"); len(got) != 1 || got[0].Content != "in one" {
		t.Fatalf("chan1 window polluted: %+v", got)
	}
	if got := h.Messages("chan2"); len(got) != 1 || got[0].Content != "in two" {
		t.Fatalf("chan2 window polluted: %+v", got)
	}
}

func TestHistoryMessagesReturnsCopy(t *testing.T) {
	h := NewHistoryStore(6)
	h.Append("chan1", models.ChatMessage{Role: models.RoleUser, Content: "original"})

	msgs := h.Messages("chan1")
	msgs[0].Content = "mutated"

	if got := h.Messages("chan1"); got[0].Content != "original" {
		t.Fatal("mutating the returned slice must not affect the store")
	}
}

func TestHistoryClear(t *testing.T) {
	h := NewHistoryStore(6)
	h.Append("chan1", models.ChatMessage{Role: models.RoleUser, Content: "hello"})

	h.Clear("chan1")
	if got := h.Messages("chan1"); len(got) != 0 {
		t.Fatalf("cleared channel should be empty, got %d messages", len(got))
	}
}

func TestHistoryConcurrentAppends(t *testing.T) {
	h := NewHistoryStore(100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				h.Append("chan1", models.ChatMessage{Role: models.RoleUser, Content: fmt.Sprintf("%d-%d", n, j)})
			}
		}(i)
	}
	wg.Wait()

	if got := len(h.Messages("chan1")); got != 200 {
		t.Fatalf("expected 200 messages after concurrent appends, got %d", got)
	}
}
