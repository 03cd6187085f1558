package bot

import (
	"sync"

	"oraculo-bot/models"
)

// HistoryStore keeps a bounded rolling window of conversation turns per
// channel. A turn is one user message plus one assistant reply, so the
// window holds at most maxTurns*2 messages.
type HistoryStore struct {
	mu       sync.Mutex
	channels map[string][]models.ChatMessage
	maxTurns int
}

func NewHistoryStore(maxTurns int) *HistoryStore {
	if maxTurns <= 0 {
		maxTurns = 6
	}
	return &HistoryStore{
		channels: make(map[string][]models.ChatMessage),
		maxTurns: maxTurns,
	}
}

// Append records a message and evicts the oldest turns once the channel
// window is full.
func (h *HistoryStore) Append(channelID string, msg models.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	history := append(h.channels[channelID], msg)

	max := h.maxTurns * 2
	if len(history) > max {
		history = history[len(history)-max:]
	}
	h.channels[channelID] = history
}

// Messages returns a copy of the channel window, oldest first.
func (h *HistoryStore) Messages(channelID string) []models.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	history := h.channels[channelID]
	out := make([]models.ChatMessage, len(history))
	copy(out, history)
	return out
}

// Clear drops the window for a channel.
func (h *HistoryStore) Clear(channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.channels, channelID)
}
