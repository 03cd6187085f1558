package models

import "time"

// Chat message roles as used on the completion API wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single role/content pair in a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StoredMessage is the persisted transcript record for one exchange in a
// Discord channel.
type StoredMessage struct {
	ChannelID string    `bson:"channel_id" json:"channel_id"`
	AuthorID  string    `bson:"author_id" json:"author_id"`
	Author    string    `bson:"author" json:"author"`
	Message   string    `bson:"message" json:"message"`
	Reply     string    `bson:"reply" json:"reply"`
	TokensIn  int       `bson:"tokens_in" json:"tokens_in"`
	TokensOut int       `bson:"tokens_out" json:"tokens_out"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}
