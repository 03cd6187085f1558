package models

// ModerationAction is one entry in the moderation log file.
type ModerationAction struct {
	Type      string `json:"type"` // ban, kick, mute, unmute, warn, purge
	UserID    string `json:"user,omitempty"`
	ChannelID string `json:"channel,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Duration  int    `json:"duration,omitempty"` // minutes, mute only
	Amount    int    `json:"amount,omitempty"`   // messages, purge only
	Moderator string `json:"moderator"`
	Timestamp string `json:"timestamp"`
}

// Warning is one warning issued to a user, kept per user id in warns.json.
type Warning struct {
	Reason    string `json:"reason"`
	Moderator string `json:"moderator"`
	Timestamp string `json:"timestamp"`
}
