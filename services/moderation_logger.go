package services

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"oraculo-bot/internal/logger"
	"oraculo-bot/models"
)

// ModerationLogger persists moderation actions and per-user warnings as JSON
// files. Writes go through a mutex and a temp-file rename so concurrent
// command handlers never interleave partial writes.
type ModerationLogger struct {
	logFile  string
	warnFile string

	logMu  sync.Mutex
	warnMu sync.Mutex
}

func NewModerationLogger(logFile, warnFile string) *ModerationLogger {
	return &ModerationLogger{logFile: logFile, warnFile: warnFile}
}

// LogAction appends one action to the moderation log.
func (m *ModerationLogger) LogAction(action models.ModerationAction) error {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	var actions []models.ModerationAction
	if err := readJSONFile(m.logFile, &actions); err != nil {
		return fmt.Errorf("failed to read moderation log: %w", err)
	}

	if action.Timestamp == "" {
		action.Timestamp = time.Now().Format(time.RFC3339)
	}
	actions = append(actions, action)

	if err := writeJSONFile(m.logFile, actions); err != nil {
		return fmt.Errorf("failed to write moderation log: %w", err)
	}

	logger.Info("Logged moderation action",
		"type", action.Type,
		"user_id", action.UserID,
		"moderator", action.Moderator,
	)
	return nil
}

// Actions returns the full moderation log, oldest first.
func (m *ModerationLogger) Actions() ([]models.ModerationAction, error) {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	var actions []models.ModerationAction
	if err := readJSONFile(m.logFile, &actions); err != nil {
		return nil, fmt.Errorf("failed to read moderation log: %w", err)
	}
	return actions, nil
}

// WarnUser records a warning against a user and returns the new warning
// count for that user.
func (m *ModerationLogger) WarnUser(userID string, warning models.Warning) (int, error) {
	m.warnMu.Lock()
	defer m.warnMu.Unlock()

	warns := make(map[string][]models.Warning)
	if err := readJSONFile(m.warnFile, &warns); err != nil {
		return 0, fmt.Errorf("failed to read warnings: %w", err)
	}

	if warning.Timestamp == "" {
		warning.Timestamp = time.Now().Format(time.RFC3339)
	}
	warns[userID] = append(warns[userID], warning)

	if err := writeJSONFile(m.warnFile, warns); err != nil {
		return 0, fmt.Errorf("failed to write warnings: %w", err)
	}
	return len(warns[userID]), nil
}

// GetWarns returns the warnings recorded for a user, oldest first.
func (m *ModerationLogger) GetWarns(userID string) ([]models.Warning, error) {
	m.warnMu.Lock()
	defer m.warnMu.Unlock()

	warns := make(map[string][]models.Warning)
	if err := readJSONFile(m.warnFile, &warns); err != nil {
		return nil, fmt.Errorf("failed to read warnings: %w", err)
	}
	return warns[userID], nil
}

// ClearWarns removes all warnings for a user and returns how many were
// removed.
func (m *ModerationLogger) ClearWarns(userID string) (int, error) {
	m.warnMu.Lock()
	defer m.warnMu.Unlock()

	warns := make(map[string][]models.Warning)
	if err := readJSONFile(m.warnFile, &warns); err != nil {
		return 0, fmt.Errorf("failed to read warnings: %w", err)
	}

	removed := len(warns[userID])
	if removed == 0 {
		return 0, nil
	}
	delete(warns, userID)

	if err := writeJSONFile(m.warnFile, warns); err != nil {
		return 0, fmt.Errorf("failed to write warnings: %w", err)
	}
	return removed, nil
}

// readJSONFile decodes the file into v. A missing file leaves v untouched,
// it is treated as an empty store.
func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// writeJSONFile writes v atomically via a temp file in the same directory.
func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
