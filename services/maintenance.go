package services

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"oraculo-bot/internal/logger"

	"github.com/go-co-op/gocron"
)

// MaintenanceService runs periodic housekeeping: stale file cleanup in the
// upload staging directory and a store stats log line.
type MaintenanceService struct {
	scheduler *gocron.Scheduler
	rag       *RAGService
	stageDir  string
}

func NewMaintenanceService(rag *RAGService, stageDir string) *MaintenanceService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &MaintenanceService{
		scheduler: s,
		rag:       rag,
		stageDir:  stageDir,
	}
}

// Start registers the jobs and runs the scheduler in the background.
func (m *MaintenanceService) Start() error {
	if _, err := m.scheduler.Every(6 * time.Hour).Tag("stage-cleanup").Do(m.cleanStagingDir); err != nil {
		return err
	}
	if _, err := m.scheduler.Every(1 * time.Hour).Tag("store-stats").Do(m.logStoreStats); err != nil {
		return err
	}

	m.scheduler.StartAsync()
	logger.Info("Maintenance scheduler started", "jobs", len(m.scheduler.Jobs()))
	return nil
}

func (m *MaintenanceService) Stop() {
	m.scheduler.Stop()
}

// cleanStagingDir removes staged upload files older than a day. Uploads are
// staged only while an async ingestion task is in flight, so anything old
// belongs to a task that already finished or failed.
func (m *MaintenanceService) cleanStagingDir() error {
	if m.stageDir == "" {
		return nil
	}

	entries, err := os.ReadDir(m.stageDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(m.stageDir, entry.Name())
			if err := os.Remove(path); err != nil {
				logger.Warn("Failed to remove stale staged file", "path", path, "error", err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		logger.Info("Cleaned staging directory", "removed", removed)
	}
	return nil
}

func (m *MaintenanceService) logStoreStats() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	info, err := m.rag.Info(ctx)
	if err != nil {
		logger.Warn("Failed to read store stats", "error", err)
		return err
	}

	logger.Info("Vector store stats", "documents", info.DocumentCount, "chunks", info.ChunkCount)
	return nil
}
