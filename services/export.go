package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"oraculo-bot/internal/logger"
	"oraculo-bot/models"

	"github.com/xuri/excelize/v2"
)

// ExportService builds Excel workbooks of the document inventory and the
// moderation log for admins who want the data outside the API.
type ExportService struct {
	rag        *RAGService
	moderation *ModerationLogger
}

func NewExportService(rag *RAGService, moderation *ModerationLogger) *ExportService {
	return &ExportService{rag: rag, moderation: moderation}
}

// ExportWorkbook returns an XLSX file with one sheet of stored documents and
// one sheet of moderation actions.
func (es *ExportService) ExportWorkbook(ctx context.Context) ([]byte, error) {
	docs, err := es.rag.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var actions []models.ModerationAction
	if es.moderation != nil {
		actions, err = es.moderation.Actions()
		if err != nil {
			return nil, fmt.Errorf("failed to read moderation log: %w", err)
		}
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Failed to close Excel file", "error", err)
		}
	}()

	if err := es.writeDocumentSheet(f, docs); err != nil {
		return nil, err
	}
	if err := es.writeModerationSheet(f, actions); err != nil {
		return nil, err
	}

	// Drop the default sheet excelize creates.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		logger.Warn("Failed to delete default sheet", "error", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	logger.Info("Generated export workbook", "documents", len(docs), "moderation_actions", len(actions))
	return buf.Bytes(), nil
}

// ExportData is the JSON-format export payload.
type ExportData struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Documents   []models.Document         `json:"documents"`
	Moderation  []models.ModerationAction `json:"moderation_log"`
}

// ExportJSON returns the same inventory as the workbook in JSON form.
func (es *ExportService) ExportJSON(ctx context.Context) (*ExportData, error) {
	docs, err := es.rag.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var actions []models.ModerationAction
	if es.moderation != nil {
		actions, err = es.moderation.Actions()
		if err != nil {
			return nil, fmt.Errorf("failed to read moderation log: %w", err)
		}
	}

	return &ExportData{
		GeneratedAt: time.Now().UTC(),
		Documents:   docs,
		Moderation:  actions,
	}, nil
}

func (es *ExportService) writeDocumentSheet(f *excelize.File, docs []models.Document) error {
	sheetName := "Documents"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"Content Hash", "Filename", "Format", "Size (bytes)", "Chunks", "Ingested At"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, doc := range docs {
		row := rowIdx + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), doc.ContentHash)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), doc.Filename)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), doc.MimeType)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), doc.SizeBytes)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), doc.ChunkCount)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), doc.IngestedAt.Format("2006-01-02 15:04:05"))
	}

	for i := range headers {
		col := fmt.Sprintf("%c:%c", 'A'+i, 'A'+i)
		f.SetColWidth(sheetName, col, col, 20)
	}
	return nil
}

func (es *ExportService) writeModerationSheet(f *excelize.File, actions []models.ModerationAction) error {
	sheetName := "Moderation Log"
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create moderation sheet: %w", err)
	}

	headers := []string{"Type", "User ID", "Channel ID", "Reason", "Duration", "Amount", "Moderator", "Timestamp"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, action := range actions {
		row := rowIdx + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), action.Type)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), action.UserID)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), action.ChannelID)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), action.Reason)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), action.Duration)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), action.Amount)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), action.Moderator)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), action.Timestamp)
	}

	for i := range headers {
		col := fmt.Sprintf("%c:%c", 'A'+i, 'A'+i)
		f.SetColWidth(sheetName, col, col, 18)
	}
	return nil
}

// ExportFilename returns a timestamped download name for the workbook.
func ExportFilename() string {
	return fmt.Sprintf("oraculo-export-%s.xlsx", time.Now().Format("20060102-150405"))
}
