package services

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"oraculo-bot/models"

	"github.com/xuri/excelize/v2"
)

func newTestExport(t *testing.T, store *fakeStore) (*ExportService, *ModerationLogger) {
	t.Helper()

	dir := t.TempDir()
	moderation := NewModerationLogger(
		filepath.Join(dir, "moderation_log.json"),
		filepath.Join(dir, "warns.json"),
	)
	rag := newTestRAG(t, testRAGConfig(), store, okEmbed)
	return NewExportService(rag, moderation), moderation
}

func TestExportWorkbookSheetContents(t *testing.T) {
	store := newFakeStore()
	rag := newTestRAG(t, testRAGConfig(), store, okEmbed)

	result, err := rag.AddDocument(context.Background(), "constitution.txt",
		[]byte("Article 5 guarantees equality before the law."))
	if err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	export, moderation := newTestExport(t, store)
	if err := moderation.LogAction(models.ModerationAction{
		Type:      "warn",
		UserID:    "42",
		ChannelID: "99",
		Reason:    "spam",
		Moderator: "mod",
	}); err != nil {
		t.Fatalf("LogAction failed: %v", err)
	}

	data, err := export.ExportWorkbook(context.Background())
	if err != nil {
		t.Fatalf("ExportWorkbook failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("workbook does not reopen: %v", err)
	}
	defer f.Close()

	docRows, err := f.GetRows("Documents")
	if err != nil {
		t.Fatalf("missing Documents sheet: %v", err)
	}
	if len(docRows) != 2 {
		t.Fatalf("Documents rows = %d, want header plus one document", len(docRows))
	}
	if docRows[0][0] != "Content Hash" || docRows[0][1] != "Filename" {
		t.Fatalf("unexpected Documents header: %v", docRows[0])
	}
	if docRows[1][0] != result.ContentHash {
		t.Fatalf("document row hash = %q, want %q", docRows[1][0], result.ContentHash)
	}
	if docRows[1][1] != "constitution.txt" {
		t.Fatalf("document row filename = %q", docRows[1][1])
	}

	modRows, err := f.GetRows("Moderation Log")
	if err != nil {
		t.Fatalf("missing Moderation Log sheet: %v", err)
	}
	if len(modRows) != 2 {
		t.Fatalf("Moderation Log rows = %d, want header plus one action", len(modRows))
	}
	if modRows[1][0] != "warn" || modRows[1][1] != "42" || modRows[1][3] != "spam" {
		t.Fatalf("unexpected moderation row: %v", modRows[1])
	}

	// The default sheet excelize creates must not leak into the download.
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 {
		t.Fatal("default Sheet1 should be deleted from the workbook")
	}
}

func TestExportWorkbookEmptyStore(t *testing.T) {
	export, _ := newTestExport(t, newFakeStore())

	data, err := export.ExportWorkbook(context.Background())
	if err != nil {
		t.Fatalf("ExportWorkbook failed on an empty store: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("workbook does not reopen: %v", err)
	}
	defer f.Close()

	docRows, err := f.GetRows("Documents")
	if err != nil {
		t.Fatalf("missing Documents sheet: %v", err)
	}
	if len(docRows) != 1 {
		t.Fatalf("empty store should export only the header row, got %d rows", len(docRows))
	}
}

func TestExportJSONMirrorsInventory(t *testing.T) {
	store := newFakeStore()
	rag := newTestRAG(t, testRAGConfig(), store, okEmbed)

	if _, err := rag.AddDocument(context.Background(), "lease.txt",
		[]byte("The tenant shall pay rent monthly.")); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	export, moderation := newTestExport(t, store)
	if _, err := moderation.WarnUser("42", models.Warning{Reason: "spam", Moderator: "mod"}); err != nil {
		t.Fatalf("WarnUser failed: %v", err)
	}
	if err := moderation.LogAction(models.ModerationAction{Type: "warn", UserID: "42", Moderator: "mod"}); err != nil {
		t.Fatalf("LogAction failed: %v", err)
	}

	payload, err := export.ExportJSON(context.Background())
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	if len(payload.Documents) != 1 || payload.Documents[0].Filename != "lease.txt" {
		t.Fatalf("unexpected documents payload: %+v", payload.Documents)
	}
	if len(payload.Moderation) != 1 || payload.Moderation[0].Type != "warn" {
		t.Fatalf("unexpected moderation payload: %+v", payload.Moderation)
	}
	if payload.GeneratedAt.IsZero() {
		t.Fatal("generated_at should be set")
	}
}
