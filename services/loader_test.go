package services

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"oraculo-bot/utils"
)

func TestExtractPlainTextFile(t *testing.T) {
	loader := NewDocumentLoader(10 << 20)

	text, err := loader.Extract("notes.txt", []byte("Clause 1. The parties agree.\n"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if text != "Clause 1. The parties agree." {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestExtractMarkdownFile(t *testing.T) {
	loader := NewDocumentLoader(10 << 20)

	text, err := loader.Extract("memo.md", []byte("# Heading\n\nBody paragraph.\n"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(text, "Body paragraph.") {
		t.Fatalf("markdown body missing from %q", text)
	}
}

func TestExtractNormalizesLineEndings(t *testing.T) {
	loader := NewDocumentLoader(10 << 20)

	unix, err := loader.Extract("a.txt", []byte("line one\nline two\n"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	windows, err := loader.Extract("b.txt", []byte("line one\r\nline two\r\n"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// The same document saved on different platforms must hash identically.
	if utils.ContentHash(unix) != utils.ContentHash(windows) {
		t.Fatal("CRLF and LF versions should normalize to the same text")
	}
}

func TestExtractRejectsOversizedFile(t *testing.T) {
	loader := NewDocumentLoader(100)

	_, err := loader.Extract("big.txt", bytes.Repeat([]byte("x"), 101))
	if !utils.IsTooLarge(err) {
		t.Fatalf("expected too-large error, got %v", err)
	}
}

func TestExtractRejectsUnknownFormat(t *testing.T) {
	loader := NewDocumentLoader(10 << 20)

	_, err := loader.Extract("photo.jpg", []byte{0xFF, 0xD8, 0xFF})
	if !utils.IsUnsupportedFormat(err) {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestExtractRejectsEmptyDocument(t *testing.T) {
	loader := NewDocumentLoader(10 << 20)

	_, err := loader.Extract("blank.txt", []byte("   \n\t \r\n"))
	if !utils.IsEmptyDocument(err) {
		t.Fatalf("expected empty document error, got %v", err)
	}
}

func TestExtractCorruptPDFReturnsExtractionError(t *testing.T) {
	loader := NewDocumentLoader(10 << 20)

	// Valid magic bytes, garbage body.
	_, err := loader.Extract("broken.pdf", []byte("%PDF-1.7 garbage"))
	if err == nil {
		t.Fatal("expected an error for a corrupt PDF")
	}
	var extractErr *utils.ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected *utils.ExtractionError, got %T: %v", err, err)
	}
	if extractErr.Filename != "broken.pdf" {
		t.Fatalf("extraction error should name the file, got %q", extractErr.Filename)
	}
}

func TestExtractDOCX(t *testing.T) {
	loader := NewDocumentLoader(10 << 20)

	content := buildDOCX(t, []string{"First paragraph.", "Second paragraph."})
	text, err := loader.Extract("contract.docx", content)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !strings.Contains(text, "First paragraph.") || !strings.Contains(text, "Second paragraph.") {
		t.Fatalf("paragraphs missing from extracted text: %q", text)
	}
	if strings.Index(text, "First") > strings.Index(text, "Second") {
		t.Fatal("paragraph order not preserved")
	}
}

func TestDetectFormatPrefersMagicBytes(t *testing.T) {
	// Misleading extension, PDF magic bytes.
	if got := detectFormat("document.txt", []byte("%PDF-1.4 ...")); got != ".pdf" {
		t.Fatalf("magic bytes should win over extension, got %q", got)
	}
	// No magic bytes, extension decides.
	if got := detectFormat("document.md", []byte("plain prose")); got != ".md" {
		t.Fatalf("extension fallback failed, got %q", got)
	}
}

func buildDOCX(t *testing.T, paragraphs []string) []byte {
	t.Helper()

	var doc strings.Builder
	doc.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		doc.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	doc.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create failed: %v", err)
	}
	if _, err := fw.Write([]byte(doc.String())); err != nil {
		t.Fatalf("zip write failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close failed: %v", err)
	}
	return buf.Bytes()
}
