package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"oraculo-bot/internal/logger"
	"oraculo-bot/utils"

	"github.com/ledongthuc/pdf"
)

// DocumentLoader turns uploaded files into plain text. Format detection
// prefers magic bytes and falls back to the filename extension; files above
// the configured cap are rejected before any parsing happens.
type DocumentLoader struct {
	maxFileSize int64
}

func NewDocumentLoader(maxFileSize int64) *DocumentLoader {
	return &DocumentLoader{maxFileSize: maxFileSize}
}

// SupportedExtensions lists the formats Extract accepts, for help text and
// upload validation.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".doc", ".md", ".txt"}
}

// Extract converts content to plain text. It returns utils.ErrTooLarge when
// the file exceeds the size cap, utils.ErrUnsupportedFormat for unknown
// formats, utils.ErrEmptyDocument when parsing yields only whitespace, and
// an *utils.ExtractionError wrapping the parser failure otherwise.
func (l *DocumentLoader) Extract(filename string, content []byte) (string, error) {
	if l.maxFileSize > 0 && int64(len(content)) > l.maxFileSize {
		return "", fmt.Errorf("%s is %d bytes: %w", filename, len(content), utils.ErrTooLarge)
	}

	format := detectFormat(filename, content)

	var (
		text string
		err  error
	)
	switch format {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".doc", ".md", ".txt":
		text, err = extractPlainText(content)
	default:
		return "", fmt.Errorf("%s: %w", filename, utils.ErrUnsupportedFormat)
	}

	if err != nil {
		return "", &utils.ExtractionError{Filename: filename, Err: err}
	}

	text = normalizeText(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", filename, utils.ErrEmptyDocument)
	}

	logger.Debug("Extracted document text", "filename", filename, "format", format, "chars", len(text))
	return text, nil
}

// detectFormat sniffs the container format from leading bytes, then falls
// back to the lowercased filename extension.
func detectFormat(filename string, content []byte) string {
	switch {
	case bytes.HasPrefix(content, []byte("%PDF-")):
		return ".pdf"
	case bytes.HasPrefix(content, []byte("PK\x03\x04")):
		// DOCX is a ZIP container; confirm via the extension since XLSX and
		// plain archives share the same signature.
		if strings.EqualFold(filepath.Ext(filename), ".docx") {
			return ".docx"
		}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	for _, supported := range SupportedExtensions() {
		if ext == supported {
			return ext
		}
	}
	return ""
}

func extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract PDF page", "page", i, "error", err)
			continue
		}

		sb.WriteString(text)
		sb.WriteString("\n")
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no text extracted from %d pages", pages)
	}
	return sb.String(), nil
}

// docxBody models the pieces of word/document.xml we care about: paragraphs
// containing text runs.
type docxBody struct {
	Paragraphs []struct {
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"body>p"`
}

func extractDOCX(content []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX container: %w", err)
	}

	var documentXML []byte
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return "", fmt.Errorf("failed to open word/document.xml: %w", err)
			}
			documentXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return "", fmt.Errorf("failed to read word/document.xml: %w", err)
			}
			break
		}
	}
	if documentXML == nil {
		return "", fmt.Errorf("word/document.xml not found in archive")
	}

	var body docxBody
	if err := xml.Unmarshal(documentXML, &body); err != nil {
		return "", fmt.Errorf("failed to parse word/document.xml: %w", err)
	}

	var sb strings.Builder
	for _, para := range body.Paragraphs {
		for _, run := range para.Runs {
			sb.WriteString(run.Text)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func extractPlainText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		// Legacy .doc files are binary; salvage the runs of printable text
		// instead of failing outright.
		return salvageText(content), nil
	}
	return string(content), nil
}

// salvageText keeps printable ASCII and whitespace runs of four characters
// or more, which recovers most prose from binary word-processor files.
func salvageText(content []byte) string {
	var sb strings.Builder
	var run []byte

	flush := func() {
		if len(run) >= 4 {
			sb.Write(run)
			sb.WriteString(" ")
		}
		run = run[:0]
	}

	for _, b := range content {
		if (b >= 32 && b < 127) || b == '\n' || b == '\t' {
			run = append(run, b)
		} else {
			flush()
		}
	}
	flush()

	return sb.String()
}

// normalizeText collapses Windows line endings and trims outer whitespace so
// hashing the same document uploaded from different platforms matches.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
