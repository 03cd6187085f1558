package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oraculo-bot/internal/logger"

	"github.com/PuerkitoBio/goquery"
)

// WebpageFetcher downloads a page and extracts its readable text so web
// sources can be ingested alongside file uploads.
type WebpageFetcher struct {
	client      *http.Client
	maxBodySize int64
}

func NewWebpageFetcher(timeout time.Duration, maxBodySize int64) *WebpageFetcher {
	return &WebpageFetcher{
		client:      &http.Client{Timeout: timeout},
		maxBodySize: maxBodySize,
	}
}

// FetchedPage is the extracted content of one web page.
type FetchedPage struct {
	URL   string
	Title string
	Text  string
}

// Fetch downloads pageURL and extracts the visible text. Script, style, and
// navigation elements are stripped before extraction.
func (w *WebpageFetcher) Fetch(ctx context.Context, pageURL string) (*FetchedPage, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL %q: must be http or https", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "Oraculo-BOT/1.0 (document ingestion)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return nil, fmt.Errorf("fetch %s: unsupported content type %s", pageURL, contentType)
	}

	body := http.MaxBytesReader(nil, resp.Body, w.maxBodySize)
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	doc.Find("script, style, noscript, nav, header, footer, iframe, svg").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())

	// Prefer the main content containers; fall back to the whole body.
	var text string
	for _, selector := range []string{"main", "article", "#content", ".content", "body"} {
		text = strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("fetch %s: no readable text found", pageURL)
	}

	text = collapseWhitespace(text)

	logger.Debug("Fetched webpage", "url", pageURL, "title", title, "chars", len(text))
	return &FetchedPage{URL: pageURL, Title: title, Text: text}, nil
}

// collapseWhitespace squeezes runs of blank lines and intra-line whitespace
// left over from removing markup.
func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
