package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"oraculo-bot/internal/logger"
	"oraculo-bot/services"
	"oraculo-bot/utils"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) handleAddDocument(i *discordgo.InteractionCreate) {
	if b.rag == nil {
		b.respondEphemeral(i, "Document retrieval is not enabled.")
		return
	}

	data := i.ApplicationCommandData()
	opts := optionMap(i)
	attachmentID, ok := opts["file"]
	if !ok {
		b.respondEphemeral(i, "No file attached.")
		return
	}

	var attachment *discordgo.MessageAttachment
	if data.Resolved != nil {
		attachment = data.Resolved.Attachments[attachmentID.Value.(string)]
	}
	if attachment == nil {
		b.respondEphemeral(i, "Could not resolve the attached file.")
		return
	}

	if int64(attachment.Size) > b.cfg.MaxFileSize {
		b.respondEphemeral(i, fmt.Sprintf("File is too large (%d bytes, limit %d).", attachment.Size, b.cfg.MaxFileSize))
		return
	}

	if err := b.deferEphemeral(i); err != nil {
		logger.Warn("Failed to defer interaction", "error", err)
		return
	}

	// Download and ingestion run off the gateway goroutine; the deferred
	// response is edited once the pipeline finishes.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		content, err := downloadAttachment(ctx, attachment.URL)
		if err != nil {
			logger.Error("Failed to download attachment", "filename", attachment.Filename, "error", err)
			b.editResponse(i, "Failed to download the attachment.")
			return
		}

		result, err := b.rag.AddDocument(ctx, attachment.Filename, content)
		if err != nil {
			b.editResponse(i, ingestErrorMessage(attachment.Filename, err))
			return
		}

		if result.Duplicate {
			b.editResponse(i, fmt.Sprintf("Already stored as **%s** (hash `%s`).", result.Filename, shortHash(result.ContentHash)))
			return
		}
		b.editResponse(i, fmt.Sprintf("Stored **%s**: %d chunks (hash `%s`).", result.Filename, result.ChunkCount, shortHash(result.ContentHash)))
	}()
}

func (b *Bot) handleAddURL(i *discordgo.InteractionCreate) {
	if b.rag == nil || b.fetcher == nil {
		b.respondEphemeral(i, "Document retrieval is not enabled.")
		return
	}

	opts := optionMap(i)
	pageURL := opts["url"].StringValue()

	if err := b.deferEphemeral(i); err != nil {
		logger.Warn("Failed to defer interaction", "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		page, err := b.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			logger.Error("Failed to fetch page", "url", pageURL, "error", err)
			b.editResponse(i, fmt.Sprintf("Failed to fetch the page: %v", err))
			return
		}

		filename := page.Title
		if filename == "" {
			filename = pageURL
		}
		filename += ".txt"

		result, err := b.rag.AddDocument(ctx, filename, []byte(page.Text))
		if err != nil {
			b.editResponse(i, ingestErrorMessage(pageURL, err))
			return
		}

		if result.Duplicate {
			b.editResponse(i, fmt.Sprintf("Page already stored as **%s** (hash `%s`).", result.Filename, shortHash(result.ContentHash)))
			return
		}
		b.editResponse(i, fmt.Sprintf("Stored page **%s**: %d chunks (hash `%s`).", page.Title, result.ChunkCount, shortHash(result.ContentHash)))
	}()
}

func (b *Bot) handleRemoveDocument(i *discordgo.InteractionCreate) {
	if b.rag == nil {
		b.respondEphemeral(i, "Document retrieval is not enabled.")
		return
	}

	opts := optionMap(i)
	hash := strings.TrimSpace(opts["hash"].StringValue())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := b.rag.RemoveDocument(ctx, hash)
	if err != nil {
		logger.Error("Failed to remove document", "hash", hash, "error", err)
		b.respondEphemeral(i, "Failed to remove the document.")
		return
	}

	if !deleted {
		b.respondEphemeral(i, "No document with that hash is stored.")
		return
	}
	b.respondEphemeral(i, fmt.Sprintf("Removed document `%s`.", shortHash(hash)))
}

func (b *Bot) handleRAGInfo(i *discordgo.InteractionCreate) {
	if b.rag == nil {
		b.respondEphemeral(i, "Document retrieval is not enabled.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := b.rag.Info(ctx)
	if err != nil {
		logger.Error("Failed to read store info", "error", err)
		b.respondEphemeral(i, "Failed to read knowledge base statistics.")
		return
	}

	b.respondEphemeral(i, fmt.Sprintf(
		"Knowledge base: %d document(s), %d chunk(s).\nSupported formats: %s",
		info.DocumentCount, info.ChunkCount, strings.Join(services.SupportedExtensions(), ", "),
	))
}

func downloadAttachment(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ingestErrorMessage maps pipeline errors to user-facing text.
func ingestErrorMessage(name string, err error) string {
	switch {
	case utils.IsUnsupportedFormat(err):
		return fmt.Sprintf("**%s** has an unsupported format. Supported: %s", name, strings.Join(services.SupportedExtensions(), ", "))
	case utils.IsTooLarge(err):
		return fmt.Sprintf("**%s** exceeds the file size limit.", name)
	case utils.IsEmptyDocument(err):
		return fmt.Sprintf("No text could be extracted from **%s**.", name)
	case utils.IsRetryable(err):
		logger.Warn("Retryable ingestion failure", "name", name, "error", err)
		return fmt.Sprintf("Ingestion of **%s** failed temporarily. Please try again.", name)
	default:
		logger.Error("Ingestion failed", "name", name, "error", err)
		return fmt.Sprintf("Failed to ingest **%s**.", name)
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
