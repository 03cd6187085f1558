package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oraculo-bot/internal/ai"
	"oraculo-bot/internal/config"
	"oraculo-bot/internal/logger"
	"oraculo-bot/models"
	"oraculo-bot/services"
	"oraculo-bot/utils"

	"github.com/bwmarrin/discordgo"
	"go.mongodb.org/mongo-driver/mongo"
)

// Bot is the Discord shell: it decides which messages deserve a reply,
// carries the per-channel conversation window, and forwards turns to the
// completion API with optional retrieval context.
type Bot struct {
	session    *discordgo.Session
	cfg        *config.Config
	chat       *ai.ChatClient
	rag        *services.RAGService
	fetcher    *services.WebpageFetcher
	moderation *services.ModerationLogger
	history    *HistoryStore
	messages   *mongo.Collection

	registeredCommands []*discordgo.ApplicationCommand
}

func New(
	cfg *config.Config,
	chat *ai.ChatClient,
	rag *services.RAGService,
	fetcher *services.WebpageFetcher,
	moderation *services.ModerationLogger,
	mongoClient *mongo.Client,
) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	var messages *mongo.Collection
	if mongoClient != nil {
		messages = mongoClient.Database(cfg.DBName).Collection("messages")
	}

	return &Bot{
		session:    session,
		cfg:        cfg,
		chat:       chat,
		rag:        rag,
		fetcher:    fetcher,
		moderation: moderation,
		history:    NewHistoryStore(cfg.MaxHistoryTurns),
		messages:   messages,
	}, nil
}

// Start opens the gateway connection, wires the handlers, and registers the
// slash commands.
func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		b.session.Close()
		return err
	}

	logger.Info("Discord bot started", "user", b.session.State.User.Username)
	return nil
}

// Stop unregisters commands and closes the gateway connection.
func (b *Bot) Stop() {
	b.unregisterCommands()
	if err := b.session.Close(); err != nil {
		logger.Warn("Error closing Discord session", "error", err)
	}
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	logger.Info("Gateway ready", "username", r.User.Username, "guilds", len(r.Guilds))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if !b.shouldRespond(s, m) {
		return
	}

	content := cleanContent(m.Content, s.State.User.ID)
	if content == "" {
		// A bare mention or attachment-only message still deserves a reply.
		if len(m.Attachments) > 0 {
			content = "[the user sent an attachment without any text]"
		} else {
			content = "[the user mentioned you without saying anything]"
		}
	}

	go b.respond(m, content)
}

// shouldRespond reports whether this message is addressed to the bot: a DM,
// a mention, or a reply to one of the bot's messages.
func (b *Bot) shouldRespond(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if m.GuildID == "" {
		return true
	}

	for _, user := range m.Mentions {
		if user.ID == s.State.User.ID {
			return true
		}
	}

	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil && ref.Author.ID == s.State.User.ID {
		return true
	}

	return false
}

// cleanContent strips the bot mention tokens and surrounding whitespace.
func cleanContent(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.TrimSpace(content)
}

func (b *Bot) respond(m *discordgo.MessageCreate, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.RequestTimeout+10*time.Second)
	defer cancel()

	b.session.ChannelTyping(m.ChannelID)

	ragContext := ""
	if b.rag != nil && b.cfg.RAGEnabled {
		retrieved, err := b.rag.RetrieveContext(ctx, content)
		if err != nil {
			// Retrieval is best effort; the conversation continues without
			// document context.
			logger.Warn("Context retrieval failed", "channel_id", m.ChannelID, "error", err)
		} else {
			ragContext = retrieved
		}
	}

	history := b.history.Messages(m.ChannelID)
	turns := append(history, models.ChatMessage{Role: models.RoleUser, Content: content})

	reply, usage, err := b.chat.Complete(ctx, turns, ragContext)
	if err != nil {
		logger.Error("Completion failed", "channel_id", m.ChannelID, "error", err)
		b.sendError(m.ChannelID, err)
		return
	}

	b.history.Append(m.ChannelID, models.ChatMessage{Role: models.RoleUser, Content: content})
	b.history.Append(m.ChannelID, models.ChatMessage{Role: models.RoleAssistant, Content: reply})

	for _, part := range SplitMessage(reply, discordMessageLimit) {
		if _, err := b.session.ChannelMessageSend(m.ChannelID, part); err != nil {
			logger.Error("Failed to send reply", "channel_id", m.ChannelID, "error", err)
			return
		}
	}

	b.persistTranscript(m, content, reply, usage)
}

// sendError posts a short user-facing notice. The full error stays in the
// logs.
func (b *Bot) sendError(channelID string, err error) {
	msg := "Something went wrong while generating a reply. Please try again."
	if utils.IsRetryable(err) {
		msg = "The model is currently overloaded. Please try again in a moment."
	}
	if _, sendErr := b.session.ChannelMessageSend(channelID, msg); sendErr != nil {
		logger.Error("Failed to send error notice", "channel_id", channelID, "error", sendErr)
	}
}

func (b *Bot) persistTranscript(m *discordgo.MessageCreate, content, reply string, usage ai.Usage) {
	if b.messages == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record := models.StoredMessage{
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		Author:    m.Author.Username,
		Message:   content,
		Reply:     reply,
		TokensIn:  usage.PromptTokens,
		TokensOut: usage.CompletionTokens,
		Timestamp: time.Now(),
	}

	if _, err := b.messages.InsertOne(ctx, record); err != nil {
		logger.Warn("Failed to persist transcript", "channel_id", m.ChannelID, "error", err)
	}
}
