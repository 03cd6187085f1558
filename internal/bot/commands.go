package bot

import (
	"oraculo-bot/internal/logger"

	"github.com/bwmarrin/discordgo"
)

// Permission sets for the moderation commands.
var (
	moderatePermission = int64(discordgo.PermissionModerateMembers)
	banPermission      = int64(discordgo.PermissionBanMembers)
	kickPermission     = int64(discordgo.PermissionKickMembers)
	managePermission   = int64(discordgo.PermissionManageMessages)
)

func (b *Bot) commandDefinitions() []*discordgo.ApplicationCommand {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "reset",
			Description: "Clear the conversation history for this channel",
		},
		{
			Name:                     "ban",
			Description:              "Ban a member from the server",
			DefaultMemberPermissions: &banPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to ban", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for the ban"},
			},
		},
		{
			Name:                     "kick",
			Description:              "Kick a member from the server",
			DefaultMemberPermissions: &kickPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to kick", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for the kick"},
			},
		},
		{
			Name:                     "mute",
			Description:              "Timeout a member",
			DefaultMemberPermissions: &moderatePermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to mute", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "minutes", Description: "Timeout length in minutes", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for the mute"},
			},
		},
		{
			Name:                     "unmute",
			Description:              "Remove a member's timeout",
			DefaultMemberPermissions: &moderatePermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to unmute", Required: true},
			},
		},
		{
			Name:                     "warn",
			Description:              "Warn a member",
			DefaultMemberPermissions: &moderatePermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to warn", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for the warning", Required: true},
			},
		},
		{
			Name:                     "warnings",
			Description:              "List a member's warnings",
			DefaultMemberPermissions: &moderatePermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to inspect", Required: true},
			},
		},
		{
			Name:                     "clear_warnings",
			Description:              "Clear a member's warnings",
			DefaultMemberPermissions: &moderatePermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to clear", Required: true},
			},
		},
		{
			Name:                     "purge",
			Description:              "Bulk delete recent messages in this channel",
			DefaultMemberPermissions: &managePermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Number of messages (1-100)", Required: true},
			},
		},
	}

	if b.rag != nil && b.cfg.RAGEnabled {
		commands = append(commands,
			&discordgo.ApplicationCommand{
				Name:                     "add_document",
				Description:              "Add a legal document to the knowledge base",
				DefaultMemberPermissions: &managePermission,
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionAttachment, Name: "file", Description: "Document file (.pdf, .docx, .doc, .md, .txt)", Required: true},
				},
			},
			&discordgo.ApplicationCommand{
				Name:                     "add_url",
				Description:              "Add a web page to the knowledge base",
				DefaultMemberPermissions: &managePermission,
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "url", Description: "Page URL", Required: true},
				},
			},
			&discordgo.ApplicationCommand{
				Name:                     "remove_document",
				Description:              "Remove a document from the knowledge base",
				DefaultMemberPermissions: &managePermission,
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "hash", Description: "Content hash of the document", Required: true},
				},
			},
			&discordgo.ApplicationCommand{
				Name:        "rag_info",
				Description: "Show knowledge base statistics",
			},
		)
	}

	return commands
}

func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID

	for _, def := range b.commandDefinitions() {
		cmd, err := b.session.ApplicationCommandCreate(appID, "", def)
		if err != nil {
			logger.Error("Failed to register command", "command", def.Name, "error", err)
			continue
		}
		b.registeredCommands = append(b.registeredCommands, cmd)
	}

	logger.Info("Registered slash commands", "count", len(b.registeredCommands))
	return nil
}

func (b *Bot) unregisterCommands() {
	appID := b.session.State.User.ID

	for _, cmd := range b.registeredCommands {
		if err := b.session.ApplicationCommandDelete(appID, "", cmd.ID); err != nil {
			logger.Warn("Failed to unregister command", "command", cmd.Name, "error", err)
		}
	}
	b.registeredCommands = nil
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	name := i.ApplicationCommandData().Name
	logger.Debug("Handling slash command", "command", name, "channel_id", i.ChannelID)

	switch name {
	case "reset":
		b.handleReset(i)
	case "ban":
		b.handleBan(i)
	case "kick":
		b.handleKick(i)
	case "mute":
		b.handleMute(i)
	case "unmute":
		b.handleUnmute(i)
	case "warn":
		b.handleWarn(i)
	case "warnings":
		b.handleWarnings(i)
	case "clear_warnings":
		b.handleClearWarnings(i)
	case "purge":
		b.handlePurge(i)
	case "add_document":
		b.handleAddDocument(i)
	case "add_url":
		b.handleAddURL(i)
	case "remove_document":
		b.handleRemoveDocument(i)
	case "rag_info":
		b.handleRAGInfo(i)
	}
}

func (b *Bot) handleReset(i *discordgo.InteractionCreate) {
	b.history.Clear(i.ChannelID)
	b.respondEphemeral(i, "Conversation history for this channel cleared.")
}

// optionMap indexes the interaction options by name.
func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func (b *Bot) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logger.Warn("Failed to respond to interaction", "error", err)
	}
}

// deferEphemeral acknowledges the interaction immediately so slow handlers
// can finish with a followup edit.
func (b *Bot) deferEphemeral(i *discordgo.InteractionCreate) error {
	return b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) editResponse(i *discordgo.InteractionCreate, content string) {
	_, err := b.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		logger.Warn("Failed to edit interaction response", "error", err)
	}
}

// moderatorName returns a display name for the invoking moderator.
func moderatorName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return "unknown"
}
