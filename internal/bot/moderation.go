package bot

import (
	"fmt"
	"strings"
	"time"

	"oraculo-bot/internal/logger"
	"oraculo-bot/models"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) handleBan(i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	user := opts["user"].UserValue(b.session)
	reason := ""
	if opt, ok := opts["reason"]; ok {
		reason = opt.StringValue()
	}

	if err := b.session.GuildBanCreateWithReason(i.GuildID, user.ID, reason, 0); err != nil {
		b.respondEphemeral(i, fmt.Sprintf("Failed to ban %s: %v", user.Username, err))
		return
	}

	b.logModeration(models.ModerationAction{
		Type:      "ban",
		UserID:    user.ID,
		ChannelID: i.ChannelID,
		Reason:    reason,
		Moderator: moderatorName(i),
	})
	b.respondEphemeral(i, fmt.Sprintf("Banned %s.", user.Username))
}

func (b *Bot) handleKick(i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	user := opts["user"].UserValue(b.session)
	reason := ""
	if opt, ok := opts["reason"]; ok {
		reason = opt.StringValue()
	}

	if err := b.session.GuildMemberDeleteWithReason(i.GuildID, user.ID, reason); err != nil {
		b.respondEphemeral(i, fmt.Sprintf("Failed to kick %s: %v", user.Username, err))
		return
	}

	b.logModeration(models.ModerationAction{
		Type:      "kick",
		UserID:    user.ID,
		ChannelID: i.ChannelID,
		Reason:    reason,
		Moderator: moderatorName(i),
	})
	b.respondEphemeral(i, fmt.Sprintf("Kicked %s.", user.Username))
}

func (b *Bot) handleMute(i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	user := opts["user"].UserValue(b.session)
	minutes := int(opts["minutes"].IntValue())
	reason := ""
	if opt, ok := opts["reason"]; ok {
		reason = opt.StringValue()
	}

	if minutes <= 0 || minutes > 40320 {
		b.respondEphemeral(i, "Timeout length must be between 1 minute and 28 days.")
		return
	}

	until := time.Now().Add(time.Duration(minutes) * time.Minute)
	if err := b.session.GuildMemberTimeout(i.GuildID, user.ID, &until); err != nil {
		b.respondEphemeral(i, fmt.Sprintf("Failed to mute %s: %v", user.Username, err))
		return
	}

	b.logModeration(models.ModerationAction{
		Type:      "mute",
		UserID:    user.ID,
		ChannelID: i.ChannelID,
		Reason:    reason,
		Duration:  minutes,
		Moderator: moderatorName(i),
	})
	b.respondEphemeral(i, fmt.Sprintf("Muted %s for %d minutes.", user.Username, minutes))
}

func (b *Bot) handleUnmute(i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	user := opts["user"].UserValue(b.session)

	if err := b.session.GuildMemberTimeout(i.GuildID, user.ID, nil); err != nil {
		b.respondEphemeral(i, fmt.Sprintf("Failed to unmute %s: %v", user.Username, err))
		return
	}

	b.logModeration(models.ModerationAction{
		Type:      "unmute",
		UserID:    user.ID,
		ChannelID: i.ChannelID,
		Moderator: moderatorName(i),
	})
	b.respondEphemeral(i, fmt.Sprintf("Unmuted %s.", user.Username))
}

func (b *Bot) handleWarn(i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	user := opts["user"].UserValue(b.session)
	reason := opts["reason"].StringValue()

	count, err := b.moderation.WarnUser(user.ID, models.Warning{
		Reason:    reason,
		Moderator: moderatorName(i),
	})
	if err != nil {
		logger.Error("Failed to record warning", "user_id", user.ID, "error", err)
		b.respondEphemeral(i, "Failed to record the warning.")
		return
	}

	b.logModeration(models.ModerationAction{
		Type:      "warn",
		UserID:    user.ID,
		ChannelID: i.ChannelID,
		Reason:    reason,
		Moderator: moderatorName(i),
	})
	b.respondEphemeral(i, fmt.Sprintf("Warned %s (%d warning(s) on record).", user.Username, count))
}

func (b *Bot) handleWarnings(i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	user := opts["user"].UserValue(b.session)

	warns, err := b.moderation.GetWarns(user.ID)
	if err != nil {
		logger.Error("Failed to read warnings", "user_id", user.ID, "error", err)
		b.respondEphemeral(i, "Failed to read warnings.")
		return
	}

	if len(warns) == 0 {
		b.respondEphemeral(i, fmt.Sprintf("%s has no warnings.", user.Username))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s has %d warning(s):\n", user.Username, len(warns))
	for idx, w := range warns {
		fmt.Fprintf(&sb, "%d. %s (by %s, %s)\n", idx+1, w.Reason, w.Moderator, w.Timestamp)
	}
	b.respondEphemeral(i, sb.String())
}

func (b *Bot) handleClearWarnings(i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	user := opts["user"].UserValue(b.session)

	removed, err := b.moderation.ClearWarns(user.ID)
	if err != nil {
		logger.Error("Failed to clear warnings", "user_id", user.ID, "error", err)
		b.respondEphemeral(i, "Failed to clear warnings.")
		return
	}

	b.respondEphemeral(i, fmt.Sprintf("Cleared %d warning(s) for %s.", removed, user.Username))
}

func (b *Bot) handlePurge(i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	amount := int(opts["amount"].IntValue())

	if amount < 1 || amount > 100 {
		b.respondEphemeral(i, "Amount must be between 1 and 100.")
		return
	}

	messages, err := b.session.ChannelMessages(i.ChannelID, amount, "", "", "")
	if err != nil {
		b.respondEphemeral(i, fmt.Sprintf("Failed to fetch messages: %v", err))
		return
	}

	ids := make([]string, 0, len(messages))
	cutoff := time.Now().Add(-14 * 24 * time.Hour)
	for _, msg := range messages {
		// Bulk delete rejects messages older than two weeks.
		if msg.Timestamp.After(cutoff) {
			ids = append(ids, msg.ID)
		}
	}

	if len(ids) > 0 {
		if err := b.session.ChannelMessagesBulkDelete(i.ChannelID, ids); err != nil {
			b.respondEphemeral(i, fmt.Sprintf("Failed to delete messages: %v", err))
			return
		}
	}

	b.logModeration(models.ModerationAction{
		Type:      "purge",
		ChannelID: i.ChannelID,
		Amount:    len(ids),
		Moderator: moderatorName(i),
	})
	b.respondEphemeral(i, fmt.Sprintf("Deleted %d message(s).", len(ids)))
}

func (b *Bot) logModeration(action models.ModerationAction) {
	if b.moderation == nil {
		return
	}
	if err := b.moderation.LogAction(action); err != nil {
		logger.Error("Failed to log moderation action", "type", action.Type, "error", err)
	}
}
