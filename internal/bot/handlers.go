package bot

import (
	"context"
	"errors"
	"time"

	"crowdmod/internal/modules/meme"
	"crowdmod/internal/modules/timeoutwars"
	"crowdmod/internal/modules/verify"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const eventTimeout = 30 * time.Second

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if b.meme == nil || msg.Author == nil {
		return
	}
	if session.State != nil && session.State.User != nil && msg.Author.ID == session.State.User.ID {
		return
	}

	reply, ok := b.meme.HandleMessage(meme.Message{
		AuthorID:  msg.Author.ID,
		AuthorBot: msg.Author.Bot,
		Content:   msg.Content,
	}, time.Now())
	if !ok {
		return
	}
	if _, err := session.ChannelMessageSend(msg.ChannelID, reply); err != nil {
		b.logger.Warn("meme reply failed", zap.String("channel_id", msg.ChannelID), zap.Error(err))
	}
}

func (b *Bot) onMessageReactionAdd(session *discordgo.Session, event *discordgo.MessageReactionAdd) {
	if b.timeoutWars == nil || event.MessageReaction == nil {
		return
	}
	if emojiKey(&event.Emoji) != b.timeoutWars.Emoji() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	fetched, err := session.ChannelMessage(event.ChannelID, event.MessageID)
	if err != nil {
		b.logger.Warn("fetch reacted message failed", zap.String("message_id", event.MessageID), zap.Error(err))
		return
	}
	msg := convertMessage(fetched)
	if msg.GuildID == "" {
		msg.GuildID = event.GuildID
	}
	b.marked.Put(msg)

	decision, err := b.timeoutWars.HandleReactionUpdate(ctx, msg)
	if err != nil {
		b.logger.Error("timeout wars failed", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if decision.Outcome != timeoutwars.OutcomeNone {
		b.logger.Info("timeout wars decision",
			zap.String("message_id", msg.ID),
			zap.String("outcome", decision.Outcome.String()),
			zap.Int("muted", len(decision.Record.Muted)),
		)
	}
}

func (b *Bot) onMessageReactionRemove(session *discordgo.Session, event *discordgo.MessageReactionRemove) {
	if b.timeoutWars == nil || event.MessageReaction == nil {
		return
	}
	emoji := emojiKey(&event.Emoji)
	if emoji != b.timeoutWars.Emoji() {
		return
	}
	b.marked.RemoveReaction(event.MessageID, emoji)
}

func (b *Bot) onMessageReactionRemoveAll(session *discordgo.Session, event *discordgo.MessageReactionRemoveAll) {
	if b.timeoutWars == nil || event.MessageReaction == nil {
		return
	}
	b.marked.ClearReactions(event.MessageID)
}

func (b *Bot) onMessageDelete(session *discordgo.Session, event *discordgo.MessageDelete) {
	if b.timeoutWars == nil || event.Message == nil {
		return
	}

	var cached *timeoutwars.Message
	if msg, ok := b.marked.Take(event.ID); ok {
		cached = &msg
	} else if event.BeforeDelete != nil {
		msg := convertMessage(event.BeforeDelete)
		cached = &msg
	}
	if cached == nil {
		return
	}
	if cached.GuildID == "" {
		cached.GuildID = event.GuildID
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	decision, err := b.timeoutWars.HandleMessageDelete(ctx, cached)
	if err != nil {
		b.logger.Error("timeout wars delete failed", zap.String("message_id", cached.ID), zap.Error(err))
		return
	}
	if decision.Outcome != timeoutwars.OutcomeNone {
		b.logger.Info("marked message deleted", zap.String("message_id", cached.ID), zap.String("author_id", cached.Author.ID))
	}
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		data := interaction.ApplicationCommandData()
		switch data.Name {
		case "uhoh":
			b.handleUhohCommand(session, interaction)
		case "timeoutwars":
			b.handleTimeoutWarsCommand(session, interaction, data.Options)
		case "reviews":
			b.handleReviewsCommand(ctx, session, interaction, data.Options)
		case "verify":
			b.handleVerifyCommand(ctx, session, interaction, data.Options)
		}
	case discordgo.InteractionMessageComponent:
		customID := interaction.MessageComponentData().CustomID
		if verify.IsCustomID(customID) {
			b.handleVerifyButton(ctx, session, interaction, customID)
		}
	}
}

func (b *Bot) handleVerifyButton(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, customID string) {
	action, ruleID, userID, err := verify.ParseCustomID(customID)
	if err != nil {
		b.logger.Warn("bad verification button", zap.String("custom_id", customID), zap.Error(err))
		b.respond(session, interaction, "This request is no longer valid.", true)
		return
	}

	staff := interactionUser(interaction)
	switch action {
	case verify.ActionAccept:
		if err := b.verify.Accept(ctx, interaction.GuildID, ruleID, userID); err != nil {
			b.logger.Warn("verification accept failed", zap.String("rule", ruleID), zap.String("user_id", userID), zap.Error(err))
			b.respond(session, interaction, "Could not grant the roles.", true)
			return
		}
		b.clearButtons(session, interaction, "Accepted by <@"+staff+">.")
	case verify.ActionDecline:
		if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		}); err != nil {
			b.logger.Warn("interaction defer failed", zap.Error(err))
		}
		channelID, messageID := interaction.ChannelID, ""
		if interaction.Message != nil {
			messageID = interaction.Message.ID
		}
		if err := b.verify.Decline(ctx, channelID, messageID, userID); err != nil {
			b.logger.Warn("verification decline failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func interactionUser(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func isUnknownRule(err error) bool {
	return errors.Is(err, verify.ErrUnknownRule)
}
