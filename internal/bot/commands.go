package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"crowdmod/internal/analytics"
	"crowdmod/internal/config"
	"crowdmod/internal/modules/verify"
	"crowdmod/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	defaultReportDays  = 7
	defaultReviewLimit = 5
	maxReviewLimit     = 10
	maxChoices         = 25
	reviewPreviewRunes = 300
)

func (b *Bot) registerCommands() error {
	if b.session.State == nil || b.session.State.User == nil {
		return errors.New("session user not ready")
	}
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.cfg.GuildID, commandDefinitions(b.verify.Rules()))
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	return nil
}

func commandDefinitions(rules []config.VerifyRule) []*discordgo.ApplicationCommand {
	minLimit := float64(1)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(rules))
	for _, rule := range rules {
		if len(choices) == maxChoices {
			break
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: rule.Name, Value: rule.ID})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "uhoh",
			Description: "Show how many times uh oh was said",
		},
		{
			Name:        "timeoutwars",
			Description: "Show Timeout Wars statistics",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "days",
					Description: "How many days back to look",
					MinValue:    &minLimit,
					Required:    false,
				},
			},
		},
		{
			Name:        "reviews",
			Description: "List the most relevant reviews of a subject",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "subject",
					Description: "Subject shortcut",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "Number of reviews",
					MinValue:    &minLimit,
					MaxValue:    maxReviewLimit,
					Required:    false,
				},
			},
		},
		{
			Name:        "verify",
			Description: "Request access to a restricted area",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "rule",
					Description: "What to request access to",
					Required:    true,
					Choices:     choices,
				},
			},
		},
	}
}

func (b *Bot) handleUhohCommand(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	b.respond(session, interaction, fmt.Sprintf("uh oh was said %d times.", b.UhohCount()), false)
}

func (b *Bot) handleTimeoutWarsCommand(session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if b.analytics == nil {
		b.respond(session, interaction, "Statistics are not available.", true)
		return
	}
	days := defaultReportDays
	if opt := findOption(options, "days"); opt != nil && opt.IntValue() > 0 {
		days = int(opt.IntValue())
	}
	report, err := b.analytics.Report(time.Now().AddDate(0, 0, -days), 5)
	if err != nil {
		b.logger.Warn("timeout wars report failed", zap.Error(err))
		b.respond(session, interaction, "Could not read the Timeout Wars journal.", true)
		return
	}
	b.respondEmbed(session, interaction, reportEmbed(report, days, b.cfg.Notifications.EmbedColors.Info), false)
}

func (b *Bot) handleReviewsCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if b.store == nil {
		b.respond(session, interaction, "Reviews are not available.", true)
		return
	}
	subject := ""
	if opt := findOption(options, "subject"); opt != nil {
		subject = strings.ToUpper(strings.TrimSpace(opt.StringValue()))
	}
	limit := defaultReviewLimit
	if opt := findOption(options, "limit"); opt != nil && opt.IntValue() > 0 {
		limit = min(int(opt.IntValue()), maxReviewLimit)
	}

	reviews, err := b.store.ListReviews(ctx, subject, limit)
	if err != nil {
		b.logger.Warn("list reviews failed", zap.String("subject", subject), zap.Error(err))
		b.respond(session, interaction, "Could not load reviews.", true)
		return
	}
	b.respondEmbed(session, interaction, reviewsEmbed(subject, reviews, b.cfg.Notifications.EmbedColors.Info), false)
}

func (b *Bot) handleVerifyCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	ruleID := ""
	if opt := findOption(options, "rule"); opt != nil {
		ruleID = opt.StringValue()
	}
	err := b.verify.RequestAccess(ctx, ruleID, interactionUser(interaction))
	switch {
	case err == nil:
		b.respond(session, interaction, "Your request was sent to the moderators.", true)
	case isUnknownRule(err):
		b.respond(session, interaction, "Unknown verification rule.", true)
	case errors.Is(err, verify.ErrNoRequestChannel):
		b.respond(session, interaction, "Verification is not configured.", true)
	default:
		b.logger.Warn("verification request failed", zap.String("rule", ruleID), zap.Error(err))
		b.respond(session, interaction, "Could not send your request.", true)
	}
}

func findOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range options {
		if opt != nil && opt.Name == name {
			return opt
		}
	}
	return nil
}

func reportEmbed(report analytics.Report, days, color int) *discordgo.MessageEmbed {
	reasons := make([]string, 0, len(report.ByReason))
	for reason, count := range report.ByReason {
		reasons = append(reasons, fmt.Sprintf("%s: %d", reason, count))
	}
	sort.Strings(reasons)

	top := make([]string, 0, len(report.TopMuted))
	for i, entry := range report.TopMuted {
		top = append(top, fmt.Sprintf("%d. <@%s> (%d)", i+1, entry.UserID, entry.Count))
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Decisions", Value: fmt.Sprintf("%d", report.Total), Inline: true},
		{Name: "Timeouts", Value: fmt.Sprintf("%d", report.Muted), Inline: true},
		{Name: "By reason", Value: valueOrDash(strings.Join(reasons, "\n"))},
		{Name: "Most muted", Value: valueOrDash(strings.Join(top, "\n"))},
	}
	return commandEmbed("Timeout Wars", fmt.Sprintf("Last %d days", days), color, fields)
}

func reviewsEmbed(subject string, reviews []storage.ReviewSummary, color int) *discordgo.MessageEmbed {
	if len(reviews) == 0 {
		return commandEmbed("Reviews: "+subject, "No reviews yet.", color, nil)
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(reviews))
	for _, review := range reviews {
		author := "<@" + review.MemberID + ">"
		if review.Anonym {
			author = "Anonymous"
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Tier %d | %+d", review.Tier, review.Score()),
			Value: fmt.Sprintf("%s\n%s", author, valueOrDash(truncate(review.Text, reviewPreviewRunes))),
		})
	}
	return commandEmbed("Reviews: "+subject, "", color, fields)
}

func valueOrDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
