package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crowdmod/internal/modules/audit"
	"crowdmod/internal/modules/timeoutwars"
	"crowdmod/internal/modules/verify"

	"github.com/bwmarrin/discordgo"
)

const reactionPageSize = 100

// discordPlatform adapts a discordgo session to the Timeout Wars, audit and
// verification ports.
type discordPlatform struct {
	session      *discordgo.Session
	auditChannel string
	colors       colorSet
}

type colorSet struct {
	timeoutWars int
	verify      int
}

var (
	_ timeoutwars.Platform = (*discordPlatform)(nil)
	_ audit.Notifier       = (*discordPlatform)(nil)
	_ verify.Gateway       = (*discordPlatform)(nil)
)

func (p *discordPlatform) Reactors(ctx context.Context, msg timeoutwars.Message, emoji string) ([]timeoutwars.User, error) {
	var (
		users []timeoutwars.User
		after string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := p.session.MessageReactions(msg.ChannelID, msg.ID, emoji, reactionPageSize, "", after)
		if err != nil {
			return nil, err
		}
		for _, user := range page {
			users = append(users, convertUser(user))
		}
		if len(page) < reactionPageSize {
			return users, nil
		}
		after = page[len(page)-1].ID
	}
}

func (p *discordPlatform) Timeout(ctx context.Context, guildID, userID string, d time.Duration, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	until := time.Now().Add(d)
	return mapTimeoutError(p.session.GuildMemberTimeout(guildID, userID, &until))
}

func (p *discordPlatform) Send(ctx context.Context, channelID, content string) error {
	_, err := p.session.ChannelMessageSend(channelID, content)
	return err
}

func (p *discordPlatform) Announce(ctx context.Context, notice audit.Notice) error {
	if p.auditChannel == "" {
		return nil
	}
	_, err := p.session.ChannelMessageSendEmbed(p.auditChannel, noticeEmbed(notice, p.colors.timeoutWars))
	return err
}

func (p *discordPlatform) PostRequest(ctx context.Context, channelID string, req verify.Request, acceptID, declineID string) error {
	_, err := p.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{requestEmbed(req, p.colors.verify)},
		Components: requestButtons(acceptID, declineID),
	})
	return err
}

func (p *discordPlatform) GrantRole(ctx context.Context, guildID, userID, roleID string) error {
	return p.session.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (p *discordPlatform) DirectMessage(ctx context.Context, userID, content string) error {
	channel, err := p.session.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = p.session.ChannelMessageSend(channel.ID, content)
	return err
}

func (p *discordPlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return p.session.ChannelMessageDelete(channelID, messageID)
}

func mapTimeoutError(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %v", timeoutwars.ErrPermissionDenied, err)
		}
		if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeMissingPermissions {
			return fmt.Errorf("%w: %v", timeoutwars.ErrPermissionDenied, err)
		}
	}
	return err
}

func convertUser(user *discordgo.User) timeoutwars.User {
	if user == nil {
		return timeoutwars.User{}
	}
	return timeoutwars.User{ID: user.ID, Name: user.Username, Mention: user.Mention()}
}

func convertMessage(msg *discordgo.Message) timeoutwars.Message {
	out := timeoutwars.Message{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		Author:    convertUser(msg.Author),
	}
	for _, reaction := range msg.Reactions {
		if reaction == nil || reaction.Emoji == nil {
			continue
		}
		out.Reactions = append(out.Reactions, timeoutwars.Reaction{Emoji: emojiKey(reaction.Emoji), Count: reaction.Count})
	}
	return out
}

// emojiKey returns the form used both for matching and for the reactions
// endpoint: the bare character for unicode emoji, name:id for custom ones.
func emojiKey(emoji *discordgo.Emoji) string {
	if emoji.ID == "" {
		return emoji.Name
	}
	return emoji.Name + ":" + emoji.ID
}

func noticeEmbed(notice audit.Notice, color int) *discordgo.MessageEmbed {
	mentions := make([]string, 0, len(notice.Muted))
	for _, target := range notice.Muted {
		mentions = append(mentions, target.Mention)
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Muted users", Value: strings.Join(mentions, "\n")},
	}
	if notice.JumpURL != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Link", Value: notice.JumpURL})
	}
	return &discordgo.MessageEmbed{
		Title:     "Timeout Wars: " + string(notice.Reason),
		Color:     color,
		Timestamp: time.Now().Format(time.RFC3339),
		Fields:    fields,
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Message author: %s (%s)", notice.AuthorName, notice.AuthorID)},
	}
}

func requestEmbed(req verify.Request, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Access request",
		Description: fmt.Sprintf("<@%s> requests access to **%s**.", req.UserID, req.RuleName),
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func requestButtons(acceptID, declineID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Accept", Style: discordgo.SuccessButton, CustomID: acceptID},
				discordgo.Button{Label: "Decline", Style: discordgo.DangerButton, CustomID: declineID},
			},
		},
	}
}
