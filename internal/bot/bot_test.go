package bot

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"crowdmod/internal/analytics"
	"crowdmod/internal/config"
	"crowdmod/internal/modules/audit"
	"crowdmod/internal/modules/timeoutwars"
	"crowdmod/internal/modules/verify"
	"crowdmod/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMapTimeoutError(t *testing.T) {
	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	missing := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusBadRequest},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingPermissions},
	}
	other := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusInternalServerError}}

	assert.NoError(t, mapTimeoutError(nil))
	assert.ErrorIs(t, mapTimeoutError(forbidden), timeoutwars.ErrPermissionDenied)
	assert.ErrorIs(t, mapTimeoutError(fmt.Errorf("wrapped: %w", missing)), timeoutwars.ErrPermissionDenied)
	assert.NotErrorIs(t, mapTimeoutError(other), timeoutwars.ErrPermissionDenied)

	plain := errors.New("network")
	assert.Same(t, plain, mapTimeoutError(plain))
}

func TestConvertMessage(t *testing.T) {
	msg := &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
		Reactions: []*discordgo.MessageReactions{
			{Count: 4, Emoji: &discordgo.Emoji{Name: "🔇"}},
			{Count: 2, Emoji: &discordgo.Emoji{Name: "kek", ID: "99"}},
			nil,
			{Count: 1},
		},
	}

	got := convertMessage(msg)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "g1", got.GuildID)
	assert.Equal(t, timeoutwars.User{ID: "u1", Name: "alice", Mention: "<@u1>"}, got.Author)
	assert.Equal(t, []timeoutwars.Reaction{{Emoji: "🔇", Count: 4}, {Emoji: "kek:99", Count: 2}}, got.Reactions)
}

func TestNoticeEmbed(t *testing.T) {
	notice := audit.Notice{
		Reason:     audit.ReasonRandomMute,
		Muted:      []audit.Target{{ID: "a", Mention: "<@a>"}, {ID: "b", Mention: "<@b>"}},
		AuthorID:   "x",
		AuthorName: "xena",
		JumpURL:    "https://discord.com/channels/g/c/m",
	}

	embed := noticeEmbed(notice, 0xff0000)
	assert.Equal(t, "Timeout Wars: random mute", embed.Title)
	assert.Equal(t, 0xff0000, embed.Color)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "<@a>\n<@b>", embed.Fields[0].Value)
	assert.Equal(t, notice.JumpURL, embed.Fields[1].Value)
	assert.Contains(t, embed.Footer.Text, "xena")

	notice.JumpURL = ""
	assert.Len(t, noticeEmbed(notice, 0).Fields, 1)
}

func TestRequestButtons(t *testing.T) {
	rows := requestButtons("dynamic_verify:accept:r:u", "dynamic_verify:decline:r:u")
	require.Len(t, rows, 1)
	row, ok := rows[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)
	assert.Equal(t, "dynamic_verify:accept:r:u", row.Components[0].(discordgo.Button).CustomID)
	assert.Equal(t, discordgo.DangerButton, row.Components[1].(discordgo.Button).Style)
}

func TestMarkedCacheEvictsOldest(t *testing.T) {
	cache := newMarkedCache(2)
	cache.Put(timeoutwars.Message{ID: "1"})
	cache.Put(timeoutwars.Message{ID: "2"})
	cache.Put(timeoutwars.Message{ID: "2", ChannelID: "updated"})
	cache.Put(timeoutwars.Message{ID: "3"})

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Take("1")
	assert.False(t, ok)

	msg, ok := cache.Take("2")
	require.True(t, ok)
	assert.Equal(t, "updated", msg.ChannelID)

	_, ok = cache.Take("2")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestVerifyChoicesComeFromModuleRules(t *testing.T) {
	module := verify.New(config.VerifyConfig{Rules: []config.VerifyRule{
		{ID: "nsfw", Name: "NSFW channels"},
		{ID: "games", Name: "Game nights"},
	}}, nil, zap.NewNop())

	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, cmd := range commandDefinitions(module.Rules()) {
		if cmd.Name == "verify" {
			choices = cmd.Options[0].Choices
		}
	}
	require.Len(t, choices, 2)
	assert.Equal(t, "NSFW channels", choices[0].Name)
	assert.Equal(t, "nsfw", choices[0].Value)
	assert.Equal(t, "games", choices[1].Value)
}

func TestCommandDefinitionsCapChoices(t *testing.T) {
	rules := make([]config.VerifyRule, 30)
	for i := range rules {
		rules[i] = config.VerifyRule{ID: fmt.Sprintf("r%d", i), Name: fmt.Sprintf("Rule %d", i)}
	}

	var verifyCmd *discordgo.ApplicationCommand
	for _, cmd := range commandDefinitions(rules) {
		if cmd.Name == "verify" {
			verifyCmd = cmd
		}
	}
	require.NotNil(t, verifyCmd)
	assert.Len(t, verifyCmd.Options[0].Choices, maxChoices)
}

func TestReviewsEmbed(t *testing.T) {
	reviews := []storage.ReviewSummary{
		{Review: storage.Review{MemberID: "m1", Anonym: true, Tier: 1, Text: strings.Repeat("x", 400)}, Upvotes: 3, Downvotes: 1},
		{Review: storage.Review{MemberID: "m2", Tier: 4}},
	}

	embed := reviewsEmbed("IZP", reviews, 1)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "Tier 1 | +2", embed.Fields[0].Name)
	assert.True(t, strings.HasPrefix(embed.Fields[0].Value, "Anonymous\n"))
	assert.True(t, strings.HasSuffix(embed.Fields[0].Value, "..."))
	assert.Equal(t, "<@m2>\n-", embed.Fields[1].Value)

	assert.Equal(t, "No reviews yet.", reviewsEmbed("IZP", nil, 1).Description)
}

func TestReportEmbed(t *testing.T) {
	report := analytics.Report{
		Total:    2,
		Muted:    3,
		ByReason: map[string]int{"random mute": 1, "all mute": 1},
		TopMuted: []analytics.UserCount{{UserID: "a", Count: 2}},
	}

	embed := reportEmbed(report, 7, 0)
	require.Len(t, embed.Fields, 4)
	assert.Equal(t, "2", embed.Fields[0].Value)
	assert.Equal(t, "all mute: 1\nrandom mute: 1", embed.Fields[2].Value)
	assert.Equal(t, "1. <@a> (2)", embed.Fields[3].Value)
}
