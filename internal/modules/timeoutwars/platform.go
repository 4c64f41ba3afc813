package timeoutwars

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermissionDenied is returned by Platform.Timeout when the bot may not
// mute the target.
var ErrPermissionDenied = errors.New("timeout permission denied")

type User struct {
	ID      string
	Name    string
	Mention string
}

type Reaction struct {
	Emoji string
	Count int
}

type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	Author    User
	Reactions []Reaction
}

func (m Message) JumpURL() string {
	guild := m.GuildID
	if guild == "" {
		guild = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild, m.ChannelID, m.ID)
}

type Platform interface {
	Reactors(ctx context.Context, msg Message, emoji string) ([]User, error)
	Timeout(ctx context.Context, guildID, userID string, d time.Duration, reason string) error
	Send(ctx context.Context, channelID, content string) error
}

func userIDs(users []User) []string {
	if len(users) == 0 {
		return nil
	}
	ids := make([]string, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.ID)
	}
	return ids
}

func uniqueUsers(users []User) []User {
	seen := make(map[string]struct{}, len(users))
	out := make([]User, 0, len(users))
	for _, user := range users {
		if _, ok := seen[user.ID]; ok {
			continue
		}
		seen[user.ID] = struct{}{}
		out = append(out, user)
	}
	return out
}
