package meme

import (
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"crowdmod/internal/config"
	"crowdmod/internal/utils"
)

type Message struct {
	AuthorID  string
	AuthorBot bool
	Content   string
}

type Module struct {
	cfg         config.MemeConfig
	grillbots   map[string]struct{}
	uhohs       atomic.Int64
	cooldown    *utils.Cooldown
	pick        func(n int) int
	uhohTrigger string
}

func New(cfg config.MemeConfig) *Module {
	grillbots := make(map[string]struct{}, len(cfg.GrillbotIDs))
	for _, id := range cfg.GrillbotIDs {
		grillbots[id] = struct{}{}
	}
	return &Module{
		cfg:         cfg,
		grillbots:   grillbots,
		cooldown:    utils.NewCooldown(cfg.CooldownUses, time.Duration(cfg.CooldownSeconds)*time.Second),
		pick:        rand.Intn,
		uhohTrigger: strings.ToLower(cfg.UhohString),
	}
}

// HandleMessage returns the reply for msg, if any.
func (m *Module) HandleMessage(msg Message, now time.Time) (string, bool) {
	if msg.AuthorBot {
		if _, ok := m.grillbots[msg.AuthorID]; ok && isCustomEmoji(msg.Content) {
			return msg.Content, true
		}
		return "", false
	}

	switch {
	case m.uhohTrigger != "" && strings.Contains(strings.ToLower(msg.Content), m.uhohTrigger):
		m.uhohs.Add(1)
		return "uh oh", true
	case msg.Content == "PR" && m.cfg.PRMessage != "":
		return m.cfg.PRMessage, true
	case msg.Content == "??":
		return m.question(msg.AuthorID, now)
	default:
		return "", false
	}
}

func (m *Module) UhohCount() int64 {
	return m.uhohs.Load()
}

func (m *Module) question(userID string, now time.Time) (string, bool) {
	if len(m.cfg.Questions) == 0 {
		return "", false
	}
	if !m.cooldown.Allow(userID, now) {
		return "", false
	}
	return m.cfg.Questions[m.pick(len(m.cfg.Questions))], true
}

func isCustomEmoji(content string) bool {
	return strings.HasPrefix(content, "<:") && strings.HasSuffix(content, ">")
}
