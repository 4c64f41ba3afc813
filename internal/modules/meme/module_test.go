package meme

import (
	"testing"
	"time"

	"crowdmod/internal/config"

	"github.com/stretchr/testify/assert"
)

func newModule() *Module {
	module := New(config.MemeConfig{
		UhohString:      "uh oh",
		GrillbotIDs:     []string{"grill"},
		PRMessage:       "make a PR",
		Questions:       []string{"what", "why"},
		CooldownUses:    1,
		CooldownSeconds: 10,
	})
	module.pick = func(n int) int { return n - 1 }
	return module
}

func TestHandleMessageReplies(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		msg   Message
		reply string
		ok    bool
	}{
		{name: "uh oh counter", msg: Message{AuthorID: "u1", Content: "well UH OH there"}, reply: "uh oh", ok: true},
		{name: "pr meme", msg: Message{AuthorID: "u1", Content: "PR"}, reply: "make a PR", ok: true},
		{name: "pr lowercase ignored", msg: Message{AuthorID: "u1", Content: "pr"}},
		{name: "single question mark ignored", msg: Message{AuthorID: "u1", Content: "?"}},
		{name: "question", msg: Message{AuthorID: "u2", Content: "??"}, reply: "why", ok: true},
		{name: "grillbot emoji echoed", msg: Message{AuthorID: "grill", AuthorBot: true, Content: "<:kek:123>"}, reply: "<:kek:123>", ok: true},
		{name: "grillbot text ignored", msg: Message{AuthorID: "grill", AuthorBot: true, Content: "uh oh"}},
		{name: "other bot ignored", msg: Message{AuthorID: "bot", AuthorBot: true, Content: "<:kek:123>"}},
	}

	module := newModule()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, ok := module.HandleMessage(tt.msg, now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reply, reply)
		})
	}
	assert.Equal(t, int64(1), module.UhohCount())
}

func TestQuestionCooldown(t *testing.T) {
	module := newModule()
	now := time.Now()

	_, ok := module.HandleMessage(Message{AuthorID: "u1", Content: "??"}, now)
	assert.True(t, ok)
	_, ok = module.HandleMessage(Message{AuthorID: "u1", Content: "??"}, now.Add(time.Second))
	assert.False(t, ok)
	_, ok = module.HandleMessage(Message{AuthorID: "u1", Content: "??"}, now.Add(11*time.Second))
	assert.True(t, ok)
}
