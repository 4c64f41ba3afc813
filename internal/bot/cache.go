package bot

import (
	"sync"

	"crowdmod/internal/modules/timeoutwars"
)

// markedCache remembers the last seen state of messages carrying the mute
// reaction, oldest evicted first.
type markedCache struct {
	mu       sync.Mutex
	limit    int
	order    []string
	messages map[string]timeoutwars.Message
}

func newMarkedCache(limit int) *markedCache {
	if limit <= 0 {
		limit = 1
	}
	return &markedCache{limit: limit, messages: make(map[string]timeoutwars.Message)}
}

func (c *markedCache) Put(msg timeoutwars.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.messages[msg.ID]; !ok {
		c.order = append(c.order, msg.ID)
	}
	c.messages[msg.ID] = msg
	for len(c.order) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.messages, oldest)
	}
}

// RemoveReaction lowers the count of emoji on a cached message, dropping the
// reaction once nobody is left on it.
func (c *markedCache) RemoveReaction(id, emoji string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.messages[id]
	if !ok {
		return
	}
	reactions := make([]timeoutwars.Reaction, 0, len(msg.Reactions))
	for _, reaction := range msg.Reactions {
		if reaction.Emoji == emoji {
			reaction.Count--
			if reaction.Count <= 0 {
				continue
			}
		}
		reactions = append(reactions, reaction)
	}
	msg.Reactions = reactions
	c.messages[id] = msg
}

// ClearReactions keeps the entry so a later deletion does not fall back to an
// older copy.
func (c *markedCache) ClearReactions(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.messages[id]
	if !ok {
		return
	}
	msg.Reactions = nil
	c.messages[id] = msg
}

// Take returns and forgets the cached message.
func (c *markedCache) Take(id string) (timeoutwars.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.messages[id]
	if !ok {
		return timeoutwars.Message{}, false
	}
	delete(c.messages, id)
	for i, key := range c.order {
		if key == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return msg, true
}

func (c *markedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
