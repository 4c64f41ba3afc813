package timeoutwars

import "sync"

// Detector decides whether a message crossed the mute-reaction threshold.
// Each message id qualifies at most once for the lifetime of the process.
type Detector struct {
	mu        sync.Mutex
	emoji     string
	threshold int
	processed map[string]struct{}
}

func NewDetector(emoji string, threshold int) *Detector {
	if threshold < 1 {
		threshold = 1
	}
	return &Detector{
		emoji:     emoji,
		threshold: threshold,
		processed: make(map[string]struct{}),
	}
}

// Qualify marks msg as processed when it qualifies. The check and the insert
// happen under one lock so duplicate reaction events cannot both pass.
func (d *Detector) Qualify(msg Message) (Reaction, bool) {
	reaction, ok := FindReaction(msg.Reactions, d.emoji)
	if !ok || reaction.Count < d.threshold {
		return Reaction{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, done := d.processed[msg.ID]; done {
		return Reaction{}, false
	}
	d.processed[msg.ID] = struct{}{}
	return reaction, true
}

func FindReaction(reactions []Reaction, emoji string) (Reaction, bool) {
	for _, reaction := range reactions {
		if reaction.Emoji == emoji {
			return reaction, true
		}
	}
	return Reaction{}, false
}
