package timeoutwars

import (
	"math/rand"

	"crowdmod/internal/modules/audit"
)

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeAllMute
	OutcomeRandomMute
	OutcomeAuthorMute
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllMute:
		return "all_mute"
	case OutcomeRandomMute:
		return "random_mute"
	case OutcomeAuthorMute:
		return "author_mute"
	default:
		return "none"
	}
}

func (o Outcome) Reason() audit.Reason {
	switch o {
	case OutcomeAllMute:
		return audit.ReasonAllMute
	case OutcomeRandomMute:
		return audit.ReasonRandomMute
	default:
		return audit.ReasonAuthorMute
	}
}

type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.Intn(n) }

// Selector draws an outcome from percentage weights. Whatever is left of 100
// after the all and random weights goes to the author outcome.
type Selector struct {
	allWeight    int
	randomWeight int
	rng          Rand
}

func NewSelector(allWeight, randomWeight int) *Selector {
	return &Selector{allWeight: allWeight, randomWeight: randomWeight, rng: globalRand{}}
}

func (s *Selector) WithRand(rng Rand) {
	s.rng = rng
}

func (s *Selector) Draw() Outcome {
	return s.Classify(s.rng.IntN(100) + 1)
}

// Classify maps a roll in [1,100] to an outcome.
func (s *Selector) Classify(roll int) Outcome {
	if roll <= s.allWeight {
		return OutcomeAllMute
	}
	roll -= s.allWeight
	if roll <= s.randomWeight {
		return OutcomeRandomMute
	}
	return OutcomeAuthorMute
}

// Targets resolves the users an outcome applies to.
func Targets(outcome Outcome, author User, reactors []User, rng Rand) []User {
	switch outcome {
	case OutcomeAllMute:
		return reactors
	case OutcomeRandomMute:
		if len(reactors) == 0 {
			return nil
		}
		return []User{reactors[rng.IntN(len(reactors))]}
	case OutcomeAuthorMute:
		return []User{author}
	default:
		return nil
	}
}
