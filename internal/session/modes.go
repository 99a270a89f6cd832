package session

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/achraflolman/studybox-server/internal/stores"
)

// Mode is the study-session variant. The switches over it are exhaustive;
// adding a mode is a compile-time-checked change.
type Mode int

const (
	ModeLearn Mode = iota
	ModeCram
	ModeMultipleChoice
	ModeTyped
)

func (m Mode) String() string {
	switch m {
	case ModeLearn:
		return "learn"
	case ModeCram:
		return "cram"
	case ModeMultipleChoice:
		return "multiple-choice"
	case ModeTyped:
		return "typed"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "learn":
		return ModeLearn, nil
	case "cram":
		return ModeCram, nil
	case "multiple-choice", "mc":
		return ModeMultipleChoice, nil
	case "typed", "typed-vocabulary":
		return ModeTyped, nil
	}
	return 0, fmt.Errorf("unknown study mode %q", s)
}

// MinCards is the smallest deck a mode can run with. Multiple choice needs
// a second card for its distractor pool; learn tolerates an empty due set.
func (m Mode) MinCards() int {
	switch m {
	case ModeLearn:
		return 0
	case ModeCram, ModeTyped:
		return 1
	case ModeMultipleChoice:
		return 2
	}
	return 1
}

// DeckSource is where a session's cards come from: a persisted deck (by
// id, possibly someone else's shared deck) or an ephemeral combination of
// cards that exists only client-side. Scheduling state is only ever
// written for owned persisted decks; the ephemeral branch has no deck to
// write to.
type DeckSource interface {
	isDeckSource()
}

type PersistedDeck struct {
	ID     uuid.UUID
	Shared bool
}

func (PersistedDeck) isDeckSource() {}

type EphemeralDeck struct {
	Cards []stores.Flashcard
}

func (EphemeralDeck) isDeckSource() {}

const numDistractors = 3

// buildChoices assembles the option list for one multiple-choice round:
// up to three distractors drawn from other cards' answers plus the correct
// answer, shuffled together. Answers identical to the correct one are
// excluded from the pool so the correct option appears exactly once.
func buildChoices(cards []stores.Flashcard, idx int, rng *rand.Rand) []string {
	correct := cards[idx].Answer
	pool := make([]string, 0, len(cards)-1)
	for i := range cards {
		if i == idx || cards[i].Answer == correct {
			continue
		}
		pool = append(pool, cards[i].Answer)
	}
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if len(pool) > numDistractors {
		pool = pool[:numDistractors]
	}
	choices := append([]string{correct}, pool...)
	rng.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	return choices
}
