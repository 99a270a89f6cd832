package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/matryer/is"

	"github.com/achraflolman/studybox-server/internal/stores"
)

type FakeNower struct{ fakenow time.Time }

func (f *FakeNower) Now() time.Time {
	return f.fakenow
}

func testOpts(nower Nower) Options {
	return Options{
		Nower: nower,
		Rand:  rand.New(rand.NewPCG(7, 11)),
	}
}

func makeCards(n int) []stores.Flashcard {
	cards := make([]stores.Flashcard, n)
	for i := range cards {
		cards[i] = stores.Flashcard{
			ID:       uuid.New(),
			Question: fmt.Sprintf("q%d", i),
			Answer:   fmt.Sprintf("a%d", i),
		}
	}
	return cards
}

func ownedDeck() PersistedDeck {
	return PersistedDeck{ID: uuid.New()}
}

func TestMinimumCardGating(t *testing.T) {
	is := is.New(t)

	_, err := New("u1", ModeMultipleChoice, ownedDeck(), makeCards(1), testOpts(nil))
	is.True(errors.Is(err, ErrInsufficientCards))

	_, err = New("u1", ModeCram, ownedDeck(), makeCards(1), testOpts(nil))
	is.NoErr(err)

	_, err = New("u1", ModeTyped, ownedDeck(), nil, testOpts(nil))
	is.True(errors.Is(err, ErrInsufficientCards))

	_, err = New("u1", ModeLearn, ownedDeck(), nil, testOpts(nil))
	is.True(errors.Is(err, ErrAllCaughtUp))
}

// Learn runs on combined and shared sources; the self-grade counts toward
// the score but no scheduling state comes back for the caller to persist.
func TestLearnOnUnschedulableSources(t *testing.T) {
	is := is.New(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	nower := &FakeNower{fakenow: now}

	s, err := New("u1", ModeLearn, EphemeralDeck{Cards: makeCards(3)}, nil, testOpts(nower))
	is.NoErr(err)
	var last StepResult
	for s.State() == StatePresenting {
		last, err = s.SubmitGrade(true)
		is.NoErr(err)
		is.Equal(last.Scheduling, nil) // nothing to persist for a combined deck
	}
	is.Equal(last.Summary.Correct, 3)
	is.Equal(last.Summary.EarnedStars, 5)

	s, err = New("u1", ModeLearn, PersistedDeck{ID: uuid.New(), Shared: true}, makeCards(1), testOpts(nower))
	is.NoErr(err)
	res, err := s.SubmitGrade(false)
	is.NoErr(err)
	is.Equal(res.Scheduling, nil) // shared decks keep the owner's schedule
	is.True(!res.Correct)
	is.Equal(res.Summary.Incorrect, 1)
}

// An ephemeral source carries every card, so learn mode applies the due
// filter itself.
func TestLearnFiltersEphemeralDueCards(t *testing.T) {
	is := is.New(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	nower := &FakeNower{fakenow: now}

	yesterday := now.AddDate(0, 0, -1)
	tomorrow := now.AddDate(0, 0, 1)
	cards := makeCards(3)
	cards[0].DueDate = &yesterday
	cards[1].DueDate = &tomorrow
	// cards[2] never reviewed, counts as due

	s, err := New("u1", ModeLearn, EphemeralDeck{Cards: cards}, nil, testOpts(nower))
	is.NoErr(err)
	_, total := s.Progress()
	is.Equal(total, 2)

	onlyFuture := []stores.Flashcard{cards[1]}
	_, err = New("u1", ModeLearn, EphemeralDeck{Cards: onlyFuture}, nil, testOpts(nower))
	is.True(errors.Is(err, ErrAllCaughtUp))
}

func TestQueueConservation(t *testing.T) {
	is := is.New(t)
	nower := &FakeNower{fakenow: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

	s, err := New("u1", ModeMultipleChoice, ownedDeck(), makeCards(5), testOpts(nower))
	is.NoErr(err)

	for s.State() == StatePresenting {
		answered, total := s.Progress()
		is.Equal(answered+s.Remaining(), total)

		p, ok := s.Current()
		is.True(ok)
		_, err := s.SubmitChoice(p.Choices[0])
		is.NoErr(err)
	}
	answered, total := s.Progress()
	is.Equal(answered, 5)
	is.Equal(total, 5)
	is.Equal(s.Remaining(), 0)
}

func TestCramAutoCorrect(t *testing.T) {
	is := is.New(t)
	nower := &FakeNower{fakenow: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

	s, err := New("u1", ModeCram, ownedDeck(), makeCards(3), testOpts(nower))
	is.NoErr(err)

	var last StepResult
	for s.State() == StatePresenting {
		last, err = s.Advance()
		is.NoErr(err)
		is.True(last.Correct)
		is.Equal(last.Scheduling, nil) // cram never writes scheduling state
	}
	is.True(last.Done)
	is.Equal(last.Summary.Correct, 3)
	is.Equal(last.Summary.Incorrect, 0)
	is.Equal(last.Summary.EarnedStars, 5)
	is.Equal(last.Summary.StartTime, nower.fakenow)
}

func TestMultipleChoiceChoices(t *testing.T) {
	is := is.New(t)

	s, err := New("u1", ModeMultipleChoice, ownedDeck(), makeCards(10), testOpts(nil))
	is.NoErr(err)

	for s.State() == StatePresenting {
		p, ok := s.Current()
		is.True(ok)
		is.Equal(len(p.Choices), 4)

		occurrences := 0
		for _, c := range p.Choices {
			if c == p.Card.Answer {
				occurrences++
			}
		}
		is.Equal(occurrences, 1)

		_, err = s.SubmitChoice(p.Card.Answer)
		is.NoErr(err)
	}
	sum, ok := s.Summary()
	is.True(ok)
	is.Equal(sum.Correct, 10)
	is.Equal(sum.EarnedStars, 5)
}

// Duplicate answers elsewhere in the deck must not produce a second copy
// of the correct option.
func TestMultipleChoiceDuplicateAnswers(t *testing.T) {
	is := is.New(t)

	cards := makeCards(4)
	cards[1].Answer = cards[0].Answer
	cards[2].Answer = cards[0].Answer

	s, err := New("u1", ModeMultipleChoice, ownedDeck(), cards, testOpts(nil))
	is.NoErr(err)

	for s.State() == StatePresenting {
		p, ok := s.Current()
		is.True(ok)
		occurrences := 0
		for _, c := range p.Choices {
			if c == p.Card.Answer {
				occurrences++
			}
		}
		is.Equal(occurrences, 1)
		_, err = s.SubmitChoice("nope")
		is.NoErr(err)
	}
}

func TestTypedGrading(t *testing.T) {
	is := is.New(t)

	cards := []stores.Flashcard{
		{ID: uuid.New(), Question: "hond", Answer: "Dog"},
	}
	s, err := New("u1", ModeTyped, ownedDeck(), cards, testOpts(nil))
	is.NoErr(err)

	res, err := s.SubmitTyped(context.Background(), "  dog ", nil)
	is.NoErr(err)
	is.True(res.Correct)
	is.True(res.Done)
}

func TestTypedFallback(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	cards := []stores.Flashcard{
		{ID: uuid.New(), Question: "hond", Answer: "dog"},
		{ID: uuid.New(), Question: "kat", Answer: "cat"},
		{ID: uuid.New(), Question: "vis", Answer: "fish"},
	}

	s, err := New("u1", ModeTyped, ownedDeck(), cards, testOpts(nil))
	is.NoErr(err)

	accepts := func(ctx context.Context, question, want, got string) (bool, error) {
		return true, nil
	}
	res, err := s.SubmitTyped(ctx, "hound", accepts)
	is.NoErr(err)
	is.True(res.Correct)

	rejects := func(ctx context.Context, question, want, got string) (bool, error) {
		return false, nil
	}
	res, err = s.SubmitTyped(ctx, "wrong", rejects)
	is.NoErr(err)
	is.True(!res.Correct)

	// Fallback failure degrades to incorrect, never fails the step.
	broken := func(ctx context.Context, question, want, got string) (bool, error) {
		return false, errors.New("service unavailable")
	}
	res, err = s.SubmitTyped(ctx, "wrong", broken)
	is.NoErr(err)
	is.True(!res.Correct)
	is.True(res.CheckErr != nil)
	is.True(res.Done)
}

func TestLearnScheduling(t *testing.T) {
	is := is.New(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	nower := &FakeNower{fakenow: now}

	yesterday := now.AddDate(0, 0, -1)
	cards := []stores.Flashcard{
		{ID: uuid.New(), Question: "q", Answer: "a", DueDate: &yesterday, Interval: 1, Ease: 2.5},
	}

	s, err := New("u1", ModeLearn, ownedDeck(), cards, testOpts(nower))
	is.NoErr(err)

	res, err := s.SubmitGrade(true)
	is.NoErr(err)
	is.True(res.Scheduling != nil)
	is.Equal(res.Scheduling.Interval, 6)
	is.Equal(res.Scheduling.Due, now.AddDate(0, 0, 6))
	is.Equal(res.Scheduling.Ease, 2.5)
	is.True(res.Done)
	is.Equal(res.Summary.Correct, 1)
	is.Equal(res.Summary.Incorrect, 0)
	is.Equal(res.Summary.Total, 1)
	is.Equal(res.Summary.EarnedStars, 5)
}

func TestLearnFailureDropsEase(t *testing.T) {
	is := is.New(t)
	nower := &FakeNower{fakenow: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

	cards := makeCards(1)
	cards[0].Interval = 10
	cards[0].Ease = 2.5

	s, err := New("u1", ModeLearn, ownedDeck(), cards, testOpts(nower))
	is.NoErr(err)

	res, err := s.SubmitGrade(false)
	is.NoErr(err)
	is.True(!res.Correct)
	is.Equal(res.Scheduling.Interval, 1)
	is.True(res.Scheduling.Ease < 2.5)
}

func TestWrongModeSubmission(t *testing.T) {
	is := is.New(t)

	s, err := New("u1", ModeCram, ownedDeck(), makeCards(2), testOpts(nil))
	is.NoErr(err)

	_, err = s.SubmitGrade(true)
	is.True(errors.Is(err, ErrWrongMode))
	_, err = s.SubmitChoice("x")
	is.True(errors.Is(err, ErrWrongMode))
	_, err = s.SubmitTyped(context.Background(), "x", nil)
	is.True(errors.Is(err, ErrWrongMode))
}

func TestExitIsIdempotent(t *testing.T) {
	is := is.New(t)

	s, err := New("u1", ModeCram, ownedDeck(), makeCards(3), testOpts(nil))
	is.NoErr(err)

	_, err = s.Advance()
	is.NoErr(err)

	s.Exit()
	is.Equal(s.State(), StateExited)
	s.Exit() // second exit is a no-op
	is.Equal(s.State(), StateExited)

	_, ok := s.Summary()
	is.True(!ok) // an exited session never yields a summary

	_, err = s.Advance()
	is.True(errors.Is(err, ErrSessionOver))
}

func TestExitAfterCompleteKeepsSummary(t *testing.T) {
	is := is.New(t)

	s, err := New("u1", ModeCram, ownedDeck(), makeCards(1), testOpts(nil))
	is.NoErr(err)

	res, err := s.Advance()
	is.NoErr(err)
	is.True(res.Done)

	s.Exit()
	is.Equal(s.State(), StateComplete)
	sum, ok := s.Summary()
	is.True(ok)
	is.Equal(sum.Total, 1)
}

func TestParseMode(t *testing.T) {
	is := is.New(t)

	for _, m := range []Mode{ModeLearn, ModeCram, ModeMultipleChoice, ModeTyped} {
		parsed, err := ParseMode(m.String())
		is.NoErr(err)
		is.Equal(parsed, m)
	}
	_, err := ParseMode("osmosis")
	is.True(err != nil)
}
