// Package session implements the in-memory study session engine: the card
// queue, the four mode strategies, and the scorer. It persists nothing
// itself; learn-mode scheduling updates are returned to the caller.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/achraflolman/studybox-server/internal/srs"
	"github.com/achraflolman/studybox-server/internal/stores"
)

var (
	ErrInsufficientCards = errors.New("not enough cards for this study mode")
	ErrAllCaughtUp       = errors.New("no cards are due for review")
	ErrSessionOver       = errors.New("session is no longer accepting answers")
	ErrWrongMode         = errors.New("answer type does not match the session mode")
)

type Nower interface {
	Now() time.Time
}

type RealNower struct{}

func (r RealNower) Now() time.Time {
	return time.Now()
}

type State int

const (
	StatePresenting State = iota
	StateComplete
	StateExited
)

// Answer records one graded card, in arrival order.
type Answer struct {
	Card       stores.Flashcard `json:"card"`
	UserAnswer string           `json:"userAnswer,omitempty"`
	Correct    bool             `json:"correct"`
}

// Prompt is the card currently presented, with its option list in
// multiple-choice mode.
type Prompt struct {
	Card     stores.Flashcard `json:"card"`
	Choices  []string         `json:"choices,omitempty"`
	Position int              `json:"position"`
	Total    int              `json:"total"`
}

// AcceptFunc is the optional semantic fallback for typed answers that fail
// the exact comparison (e.g. an AI synonym check). Best effort: an error
// means "could not check", not "wrong".
type AcceptFunc func(ctx context.Context, question, want, got string) (bool, error)

// StepResult is the outcome of grading one card. Scheduling is non-nil
// when the caller must persist updated SRS state (learn mode only);
// persistence failures are the caller's to surface and do not touch the
// session. Summary is non-nil once the queue is exhausted.
type StepResult struct {
	Card          stores.Flashcard
	Correct       bool
	CorrectAnswer string
	Scheduling    *srs.Scheduling
	CheckErr      error
	Done          bool
	Summary       *Summary
}

type Options struct {
	Nower Nower
	Rand  *rand.Rand
}

type Session struct {
	ID     uuid.UUID
	UserID string
	Mode   Mode
	Source DeckSource

	queue   []stores.Flashcard
	choices [][]string
	answers []Answer
	initial int

	state       State
	startTime   time.Time
	summary     *Summary
	nower       Nower
	schedulable bool
}

// New builds a session over the given cards. The cards for a persisted
// deck are fetched by the caller (due-filtered for learn mode); an
// ephemeral source carries its own. The queue is shuffled once here and
// never reshuffled mid-session.
func New(userID string, mode Mode, src DeckSource, fetched []stores.Flashcard, opts Options) (*Session, error) {
	nower := opts.Nower
	if nower == nil {
		nower = RealNower{}
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	// Only an owned persisted deck has scheduling state worth writing back.
	// Learn still runs on shared and combined sources; the self-grade is
	// recorded for scoring and the SRS update is skipped.
	var cards []stores.Flashcard
	schedulable := false
	switch s := src.(type) {
	case PersistedDeck:
		cards = fetched
		schedulable = mode == ModeLearn && !s.Shared
	case EphemeralDeck:
		cards = s.Cards
		if mode == ModeLearn {
			cards = dueOnly(cards, nower.Now())
		}
	default:
		return nil, errors.New("unknown deck source")
	}

	if len(cards) < mode.MinCards() {
		return nil, ErrInsufficientCards
	}
	if mode == ModeLearn && len(cards) == 0 {
		return nil, ErrAllCaughtUp
	}

	queue := make([]stores.Flashcard, len(cards))
	copy(queue, cards)
	rng.Shuffle(len(queue), func(i, j int) {
		queue[i], queue[j] = queue[j], queue[i]
	})

	var choices [][]string
	if mode == ModeMultipleChoice {
		choices = make([][]string, len(queue))
		for i := range queue {
			choices[i] = buildChoices(queue, i, rng)
		}
	}

	return &Session{
		ID:          uuid.New(),
		UserID:      userID,
		Mode:        mode,
		Source:      src,
		queue:       queue,
		choices:     choices,
		initial:     len(queue),
		startTime:   nower.Now(),
		nower:       nower,
		schedulable: schedulable,
	}, nil
}

// dueOnly filters an ephemeral card set the way the store's due-card query
// filters a persisted deck: never-reviewed cards plus overdue ones.
func dueOnly(cards []stores.Flashcard, now time.Time) []stores.Flashcard {
	var due []stores.Flashcard
	for _, c := range cards {
		if c.DueDate == nil || !c.DueDate.After(now) {
			due = append(due, c)
		}
	}
	return due
}

func (s *Session) State() State {
	return s.state
}

// Progress returns how many cards have been answered and the initial
// queue size. Cards remaining plus cards answered always equals the
// initial size.
func (s *Session) Progress() (answered, total int) {
	return len(s.answers), s.initial
}

func (s *Session) Remaining() int {
	return len(s.queue)
}

// Current returns the presented card, or false when the session is over.
func (s *Session) Current() (Prompt, bool) {
	if s.state != StatePresenting || len(s.queue) == 0 {
		return Prompt{}, false
	}
	p := Prompt{
		Card:     s.queue[0],
		Position: len(s.answers) + 1,
		Total:    s.initial,
	}
	if s.Mode == ModeMultipleChoice {
		p.Choices = s.choices[0]
	}
	return p, true
}

// Summary returns the final score once the queue has been exhausted. An
// exited session never produces one.
func (s *Session) Summary() (*Summary, bool) {
	if s.summary == nil {
		return nil, false
	}
	return s.summary, true
}

// SubmitGrade records a learn-mode self-grade. For an owned persisted deck
// it also computes the card's next scheduling state for the caller to
// persist; shared and combined sources record the grade for scoring only.
func (s *Session) SubmitGrade(knewIt bool) (StepResult, error) {
	if s.Mode != ModeLearn {
		return StepResult{}, ErrWrongMode
	}
	card, err := s.current()
	if err != nil {
		return StepResult{}, err
	}
	res := s.record(Answer{Card: card, Correct: knewIt})
	if s.schedulable {
		sched := srs.Review(card.Scheduling(), knewIt, s.nower.Now())
		res.Scheduling = &sched
	}
	return res, nil
}

// Advance records the current card in cram mode. There is no grading in a
// cram pass; every card counts as correct.
func (s *Session) Advance() (StepResult, error) {
	if s.Mode != ModeCram {
		return StepResult{}, ErrWrongMode
	}
	card, err := s.current()
	if err != nil {
		return StepResult{}, err
	}
	return s.record(Answer{Card: card, Correct: true}), nil
}

// SubmitChoice grades a multiple-choice pick against the stored answer.
func (s *Session) SubmitChoice(choice string) (StepResult, error) {
	if s.Mode != ModeMultipleChoice {
		return StepResult{}, ErrWrongMode
	}
	card, err := s.current()
	if err != nil {
		return StepResult{}, err
	}
	correct := choice == card.Answer
	return s.record(Answer{Card: card, UserAnswer: choice, Correct: correct}), nil
}

// SubmitTyped grades a typed answer: trimmed case-insensitive match first,
// then the optional semantic fallback. A fallback error is reported in the
// result but the step still completes (as incorrect).
func (s *Session) SubmitTyped(ctx context.Context, answer string, accept AcceptFunc) (StepResult, error) {
	if s.Mode != ModeTyped {
		return StepResult{}, ErrWrongMode
	}
	card, err := s.current()
	if err != nil {
		return StepResult{}, err
	}
	var checkErr error
	correct := strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(card.Answer))
	if !correct && accept != nil {
		ok, err := accept(ctx, card.Question, card.Answer, answer)
		if err != nil {
			checkErr = err
		} else {
			correct = ok
		}
	}
	res := s.record(Answer{Card: card, UserAnswer: answer, Correct: correct})
	res.CheckErr = checkErr
	return res, nil
}

// Exit cancels the session. Idempotent; a completed session keeps its
// summary and already-persisted scheduling updates stand.
func (s *Session) Exit() {
	if s.state == StatePresenting {
		s.state = StateExited
		s.queue = nil
		s.choices = nil
	}
}

func (s *Session) current() (stores.Flashcard, error) {
	if s.state != StatePresenting || len(s.queue) == 0 {
		return stores.Flashcard{}, ErrSessionOver
	}
	return s.queue[0], nil
}

// record appends the answer, then pops the queue. The answer is always
// recorded before the card is removed, so answered+remaining stays equal
// to the initial count.
func (s *Session) record(ans Answer) StepResult {
	s.answers = append(s.answers, ans)
	s.queue = s.queue[1:]
	if s.choices != nil {
		s.choices = s.choices[1:]
	}
	res := StepResult{
		Card:          ans.Card,
		Correct:       ans.Correct,
		CorrectAnswer: ans.Card.Answer,
	}
	if len(s.queue) == 0 {
		s.state = StateComplete
		s.summary = summarize(s.answers, s.startTime, s.nower.Now())
		res.Done = true
		res.Summary = s.summary
	}
	return res
}
