package studyvault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/achraflolman/studybox-server/internal/reminders"
	"github.com/achraflolman/studybox-server/internal/session"
	"github.com/achraflolman/studybox-server/internal/stores"
)

type StartSessionRequest struct {
	Mode string `json:"mode" validate:"required"`
	// Exactly one of DeckID or CombineDeckIDs selects the card source.
	DeckID         string   `json:"deckId,omitempty" validate:"omitempty,uuid"`
	CombineDeckIDs []string `json:"combineDeckIds,omitempty" validate:"omitempty,min=2,dive,uuid"`
}

type SessionView struct {
	ID       uuid.UUID        `json:"id"`
	Mode     string           `json:"mode"`
	State    string           `json:"state"`
	Answered int              `json:"answered"`
	Total    int              `json:"total"`
	Prompt   *session.Prompt  `json:"prompt,omitempty"`
	Summary  *session.Summary `json:"summary,omitempty"`
}

// AnswerRequest carries the grading input; which field is required
// depends on the session's mode.
type AnswerRequest struct {
	KnewIt  *bool   `json:"knewIt,omitempty"`
	Choice  *string `json:"choice,omitempty"`
	Typed   *string `json:"typed,omitempty"`
	Advance bool    `json:"advance,omitempty"`
}

type StepView struct {
	Correct       bool             `json:"correct"`
	CorrectAnswer string           `json:"correctAnswer"`
	SrsSaved      *bool            `json:"srsSaved,omitempty"`
	CheckSkipped  bool             `json:"checkSkipped,omitempty"`
	Next          *session.Prompt  `json:"next,omitempty"`
	Summary       *session.Summary `json:"summary,omitempty"`
	StarsTotal    *int             `json:"starsTotal,omitempty"`
}

// StartSession resolves the deck source, fetches the mode's card set, and
// registers a new session. Learn mode gets the due-filtered batch; every
// other mode studies the full deck.
func (s *Server) StartSession(ctx context.Context, userID string, req StartSessionRequest) (*SessionView, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var src session.DeckSource
	var fetched []stores.Flashcard

	switch {
	case len(req.CombineDeckIDs) > 0:
		// A combined deck is a client-only union; it is never persisted,
		// so there is no scheduling state to track.
		var combined []stores.Flashcard
		for _, raw := range req.CombineDeckIDs {
			id := uuid.MustParse(raw) // validated above
			if _, err := s.getDeck(ctx, id); err != nil {
				return nil, err
			}
			cards, err := s.Store.ListCards(ctx, id)
			if err != nil {
				return nil, err
			}
			combined = append(combined, cards...)
		}
		src = session.EphemeralDeck{Cards: combined}
	case req.DeckID != "":
		id := uuid.MustParse(req.DeckID)
		deck, err := s.getDeck(ctx, id)
		if err != nil {
			return nil, err
		}
		shared := deck.OwnerID != userID
		src = session.PersistedDeck{ID: id, Shared: shared}
		if mode == session.ModeLearn {
			if deck.CardCount == 0 {
				return nil, ErrNoCards
			}
			fetched, err = s.Store.DueCards(ctx, id, s.Nower.Now(), s.Config.LearnBatchSize)
		} else {
			fetched, err = s.Store.ListCards(ctx, id)
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: a deck id or a combination is required", ErrValidation)
	}

	sess, err := session.New(userID, mode, src, fetched, session.Options{
		Nower: s.Nower,
		Rand:  s.Rand,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &sessionEntry{sess: sess}
	s.mu.Unlock()

	log.Ctx(ctx).Info().Str("session", sess.ID.String()).Str("mode", mode.String()).
		Int("cards", sess.Remaining()).Msg("session-started")
	return viewOf(sess), nil
}

func (s *Server) GetSession(userID string, id uuid.UUID) (*SessionView, error) {
	entry, err := s.entry(userID, id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return viewOf(entry.sess), nil
}

// SubmitAnswer grades the current card. The entry lock keeps grading
// strictly serial per session, so no two scheduling updates for the same
// card are ever in flight together.
func (s *Server) SubmitAnswer(ctx context.Context, userID string, id uuid.UUID, req AnswerRequest) (*StepView, error) {
	entry, err := s.entry(userID, id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	sess := entry.sess

	var res session.StepResult
	switch sess.Mode {
	case session.ModeLearn:
		if req.KnewIt == nil {
			return nil, fmt.Errorf("%w: learn mode needs a knewIt grade", ErrValidation)
		}
		res, err = sess.SubmitGrade(*req.KnewIt)
	case session.ModeCram:
		if !req.Advance {
			return nil, fmt.Errorf("%w: cram mode only advances", ErrValidation)
		}
		res, err = sess.Advance()
	case session.ModeMultipleChoice:
		if req.Choice == nil {
			return nil, fmt.Errorf("%w: multiple-choice mode needs a choice", ErrValidation)
		}
		res, err = sess.SubmitChoice(*req.Choice)
	case session.ModeTyped:
		if req.Typed == nil {
			return nil, fmt.Errorf("%w: typed mode needs a typed answer", ErrValidation)
		}
		var accept session.AcceptFunc
		if s.AI.Enabled() {
			accept = s.AI.CheckAnswer
		}
		res, err = sess.SubmitTyped(ctx, *req.Typed, accept)
	default:
		return nil, fmt.Errorf("unhandled mode %s", sess.Mode)
	}
	if err != nil {
		return nil, err
	}

	view := &StepView{
		Correct:       res.Correct,
		CorrectAnswer: res.CorrectAnswer,
		CheckSkipped:  res.CheckErr != nil,
	}
	if res.CheckErr != nil {
		log.Ctx(ctx).Warn().Err(res.CheckErr).Msg("typed-answer-check-unavailable")
	}

	// Learn mode hands back scheduling state to persist. A failed write is
	// surfaced but the in-memory session carries on.
	if res.Scheduling != nil {
		saved := true
		if err := s.Store.UpdateCardScheduling(ctx, res.Card.ID, *res.Scheduling); err != nil {
			saved = false
			log.Ctx(ctx).Err(err).Str("card", res.Card.ID.String()).Msg("srs-update-failed")
		}
		view.SrsSaved = &saved
	}

	if res.Done {
		view.Summary = res.Summary
		if res.Summary.EarnedStars > 0 {
			total, err := s.Store.AddStars(ctx, userID, res.Summary.EarnedStars)
			if err != nil {
				log.Ctx(ctx).Err(err).Msg("star-award-failed")
			} else {
				view.StarsTotal = &total
			}
		}
		log.Ctx(ctx).Info().Str("session", id.String()).
			Int("correct", res.Summary.Correct).Int("total", res.Summary.Total).
			Int("stars", res.Summary.EarnedStars).Msg("session-complete")
		// The summary travels in this response; the registry entry is done.
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	} else if p, ok := sess.Current(); ok {
		view.Next = redactPrompt(sess.Mode, p)
	}
	return view, nil
}

// ExitSession cancels and forgets a session. Exiting an unknown or
// already-exited session is a no-op; stars are only ever awarded at
// natural completion, inside SubmitAnswer.
func (s *Server) ExitSession(userID string, id uuid.UUID) {
	// Registry lock is released before the entry lock is taken; SubmitAnswer
	// acquires them in the other order when it expires a finished session.
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if ok && entry.sess.UserID == userID {
		delete(s.sessions, id)
	} else {
		entry = nil
	}
	s.mu.Unlock()
	if entry == nil {
		return
	}
	entry.mu.Lock()
	entry.sess.Exit()
	entry.mu.Unlock()
}

func (s *Server) entry(userID string, id uuid.UUID) (*sessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok || entry.sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

func viewOf(sess *session.Session) *SessionView {
	answered, total := sess.Progress()
	view := &SessionView{
		ID:       sess.ID,
		Mode:     sess.Mode.String(),
		Answered: answered,
		Total:    total,
	}
	switch sess.State() {
	case session.StatePresenting:
		view.State = "presenting"
		if p, ok := sess.Current(); ok {
			view.Prompt = redactPrompt(sess.Mode, p)
		}
	case session.StateComplete:
		view.State = "complete"
		if sum, ok := sess.Summary(); ok {
			view.Summary = sum
		}
	case session.StateExited:
		view.State = "exited"
	}
	return view
}

type ReminderRequest struct {
	Message    string `json:"message" validate:"required_without=PlanText,max=500"`
	At         string `json:"at,omitempty"`
	PlanText   string `json:"planText,omitempty"`
	Permission string `json:"permission"`
}

type ReminderView struct {
	ID        uuid.UUID `json:"id,omitempty"`
	Scheduled bool      `json:"scheduled"`
	Notice    string    `json:"notice,omitempty"`
}

// ScheduleReminder registers a fire-once study reminder, parsing the time
// from natural language via the AI collaborator when no explicit
// timestamp is given. A denied permission degrades the feature; the
// notice is surfaced only the first time.
func (s *Server) ScheduleReminder(ctx context.Context, userID string, req ReminderRequest) (ReminderView, error) {
	if err := s.checkRequest(req); err != nil {
		return ReminderView{}, err
	}
	perm, err := reminders.ParsePermission(req.Permission)
	if err != nil {
		return ReminderView{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	message := req.Message
	at := s.Nower.Now()
	switch {
	case req.At != "":
		at, err = parseRFC3339(req.At)
		if err != nil {
			return ReminderView{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	case req.PlanText != "":
		plan, err := s.AI.ParsePlan(ctx, req.PlanText, s.Nower.Now())
		if err != nil {
			return ReminderView{}, err
		}
		at = plan.At
		if message == "" {
			message = plan.Message
		}
	default:
		return ReminderView{}, fmt.Errorf("%w: a timestamp or plan text is required", ErrValidation)
	}

	id, err := s.Reminders.Schedule(userID, message, at, perm)
	if errors.Is(err, reminders.ErrNotPermitted) {
		view := ReminderView{Scheduled: false}
		if s.noticeOnce(userID) {
			view.Notice = "notifications are not enabled; no reminder was scheduled"
		}
		return view, nil
	}
	if err != nil {
		return ReminderView{}, err
	}
	return ReminderView{ID: id, Scheduled: true}, nil
}

func (s *Server) CancelReminder(id uuid.UUID) bool {
	return s.Reminders.Cancel(id)
}

// redactPrompt strips scheduling state from an outbound prompt, and in the
// guessing modes the answer too. Learn and cram prompts keep the answer:
// the client flips the card to reveal it before the self-grade or advance.
func redactPrompt(mode session.Mode, p session.Prompt) *session.Prompt {
	if mode == session.ModeMultipleChoice || mode == session.ModeTyped {
		p.Card.Answer = ""
	}
	p.Card.DueDate = nil
	p.Card.Interval = 0
	p.Card.Ease = 0
	return &p
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// noticeOnce reports whether the degraded-permission notice should still
// be shown to this user.
func (s *Server) noticeOnce(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permNotice[userID] {
		return false
	}
	s.permNotice[userID] = true
	return true
}
