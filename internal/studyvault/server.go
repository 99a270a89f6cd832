// Package studyvault is the service layer over the study engine: deck and
// card management, the in-memory session registry, star accumulation, AI
// card generation, and reminders.
package studyvault

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/achraflolman/studybox-server/config"
	"github.com/achraflolman/studybox-server/internal/aiclient"
	"github.com/achraflolman/studybox-server/internal/reminders"
	"github.com/achraflolman/studybox-server/internal/session"
	"github.com/achraflolman/studybox-server/internal/srs"
	"github.com/achraflolman/studybox-server/internal/stores"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrDeckNotFound    = errors.New("deck not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrReadOnlyDeck    = errors.New("cannot modify a shared deck")
	ErrNoCards         = errors.New("this deck has no cards")
)

// Store is the persistence surface the service needs; *stores.Queries
// implements it.
type Store interface {
	CreateDeck(ctx context.Context, deck stores.Deck) (stores.Deck, error)
	GetDeck(ctx context.Context, id uuid.UUID) (stores.Deck, error)
	ListDecks(ctx context.Context, ownerID string) ([]stores.Deck, error)
	DeleteDeck(ctx context.Context, id uuid.UUID, ownerID string) error
	AddCards(ctx context.Context, deckID uuid.UUID, ownerID string, cards []stores.Flashcard, now time.Time) ([]stores.Flashcard, error)
	DeleteCards(ctx context.Context, deckID uuid.UUID, ownerID string, ids []uuid.UUID) (int64, error)
	ListCards(ctx context.Context, deckID uuid.UUID) ([]stores.Flashcard, error)
	DueCards(ctx context.Context, deckID uuid.UUID, now time.Time, limit int) ([]stores.Flashcard, error)
	UpdateCardScheduling(ctx context.Context, id uuid.UUID, s srs.Scheduling) error
	ScheduleBreakdown(ctx context.Context, deckID uuid.UUID, now time.Time) (map[string]int, error)
	AddStars(ctx context.Context, userID string, n int) (int, error)
	GetProfile(ctx context.Context, userID string) (stores.Profile, error)
}

// AIService is the generative-AI collaborator; *aiclient.Client
// implements it.
type AIService interface {
	Enabled() bool
	CheckAnswer(ctx context.Context, question, want, got string) (bool, error)
	GenerateCards(ctx context.Context, material string, max int) ([]aiclient.CardDraft, error)
	ParsePlan(ctx context.Context, text string, now time.Time) (aiclient.Plan, error)
}

type sessionEntry struct {
	mu   sync.Mutex
	sess *session.Session
}

type Server struct {
	Config    *config.Config
	Store     Store
	AI        AIService
	Reminders *reminders.Scheduler
	Nower     session.Nower
	Rand      *rand.Rand

	validate *validator.Validate

	mu         sync.Mutex
	sessions   map[uuid.UUID]*sessionEntry
	permNotice map[string]bool
}

func NewServer(cfg *config.Config, store Store, ai AIService, rem *reminders.Scheduler) *Server {
	return &Server{
		Config:     cfg,
		Store:      store,
		AI:         ai,
		Reminders:  rem,
		Nower:      session.RealNower{},
		validate:   validator.New(),
		sessions:   map[uuid.UUID]*sessionEntry{},
		permNotice: map[string]bool{},
	}
}

func (s *Server) checkRequest(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

type CreateDeckRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Subject string `json:"subject" validate:"max=120"`
}

func (s *Server) CreateDeck(ctx context.Context, userID string, req CreateDeckRequest) (stores.Deck, error) {
	if err := s.checkRequest(req); err != nil {
		return stores.Deck{}, err
	}
	deck, err := s.Store.CreateDeck(ctx, stores.Deck{
		OwnerID: userID,
		Name:    req.Name,
		Subject: req.Subject,
	})
	if err != nil {
		return stores.Deck{}, err
	}
	log.Ctx(ctx).Info().Str("deck", deck.ID.String()).Str("name", deck.Name).Msg("deck-created")
	return deck, nil
}

func (s *Server) ListDecks(ctx context.Context, userID string) ([]stores.Deck, error) {
	return s.Store.ListDecks(ctx, userID)
}

func (s *Server) DeleteDeck(ctx context.Context, userID string, deckID uuid.UUID) error {
	err := s.Store.DeleteDeck(ctx, deckID, userID)
	if errors.Is(err, stores.ErrNotFound) {
		return ErrDeckNotFound
	}
	return err
}

type CardInput struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
}

type AddCardsRequest struct {
	Cards []CardInput `json:"cards" validate:"required,min=1,dive"`
}

// AddCards inserts cards into an owned deck. The deck's cached card count
// moves in the same transaction, inside the store.
func (s *Server) AddCards(ctx context.Context, userID string, deckID uuid.UUID, req AddCardsRequest) ([]stores.Flashcard, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	if len(req.Cards) > s.Config.MaxCardsAdd {
		return nil, fmt.Errorf("%w: cannot add more than %d cards at a time", ErrValidation, s.Config.MaxCardsAdd)
	}
	deck, err := s.getDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if deck.OwnerID != userID {
		return nil, ErrReadOnlyDeck
	}
	cards := make([]stores.Flashcard, len(req.Cards))
	for i, in := range req.Cards {
		cards[i] = stores.Flashcard{Question: in.Question, Answer: in.Answer}
	}
	return s.Store.AddCards(ctx, deckID, userID, cards, s.Nower.Now())
}

func (s *Server) DeleteCards(ctx context.Context, userID string, deckID uuid.UUID, ids []uuid.UUID) (int64, error) {
	deck, err := s.getDeck(ctx, deckID)
	if err != nil {
		return 0, err
	}
	if deck.OwnerID != userID {
		return 0, ErrReadOnlyDeck
	}
	return s.Store.DeleteCards(ctx, deckID, userID, ids)
}

// ListCards is readable for shared decks too; sharing is read-only.
func (s *Server) ListCards(ctx context.Context, userID string, deckID uuid.UUID) ([]stores.Flashcard, error) {
	if _, err := s.getDeck(ctx, deckID); err != nil {
		return nil, err
	}
	return s.Store.ListCards(ctx, deckID)
}

func (s *Server) ScheduleBreakdown(ctx context.Context, userID string, deckID uuid.UUID) (map[string]int, error) {
	if _, err := s.getDeck(ctx, deckID); err != nil {
		return nil, err
	}
	return s.Store.ScheduleBreakdown(ctx, deckID, s.Nower.Now())
}

type GenerateCardsRequest struct {
	Material string `json:"material" validate:"required,min=20"`
	Max      int    `json:"max" validate:"omitempty,min=1"`
}

// GenerateCards asks the AI collaborator for card drafts from pasted
// study material. The drafts are returned for review, not saved.
func (s *Server) GenerateCards(ctx context.Context, userID string, req GenerateCardsRequest) ([]aiclient.CardDraft, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	max := req.Max
	if max == 0 || max > s.Config.MaxCardsAdd {
		max = s.Config.MaxCardsAdd
	}
	return s.AI.GenerateCards(ctx, req.Material, max)
}

func (s *Server) getDeck(ctx context.Context, deckID uuid.UUID) (stores.Deck, error) {
	deck, err := s.Store.GetDeck(ctx, deckID)
	if errors.Is(err, stores.ErrNotFound) {
		return stores.Deck{}, ErrDeckNotFound
	}
	return deck, err
}

func (s *Server) Profile(ctx context.Context, userID string) (stores.Profile, error) {
	return s.Store.GetProfile(ctx, userID)
}
