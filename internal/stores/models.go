package stores

import (
	"time"

	"github.com/google/uuid"

	"github.com/achraflolman/studybox-server/internal/srs"
)

// Deck is a set of flashcards. CardCount is a cached count kept in sync
// with card inserts and deletes inside the same transaction.
type Deck struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"ownerId"`
	Name      string    `db:"name" json:"name"`
	Subject   string    `db:"subject" json:"subject"`
	CardCount int       `db:"card_count" json:"cardCount"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Flashcard holds the card text plus its scheduling state. DueDate is nil
// until the card's first learn-mode review.
type Flashcard struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	DeckID    uuid.UUID  `db:"deck_id" json:"deckId"`
	OwnerID   string     `db:"owner_id" json:"ownerId"`
	Question  string     `db:"question" json:"question"`
	Answer    string     `db:"answer" json:"answer"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	DueDate   *time.Time `db:"due_date" json:"dueDate,omitempty"`
	Interval  int        `db:"review_interval" json:"interval,omitempty"`
	Ease      float64    `db:"ease_factor" json:"easeFactor,omitempty"`
}

func (c Flashcard) Scheduling() srs.Scheduling {
	s := srs.Scheduling{Interval: c.Interval, Ease: c.Ease}
	if c.DueDate != nil {
		s.Due = *c.DueDate
	}
	return s
}

func (c *Flashcard) SetScheduling(s srs.Scheduling) {
	due := s.Due
	c.DueDate = &due
	c.Interval = s.Interval
	c.Ease = s.Ease
}

// Profile carries the per-user star total, accumulated via atomic
// increments on session completion.
type Profile struct {
	UserID string `db:"user_id" json:"userId"`
	Stars  int    `db:"stars" json:"stars"`
}
