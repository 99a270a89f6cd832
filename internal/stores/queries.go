package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/achraflolman/studybox-server/internal/srs"
)

var ErrNotFound = errors.New("not found")

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var (
	deckColumns = []string{"id", "owner_id", "name", "subject", "card_count", "created_at"}
	cardColumns = []string{"id", "deck_id", "owner_id", "question", "answer", "created_at",
		"due_date", "review_interval", "ease_factor"}
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

func (q *Queries) CreateDeck(ctx context.Context, deck Deck) (Deck, error) {
	if deck.ID == uuid.Nil {
		deck.ID = uuid.New()
	}
	sqlstr, args, err := psql.Insert("decks").
		Columns("id", "owner_id", "name", "subject").
		Values(deck.ID, deck.OwnerID, deck.Name, deck.Subject).
		Suffix("RETURNING " + strings.Join(deckColumns, ", ")).
		ToSql()
	if err != nil {
		return Deck{}, err
	}
	var out Deck
	if err := pgxscan.Get(ctx, q.db, &out, sqlstr, args...); err != nil {
		return Deck{}, err
	}
	return out, nil
}

func (q *Queries) GetDeck(ctx context.Context, id uuid.UUID) (Deck, error) {
	sqlstr, args, err := psql.Select(deckColumns...).From("decks").
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return Deck{}, err
	}
	var out Deck
	if err := pgxscan.Get(ctx, q.db, &out, sqlstr, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Deck{}, ErrNotFound
		}
		return Deck{}, err
	}
	return out, nil
}

func (q *Queries) ListDecks(ctx context.Context, ownerID string) ([]Deck, error) {
	sqlstr, args, err := psql.Select(deckColumns...).From("decks").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, err
	}
	var out []Deck
	if err := pgxscan.Select(ctx, q.db, &out, sqlstr, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDeck removes a deck and all of its cards. Only the owner may
// delete a deck.
func (q *Queries) DeleteDeck(ctx context.Context, id uuid.UUID, ownerID string) error {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cards WHERE deck_id = $1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM decks WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// AddCards inserts cards into a deck and bumps the deck's cached card
// count in the same transaction. IDs are assigned for cards without one.
func (q *Queries) AddCards(ctx context.Context, deckID uuid.UUID, ownerID string, cards []Flashcard, now time.Time) ([]Flashcard, error) {
	if len(cards) == 0 {
		return nil, errors.New("need at least one card")
	}
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ins := psql.Insert("cards").Columns(cardColumns...)
	for i := range cards {
		if cards[i].ID == uuid.Nil {
			cards[i].ID = uuid.New()
		}
		cards[i].DeckID = deckID
		cards[i].OwnerID = ownerID
		cards[i].CreatedAt = now
		ins = ins.Values(cards[i].ID, deckID, ownerID, cards[i].Question, cards[i].Answer,
			now, cards[i].DueDate, cards[i].Interval, cards[i].Ease)
	}
	sqlstr, args, err := ins.ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, sqlstr, args...); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE decks SET card_count = card_count + $1 WHERE id = $2`,
		len(cards), deckID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return cards, nil
}

// DeleteCards deletes the given cards (or every card in the deck when ids
// is empty) and decrements the cached count by the number actually removed.
func (q *Queries) DeleteCards(ctx context.Context, deckID uuid.UUID, ownerID string, ids []uuid.UUID) (int64, error) {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	del := psql.Delete("cards").Where(squirrel.Eq{"deck_id": deckID, "owner_id": ownerID})
	if len(ids) > 0 {
		del = del.Where(squirrel.Eq{"id": ids})
	}
	sqlstr, args, err := del.ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, sqlstr, args...)
	if err != nil {
		return 0, err
	}
	n := tag.RowsAffected()
	if n > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE decks SET card_count = GREATEST(card_count - $1, 0) WHERE id = $2`,
			n, deckID); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

func (q *Queries) GetCard(ctx context.Context, id uuid.UUID) (Flashcard, error) {
	sqlstr, args, err := psql.Select(cardColumns...).From("cards").
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return Flashcard{}, err
	}
	var out Flashcard
	if err := pgxscan.Get(ctx, q.db, &out, sqlstr, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Flashcard{}, ErrNotFound
		}
		return Flashcard{}, err
	}
	return out, nil
}

func (q *Queries) ListCards(ctx context.Context, deckID uuid.UUID) ([]Flashcard, error) {
	sqlstr, args, err := psql.Select(cardColumns...).From("cards").
		Where(squirrel.Eq{"deck_id": deckID}).
		OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, err
	}
	var out []Flashcard
	if err := pgxscan.Select(ctx, q.db, &out, sqlstr, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// DueCards returns cards eligible for a learn session: never-reviewed
// cards plus those whose due date has passed, oldest due first.
func (q *Queries) DueCards(ctx context.Context, deckID uuid.UUID, now time.Time, limit int) ([]Flashcard, error) {
	sqlstr, args, err := psql.Select(cardColumns...).From("cards").
		Where(squirrel.Eq{"deck_id": deckID}).
		Where(squirrel.Or{
			squirrel.Eq{"due_date": nil},
			squirrel.LtOrEq{"due_date": now},
		}).
		OrderBy("due_date ASC NULLS FIRST").
		Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, err
	}
	var out []Flashcard
	if err := pgxscan.Select(ctx, q.db, &out, sqlstr, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queries) UpdateCardScheduling(ctx context.Context, id uuid.UUID, s srs.Scheduling) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE cards SET due_date = $1, review_interval = $2, ease_factor = $3 WHERE id = $4`,
		s.Due, s.Interval, s.Ease, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ScheduleBreakdown buckets a deck's cards by the day they come due;
// already-due cards (including never-reviewed ones) land in "due".
func (q *Queries) ScheduleBreakdown(ctx context.Context, deckID uuid.UUID, now time.Time) (map[string]int, error) {
	rows, err := q.db.Query(ctx,
		`SELECT CASE WHEN due_date IS NULL OR due_date <= $2 THEN 'due'
		             ELSE to_char(due_date::date, 'YYYY-MM-DD') END AS day,
		        count(*) AS n
		 FROM cards WHERE deck_id = $1 GROUP BY 1`,
		deckID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	breakdown := map[string]int{}
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		breakdown[day] = n
	}
	return breakdown, rows.Err()
}

// AddStars atomically adds n stars to the user's profile, creating the
// profile row if needed, and returns the new total.
func (q *Queries) AddStars(ctx context.Context, userID string, n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("cannot add %d stars", n)
	}
	var total int
	err := q.db.QueryRow(ctx,
		`INSERT INTO profiles (user_id, stars) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET stars = profiles.stars + EXCLUDED.stars
		 RETURNING stars`,
		userID, n).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (q *Queries) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var out Profile
	err := pgxscan.Get(ctx, q.db, &out,
		`SELECT user_id, stars FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		if pgxscan.NotFound(err) {
			// Implicit empty profile; the row appears with the first star.
			return Profile{UserID: userID}, nil
		}
		return Profile{}, err
	}
	return out, nil
}
