package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/open-spaced-repetition/go-fsrs/v3"
	"github.com/rs/zerolog/log"

	"github.com/achraflolman/studybox-server/internal/srs"
)

const importBatchSize = 500

// ImportLegacyVault imports cards from a SQLite export produced by an
// FSRS-based study app into a new deck for the given user, converting the
// FSRS card state into our SM-2 fields. Cards whose state can't be parsed
// are skipped and returned by question.
func ImportLegacyVault(ctx context.Context, queries *Queries, sqliteFilename, ownerID, deckName string,
	now time.Time) (int, []string, error) {

	sqliteDB, err := sql.Open("sqlite3", sqliteFilename)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer sqliteDB.Close()

	deck, err := queries.CreateDeck(ctx, Deck{OwnerID: ownerID, Name: deckName, Subject: "imported"})
	if err != nil {
		return 0, nil, err
	}

	rows, err := sqliteDB.QueryContext(ctx,
		`SELECT question, answer, fsrs_card FROM cards`)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to fetch cards from SQLite: %w", err)
	}
	defer rows.Close()

	var (
		batch         []Flashcard
		totalInserted int
		skipped       []string
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := queries.AddCards(ctx, deck.ID, ownerID, batch, now); err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
		totalInserted += len(batch)
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		var question, answer string
		var fsrsCardJSON sql.NullString
		if err := rows.Scan(&question, &answer, &fsrsCardJSON); err != nil {
			return 0, nil, fmt.Errorf("failed to scan card: %w", err)
		}
		card := Flashcard{Question: question, Answer: answer}
		if fsrsCardJSON.Valid && fsrsCardJSON.String != "" {
			fcard := fsrs.Card{}
			if err := json.Unmarshal([]byte(fsrsCardJSON.String), &fcard); err != nil {
				log.Info().Str("question", question).Err(err).
					Msg("did not import scheduling, bad fsrs state")
				skipped = append(skipped, question)
				continue
			}
			if sched, ok := convertFsrsToSM2(fcard, now); ok {
				card.SetScheduling(sched)
			}
		}
		batch = append(batch, card)
		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return 0, nil, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}
	if err := flush(); err != nil {
		return 0, nil, err
	}

	log.Info().Str("deck", deck.ID.String()).Int("imported", totalInserted).
		Int("skipped", len(skipped)).Msg("legacy-vault-imported")
	return totalInserted, skipped, nil
}

// convertFsrsToSM2 maps FSRS card state onto SM-2 scheduling. The second
// return is false for cards that were never reviewed in the source app.
func convertFsrsToSM2(card fsrs.Card, now time.Time) (srs.Scheduling, bool) {
	if card.State == fsrs.New {
		return srs.Scheduling{}, false
	}
	interval := int(card.ScheduledDays)
	if interval < 1 {
		interval = 1
	}
	// FSRS difficulty runs 1 (easy) to 10 (hard). Map it linearly onto the
	// SM-2 ease range so hard cards start at the floor.
	ease := srs.MinEase + (10.0-card.Difficulty)/9.0*(srs.DefaultEase-srs.MinEase)
	if ease < srs.MinEase {
		ease = srs.MinEase
	}
	if ease > srs.DefaultEase {
		ease = srs.DefaultEase
	}
	due := card.Due
	if due.IsZero() {
		due = now
	}
	return srs.Scheduling{Due: due, Interval: interval, Ease: ease}, true
}
