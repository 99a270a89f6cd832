// studyimport loads a legacy WordVault-style SQLite card file into a new
// deck in the Postgres store.
package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/namsral/flag"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/achraflolman/studybox-server/internal/stores"
)

func main() {
	fs := flag.NewFlagSet("studyimport", flag.ExitOnError)
	dbURI := fs.String("db-uri", "", "postgres connection URI")
	file := fs.String("file", "", "path to the legacy SQLite vault file")
	owner := fs.String("owner", "", "user id to own the imported deck")
	deckName := fs.String("deck-name", "Imported vault", "name for the new deck")
	fs.Parse(os.Args[1:])

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *dbURI == "" || *file == "" || *owner == "" {
		log.Fatal().Msg("db-uri, file and owner are all required")
	}

	ctx := context.Background()
	dbPool, err := pgxpool.New(ctx, *dbURI)
	if err != nil {
		log.Fatal().Err(err).Msg("db-connect")
	}
	defer dbPool.Close()

	queries := stores.New(dbPool)
	n, skipped, err := stores.ImportLegacyVault(ctx, queries, *file, *owner, *deckName, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("import-failed")
	}
	for _, q := range skipped {
		log.Warn().Str("question", q).Msg("skipped-card")
	}
	log.Info().Int("imported", n).Int("skipped", len(skipped)).Msg("done")
}
