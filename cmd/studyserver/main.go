package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/justinas/alice"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/achraflolman/studybox-server/config"
	"github.com/achraflolman/studybox-server/internal/aiclient"
	"github.com/achraflolman/studybox-server/internal/reminders"
	"github.com/achraflolman/studybox-server/internal/stores"
	"github.com/achraflolman/studybox-server/internal/studyvault"
)

const GracefulShutdownTimeout = 10 * time.Second

// logNotifier is the delivery stand-in until a push channel is wired up;
// reminders land in the server log.
type logNotifier struct{}

func (logNotifier) Notify(userID, message string) {
	log.Info().Str("user", userID).Str("message", message).Msg("reminder-fired")
}

func main() {
	cfg := &config.Config{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		panic(err)
	}
	logLevel, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)
	log.Info().Interface("config", cfg).Msg("started-with-config")

	if cfg.RunMigrations {
		m, err := migrate.New(cfg.DBMigrationsPath, cfg.DBURI)
		if err != nil {
			log.Fatal().Err(err).Msg("migrations-new")
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatal().Err(err).Msg("migrations-up")
		}
		m.Close()
		log.Info().Msg("ran-migrations")
	}

	ctx := context.Background()
	dbPool, err := pgxpool.New(ctx, cfg.DBURI)
	if err != nil {
		log.Fatal().Err(err).Msg("db-connect")
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("db-ping")
	}

	queries := stores.New(dbPool)
	ai := aiclient.New(cfg.AIEndpoint, cfg.AIKey, cfg.AIModel)
	scheduler := reminders.NewScheduler(logNotifier{})
	vault := studyvault.NewServer(cfg, queries, ai, scheduler)

	chain := alice.New(RequestLogger, JWTAuth([]byte(cfg.SecretKey))).Then(newMux(vault))
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{cfg.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(chain)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}
	idleConnsClosed := make(chan struct{})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("got quit signal...")
		ctx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)

		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Msgf("HTTP server Shutdown: %v", err)
		}
		cancel()
		scheduler.Stop()
		close(idleConnsClosed)
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("")
	}
	<-idleConnsClosed
	log.Info().Msg("server gracefully shutting down")
}
