package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-sync/internal/appointment"
	"github.com/hackgods/appointment-sync/internal/config"
	"github.com/hackgods/appointment-sync/internal/db"
	"github.com/hackgods/appointment-sync/internal/logging"
	redisclient "github.com/hackgods/appointment-sync/internal/redis"
)

// Sagas younger than this may still be running in an agent.
const minSagaAge = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("prod", "saga-recovery")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, "saga-recovery")
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("saga-recovery starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	checker, err := appointment.NewChecker(cfg.DayStart, cfg.DayEnd, cfg.Location())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid booking window")
	}

	store := appointment.NewStore()
	repo := appointment.NewPgRepository(pgPool)
	journal := redisclient.NewSagaJournal(rdb, cfg.SagaTTL)
	mutator := appointment.NewMutator(store, repo, checker,
		appointment.WithRemoteTimeout(cfg.RemoteTimeout),
		appointment.WithJournal(journal),
		appointment.WithLogger(log),
	)
	refresher := appointment.NewRefresher(store, repo, cfg.SyncDaysBack, cfg.SyncDaysForward,
		cfg.Location(), cfg.RemoteTimeout, log)

	w := &worker{
		journal:     journal,
		mutator:     mutator,
		refresher:   refresher,
		maxAttempts: cfg.SagaMaxAttempts,
		log:         log,
	}

	// Run once at startup
	w.runOnce(rootCtx)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping saga-recovery")
			return
		case <-ticker.C:
			w.runOnce(rootCtx)
		}
	}
}

type worker struct {
	journal     appointment.SagaJournal
	mutator     *appointment.Mutator
	refresher   *appointment.Refresher
	maxAttempts int
	log         zerolog.Logger
}

func (w *worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()

	sagas, err := w.journal.Pending(runCtx)
	if err != nil {
		w.log.Error().Err(err).Msg("list pending sagas failed")
		return
	}
	if len(sagas) == 0 {
		return
	}

	// Conflict checks need a current view of the calendar.
	if err := w.refresher.Refresh(runCtx); err != nil {
		w.log.Error().Err(err).Msg("refresh before recovery failed")
		return
	}

	var resumed, flagged int
	for _, s := range sagas {
		if time.Since(s.UpdatedAt) < minSagaAge {
			continue
		}

		if s.Attempts >= w.maxAttempts {
			if err := w.mutator.GiveUp(runCtx, s, "gave up after "+s.LastError); err != nil {
				if !errors.Is(err, appointment.ErrSagaClaimed) && !errors.Is(err, appointment.ErrSagaStageMismatch) {
					w.log.Error().Err(err).Str("saga_id", s.ID).Msg("failed to flag saga")
				}
				continue
			}
			w.log.Error().Str("saga_id", s.ID).Str("appointment_id", s.AppointmentID).
				Str("date", s.Target.Date).Str("start_time", s.Target.StartTime).
				Msg("reschedule needs manual follow-up")
			flagged++
			continue
		}

		created, err := w.mutator.Resume(runCtx, s)
		if err != nil {
			if errors.Is(err, appointment.ErrSagaStageMismatch) || errors.Is(err, appointment.ErrSagaClaimed) {
				w.log.Debug().Str("saga_id", s.ID).Str("stage", string(s.Stage)).Msg("saga handled elsewhere")
				continue
			}
			w.log.Warn().Err(err).Str("saga_id", s.ID).Int("attempts", s.Attempts+1).Msg("resume failed")
			continue
		}
		if created != nil {
			w.log.Info().Str("saga_id", s.ID).Str("old_id", s.AppointmentID).Str("new_id", created.ID).
				Msg("reschedule completed")
			resumed++
		}
	}

	w.log.Info().Int("pending", len(sagas)).Int("resumed", resumed).Int("flagged", flagged).
		Dur("took", time.Since(start)).Msg("recovery run complete")
}
