package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/appointment-sync/internal/api"
	"github.com/hackgods/appointment-sync/internal/appointment"
	"github.com/hackgods/appointment-sync/internal/config"
	"github.com/hackgods/appointment-sync/internal/db"
	"github.com/hackgods/appointment-sync/internal/directory"
	"github.com/hackgods/appointment-sync/internal/logging"
	"github.com/hackgods/appointment-sync/internal/realtime"
	redisclient "github.com/hackgods/appointment-sync/internal/redis"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("prod", "scheduler-agent")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, "scheduler-agent")
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).
		Str("realtime", cfg.RealtimeSource).Msg("scheduler-agent starting up")

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

	// Connect Redis
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
		appointment.WithLogger(log.With().Str("part", "mutator").Logger()),
	)
	refresher := appointment.NewRefresher(store, repo, cfg.SyncDaysBack, cfg.SyncDaysForward,
		cfg.Location(), cfg.RemoteTimeout, log.With().Str("part", "refresh").Logger())

	names := directory.NewCached(directory.NewPgDirectory(pgPool), rdb, cfg.UserNameTTL,
		log.With().Str("part", "directory").Logger())
	engine := realtime.NewEngine(store,
		realtime.WithNameResolver(names),
		realtime.WithLookupTimeout(cfg.LookupTimeout),
		realtime.WithResync(refresher.Refresh),
		realtime.WithLogger(log.With().Str("part", "realtime").Logger()),
	)

	if err := refresher.Refresh(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("initial store load failed")
	}

	feed := newFeed(cfg, repo, log)

	scheduler := cron.New(cron.WithLocation(cfg.Location()))
	if _, err := scheduler.AddFunc(cfg.RefreshSchedule, func() {
		if err := refresher.Refresh(rootCtx); err != nil {
			log.Error().Err(err).Msg("scheduled refresh failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.RefreshSchedule).Msg("invalid REFRESH_SCHEDULE")
	}

	router := api.NewRouter(api.RouterConfig{
		Store:   store,
		Mutator: mutator,
		Checker: checker,
		Critical: map[string]api.Check{
			"postgres": pgPool.Ping,
		},
		Optional: map[string]api.Check{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Logger:  log.With().Str("part", "http").Logger(),
		Env:     cfg.Env,
		Version: version,
	})

	corsOpts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
	}
	if cfg.IsDev() {
		corsOpts.AllowedOrigins = []string{"*"}
	} else if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOpts.AllowedOrigins = []string{origins}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           cors.New(corsOpts).Handler(router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		err := engine.Run(ctx, feed)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("scheduler-agent stopped with error")
	}

	log.Info().Msg("shutting down scheduler-agent")
}

func newFeed(cfg config.Config, records realtime.RecordLoader, log zerolog.Logger) realtime.Feed {
	feedLog := log.With().Str("part", "feed").Logger()
	if cfg.RealtimeSource == config.RealtimeWebsocket {
		return realtime.NewWSFeed(cfg.RealtimeURL, cfg.RealtimeToken, cfg.ReconnectEvery, feedLog)
	}
	return realtime.NewPgFeed(func(ctx context.Context) (*pgx.Conn, error) {
		return db.ConnectListener(ctx, cfg.PostgresDSN)
	}, cfg.NotifyChannel, records, cfg.ReconnectEvery, feedLog)
}
