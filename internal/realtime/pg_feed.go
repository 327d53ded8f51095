package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hackgods/appointment-sync/internal/appointment"
)

const defaultLoadTimeout = 5 * time.Second

// RecordLoader reads the current row for an id.
type RecordLoader interface {
	Get(ctx context.Context, id string) (*appointment.Appointment, error)
}

// PgFeed listens on a Postgres NOTIFY channel fed by a trigger on the
// appointments table. The trigger sends ids only; inserts and updates are
// filled in from records before they are delivered.
type PgFeed struct {
	connect     func(ctx context.Context) (*pgx.Conn, error)
	channel     string
	records     RecordLoader
	loadTimeout time.Duration
	limiter     *rate.Limiter
	log         zerolog.Logger
}

// NewPgFeed reconnects at most once every reconnectEvery.
func NewPgFeed(connect func(ctx context.Context) (*pgx.Conn, error), channel string, records RecordLoader, reconnectEvery time.Duration, log zerolog.Logger) *PgFeed {
	return &PgFeed{
		connect:     connect,
		channel:     channel,
		records:     records,
		loadTimeout: defaultLoadTimeout,
		limiter:     rate.NewLimiter(rate.Every(reconnectEvery), 1),
		log:         log,
	}
}

func (f *PgFeed) Listen(ctx context.Context, out chan<- Notification, resync func()) error {
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil
		}

		err := f.session(ctx, out, resync)
		if ctx.Err() != nil {
			return nil
		}
		f.log.Warn().Err(err).Str("channel", f.channel).Msg("notification listener dropped, reconnecting")
	}
}

func (f *PgFeed) session(ctx context.Context, out chan<- Notification, resync func()) error {
	conn, err := f.connect(ctx)
	if err != nil {
		return fmt.Errorf("connect listener: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", f.channel, err)
	}
	f.log.Info().Str("channel", f.channel).Msg("listening for appointment changes")

	// Anything emitted while we were not listening is lost.
	resync()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		ev, err := Decode([]byte(n.Payload))
		if err != nil {
			f.log.Warn().Err(err).Msg("skipping notification")
			continue
		}
		ev, ok, err := f.hydrate(ctx, ev)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// hydrate replaces the id-only record of an insert or update with the
// current row. ok is false when the row is already gone again; its delete
// notification is still queued behind this one.
func (f *PgFeed) hydrate(ctx context.Context, n Notification) (Notification, bool, error) {
	switch n.(type) {
	case Insert, Update:
	default:
		return n, true, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, f.loadTimeout)
	defer cancel()

	a, err := f.records.Get(loadCtx, n.RecordID())
	if errors.Is(err, appointment.ErrAppointmentNotFound) {
		f.log.Debug().Str("id", n.RecordID()).Str("op", string(n.Op())).Msg("row gone before load, skipping")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", n.RecordID(), err)
	}

	switch v := n.(type) {
	case Insert:
		v.New = *a
		return v, true, nil
	case Update:
		v.New = *a
		return v, true, nil
	}
	return n, true, nil
}
