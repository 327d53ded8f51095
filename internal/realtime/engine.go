package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-sync/internal/appointment"
)

const defaultLookupTimeout = 2 * time.Second

// NameResolver returns the display name of a staff member.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Feed delivers notifications in the order the connection received them.
// Listen blocks until ctx is done or the feed cannot continue. After every
// reconnect it calls resync, since notifications may have been missed.
type Feed interface {
	Listen(ctx context.Context, out chan<- Notification, resync func()) error
}

// Engine merges remote notifications into a Store.
type Engine struct {
	store         *appointment.Store
	names         NameResolver
	lookupTimeout time.Duration
	resync        func(ctx context.Context) error
	log           zerolog.Logger
}

type Option func(*Engine)

func WithNameResolver(r NameResolver) Option {
	return func(e *Engine) { e.names = r }
}

func WithLookupTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lookupTimeout = d
		}
	}
}

// WithResync sets the full refresh run when a feed reports a gap.
func WithResync(fn func(ctx context.Context) error) Option {
	return func(e *Engine) { e.resync = fn }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(store *appointment.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		lookupTimeout: defaultLookupTimeout,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply merges one notification. Applying the same notification twice
// leaves the store as the first application did.
func (e *Engine) Apply(ctx context.Context, n Notification) error {
	id := n.RecordID()
	if id == "" {
		return fmt.Errorf("%w: %s without id", ErrMalformed, n.Op())
	}
	if appointment.IsProvisional(id) {
		// Provisional ids never leave this client; a remote event carrying
		// one is not ours to apply.
		return fmt.Errorf("%w: %s for provisional id %s", ErrMalformed, n.Op(), id)
	}

	switch n := n.(type) {
	case Insert:
		rec := e.resolve(ctx, n.New)
		if !e.store.InsertIfAbsent(rec) {
			e.log.Debug().Str("id", id).Msg("insert for known record ignored")
		}
	case Update:
		e.store.Upsert(e.resolve(ctx, n.New))
	case Delete:
		e.store.Remove(id)
	default:
		return fmt.Errorf("%w: unsupported notification %T", ErrMalformed, n)
	}
	return nil
}

// resolve fills the assigned user's display name. A failed lookup leaves
// the name empty.
func (e *Engine) resolve(ctx context.Context, a appointment.Appointment) appointment.Appointment {
	if a.AssignedUserID == "" {
		a.AssignedUserName = ""
		return a
	}
	if a.AssignedUserName != "" || e.names == nil {
		return a
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	name, err := e.names.DisplayName(lookupCtx, a.AssignedUserID)
	if err != nil {
		e.log.Debug().Err(err).Str("user_id", a.AssignedUserID).Msg("display name lookup failed")
		return a
	}
	a.AssignedUserName = name
	return a
}

// Run applies notifications from feed until ctx is cancelled or the feed
// fails.
func (e *Engine) Run(ctx context.Context, feed Feed) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan Notification, 64)
	gaps := make(chan struct{}, 1)
	done := make(chan error, 1)

	go func() {
		done <- feed.Listen(ctx, events, func() {
			select {
			case gaps <- struct{}{}:
			default:
			}
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			e.drain(ctx, events)
			if err == nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("realtime feed: %w", err)
		case <-gaps:
			e.runResync(ctx)
		case n := <-events:
			if err := e.Apply(ctx, n); err != nil {
				e.log.Warn().Err(err).Str("op", string(n.Op())).Msg("notification dropped")
				continue
			}
			e.log.Debug().Str("op", string(n.Op())).Str("id", n.RecordID()).Msg("notification applied")
		}
	}
}

// drain applies whatever the feed queued before it stopped.
func (e *Engine) drain(ctx context.Context, events <-chan Notification) {
	for {
		select {
		case n := <-events:
			if err := e.Apply(ctx, n); err != nil {
				e.log.Warn().Err(err).Str("op", string(n.Op())).Msg("notification dropped")
			}
		default:
			return
		}
	}
}

func (e *Engine) runResync(ctx context.Context) {
	if e.resync == nil {
		return
	}
	if err := e.resync(ctx); err != nil {
		e.log.Error().Err(err).Msg("resync after feed gap failed")
	}
}
