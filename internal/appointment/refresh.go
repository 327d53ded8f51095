package appointment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Refresher reloads the sync window from the backing store into the Store.
// It corrects whatever the realtime feed may have missed.
type Refresher struct {
	mu          sync.Mutex
	store       *Store
	repo        Repository
	daysBack    int
	daysForward int
	loc         *time.Location
	timeout     time.Duration
	log         zerolog.Logger
	now         func() time.Time
}

func NewRefresher(store *Store, repo Repository, daysBack, daysForward int, loc *time.Location, timeout time.Duration, log zerolog.Logger) *Refresher {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &Refresher{
		store:       store,
		repo:        repo,
		daysBack:    daysBack,
		daysForward: daysForward,
		loc:         loc,
		timeout:     timeout,
		log:         log,
		now:         time.Now,
	}
}

// Window returns the date range currently kept in the Store.
func (r *Refresher) Window() Range {
	today := r.now().In(r.loc)
	return Range{
		From: FormatDate(today.AddDate(0, 0, -r.daysBack)),
		To:   FormatDate(today.AddDate(0, 0, r.daysForward)),
	}
}

// Refresh lists the window and resets the Store to it. Records the Mutator or
// the realtime engine changed while the listing was in flight are left alone.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	w := r.Window()
	since := r.store.Version()
	records, err := r.repo.List(ctx, w)
	if err != nil {
		return fmt.Errorf("refresh %s..%s: %w", w.From, w.To, err)
	}

	r.store.Reset(records, since)
	r.log.Info().Str("from", w.From).Str("to", w.To).Int("records", len(records)).
		Dur("took", time.Since(start)).Msg("store refreshed")
	return nil
}
