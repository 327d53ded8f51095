package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fakeRepo is an in-memory Repository with switchable failures.
type fakeRepo struct {
	mu      sync.Mutex
	records map[string]Appointment
	calls   map[string]int

	createErr error
	updateErr error
	deleteErr error
	getErr    error

	// When set, Create waits for a value (or ctx) before answering.
	release chan struct{}
	// When set, List reads its result, signals listed, then waits on
	// listGate before returning it.
	listGate chan struct{}
	listed   chan struct{}
	// When set, Create uses this id instead of a fresh one.
	nextID string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]Appointment{}, calls: map[string]int{}}
}

func (r *fakeRepo) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *fakeRepo) setCreateErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createErr = err
}

func (r *fakeRepo) List(ctx context.Context, rg Range) ([]Appointment, error) {
	r.mu.Lock()
	r.calls["list"]++

	to := rg.To
	if to == "" {
		to = rg.From
	}
	var out []Appointment
	for _, a := range r.records {
		if a.Date >= rg.From && a.Date <= to {
			out = append(out, a)
		}
	}
	gate, listed := r.listGate, r.listed
	r.mu.Unlock()

	if gate != nil {
		if listed != nil {
			close(listed)
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["get"]++

	if r.getErr != nil {
		return nil, r.getErr
	}
	a, ok := r.records[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *fakeRepo) Create(ctx context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	r.calls["create"]++
	release := r.release
	r.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return nil, r.createErr
	}
	if existing, ok := r.records[a.ID]; ok && a.ID != "" {
		return &existing, nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if r.nextID != "" {
		a.ID = r.nextID
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	if a.AssignedUserID != "" {
		a.AssignedUserName = "Dr. " + a.AssignedUserID
	}
	r.records[a.ID] = a
	return &a, nil
}

func (r *fakeRepo) Update(_ context.Context, id string, p Patch) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["update"]++

	if r.updateErr != nil {
		return nil, r.updateErr
	}
	a, ok := r.records[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a = applyPatch(a, &p)
	a.UpdatedAt = time.Now()
	r.records[id] = a
	return &a, nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["delete"]++

	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.records[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.records, id)
	return nil
}

// fixedChecker treats Friday 2025-03-07 as today.
func fixedChecker() Checker {
	c := DefaultChecker()
	c.Now = func() time.Time { return time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC) }
	return c
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }

func consultation(id, date, start string) Appointment {
	end, _ := EndFor(start)
	return Appointment{
		ID:         id,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
		Type:       TypeConsultation,
		StatusCode: StatusFirm,
	}
}
