package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-sync/internal/appointment"
)

type fakeRepo struct {
	mu        sync.Mutex
	records   map[string]appointment.Appointment
	createErr error
}

func (r *fakeRepo) List(_ context.Context, rg appointment.Range) ([]appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range r.records {
		if a.Date >= rg.From && a.Date <= rg.To {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *fakeRepo) Create(_ context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	if existing, ok := r.records[a.ID]; ok {
		return &existing, nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	r.records[a.ID] = a
	return &a, nil
}

func (r *fakeRepo) Update(context.Context, string, appointment.Patch) (*appointment.Appointment, error) {
	return nil, errors.New("not used")
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

// nextWeekday returns the first Monday to Friday date after today.
func nextWeekday() string {
	d := time.Now().UTC().AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return appointment.FormatDate(d)
}

func newWorker(r *fakeRepo, journal *appointment.MemoryJournal, maxAttempts int) *worker {
	store := appointment.NewStore()
	checker := appointment.DefaultChecker()
	return &worker{
		journal:     journal,
		mutator:     appointment.NewMutator(store, r, checker, appointment.WithJournal(journal)),
		refresher:   appointment.NewRefresher(store, r, 1, 30, time.UTC, time.Second, zerolog.Nop()),
		maxAttempts: maxAttempts,
		log:         zerolog.Nop(),
	}
}

func deletedSaga(attempts int, updated time.Time) appointment.Saga {
	end, _ := appointment.EndFor("10:00")
	return appointment.Saga{
		ID:            uuid.NewString(),
		AppointmentID: uuid.NewString(),
		Target: appointment.Appointment{
			Date:       nextWeekday(),
			StartTime:  "10:00",
			EndTime:    end,
			Type:       appointment.TypeConsultation,
			StatusCode: appointment.StatusFirm,
			Notes:      "carried over",
		},
		Stage:     appointment.SagaDeleted,
		Attempts:  attempts,
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

func TestRunOnceResumesDeletedSaga(t *testing.T) {
	ctx := context.Background()
	r := &fakeRepo{records: map[string]appointment.Appointment{}}
	journal := appointment.NewMemoryJournal()
	s := deletedSaga(1, time.Now().Add(-time.Minute))
	require.NoError(t, journal.Begin(ctx, s))

	newWorker(r, journal, 5).runOnce(ctx)

	got, _ := journal.Get(s.ID)
	assert.Equal(t, appointment.SagaCreated, got.Stage)
	require.Len(t, r.records, 1)
	for _, a := range r.records {
		assert.Equal(t, "carried over", a.Notes)
	}
}

func TestRunOnceSkipsFreshSagas(t *testing.T) {
	ctx := context.Background()
	r := &fakeRepo{records: map[string]appointment.Appointment{}}
	journal := appointment.NewMemoryJournal()
	s := deletedSaga(1, time.Now())
	require.NoError(t, journal.Begin(ctx, s))

	newWorker(r, journal, 5).runOnce(ctx)

	got, _ := journal.Get(s.ID)
	assert.Equal(t, appointment.SagaDeleted, got.Stage)
	assert.Empty(t, r.records)
}

func TestRunOnceGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	r := &fakeRepo{records: map[string]appointment.Appointment{}, createErr: errors.New("db down")}
	journal := appointment.NewMemoryJournal()
	s := deletedSaga(3, time.Now().Add(-time.Minute))
	require.NoError(t, journal.Begin(ctx, s))

	newWorker(r, journal, 3).runOnce(ctx)

	got, _ := journal.Get(s.ID)
	assert.Equal(t, appointment.SagaFailed, got.Stage)

	pending, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunOnceAbortsStartedSagaWhoseOriginalIsOutsideWindow(t *testing.T) {
	ctx := context.Background()
	far := appointment.FormatDate(time.Now().UTC().AddDate(0, 0, 90))
	end, _ := appointment.EndFor("09:00")
	orig := appointment.Appointment{
		ID:         uuid.NewString(),
		Date:       far,
		StartTime:  "09:00",
		EndTime:    end,
		Type:       appointment.TypeConsultation,
		StatusCode: appointment.StatusFirm,
	}
	r := &fakeRepo{records: map[string]appointment.Appointment{orig.ID: orig}}
	journal := appointment.NewMemoryJournal()

	s := deletedSaga(0, time.Now().Add(-time.Minute))
	s.Stage = appointment.SagaStarted
	s.AppointmentID = orig.ID
	s.Original = orig
	require.NoError(t, journal.Begin(ctx, s))

	// the refresh window ends 30 days out, so only the backing store knows
	// the original still exists
	newWorker(r, journal, 5).runOnce(ctx)

	got, _ := journal.Get(s.ID)
	assert.Equal(t, appointment.SagaAborted, got.Stage)
	require.Len(t, r.records, 1)
	assert.Contains(t, r.records, orig.ID)
}

func TestRunOnceSkipsClaimedSaga(t *testing.T) {
	ctx := context.Background()
	r := &fakeRepo{records: map[string]appointment.Appointment{}}
	journal := appointment.NewMemoryJournal()
	s := deletedSaga(5, time.Now().Add(-time.Minute))
	s.Stage = appointment.SagaCreating
	s.Owner = "agent-1"
	s.LeaseUntil = time.Now().Add(time.Minute)
	require.NoError(t, journal.Begin(ctx, s))

	newWorker(r, journal, 3).runOnce(ctx)

	got, _ := journal.Get(s.ID)
	assert.Equal(t, appointment.SagaCreating, got.Stage)
	assert.Equal(t, "agent-1", got.Owner)
	assert.Empty(t, r.records)
}
