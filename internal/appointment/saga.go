package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SagaStage records how far a reschedule got.
type SagaStage string

const (
	SagaStarted  SagaStage = "started"  // nothing changed yet
	SagaDeleted  SagaStage = "deleted"  // old record gone, replacement pending
	SagaCreating SagaStage = "creating" // Owner is creating the replacement until LeaseUntil
	SagaCreated  SagaStage = "created"  // done
	SagaAborted  SagaStage = "aborted"  // delete failed, nothing changed
	SagaFailed   SagaStage = "failed"   // gave up recreating, needs manual follow-up
)

var (
	ErrSagaStageMismatch = errors.New("saga is not in the expected stage")
	ErrSagaClaimed       = errors.New("saga is claimed by another worker")
)

// Saga is the journal entry for one reschedule. Target holds the exact
// pre-delete fields with only the date and times moved.
//
// Rev grows by one with every transition; journals compare it together with
// the stage so two writers holding the same copy cannot both advance it.
type Saga struct {
	ID            string      `json:"id"`
	AppointmentID string      `json:"appointment_id"`
	Original      Appointment `json:"original"`
	Target        Appointment `json:"target"`
	Stage         SagaStage   `json:"stage"`
	Rev           int         `json:"rev"`
	NewID         string      `json:"new_id,omitempty"`
	Owner         string      `json:"owner,omitempty"`
	LeaseUntil    time.Time   `json:"lease_until"`
	Attempts      int         `json:"attempts"`
	LastError     string      `json:"last_error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ReplacementID is the id the replacement record is created with. It is
// derived from the saga so a repeated create finds the earlier one.
func (s Saga) ReplacementID() string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("reschedule:"+s.ID)).String()
}

// SagaJournal persists saga transitions so a crash between the two steps
// can be found and finished.
type SagaJournal interface {
	Begin(ctx context.Context, s Saga) error
	// Advance stores s only if the journal still has it at stage from and
	// revision s.Rev-1. Otherwise it returns ErrSagaStageMismatch.
	Advance(ctx context.Context, s Saga, from SagaStage) error
	// Pending lists sagas in the started, deleted or creating stage.
	Pending(ctx context.Context) ([]Saga, error)
}

// Reschedule moves an appointment to date/start as a delete followed by a
// create. A failure after the delete returns a *RescheduleError.
func (m *Mutator) Reschedule(ctx context.Context, id, date, start string) (*Appointment, error) {
	if IsProvisional(id) {
		return nil, invalid("appointment %s is still being created", id)
	}
	orig, ok := m.store.Get(id)
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	target := orig
	target.Date = date
	target.StartTime = start
	if orig.Type != TypeConsultation {
		end, err := shiftEnd(orig, start)
		if err != nil {
			return nil, err
		}
		target.EndTime = end
	}
	target, err := m.prepare(target)
	if err != nil {
		return nil, err
	}
	if err := m.checkSlot(target, Exclude(m.store.Snapshot(), id)); err != nil {
		return nil, err
	}

	now := m.now()
	saga := Saga{
		ID:            uuid.NewString(),
		AppointmentID: id,
		Original:      orig,
		Target:        target,
		Stage:         SagaStarted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.journal.Begin(ctx, saga); err != nil {
		return nil, fmt.Errorf("record reschedule: %w", err)
	}

	if err := m.Delete(ctx, id); err != nil {
		saga.LastError = err.Error()
		m.advance(ctx, &saga, SagaAborted)
		return nil, fmt.Errorf("reschedule %s: %w", id, err)
	}
	m.advance(ctx, &saga, SagaDeleted)

	return m.finish(ctx, &saga)
}

// Resume retries a saga that stopped before it reached a final stage.
//
// A started saga is finished only once the backing store confirms the
// original is gone; if it is still there the delete never happened and the
// saga is aborted. A creating saga whose lease is still running belongs to
// another worker and is left alone.
func (m *Mutator) Resume(ctx context.Context, s Saga) (*Appointment, error) {
	switch s.Stage {
	case SagaDeleted:
		return m.finish(ctx, &s)
	case SagaCreating:
		if m.claimedElsewhere(s) {
			return nil, fmt.Errorf("%w: saga %s held by %s until %s", ErrSagaClaimed, s.ID, s.Owner, s.LeaseUntil.Format(time.RFC3339))
		}
		return m.finish(ctx, &s)
	case SagaStarted:
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		_, err := m.repo.Get(callCtx, s.AppointmentID)
		cancel()

		switch {
		case err == nil:
			s.LastError = "interrupted before delete"
			if err := m.transition(ctx, &s, SagaAborted); err != nil {
				return nil, fmt.Errorf("saga %s: %w", s.ID, err)
			}
			return nil, nil
		case errors.Is(err, ErrAppointmentNotFound):
			m.store.Remove(s.AppointmentID)
			if err := m.transition(ctx, &s, SagaDeleted); err != nil {
				return nil, fmt.Errorf("saga %s: %w", s.ID, err)
			}
			return m.finish(ctx, &s)
		default:
			return nil, remote("look up rescheduled appointment", err)
		}
	default:
		return nil, fmt.Errorf("%w: saga %s is %s", ErrSagaStageMismatch, s.ID, s.Stage)
	}
}

// GiveUp marks a saga for manual follow-up.
func (m *Mutator) GiveUp(ctx context.Context, s Saga, reason string) error {
	if m.claimedElsewhere(s) {
		return fmt.Errorf("%w: saga %s", ErrSagaClaimed, s.ID)
	}
	s.LastError = reason
	s.Owner, s.LeaseUntil = "", time.Time{}
	return m.transition(ctx, &s, SagaFailed)
}

// finish claims the saga, then creates the replacement. Only the claim
// holder calls the backing store.
func (m *Mutator) finish(ctx context.Context, s *Saga) (*Appointment, error) {
	s.Attempts++
	s.Owner = m.owner
	s.LeaseUntil = m.now().Add(m.lease())
	if err := m.transition(ctx, s, SagaCreating); err != nil {
		m.log.Warn().Err(err).Str("saga_id", s.ID).Msg("could not claim saga")
		return nil, &RescheduleError{SagaID: s.ID, AppointmentID: s.AppointmentID, Err: fmt.Errorf("claim saga: %w", err)}
	}

	target := s.Target
	target.ID = s.ReplacementID()
	created, err := m.createOptimistic(ctx, target)

	s.Owner, s.LeaseUntil = "", time.Time{}
	if err != nil {
		s.LastError = err.Error()
		m.advance(ctx, s, SagaDeleted)
		m.log.Error().Err(err).Str("saga_id", s.ID).Str("appointment_id", s.AppointmentID).
			Int("attempts", s.Attempts).Msg("reschedule left appointment deleted")
		return nil, &RescheduleError{SagaID: s.ID, AppointmentID: s.AppointmentID, Err: err}
	}

	s.NewID = created.ID
	s.LastError = ""
	m.advance(ctx, s, SagaCreated)
	return created, nil
}

// lease is how long a claim lasts. It outlives one create call.
func (m *Mutator) lease() time.Duration {
	return 2 * m.timeout
}

func (m *Mutator) claimedElsewhere(s Saga) bool {
	return s.Stage == SagaCreating && s.Owner != m.owner && m.now().Before(s.LeaseUntil)
}

// transition moves the saga to stage if the journal still holds the copy s
// was read from. s is left unchanged on failure.
func (m *Mutator) transition(ctx context.Context, s *Saga, stage SagaStage) error {
	next := *s
	next.Stage = stage
	next.Rev++
	next.UpdatedAt = m.now()
	if err := m.journal.Advance(ctx, next, s.Stage); err != nil {
		return err
	}
	*s = next
	return nil
}

// advance is transition for steps whose outcome already happened. Journal
// failures are logged and the caller gets the step's own outcome.
func (m *Mutator) advance(ctx context.Context, s *Saga, stage SagaStage) {
	from := s.Stage
	if err := m.transition(ctx, s, stage); err != nil {
		m.log.Error().Err(err).Str("saga_id", s.ID).Str("from", string(from)).
			Str("to", string(stage)).Msg("failed to record saga transition")
	}
}

// shiftEnd keeps the original duration for types with a free end time.
func shiftEnd(a Appointment, start string) (string, error) {
	s0, err := ParseClock(a.StartTime)
	if err != nil {
		return "", invalid("%v", err)
	}
	e0, err := ParseClock(a.EndTime)
	if err != nil {
		return "", invalid("%v", err)
	}
	s1, err := ParseClock(start)
	if err != nil {
		return "", invalid("%v", err)
	}
	e1 := s1 + (e0 - s0)
	if e1 > 24*60 {
		return "", invalid("moved appointment would run past midnight")
	}
	return FormatClock(e1), nil
}

// MemoryJournal keeps sagas for the life of the process.
type MemoryJournal struct {
	mu    sync.Mutex
	sagas map[string]Saga
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{sagas: make(map[string]Saga)}
}

func (j *MemoryJournal) Begin(_ context.Context, s Saga) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.sagas[s.ID]; ok {
		return fmt.Errorf("saga %s already recorded", s.ID)
	}
	j.sagas[s.ID] = s
	return nil
}

func (j *MemoryJournal) Advance(_ context.Context, s Saga, from SagaStage) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	cur, ok := j.sagas[s.ID]
	if !ok || cur.Stage != from || cur.Rev != s.Rev-1 {
		return ErrSagaStageMismatch
	}
	j.sagas[s.ID] = s
	return nil
}

func (j *MemoryJournal) Pending(_ context.Context) ([]Saga, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Saga
	for _, s := range j.sagas {
		switch s.Stage {
		case SagaStarted, SagaDeleted, SagaCreating:
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

// Get returns the saga with id.
func (j *MemoryJournal) Get(id string) (Saga, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	s, ok := j.sagas[id]
	return s, ok
}
