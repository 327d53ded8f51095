package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultRemoteTimeout bounds every backing store call made by the Mutator.
const DefaultRemoteTimeout = 10 * time.Second

// Mutator applies local intents to the backing store and the Store.
//
// Creates are optimistic: a provisional record shows up immediately and is
// swapped for the durable one, or removed, once the call settles. Updates and
// deletes touch the Store only after the backing store confirms them.
type Mutator struct {
	store   *Store
	repo    Repository
	checker Checker
	journal SagaJournal
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time

	// owner identifies this Mutator on the saga claims it takes.
	owner string
}

type MutatorOption func(*Mutator)

func WithRemoteTimeout(d time.Duration) MutatorOption {
	return func(m *Mutator) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithJournal(j SagaJournal) MutatorOption {
	return func(m *Mutator) { m.journal = j }
}

func WithLogger(l zerolog.Logger) MutatorOption {
	return func(m *Mutator) { m.log = l }
}

func NewMutator(store *Store, repo Repository, checker Checker, opts ...MutatorOption) *Mutator {
	m := &Mutator{
		store:   store,
		repo:    repo,
		checker: checker,
		journal: NewMemoryJournal(),
		timeout: DefaultRemoteTimeout,
		log:     zerolog.Nop(),
		now:     time.Now,
		owner:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create books a new appointment. The caller's input is validated and, for
// consultations, checked against the Store before anything else happens.
func (m *Mutator) Create(ctx context.Context, in Appointment) (*Appointment, error) {
	a, err := m.prepare(in)
	if err != nil {
		return nil, err
	}
	return m.createOptimistic(ctx, a)
}

// createOptimistic checks the slot and shows a provisional record in one
// Store step, then asks the backing store for the durable one.
func (m *Mutator) createOptimistic(ctx context.Context, a Appointment) (*Appointment, error) {
	provisional := a
	provisional.ID = NewProvisionalID()
	provisional.CreatedAt = m.now()
	provisional.UpdatedAt = provisional.CreatedAt
	err := m.store.InsertIfFree(provisional, func(existing []Appointment) error {
		if a.ID != "" {
			// a replacement may already be in place from an earlier attempt
			existing = Exclude(existing, a.ID)
		}
		return m.checkSlot(a, existing)
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	created, err := m.repo.Create(callCtx, a)
	if err != nil {
		m.store.Remove(provisional.ID)
		m.log.Warn().Err(err).Str("provisional_id", provisional.ID).
			Str("date", a.Date).Str("start_time", a.StartTime).
			Msg("create failed, optimistic record rolled back")
		return nil, remote("create appointment", err)
	}

	m.store.Replace(provisional.ID, *created)
	m.log.Debug().Str("provisional_id", provisional.ID).Str("id", created.ID).Msg("appointment created")
	return created, nil
}

// Update sends a partial update and applies the returned record.
func (m *Mutator) Update(ctx context.Context, id string, p Patch) (*Appointment, error) {
	if IsProvisional(id) {
		return nil, invalid("appointment %s is still being created", id)
	}
	if p.Empty() {
		return nil, invalid("nothing to update")
	}

	current, known := m.store.Get(id)
	if known {
		next, err := m.prepare(applyPatch(current, &p))
		if err != nil {
			return nil, err
		}
		if moved(current, next) || current.Type != next.Type || (!blocks(current) && blocks(next)) {
			if err := m.checkSlot(next, Exclude(m.store.Snapshot(), id)); err != nil {
				return nil, err
			}
			p.Date, p.StartTime, p.EndTime = &next.Date, &next.StartTime, &next.EndTime
		}
	} else if err := validatePatch(p); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	updated, err := m.repo.Update(callCtx, id, p)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			m.store.Remove(id)
			return nil, err
		}
		if errors.Is(err, ErrInvalidAppointment) {
			return nil, err
		}
		return nil, remote("update appointment", err)
	}

	m.store.Upsert(*updated)
	return updated, nil
}

// SetStatus changes only the status code.
func (m *Mutator) SetStatus(ctx context.Context, id string, code StatusCode) (*Appointment, error) {
	if !code.Valid() {
		return nil, invalid("unknown status code %q", code)
	}
	return m.Update(ctx, id, Patch{StatusCode: &code})
}

// Delete removes the appointment remotely, then locally. A record the
// backing store no longer has counts as deleted.
func (m *Mutator) Delete(ctx context.Context, id string) error {
	if IsProvisional(id) {
		return invalid("appointment %s is still being created", id)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.repo.Delete(callCtx, id); err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return remote("delete appointment", err)
	}

	m.store.Remove(id)
	return nil
}

// prepare validates caller input and fills derived fields.
func (m *Mutator) prepare(in Appointment) (Appointment, error) {
	a := in
	a.ID = ""
	a.CreatedAt = time.Time{}
	a.UpdatedAt = time.Time{}

	if a.Type == "" {
		a.Type = TypeConsultation
	}
	if a.StatusCode == "" {
		a.StatusCode = StatusUnconfirmed
	}
	if !a.StatusCode.Valid() {
		return Appointment{}, invalid("unknown status code %q", a.StatusCode)
	}
	if a.Date == "" || a.StartTime == "" {
		return Appointment{}, invalid("date and start time are required")
	}
	if _, err := ParseDate(a.Date, m.checker.location()); err != nil {
		return Appointment{}, invalid("%v", err)
	}
	start, err := ParseClock(a.StartTime)
	if err != nil {
		return Appointment{}, invalid("%v", err)
	}
	a.StartTime = FormatClock(start)

	if a.Type == TypeConsultation {
		if a.EndTime, err = EndFor(a.StartTime); err != nil {
			return Appointment{}, invalid("%v", err)
		}
		return a, nil
	}

	end, err := ParseClock(a.EndTime)
	if err != nil {
		return Appointment{}, invalid("end time: %v", err)
	}
	if start >= end {
		return Appointment{}, invalid("start time %s is not before end time %s", a.StartTime, a.EndTime)
	}
	a.EndTime = FormatClock(end)
	return a, nil
}

// checkSlot enforces the booking window and overlap rules for
// consultations. Other types are not checked.
func (m *Mutator) checkSlot(a Appointment, existing []Appointment) error {
	if a.Type != TypeConsultation {
		return nil
	}
	ok, err := m.checker.Bookable(a.Date)
	if err != nil {
		return invalid("%v", err)
	}
	if !ok {
		return invalid("%s is a weekend or past date", a.Date)
	}
	if !m.checker.InWindow(a.StartTime) {
		return invalid("%s is outside bookable hours", a.StartTime)
	}

	conflicts, err := m.checker.Conflicts(a.Date, a.StartTime, existing)
	if err != nil {
		return invalid("%v", err)
	}
	if len(conflicts) > 0 {
		c := conflicts[0]
		return &ConflictError{Date: a.Date, StartTime: a.StartTime, With: c}
	}
	return nil
}

// ConflictError names the booking a requested slot collides with.
type ConflictError struct {
	Date      string
	StartTime string
	With      Appointment
}

func (e *ConflictError) Error() string {
	return "slot " + e.Date + " " + e.StartTime + " overlaps appointment " +
		e.With.ID + " [" + e.With.StartTime + "," + e.With.EndTime + ")"
}

func (e *ConflictError) Unwrap() error {
	return ErrSlotUnavailable
}

func applyPatch(a Appointment, p *Patch) Appointment {
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.StartTime != nil {
		a.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		a.EndTime = *p.EndTime
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Subtype != nil {
		a.Subtype = *p.Subtype
	}
	if p.StatusCode != nil {
		a.StatusCode = *p.StatusCode
	}
	if p.PatientID != nil {
		a.PatientID = *p.PatientID
	}
	if p.PatientName != nil {
		a.PatientName = *p.PatientName
	}
	if p.AssignedUserID != nil {
		a.AssignedUserID = *p.AssignedUserID
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	return a
}

func moved(a, b Appointment) bool {
	return a.Date != b.Date || a.StartTime != b.StartTime
}

// validatePatch checks field formats when there is no local record to
// validate the merged result against.
func validatePatch(p Patch) error {
	if p.StatusCode != nil && !p.StatusCode.Valid() {
		return invalid("unknown status code %q", *p.StatusCode)
	}
	if p.Date != nil {
		if _, err := ParseDate(*p.Date, time.UTC); err != nil {
			return invalid("%v", err)
		}
	}
	for _, t := range []*string{p.StartTime, p.EndTime} {
		if t == nil {
			continue
		}
		if _, err := ParseClock(*t); err != nil {
			return invalid("%v", err)
		}
	}
	return nil
}
