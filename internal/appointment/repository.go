package appointment

import (
	"context"
	"errors"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Range selects appointments with From <= date <= To. An empty To means a
// single day.
type Range struct {
	From string
	To   string
}

// Repository is the persistence boundary the client consults. Reads may come
// back in any order; the store sorts regardless.
type Repository interface {
	List(ctx context.Context, r Range) ([]Appointment, error)
	// Get returns ErrAppointmentNotFound when no record has id.
	Get(ctx context.Context, id string) (*Appointment, error)

	// Create returns the durable record. It keeps a.ID when that is a uuid
	// and assigns one otherwise; creating an id that already exists returns
	// the stored record unchanged. Timestamps on a are ignored.
	Create(ctx context.Context, a Appointment) (*Appointment, error)
	Update(ctx context.Context, id string, p Patch) (*Appointment, error)
	Delete(ctx context.Context, id string) error
}
