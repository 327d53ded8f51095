package appointment

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAppointment is returned before any remote call when the input
	// cannot describe a bookable appointment. No state changes.
	ErrInvalidAppointment = errors.New("invalid appointment")

	// ErrSlotUnavailable means the requested interval overlaps an existing
	// booking. Re-query free slots and retry.
	ErrSlotUnavailable = errors.New("slot is not available")

	// ErrRemote wraps backend and deadline failures. Retryable.
	ErrRemote = errors.New("backing store call failed")

	// ErrPartialReschedule means the old appointment was deleted but its
	// replacement could not be created.
	ErrPartialReschedule = errors.New("reschedule left the appointment deleted")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAppointment, fmt.Sprintf(format, args...))
}

func remote(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRemote, op, err)
}

// RescheduleError reports a reschedule that stopped between its two steps.
// The saga stays in the journal so it can be resumed or followed up.
type RescheduleError struct {
	SagaID        string
	AppointmentID string
	Err           error
}

func (e *RescheduleError) Error() string {
	return fmt.Sprintf("reschedule %s (saga %s): appointment deleted, replacement not created: %v",
		e.AppointmentID, e.SagaID, e.Err)
}

func (e *RescheduleError) Unwrap() []error {
	return []error{ErrPartialReschedule, e.Err}
}
