// Package realtime folds change notifications from other actors into the
// local appointment store.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hackgods/appointment-sync/internal/appointment"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

var ErrMalformed = errors.New("malformed notification")

// Notification is one of Insert, Update or Delete.
type Notification interface {
	Op() Op
	// RecordID is the id of the record the notification is about.
	RecordID() string
	notification()
}

type Insert struct {
	New appointment.Appointment
}

type Update struct {
	New appointment.Appointment
	Old appointment.Appointment
}

type Delete struct {
	Old appointment.Appointment
}

func (Insert) Op() Op { return OpInsert }
func (Update) Op() Op { return OpUpdate }
func (Delete) Op() Op { return OpDelete }

func (n Insert) RecordID() string { return n.New.ID }
func (n Update) RecordID() string { return n.New.ID }
func (n Delete) RecordID() string { return n.Old.ID }

func (Insert) notification() {}
func (Update) notification() {}
func (Delete) notification() {}

// envelope is the wire shape shared by the Postgres trigger and the hosted
// realtime endpoint.
type envelope struct {
	Type      string                   `json:"type"`
	EventType string                   `json:"eventType"`
	New       *appointment.Appointment `json:"new"`
	Old       *appointment.Appointment `json:"old"`
}

// Decode parses one notification off the wire.
func Decode(data []byte) (Notification, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	op := env.Type
	if op == "" {
		op = env.EventType
	}

	switch Op(strings.ToUpper(op)) {
	case OpInsert:
		if env.New == nil || env.New.ID == "" {
			return nil, fmt.Errorf("%w: INSERT without new record", ErrMalformed)
		}
		return Insert{New: appointment.Normalize(*env.New)}, nil
	case OpUpdate:
		if env.New == nil || env.New.ID == "" {
			return nil, fmt.Errorf("%w: UPDATE without new record", ErrMalformed)
		}
		n := Update{New: appointment.Normalize(*env.New)}
		if env.Old != nil {
			n.Old = *env.Old
		}
		return n, nil
	case OpDelete:
		if env.Old == nil || env.Old.ID == "" {
			return nil, fmt.Errorf("%w: DELETE without old record", ErrMalformed)
		}
		return Delete{Old: *env.Old}, nil
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrMalformed, op)
	}
}
