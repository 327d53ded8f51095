package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-sync/internal/appointment"
)

type stubRecords struct {
	rows map[string]appointment.Appointment
	err  error
}

func (s stubRecords) Get(_ context.Context, id string) (*appointment.Appointment, error) {
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.rows[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func TestPgFeedHydratesIDOnlyPayloads(t *testing.T) {
	ctx := context.Background()
	row := record("a1", "09:00")
	row.Notes = string(make([]byte, 10000))
	feed := NewPgFeed(nil, "appointment_changes", stubRecords{rows: map[string]appointment.Appointment{"a1": row}}, time.Second, zerolog.Nop())

	// the trigger's wire shape
	ev, err := Decode([]byte(`{"type":"UPDATE","new":{"id":"a1"},"old":{"id":"a1"}}`))
	require.NoError(t, err)

	got, ok, err := feed.hydrate(ctx, ev)
	require.NoError(t, err)
	require.True(t, ok)
	upd, isUpdate := got.(Update)
	require.True(t, isUpdate)
	assert.Equal(t, "09:00", upd.New.StartTime)
	assert.Len(t, upd.New.Notes, 10000)

	ev, err = Decode([]byte(`{"type":"INSERT","new":{"id":"gone"}}`))
	require.NoError(t, err)
	_, ok, err = feed.hydrate(ctx, ev)
	require.NoError(t, err)
	assert.False(t, ok)

	ev, err = Decode([]byte(`{"type":"DELETE","old":{"id":"gone"}}`))
	require.NoError(t, err)
	got, ok, err = feed.hydrate(ctx, ev)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Delete{Old: appointment.Appointment{ID: "gone"}}, got)
}

func TestPgFeedHydrateFailureEndsSession(t *testing.T) {
	feed := NewPgFeed(nil, "appointment_changes", stubRecords{err: errors.New("pool closed")}, time.Second, zerolog.Nop())

	_, _, err := feed.hydrate(context.Background(), Insert{New: appointment.Appointment{ID: "a1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load a1")
}
