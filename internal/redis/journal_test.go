package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-sync/internal/appointment"
)

// Runs against a real server; set TEST_REDIS_ADDR to enable.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), addr, "", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSagaJournalLifecycle(t *testing.T) {
	ctx := context.Background()
	client := testClient(t)
	j := NewSagaJournal(client, time.Minute)

	s := appointment.Saga{
		ID:            uuid.NewString(),
		AppointmentID: uuid.NewString(),
		Target:        appointment.Appointment{Date: "2025-03-11", StartTime: "09:00", EndTime: "09:30", Notes: "keep me"},
		Stage:         appointment.SagaStarted,
		CreatedAt:     time.Now().UTC(),
	}
	t.Cleanup(func() {
		client.Del(ctx, sagaKey(s.ID))
		client.SRem(ctx, pendingSetKey, s.ID)
	})

	require.NoError(t, j.Begin(ctx, s))
	require.Error(t, j.Begin(ctx, s))

	s.Stage = appointment.SagaDeleted
	s.Rev = 1
	require.NoError(t, j.Advance(ctx, s, appointment.SagaStarted))
	require.ErrorIs(t, j.Advance(ctx, s, appointment.SagaStarted), appointment.ErrSagaStageMismatch)

	// two workers holding the same copy: only one claim lands
	claim := s
	claim.Stage = appointment.SagaCreating
	claim.Rev = 2
	claim.Owner = "worker-a"
	require.NoError(t, j.Advance(ctx, claim, appointment.SagaDeleted))
	claim.Owner = "worker-b"
	require.ErrorIs(t, j.Advance(ctx, claim, appointment.SagaDeleted), appointment.ErrSagaStageMismatch)
	s = claim
	s.Owner = "worker-a"

	pending, err := j.Pending(ctx)
	require.NoError(t, err)
	found := false
	for _, p := range pending {
		if p.ID == s.ID {
			found = true
			assert.Equal(t, appointment.SagaCreating, p.Stage)
			assert.Equal(t, "worker-a", p.Owner)
			assert.Equal(t, "keep me", p.Target.Notes)
		}
	}
	assert.True(t, found)

	s.Stage = appointment.SagaCreated
	s.Rev = 3
	require.ErrorIs(t, j.Advance(ctx, s, appointment.SagaDeleted), appointment.ErrSagaStageMismatch)
	require.NoError(t, j.Advance(ctx, s, appointment.SagaCreating))

	member, err := client.SIsMember(ctx, pendingSetKey, s.ID).Result()
	require.NoError(t, err)
	assert.False(t, member)
}

func TestSagaJournalAdvanceUnknown(t *testing.T) {
	client := testClient(t)
	j := NewSagaJournal(client, time.Minute)

	err := j.Advance(context.Background(), appointment.Saga{ID: uuid.NewString(), Stage: appointment.SagaDeleted, Rev: 1}, appointment.SagaStarted)
	require.ErrorIs(t, err, appointment.ErrSagaStageMismatch)
}
