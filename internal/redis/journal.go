package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/appointment-sync/internal/appointment"
)

const (
	sagaKeyPrefix = "saga:reschedule:"
	pendingSetKey = "saga:reschedule:pending"
)

// SagaJournal stores reschedule sagas as JSON strings. Sagas that still need
// work are indexed in a set so recovery does not have to scan keys.
type SagaJournal struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSagaJournal(client *redis.Client, ttl time.Duration) *SagaJournal {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SagaJournal{client: client, ttl: ttl}
}

func sagaKey(id string) string {
	return sagaKeyPrefix + id
}

func pending(stage appointment.SagaStage) bool {
	switch stage {
	case appointment.SagaStarted, appointment.SagaDeleted, appointment.SagaCreating:
		return true
	}
	return false
}

func (j *SagaJournal) Begin(ctx context.Context, s appointment.Saga) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode saga: %w", err)
	}

	ok, err := j.client.SetNX(ctx, sagaKey(s.ID), data, j.ttl).Result()
	if err != nil {
		return fmt.Errorf("record saga: %w", err)
	}
	if !ok {
		return fmt.Errorf("saga %s already recorded", s.ID)
	}
	if err := j.client.SAdd(ctx, pendingSetKey, s.ID).Err(); err != nil {
		return fmt.Errorf("index saga: %w", err)
	}
	return nil
}

// advanceScript replaces the saga only if its stored stage and revision
// still match, and keeps the pending index in step with the new stage.
var advanceScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
  return -1
end
local ok, decoded = pcall(cjson.decode, cur)
if not ok or decoded["stage"] ~= ARGV[1] or (decoded["rev"] or 0) ~= tonumber(ARGV[6]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
if ARGV[4] == "1" then
  redis.call("SADD", KEYS[2], ARGV[5])
else
  redis.call("SREM", KEYS[2], ARGV[5])
end
return 1
`)

func (j *SagaJournal) Advance(ctx context.Context, s appointment.Saga, from appointment.SagaStage) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode saga: %w", err)
	}

	keep := "0"
	if pending(s.Stage) {
		keep = "1"
	}

	res, err := advanceScript.Run(ctx, j.client,
		[]string{sagaKey(s.ID), pendingSetKey},
		string(from), data, j.ttl.Milliseconds(), keep, s.ID, s.Rev-1,
	).Int()
	if err != nil {
		return fmt.Errorf("advance saga: %w", err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return fmt.Errorf("saga %s expired or unknown: %w", s.ID, appointment.ErrSagaStageMismatch)
	default:
		return appointment.ErrSagaStageMismatch
	}
}

func (j *SagaJournal) Pending(ctx context.Context) ([]appointment.Saga, error) {
	ids, err := j.client.SMembers(ctx, pendingSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending sagas: %w", err)
	}

	var out []appointment.Saga
	for _, id := range ids {
		raw, err := j.client.Get(ctx, sagaKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			// Expired; drop the dangling index entry.
			_ = j.client.SRem(ctx, pendingSetKey, id).Err()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load saga %s: %w", id, err)
		}

		var s appointment.Saga
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode saga %s: %w", id, err)
		}
		if pending(s.Stage) {
			out = append(out, s)
		}
	}
	return out, nil
}
