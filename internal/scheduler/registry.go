package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/sip/types"
)

// Registry is the distributed store of recurring triggers, keyed by trigger id.
// All operations are safe to call concurrently from the reconciler and the
// dispatch worker.
type Registry interface {
	// UpsertTrigger creates the trigger or replaces the one with the same id.
	UpsertTrigger(ctx context.Context, trigger types.Trigger) (string, error)
	// RemoveTrigger deletes the trigger; removing a missing trigger is not an error.
	RemoveTrigger(ctx context.Context, triggerID string) error
	ListTriggers(ctx context.Context) ([]types.Trigger, error)
}

const DefaultRegistryKey = "sip:triggers"

// RedisRegistry keeps every trigger as one field of a single Redis hash, so
// upsert and removal are single atomic HSET/HDEL commands.
type RedisRegistry struct {
	logger *logrus.Logger
	client redis.UniversalClient
	key    string
}

var _ Registry = (*RedisRegistry)(nil)

func NewRedisRegistry(logger *logrus.Logger, client redis.UniversalClient, key string) *RedisRegistry {
	if key == "" {
		key = DefaultRegistryKey
	}
	return &RedisRegistry{
		logger: logger.WithField("pkg", "scheduler.RedisRegistry").Logger,
		client: client,
		key:    key,
	}
}

func (r *RedisRegistry) UpsertTrigger(ctx context.Context, trigger types.Trigger) (string, error) {
	buf, err := json.Marshal(trigger)
	if err != nil {
		return "", fmt.Errorf("failed to marshal trigger: %w", err)
	}
	if err := r.client.HSet(ctx, r.key, trigger.ID, buf).Err(); err != nil {
		return "", fmt.Errorf("failed to upsert trigger %s: %w", trigger.ID, err)
	}
	return trigger.ID, nil
}

func (r *RedisRegistry) RemoveTrigger(ctx context.Context, triggerID string) error {
	if err := r.client.HDel(ctx, r.key, triggerID).Err(); err != nil {
		return fmt.Errorf("failed to remove trigger %s: %w", triggerID, err)
	}
	return nil
}

// ListTriggers returns triggers ordered by id. A field that fails to decode is
// returned with its id only, so the reconciler can still overwrite or drop it.
func (r *RedisRegistry) ListTriggers(ctx context.Context) ([]types.Trigger, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	triggers := make([]types.Trigger, 0, len(fields))
	for id, raw := range fields {
		var trigger types.Trigger
		if err := json.Unmarshal([]byte(raw), &trigger); err != nil {
			r.logger.WithError(err).WithField("trigger_id", id).Warn("malformed trigger in registry")
			trigger = types.Trigger{}
		}
		trigger.ID = id
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool {
		return triggers[i].ID < triggers[j].ID
	})
	return triggers, nil
}

func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// MemoryRegistry is a process-local Registry for tests and single-binary runs.
type MemoryRegistry struct {
	mu       sync.Mutex
	triggers map[string]types.Trigger
}

var _ Registry = (*MemoryRegistry)(nil)

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		triggers: make(map[string]types.Trigger),
	}
}

func (m *MemoryRegistry) UpsertTrigger(_ context.Context, trigger types.Trigger) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[trigger.ID] = trigger
	return trigger.ID, nil
}

func (m *MemoryRegistry) RemoveTrigger(_ context.Context, triggerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.triggers, triggerID)
	return nil
}

func (m *MemoryRegistry) ListTriggers(_ context.Context) ([]types.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	triggers := make([]types.Trigger, 0, len(m.triggers))
	for _, t := range m.triggers {
		triggers = append(triggers, t)
	}
	sort.Slice(triggers, func(i, j int) bool {
		return triggers[i].ID < triggers[j].ID
	})
	return triggers, nil
}
