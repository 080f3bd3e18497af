// Package offline is the client-side resilience queue: state-mutating
// actions taken while disconnected are kept in a durable FIFO and replayed
// in order once connectivity returns.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type ActionType string

const (
	ActionBooking  ActionType = "booking"
	ActionPayment  ActionType = "payment"
	ActionFeedback ActionType = "feedback"
)

type PendingAction struct {
	ID        string          `json:"id"`
	Type      ActionType      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
}

// Backend is the durable storage under the queue: in-memory for tests,
// redis for a real client.
type Backend interface {
	Append(ctx context.Context, action PendingAction) error
	List(ctx context.Context) ([]PendingAction, error)
	Remove(ctx context.Context, id string) error
	Update(ctx context.Context, action PendingAction) error
}

// Dispatcher replays one action against its external API.
type Dispatcher func(ctx context.Context, action PendingAction) error

const defaultMaxAttempts = 5

type Queue struct {
	backend     Backend
	maxAttempts int
}

type FlushResult struct {
	Replayed  int
	Discarded int
	Remaining int
}

func NewQueue(backend Backend, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Queue{backend: backend, maxAttempts: maxAttempts}
}

func (q *Queue) Enqueue(ctx context.Context, typ ActionType, payload json.RawMessage) (PendingAction, error) {
	action := PendingAction{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := q.backend.Append(ctx, action); err != nil {
		return PendingAction{}, err
	}
	return action, nil
}

// Flush replays pending actions in enqueue order. It stops at the first
// failure to keep ordering intact; the failed action is retried on the next
// flush and discarded once it has burned through maxAttempts.
func (q *Queue) Flush(ctx context.Context, dispatch Dispatcher) (FlushResult, error) {
	var result FlushResult

	actions, err := q.backend.List(ctx)
	if err != nil {
		return result, err
	}

	for i, action := range actions {
		if err := dispatch(ctx, action); err != nil {
			action.Attempts++
			if action.Attempts >= q.maxAttempts {
				if rmErr := q.backend.Remove(ctx, action.ID); rmErr != nil {
					return result, rmErr
				}
				result.Discarded++
				result.Remaining = len(actions) - i - 1
				return result, nil
			}
			if upErr := q.backend.Update(ctx, action); upErr != nil {
				return result, upErr
			}
			result.Remaining = len(actions) - i
			return result, nil
		}
		if err := q.backend.Remove(ctx, action.ID); err != nil {
			return result, err
		}
		result.Replayed++
	}
	return result, nil
}

// MemoryBackend keeps the queue in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	actions []PendingAction
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Append(_ context.Context, action PendingAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions = append(b.actions, action)
	return nil
}

func (b *MemoryBackend) List(_ context.Context) ([]PendingAction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PendingAction, len(b.actions))
	copy(out, b.actions)
	return out, nil
}

func (b *MemoryBackend) Remove(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, a := range b.actions {
		if a.ID == id {
			b.actions = append(b.actions[:i], b.actions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (b *MemoryBackend) Update(_ context.Context, action PendingAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, a := range b.actions {
		if a.ID == action.ID {
			b.actions[i] = action
			return nil
		}
	}
	return nil
}

// RedisBackend keeps the queue in a redis list so it survives restarts.
type RedisBackend struct {
	redis *redis.Client
	key   string
}

func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = "offline:pending"
	}
	return &RedisBackend{redis: client, key: key}
}

func (b *RedisBackend) Append(ctx context.Context, action PendingAction) error {
	raw, err := json.Marshal(action)
	if err != nil {
		return err
	}
	return b.redis.RPush(ctx, b.key, raw).Err()
}

func (b *RedisBackend) List(ctx context.Context) ([]PendingAction, error) {
	entries, err := b.redis.LRange(ctx, b.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	actions := make([]PendingAction, 0, len(entries))
	for _, raw := range entries {
		var a PendingAction
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("corrupt pending action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func (b *RedisBackend) Remove(ctx context.Context, id string) error {
	raw, idx, err := b.find(ctx, id)
	if err != nil || idx < 0 {
		return err
	}
	return b.redis.LRem(ctx, b.key, 1, raw).Err()
}

func (b *RedisBackend) Update(ctx context.Context, action PendingAction) error {
	_, idx, err := b.find(ctx, action.ID)
	if err != nil || idx < 0 {
		return err
	}
	raw, err := json.Marshal(action)
	if err != nil {
		return err
	}
	return b.redis.LSet(ctx, b.key, int64(idx), raw).Err()
}

func (b *RedisBackend) find(ctx context.Context, id string) (string, int, error) {
	entries, err := b.redis.LRange(ctx, b.key, 0, -1).Result()
	if err != nil {
		return "", -1, err
	}
	for i, raw := range entries {
		var a PendingAction
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			continue
		}
		if a.ID == id {
			return raw, i, nil
		}
	}
	return "", -1, nil
}
