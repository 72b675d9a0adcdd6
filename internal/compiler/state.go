package compiler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/portcullis-nac/portcullis/internal/shared"
)

// ErrCompileInProgress is returned when another process holds the compile lock.
var ErrCompileInProgress = errors.New("compiler: compile already in progress")

// State persists the last compiled fingerprint and guards compiles across
// processes.
type State interface {
	Fingerprint(ctx context.Context) (string, error)
	SetFingerprint(ctx context.Context, fp string) error
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context), err error)
}

// NewState returns a Redis backed state, or a process-local one when client
// is nil.
func NewState(client *redis.Client) State {
	return NewScopedState(client, "")
}

// NewScopedState keys the fingerprint and lock by scope so several daemons
// can share one Redis without serialising each other.
func NewScopedState(client *redis.Client, scope string) State {
	if client == nil {
		return &memoryState{}
	}
	return &redisState{
		client:         client,
		fingerprintKey: shared.CompileFingerprintKey(scope),
		lockKey:        shared.CompileLockKey(scope),
	}
}

type redisState struct {
	client         *redis.Client
	fingerprintKey string
	lockKey        string
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *redisState) Fingerprint(ctx context.Context) (string, error) {
	fp, err := s.client.Get(ctx, s.fingerprintKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("compiler: read fingerprint: %w", err)
	}
	return fp, nil
}

func (s *redisState) SetFingerprint(ctx context.Context, fp string) error {
	if err := s.client.Set(ctx, s.fingerprintKey, fp, 0).Err(); err != nil {
		return fmt.Errorf("compiler: store fingerprint: %w", err)
	}
	return nil
}

func (s *redisState) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context), error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("compiler: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrCompileInProgress
	}
	return func(ctx context.Context) {
		_ = releaseScript.Run(ctx, s.client, []string{s.lockKey}, token).Err()
	}, nil
}

type memoryState struct {
	mu     sync.Mutex
	fp     string
	locked bool
}

func (s *memoryState) Fingerprint(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fp, nil
}

func (s *memoryState) SetFingerprint(_ context.Context, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fp = fp
	return nil
}

func (s *memoryState) Acquire(context.Context, time.Duration) (func(context.Context), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return nil, ErrCompileInProgress
	}
	s.locked = true
	return func(context.Context) {
		s.mu.Lock()
		s.locked = false
		s.mu.Unlock()
	}, nil
}
