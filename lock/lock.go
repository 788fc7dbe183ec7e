// Package lock provides collection.Locker implementations that serialize
// ledger generation and collection runs for the same period.
//
// The store's unique indexes are what keep runs correct; these locks only
// stop two triggers from doing the same work at once. Local is enough for a
// single process. Redis extends the guarantee across processes sharing a
// database.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/warp/rent-engine/collection"
)

// ErrBusy is returned when another holder keeps the key past the wait.
var ErrBusy = fmt.Errorf("%w: run already in progress", collection.ErrConflict)

// =============================================================================
// LOCAL - In-process keyed mutex
// =============================================================================

type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

// Acquire blocks until key is free or ctx is done.
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrBusy, key, ctx.Err())
	}

	var once sync.Once
	return func() { once.Do(func() { <-slot }) }, nil
}

// =============================================================================
// REDIS - Distributed lock via bsm/redislock
// =============================================================================

type RedisConfig struct {
	Address string
	// TTL bounds how long a crashed holder blocks others.
	TTL time.Duration
	// Wait is how long Acquire retries before giving up.
	Wait time.Duration
}

type Redis struct {
	client *redis.Client
	locker *redislock.Client
	cfg    RedisConfig
	log    zerolog.Logger
}

func NewRedis(cfg RedisConfig, log zerolog.Logger) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 30 * time.Second
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Address})
	return &Redis{
		client: client,
		locker: redislock.New(client),
		cfg:    cfg,
		log:    log.With().Str("component", "lock").Logger(),
	}
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.Wait)
	defer cancel()

	lk, err := r.locker.Obtain(waitCtx, key, r.cfg.TTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(250 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func() {
		if err := lk.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.log.Warn().Err(err).Str("key", key).Msg("lock release failed")
		}
	}, nil
}

var (
	_ collection.Locker = (*Local)(nil)
	_ collection.Locker = (*Redis)(nil)
)
