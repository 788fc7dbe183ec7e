package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-engine/collection"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	// GIVEN: Several runs for the same period
	l := NewLocal()
	var inside, maxInside int32
	var wg sync.WaitGroup

	// WHEN: They race for the lock
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "run:2026-02")
			if !assert.NoError(t, err) {
				return
			}
			defer release()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	// THEN: Never more than one holder
	assert.Equal(t, int32(1), maxInside)
}

func TestLocal_DifferentKeysIndependent(t *testing.T) {
	l := NewLocal()
	releaseA, err := l.Acquire(context.Background(), "run:2026-02")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	releaseB, err := l.Acquire(ctx, "run:2026-03")
	require.NoError(t, err)
	releaseB()
}

func TestLocal_BusyWhenContextEnds(t *testing.T) {
	// GIVEN: A held key
	l := NewLocal()
	release, err := l.Acquire(context.Background(), "generate:2026-02")
	require.NoError(t, err)

	// WHEN: Another caller gives up waiting
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "generate:2026-02")

	// THEN: Busy, which is a conflict
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, err, collection.ErrConflict)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Releasing twice is harmless and frees the key
	release()
	release()
	again, err := l.Acquire(context.Background(), "generate:2026-02")
	require.NoError(t, err)
	again()
}

func TestRedis_Acquire(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	r := NewRedis(RedisConfig{Address: addr, TTL: time.Second, Wait: 100 * time.Millisecond}, zerolog.Nop())
	defer r.Close()
	ctx := context.Background()
	require.NoError(t, r.Ping(ctx))

	key := "rent-engine-test:" + time.Now().Format(time.RFC3339Nano)
	release, err := r.Acquire(ctx, key)
	require.NoError(t, err)

	_, err = r.Acquire(ctx, key)
	assert.ErrorIs(t, err, ErrBusy)

	release()
	again, err := r.Acquire(ctx, key)
	require.NoError(t, err)
	again()
}
