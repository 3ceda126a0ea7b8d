package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	l := NewRedisLocker(client, RedisConfig{TTL: 5 * time.Second, RetryDelay: time.Millisecond}, zerolog.Nop())
	return l, mr
}

func TestRedisLockerExcludes(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "svc-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak)
	assert.False(t, mr.Exists("slotbook:lock:svc-1"))
}

func TestRedisLockerSetsTTL(t *testing.T) {
	l, mr := newRedisLocker(t)

	unlock, err := l.Lock(context.Background(), "svc-1")
	require.NoError(t, err)
	defer unlock()

	assert.Equal(t, 5*time.Second, mr.TTL("slotbook:lock:svc-1"))
}

func TestRedisLockerReleaseChecksToken(t *testing.T) {
	l, mr := newRedisLocker(t)
	key := "slotbook:lock:svc-1"

	unlock, err := l.Lock(context.Background(), "svc-1")
	require.NoError(t, err)

	// The lock expired and another instance took it over.
	require.NoError(t, mr.Set(key, "someone-else"))
	unlock()

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerReleasesAfterCancel(t *testing.T) {
	l, mr := newRedisLocker(t)

	ctx, cancel := context.WithCancel(context.Background())
	unlock, err := l.Lock(ctx, "svc-1")
	require.NoError(t, err)

	cancel()
	unlock()

	assert.False(t, mr.Exists("slotbook:lock:svc-1"))
}

func TestRedisLockerHonoursDeadline(t *testing.T) {
	l, _ := newRedisLocker(t)

	unlock, err := l.Lock(context.Background(), "svc-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = l.Lock(ctx, "svc-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	other, err := l.Lock(context.Background(), "svc-2")
	require.NoError(t, err)
	other()
}
