package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	locker := NewLocalLocker(0)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := locker.Obtain(ctx, "vendor:1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, h.Release(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, locker.slots)
}

func TestLocalLockerDifferentKeysDoNotContend(t *testing.T) {
	locker := NewLocalLocker(50 * time.Millisecond)
	ctx := context.Background()

	a, err := locker.Obtain(ctx, "vendor:1")
	require.NoError(t, err)
	b, err := locker.Obtain(ctx, "vendor:2")
	require.NoError(t, err)

	require.NoError(t, a.Release(ctx))
	require.NoError(t, b.Release(ctx))
}

func TestLocalLockerTimesOut(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)
	ctx := context.Background()

	held, err := locker.Obtain(ctx, "vendor:1")
	require.NoError(t, err)

	_, err = locker.Obtain(ctx, "vendor:1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotObtained))

	require.NoError(t, held.Release(ctx))
	require.NoError(t, held.Release(ctx), "double release is a no-op")

	again, err := locker.Obtain(ctx, "vendor:1")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestNewRedisLockerValidates(t *testing.T) {
	_, err := NewRedisLocker(nil, "ss:lock:", RedisOptions{TTL: time.Second})
	require.Error(t, err)
}
