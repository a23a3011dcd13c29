package keylock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolcrib/internal/keylock"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	l := keylock.New()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "tool:1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.Len())
}

func TestLocker_DifferentKeysDoNotContend(t *testing.T) {
	l := keylock.New()
	unlockA, err := l.Lock(context.Background(), "role:OFFICER")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx, "role:SUPERVISOR")
	require.NoError(t, err)
	unlockB()
}

func TestLocker_TimeoutWhileHeld(t *testing.T) {
	l := keylock.New()
	unlock, err := l.Lock(context.Background(), "role:OFFICER")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "role:OFFICER")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // повторное освобождение — no-op
	assert.Equal(t, 0, l.Len())

	again, err := l.Lock(context.Background(), "role:OFFICER")
	require.NoError(t, err)
	again()
}
