package lock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randalmurphal/eventflow/pkg/eventflow/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReentrantMutex_Reenter(t *testing.T) {
	m := lock.New()
	ctx := context.Background()

	depth := 0
	err := m.Do(ctx, func(ctx context.Context) error {
		depth++
		assert.True(t, lock.Held(ctx, m))
		return m.Do(ctx, func(ctx context.Context) error {
			depth++
			return m.Do(ctx, func(ctx context.Context) error {
				depth++
				return nil
			})
		})
	})

	require.NoError(t, err)
	assert.Equal(t, 3, depth)
	assert.False(t, lock.Held(ctx, m), "outer ctx is untouched")
}

func TestReentrantMutex_DistinctMutexes(t *testing.T) {
	a, b := lock.New(), lock.New()

	err := a.Do(context.Background(), func(ctx context.Context) error {
		assert.True(t, lock.Held(ctx, a))
		assert.False(t, lock.Held(ctx, b))
		return b.Do(ctx, func(ctx context.Context) error {
			assert.True(t, lock.Held(ctx, b))
			return nil
		})
	})
	require.NoError(t, err)
}

func TestReentrantMutex_MutualExclusion(t *testing.T) {
	m := lock.New()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Do(context.Background(), func(ctx context.Context) error {
				n := inside.Add(1)
				for {
					cur := maxInside.Load()
					if n <= cur || maxInside.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
}

func TestReentrantMutex_ReleasedOnError(t *testing.T) {
	m := lock.New()
	boom := errors.New("boom")

	err := m.Do(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Lock must be free again.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, m.Do(ctx, func(context.Context) error { return nil }))
}

func TestReentrantMutex_ReleasedOnPanic(t *testing.T) {
	m := lock.New()

	assert.Panics(t, func() {
		_ = m.Do(context.Background(), func(ctx context.Context) error {
			panic("inside lock")
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, m.Do(ctx, func(context.Context) error { return nil }))
}

func TestReentrantMutex_AcquireHonoursContext(t *testing.T) {
	m := lock.New()
	holding := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = m.Do(context.Background(), func(ctx context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := m.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestWith_ReturnsValue(t *testing.T) {
	m := lock.New()

	v, err := lock.With(context.Background(), m, func(ctx context.Context) (int, error) {
		return lock.With(ctx, m, func(context.Context) (int, error) {
			return 42, nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
