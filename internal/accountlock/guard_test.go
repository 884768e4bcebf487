package accountlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/storage"
)

func TestGuard_RetriesConflicts(t *testing.T) {
	g := New(Options{MaxAttempts: 3})

	calls := 0
	err := g.Do(context.Background(), "a1", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return storage.ErrConflict
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestGuard_RetriesExhausted(t *testing.T) {
	g := New(Options{MaxAttempts: 2})

	calls := 0
	err := g.Do(context.Background(), "a1", func(ctx context.Context) error {
		calls++
		return storage.ErrConflict
	})

	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, 2, calls)
}

func TestGuard_OtherErrorsNotRetried(t *testing.T) {
	g := New(Options{})
	boom := errors.New("boom")

	calls := 0
	err := g.Do(context.Background(), "a1", func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestGuard_SerializesSameAccount(t *testing.T) {
	g := New(Options{})

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), "a1", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, g.locks, "lock entries must be released")
}

func TestGuard_DifferentAccountsDoNotContend(t *testing.T) {
	g := New(Options{})
	holding := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = g.Do(context.Background(), "a1", func(ctx context.Context) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := g.Do(ctx, "a2", func(ctx context.Context) error { return nil })
	close(done)

	require.NoError(t, err)
}

func TestGuard_ContextCanceledWhileWaiting(t *testing.T) {
	g := New(Options{})
	holding := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = g.Do(context.Background(), "a1", func(ctx context.Context) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Do(ctx, "a1", func(ctx context.Context) error { return nil })
	close(done)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
