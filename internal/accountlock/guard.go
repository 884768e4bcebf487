// Package accountlock serializes mutations of a single account.
//
// Within one process a keyed lock orders all units of work touching the same
// account. Across processes the stores compare-and-swap a version column; a
// unit of work that loses that race fails with storage.ErrConflict and is
// re-run against fresh state.
package accountlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"papertrade/internal/observability"
	"papertrade/internal/storage"
)

// DefaultMaxAttempts bounds how many times a conflicting unit of work runs.
const DefaultMaxAttempts = 3

// ErrRetriesExhausted wraps the last conflict once every attempt failed.
var ErrRetriesExhausted = errors.New("conflict retries exhausted")

// Options configures a Guard.
type Options struct {
	MaxAttempts int
	Logger      *zap.Logger
}

// Guard hands out per-account locks. Different accounts never contend.
type Guard struct {
	mu          sync.Mutex
	locks       map[string]*keyLock
	maxAttempts int
	logger      *zap.Logger
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// New creates a Guard.
func New(opts Options) *Guard {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Guard{
		locks:       make(map[string]*keyLock),
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
	}
}

// Do runs fn while holding the lock for accountID. If fn fails with
// storage.ErrConflict it is run again, up to the configured attempt count.
// Any other error, including business rejections, is returned immediately.
func (g *Guard) Do(ctx context.Context, accountID string, fn func(ctx context.Context) error) error {
	release, err := g.acquire(ctx, accountID)
	if err != nil {
		return err
	}
	defer release()

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if !errors.Is(lastErr, storage.ErrConflict) {
			return lastErr
		}
		if attempt < g.maxAttempts {
			observability.RecordConflictRetry()
			g.logger.Debug("retrying after version conflict",
				zap.String("account_id", accountID),
				zap.Int("attempt", attempt),
			)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("account %s: %w: %w", accountID, ErrRetriesExhausted, lastErr)
}

func (g *Guard) acquire(ctx context.Context, accountID string) (func(), error) {
	g.mu.Lock()
	kl, ok := g.locks[accountID]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		g.locks[accountID] = kl
	}
	kl.refs++
	g.mu.Unlock()

	start := time.Now()
	select {
	case kl.sem <- struct{}{}:
		observability.RecordLockWait(time.Since(start).Seconds())
	case <-ctx.Done():
		g.unref(accountID, kl)
		return nil, ctx.Err()
	}

	return func() {
		<-kl.sem
		g.unref(accountID, kl)
	}, nil
}

func (g *Guard) unref(accountID string, kl *keyLock) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(g.locks, accountID)
	}
}
