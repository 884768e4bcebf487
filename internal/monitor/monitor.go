// Package monitor periodically marks open positions to market and closes
// those whose stop-loss or take-profit has been crossed.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"papertrade/internal/domain"
	"papertrade/internal/observability"
	"papertrade/internal/pnl"
	"papertrade/internal/position"
	"papertrade/internal/storage"
)

// DefaultInterval is the sweep period when Options.Interval is zero.
const DefaultInterval = 5 * time.Second

// Options configures a Monitor.
type Options struct {
	Tx       storage.TxManager
	PnL      *pnl.Calculator
	Book     *position.Book
	Interval time.Duration
	Logger   *zap.Logger
}

// Monitor runs mark-to-market sweeps.
type Monitor struct {
	tx       storage.TxManager
	pnl      *pnl.Calculator
	book     *position.Book
	interval time.Duration
	logger   *zap.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Monitor{
		tx:       opts.Tx,
		pnl:      opts.PnL,
		book:     opts.Book,
		interval: opts.Interval,
		logger:   opts.Logger,
	}
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Open      int // open positions at the start of the sweep
	Marked    int
	Triggered int
	Failed    int
}

// Run sweeps every interval until ctx is canceled.
// It blocks and returns ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", zap.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("monitor sweep", zap.Error(err))
			}
		}
	}
}

// Sweep marks every open position and closes triggered ones. Failures on
// individual positions are logged and counted; the sweep continues.
func (m *Monitor) Sweep(ctx context.Context) (SweepStats, error) {
	start := time.Now()
	var stats SweepStats

	var open []*domain.Position
	err := m.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		open, err = tx.Positions().ListOpen(ctx)
		return err
	})
	if err != nil {
		observability.RecordMonitorRun("error", 0, time.Since(start).Seconds(), time.Now().Unix())
		return stats, fmt.Errorf("list open positions: %w", err)
	}
	stats.Open = len(open)

	for _, p := range open {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if err := m.sweepOne(ctx, p, &stats); err != nil {
			stats.Failed++
			m.logger.Error("monitor position",
				zap.String("position_id", p.ID),
				zap.String("account_id", p.AccountID),
				zap.Error(err),
			)
		}
	}

	status := "success"
	if stats.Failed > 0 {
		status = "partial"
	}
	observability.RecordMonitorRun(status, stats.Marked, time.Since(start).Seconds(), time.Now().Unix())
	m.logger.Debug("monitor sweep",
		zap.Int("open", stats.Open),
		zap.Int("marked", stats.Marked),
		zap.Int("triggered", stats.Triggered),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (m *Monitor) sweepOne(ctx context.Context, p *domain.Position, stats *SweepStats) error {
	if p.StopLoss != nil || p.TakeProfit != nil {
		res, err := m.book.CloseTriggered(ctx, p.ID)
		switch {
		case errors.Is(err, domain.ErrPositionClosed):
			return nil
		case err != nil:
			return err
		case res != nil:
			stats.Triggered++
			m.logger.Info("position auto-closed",
				zap.String("position_id", p.ID),
				zap.String("reason", res.Entry.Metadata.Reason),
				zap.String("realized_pnl", res.RealizedPnL.String()),
			)
			return nil
		}
	}

	refreshed, err := m.pnl.Refresh(ctx, p.ID)
	if err != nil {
		return err
	}
	// Refresh persists only when a price exists, which bumps the version.
	if refreshed.Version != p.Version {
		stats.Marked++
	}
	return nil
}
