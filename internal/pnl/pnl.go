// Package pnl marks positions to market and aggregates account P&L.
package pnl

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/accountlock"
	"papertrade/internal/domain"
	"papertrade/internal/ledger"
	"papertrade/internal/storage"
)

// Options configures a Calculator.
type Options struct {
	Tx       storage.TxManager
	Prices   storage.PriceReference
	Guard    *accountlock.Guard
	Interval string // price sampling interval, default "1m"
	Logger   *zap.Logger
}

// Calculator refreshes unrealized P&L and builds account summaries.
type Calculator struct {
	tx       storage.TxManager
	prices   storage.PriceReference
	guard    *accountlock.Guard
	interval string
	logger   *zap.Logger
}

// NewCalculator creates a Calculator.
func NewCalculator(opts Options) *Calculator {
	if opts.Guard == nil {
		opts.Guard = accountlock.New(accountlock.Options{Logger: opts.Logger})
	}
	if opts.Interval == "" {
		opts.Interval = domain.Interval1Min
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Calculator{
		tx:       opts.Tx,
		prices:   opts.Prices,
		guard:    opts.Guard,
		interval: opts.Interval,
		logger:   opts.Logger,
	}
}

// CurrentPrice returns the reference price, ok=false when none exists.
// Inside a unit of work use PriceIn instead.
func (c *Calculator) CurrentPrice(ctx context.Context, instrumentID string) (decimal.Decimal, bool, error) {
	return c.latest(ctx, c.prices, instrumentID)
}

// PriceIn is CurrentPrice for callers holding tx. A price reference stored
// in the transactional database is read on tx's connection.
func (c *Calculator) PriceIn(ctx context.Context, tx storage.Tx, instrumentID string) (decimal.Decimal, bool, error) {
	prices := c.prices
	if bound, ok := prices.(storage.TxPriceReference); ok {
		prices = bound.InTx(tx)
	}
	return c.latest(ctx, prices, instrumentID)
}

func (c *Calculator) latest(ctx context.Context, prices storage.PriceReference, instrumentID string) (decimal.Decimal, bool, error) {
	price, err := prices.LatestPrice(ctx, instrumentID, c.interval)
	if errors.Is(err, storage.ErrNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("latest price %s: %w", instrumentID, err)
	}
	return price, true, nil
}

// Mark refreshes p against the current price and persists it through tx.
// Closed positions and instruments without a price are left unchanged.
// Reports whether p was updated.
func (c *Calculator) Mark(ctx context.Context, tx storage.Tx, p *domain.Position) (bool, error) {
	if !p.IsOpen {
		return false, nil
	}
	price, ok, err := c.PriceIn(ctx, tx, p.InstrumentID)
	if err != nil || !ok {
		return false, err
	}
	p.MarkToMarket(price)
	if err := tx.Positions().Update(ctx, p); err != nil {
		return false, fmt.Errorf("update position %s: %w", p.ID, err)
	}
	return true, nil
}

// Refresh recomputes the unrealized P&L of one position.
func (c *Calculator) Refresh(ctx context.Context, positionID string) (*domain.Position, error) {
	accountID, err := c.positionAccount(ctx, positionID)
	if err != nil {
		return nil, err
	}

	var pos *domain.Position
	err = c.guard.Do(ctx, accountID, func(ctx context.Context) error {
		return c.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			pos, err = LoadPosition(ctx, tx, positionID)
			if err != nil {
				return err
			}
			_, err = c.Mark(ctx, tx, pos)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// Aggregate refreshes every open position of an account and summarizes
// realized and unrealized P&L.
func (c *Calculator) Aggregate(ctx context.Context, accountID string) (*domain.AccountPnLSummary, error) {
	var summary *domain.AccountPnLSummary
	err := c.guard.Do(ctx, accountID, func(ctx context.Context) error {
		return c.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			acct, err := ledger.LoadAccount(ctx, tx, accountID)
			if err != nil {
				return err
			}
			positions, err := tx.Positions().ListByAccount(ctx, accountID, storage.PositionFilter{})
			if err != nil {
				return fmt.Errorf("list positions: %w", err)
			}
			for _, p := range positions {
				if _, err := c.Mark(ctx, tx, p); err != nil {
					return err
				}
			}
			summary = Summarize(acct, positions)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (c *Calculator) positionAccount(ctx context.Context, positionID string) (string, error) {
	var accountID string
	err := c.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		p, err := LoadPosition(ctx, tx, positionID)
		if err != nil {
			return err
		}
		accountID = p.AccountID
		return nil
	})
	return accountID, err
}

// LoadPosition reads a position, mapping storage.ErrNotFound to domain.ErrPositionNotFound.
func LoadPosition(ctx context.Context, tx storage.Tx, positionID string) (*domain.Position, error) {
	p, err := tx.Positions().GetByID(ctx, positionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, positionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}
