// Package position manages the lifecycle of open exposure: closing,
// partial closing and stop-loss / take-profit protection.
package position

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/domain"
	"papertrade/internal/ledger"
	"papertrade/internal/notify"
	"papertrade/internal/observability"
	"papertrade/internal/pnl"
	"papertrade/internal/storage"
)

// Options configures a Book.
type Options struct {
	Tx     storage.TxManager
	Ledger *ledger.Service
	PnL    *pnl.Calculator
	Logger *zap.Logger
}

// Book closes positions and edits their protection levels.
type Book struct {
	tx     storage.TxManager
	ledger *ledger.Service
	pnl    *pnl.Calculator
	logger *zap.Logger
}

// NewBook creates a Book. Ledger and PnL must share one accountlock.Guard.
func NewBook(opts Options) *Book {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Book{
		tx:     opts.Tx,
		ledger: opts.Ledger,
		pnl:    opts.PnL,
		logger: opts.Logger,
	}
}

// CloseResult reports one applied close.
type CloseResult struct {
	Position    *domain.Position
	RealizedPnL decimal.Decimal // realized by this close only
	FullyClosed bool
	Entry       *domain.LedgerEntry // trade_pnl entry
}

// Close closes closeSize units of a position at the current reference price,
// or its last mark when no price exists. A nil closeSize, or one at least
// the position size, closes it in full.
func (b *Book) Close(ctx context.Context, positionID string, closeSize *decimal.Decimal) (*CloseResult, error) {
	return b.close(ctx, positionID, closeSize, domain.CloseReasonManual, nil)
}

// CloseTriggered closes a position in full when its stop-loss or take-profit
// is crossed by the current price. Returns nil when nothing triggered.
func (b *Book) CloseTriggered(ctx context.Context, positionID string) (*CloseResult, error) {
	res, err := b.close(ctx, positionID, nil, "", triggerReason)
	if err != nil || res == nil {
		return nil, err
	}
	observability.RecordTriggeredClose(res.Entry.Metadata.Reason)
	return res, nil
}

func triggerReason(p *domain.Position, price decimal.Decimal) (string, bool) {
	switch {
	case p.StopLossHit(price):
		return domain.CloseReasonStopLoss, true
	case p.TakeProfitHit(price):
		return domain.CloseReasonTakeProfit, true
	}
	return "", false
}

// close applies the transition under the account lock. When trigger is set
// the close only happens if a reference price exists and trigger fires;
// the reason it returns is recorded.
func (b *Book) close(ctx context.Context, positionID string, closeSize *decimal.Decimal, reason string,
	trigger func(*domain.Position, decimal.Decimal) (string, bool)) (*CloseResult, error) {
	if closeSize != nil && !closeSize.IsPositive() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCloseSize, closeSize)
	}

	accountID, err := b.accountOf(ctx, positionID)
	if err != nil {
		return nil, err
	}

	var (
		res  *CloseResult
		acct *domain.Account
	)
	err = b.ledger.Guard().Do(ctx, accountID, func(ctx context.Context) error {
		res = nil
		return b.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			pos, err := pnl.LoadPosition(ctx, tx, positionID)
			if err != nil {
				return err
			}
			if !pos.IsOpen {
				return fmt.Errorf("%w: %s", domain.ErrPositionClosed, positionID)
			}

			exit, ok, err := b.pnl.PriceIn(ctx, tx, pos.InstrumentID)
			if err != nil {
				return err
			}
			if !ok {
				exit = pos.CurrentPrice
			}

			closeReason := reason
			if trigger != nil {
				if !ok {
					return nil
				}
				var fired bool
				closeReason, fired = trigger(pos, exit)
				if !fired {
					return nil
				}
			}

			acct, err = ledger.LoadAccount(ctx, tx, pos.AccountID)
			if err != nil {
				return err
			}

			size := pos.Size
			if closeSize != nil {
				size = *closeSize
			}
			out, entry, err := Realize(ctx, tx, b.ledger, acct, pos, RealizeRequest{
				CloseSize: size,
				ExitPrice: exit,
				Reason:    closeReason,
			})
			if err != nil {
				return err
			}
			if err := tx.Accounts().Update(ctx, acct); err != nil {
				return fmt.Errorf("update account: %w", err)
			}

			res = &CloseResult{
				Position:    pos,
				RealizedPnL: out.RealizedDelta,
				FullyClosed: out.FullyClosed,
				Entry:       entry,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	b.ledger.AfterCommit(ctx, acct, res.Entry)
	PublishClose(b.ledger, res.Position, res.RealizedPnL, res.FullyClosed, res.Entry.Metadata.Reason)
	return res, nil
}

// UpdateProtection sets stop-loss and/or take-profit on an open position.
// Nil arguments leave the current level unchanged.
func (b *Book) UpdateProtection(ctx context.Context, positionID string, stopLoss, takeProfit *decimal.Decimal) (*domain.Position, error) {
	for _, level := range []*decimal.Decimal{stopLoss, takeProfit} {
		if level != nil && !level.IsPositive() {
			return nil, fmt.Errorf("%w: protection level must be positive", storage.ErrInvalidInput)
		}
	}

	accountID, err := b.accountOf(ctx, positionID)
	if err != nil {
		return nil, err
	}

	var pos *domain.Position
	err = b.ledger.Guard().Do(ctx, accountID, func(ctx context.Context) error {
		return b.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			pos, err = pnl.LoadPosition(ctx, tx, positionID)
			if err != nil {
				return err
			}
			if !pos.IsOpen {
				return fmt.Errorf("%w: %s", domain.ErrPositionClosed, positionID)
			}
			if stopLoss != nil {
				sl := *stopLoss
				pos.StopLoss = &sl
			}
			if takeProfit != nil {
				tp := *takeProfit
				pos.TakeProfit = &tp
			}
			return tx.Positions().Update(ctx, pos)
		})
	})
	if err != nil {
		return nil, err
	}

	b.ledger.Publish(notify.Event{Type: notify.EventPositionUpdate, AccountID: pos.AccountID, Payload: pos, At: b.ledger.Now()})
	return pos, nil
}

// Get returns one position.
func (b *Book) Get(ctx context.Context, positionID string) (*domain.Position, error) {
	var pos *domain.Position
	err := b.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		pos, err = pnl.LoadPosition(ctx, tx, positionID)
		return err
	})
	return pos, err
}

// ListByAccount returns positions of an account newest first.
func (b *Book) ListByAccount(ctx context.Context, accountID string, f storage.PositionFilter) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := b.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := ledger.LoadAccount(ctx, tx, accountID); err != nil {
			return err
		}
		var err error
		positions, err = tx.Positions().ListByAccount(ctx, accountID, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (b *Book) accountOf(ctx context.Context, positionID string) (string, error) {
	pos, err := b.Get(ctx, positionID)
	if err != nil {
		return "", err
	}
	return pos.AccountID, nil
}

// RealizeRequest describes one close applied inside a unit of work.
type RealizeRequest struct {
	CloseSize decimal.Decimal
	ExitPrice decimal.Decimal
	OrderID   string // order that caused the close, if any
	Reason    string // defaults to manual
}

// Realize closes req.CloseSize of pos at req.ExitPrice inside tx: it credits
// the realized P&L through the ledger, releases the proportional margin and
// persists pos. The caller must persist acct in the same unit of work.
func Realize(ctx context.Context, tx storage.Tx, l *ledger.Service, acct *domain.Account, pos *domain.Position,
	req RealizeRequest) (domain.CloseOutcome, *domain.LedgerEntry, error) {
	if req.Reason == "" {
		req.Reason = domain.CloseReasonManual
	}

	out, err := pos.Close(req.CloseSize, req.ExitPrice, l.Now())
	if err != nil {
		return domain.CloseOutcome{}, nil, err
	}
	acct.ReleaseMargin(out.MarginRelease)

	entryPrice, exitPrice, closed := pos.EntryPrice, out.ExitPrice, out.ClosedSize
	entry, err := l.Post(ctx, tx, acct, ledger.AppendRequest{
		AccountID:   acct.ID,
		Type:        domain.EntryTypeTradePnL,
		Amount:      out.RealizedDelta,
		OrderID:     req.OrderID,
		PositionID:  pos.ID,
		Description: describeClose(pos, out),
		Metadata: domain.EntryMetadata{
			Side:       string(pos.Side),
			EntryPrice: &entryPrice,
			ExitPrice:  &exitPrice,
			Size:       &closed,
			Reason:     req.Reason,
		},
	})
	if err != nil {
		return domain.CloseOutcome{}, nil, err
	}

	if err := tx.Positions().Update(ctx, pos); err != nil {
		return domain.CloseOutcome{}, nil, fmt.Errorf("update position %s: %w", pos.ID, err)
	}
	return out, entry, nil
}

// PublishClose emits the post-commit notifications for a close.
func PublishClose(l *ledger.Service, pos *domain.Position, realized decimal.Decimal, full bool, reason string) {
	realizedAbs, _ := realized.Abs().Float64()
	observability.RecordPositionClosed(reason, full, realizedAbs)

	eventType := notify.EventPositionUpdate
	if full {
		eventType = notify.EventPositionClosed
	}
	at := l.Now()
	if pos.ClosedAt != nil {
		at = *pos.ClosedAt
	}
	l.Publish(notify.Event{Type: eventType, AccountID: pos.AccountID, Payload: pos, At: at})
}

func describeClose(pos *domain.Position, out domain.CloseOutcome) string {
	kind := "Partial close"
	if out.FullyClosed {
		kind = "Close"
	}
	return fmt.Sprintf("%s %s %s @ %s", kind, pos.Side, out.ClosedSize.String(), out.ExitPrice.String())
}
