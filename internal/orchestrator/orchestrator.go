// Package orchestrator wires the trading core together.
// It coordinates: stores → ledger → pnl → position book → execution → monitor
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/account"
	"papertrade/internal/accountlock"
	"papertrade/internal/config"
	"papertrade/internal/domain"
	"papertrade/internal/execution"
	"papertrade/internal/journal"
	"papertrade/internal/ledger"
	"papertrade/internal/monitor"
	"papertrade/internal/notify"
	"papertrade/internal/pnl"
	"papertrade/internal/position"
	"papertrade/internal/storage"
	chstore "papertrade/internal/storage/clickhouse"
	"papertrade/internal/storage/memory"
	"papertrade/internal/storage/migrations"
	pgstore "papertrade/internal/storage/postgres"
)

// Stores holds the backing stores of one process.
type Stores struct {
	Tx      storage.TxManager
	Candles storage.CandleStore // price reference; also written by SetPrice
	Journal journal.Journal
}

// StoreOptions controls OpenStores.
type StoreOptions struct {
	Migrate bool // apply embedded migrations before use
}

// MemoryStores returns fresh in-memory stores.
func MemoryStores() *Stores {
	return &Stores{
		Tx:      memory.NewStore(),
		Candles: memory.NewCandleStore(),
		Journal: journal.Nop{},
	}
}

// OpenStores creates the stores selected by cfg.
// The returned cleanup closes every connection it opened.
func OpenStores(ctx context.Context, cfg config.Storage, opts StoreOptions, logger *zap.Logger) (*Stores, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var stores *Stores
	if cfg.UseMemory {
		stores = MemoryStores()
		logger.Info("using in-memory storage")
	} else {
		// PostgreSQL
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		if opts.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		stores = &Stores{
			Tx:      pgstore.NewStore(pool),
			Candles: pgstore.NewCandleStore(pool),
			Journal: journal.Nop{},
		}

		// ClickHouse
		if cfg.ClickHouseDSN != "" {
			if opts.Migrate {
				if err := chstore.Migrate(ctx, cfg.ClickHouseDSN); err != nil {
					cleanup()
					return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
				}
				logger.Info("clickhouse migrations applied")
			}
			conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
			}
			closers = append(closers, func() { _ = conn.Close() })
			stores.Candles = chstore.NewCandleStore(conn)
			logger.Info("reading reference prices from clickhouse")
		}
	}

	if cfg.JournalPath != "" {
		j, err := journal.NewSQLite(cfg.JournalPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		closers = append(closers, func() { _ = j.Close() })
		stores.Journal = j
		logger.Info("mirroring ledger entries to journal", zap.String("path", cfg.JournalPath))
	}

	return stores, cleanup, nil
}

// Orchestrator owns the services of the trading core. All services share
// one accountlock.Guard so every mutation of an account is serialized.
type Orchestrator struct {
	Ledger   *ledger.Service
	PnL      *pnl.Calculator
	Book     *position.Book
	Engine   *execution.Engine
	Accounts *account.Service
	Monitor  *monitor.Monitor
	stores   *Stores
	interval string
	clock    func() time.Time
	logger   *zap.Logger

	mu          sync.Mutex
	lastPriceAt time.Time
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	Stores *Stores

	// Execution settings
	Params             *execution.Params // nil means execution.DefaultParams
	PriceInterval      string            // default "1m"
	MaxConflictRetries int
	MonitorInterval    time.Duration

	// Injected collaborators
	Broadcaster notify.Broadcaster
	Clock       func() time.Time
	Jitter      func() float64
	Logger      *zap.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.PriceInterval == "" {
		opts.PriceInterval = domain.Interval1Min
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := opts.Stores
	logger := opts.Logger

	guard := accountlock.New(accountlock.Options{
		MaxAttempts: opts.MaxConflictRetries,
		Logger:      logger.Named("accountlock"),
	})
	ledgerSvc := ledger.NewService(ledger.Options{
		Tx:          s.Tx,
		Guard:       guard,
		Journal:     s.Journal,
		Broadcaster: opts.Broadcaster,
		Clock:       opts.Clock,
		Logger:      logger.Named("ledger"),
	})
	calc := pnl.NewCalculator(pnl.Options{
		Tx:       s.Tx,
		Prices:   s.Candles,
		Guard:    guard,
		Interval: opts.PriceInterval,
		Logger:   logger.Named("pnl"),
	})
	book := position.NewBook(position.Options{
		Tx:     s.Tx,
		Ledger: ledgerSvc,
		PnL:    calc,
		Logger: logger.Named("position"),
	})

	return &Orchestrator{
		Ledger: ledgerSvc,
		PnL:    calc,
		Book:   book,
		Engine: execution.NewEngine(execution.Options{
			Tx:     s.Tx,
			Ledger: ledgerSvc,
			PnL:    calc,
			Params: opts.Params,
			Jitter: opts.Jitter,
			Logger: logger.Named("execution"),
		}),
		Accounts: account.NewService(account.Options{
			Tx:     s.Tx,
			Ledger: ledgerSvc,
			Logger: logger.Named("account"),
		}),
		Monitor: monitor.NewMonitor(monitor.Options{
			Tx:       s.Tx,
			PnL:      calc,
			Book:     book,
			Interval: opts.MonitorInterval,
			Logger:   logger.Named("monitor"),
		}),
		stores:   s,
		interval: opts.PriceInterval,
		clock:    opts.Clock,
		logger:   logger,
	}
}

// FromConfig creates an Orchestrator from the execution and monitor sections of cfg.
func FromConfig(cfg *config.Config, stores *Stores, broadcaster notify.Broadcaster, logger *zap.Logger) (*Orchestrator, error) {
	params, err := cfg.Execution.Params()
	if err != nil {
		return nil, err
	}
	return New(Options{
		Stores:             stores,
		Params:             &params,
		PriceInterval:      cfg.Execution.PriceInterval,
		MaxConflictRetries: cfg.Execution.MaxConflictRetries,
		MonitorInterval:    cfg.Monitor.Interval,
		Broadcaster:        broadcaster,
		Logger:             logger,
	}), nil
}

// SeedResult contains results from instrument seeding.
type SeedResult struct {
	Inserted     int
	Existing     int
	PricesSeeded int
}

// SeedInstruments inserts every configured instrument whose symbol is not
// stored yet, and records its initial price when it has none.
func (o *Orchestrator) SeedInstruments(ctx context.Context, seeds []config.InstrumentSeed) (*SeedResult, error) {
	result := &SeedResult{}
	now := o.clock()

	for _, seed := range seeds {
		inst, err := seed.Instrument(now)
		if err != nil {
			return nil, err
		}

		var inserted bool
		err = o.stores.Tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			existing, err := tx.Instruments().GetBySymbol(ctx, inst.Symbol)
			if err == nil {
				inst = existing
				return nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if err := tx.Instruments().Insert(ctx, inst); err != nil {
				return err
			}
			inserted = true
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("seed instrument %s: %w", seed.Symbol, err)
		}
		if inserted {
			result.Inserted++
			o.logger.Info("instrument seeded", zap.String("symbol", inst.Symbol), zap.String("instrument_id", inst.ID))
		} else {
			result.Existing++
		}

		price, ok, err := seed.SeedPrice()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		_, hasPrice, err := o.PnL.CurrentPrice(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		if hasPrice {
			continue
		}
		if err := o.SetPrice(ctx, inst.ID, price); err != nil {
			return nil, err
		}
		result.PricesSeeded++
	}

	return result, nil
}

// SetPrice records price as a flat candle stamped now, making it the
// reference price of the instrument.
func (o *Orchestrator) SetPrice(ctx context.Context, instrumentID string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", storage.ErrInvalidInput)
	}
	candle := &domain.Candle{
		InstrumentID: instrumentID,
		Interval:     o.interval,
		OpenTime:     o.nextPriceTime(),
		Open:         price,
		High:         price,
		Low:          price,
		Close:        price,
		Volume:       decimal.Zero,
	}
	if err := o.stores.Candles.InsertBulk(ctx, []*domain.Candle{candle}); err != nil {
		return fmt.Errorf("set price of %s: %w", instrumentID, err)
	}
	return nil
}

// Instruments lists stored instruments.
func (o *Orchestrator) Instruments(ctx context.Context) ([]*domain.Instrument, error) {
	var out []*domain.Instrument
	err := o.stores.Tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.Instruments().List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	return out, nil
}

// ResolveInstrument finds an instrument by ID or, failing that, by symbol.
func (o *Orchestrator) ResolveInstrument(ctx context.Context, ref string) (*domain.Instrument, error) {
	var inst *domain.Instrument
	err := o.stores.Tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		inst, err = tx.Instruments().GetByID(ctx, ref)
		if errors.Is(err, storage.ErrNotFound) {
			inst, err = tx.Instruments().GetBySymbol(ctx, ref)
		}
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInstrumentNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve instrument: %w", err)
	}
	return inst, nil
}

// nextPriceTime returns a millisecond timestamp later than any handed out
// before, so two prices set in the same millisecond keep their order.
func (o *Orchestrator) nextPriceTime() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()

	at := o.clock().UTC().Truncate(time.Millisecond)
	if !at.After(o.lastPriceAt) {
		at = o.lastPriceAt.Add(time.Millisecond)
	}
	o.lastPriceAt = at
	return at
}
