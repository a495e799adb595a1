// Package engine schedules per-symbol evaluation cycles: snapshot fetch,
// parallel module scoring, aggregation, and the entry/exit policies that act
// on the resulting decision.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"cryptoBiasBot/internal/analysis"
	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/indicators"
	"cryptoBiasBot/internal/ports"
)

// Config holds engine-level settings (per-symbol settings live in CoinConfig).
type Config struct {
	EvalInterval      time.Duration // Scheduling tick
	FetchTimeout      time.Duration // Bound on every external data fetch
	CandleLimit       int           // Candles fetched per cycle
	HigherCandleLimit int           // Higher-timeframe candles fetched per cycle
	QuoteAsset        string        // Asset used for balance lookups, e.g. "USDT"
	MaxCloseAttempts  int           // Retries for close/cancel execution
}

// Engine drives the evaluation loop across all enabled symbols.
type Engine struct {
	cfg        Config
	logger     ports.Logger
	market     ports.MarketDataProvider
	exec       ports.ExecutionClient
	configs    ports.CoinConfigRepository
	analyses   ports.AnalysisRepository
	positions  ports.PositionRepository
	notifier   ports.Notifier
	aggregator *analysis.Aggregator
	entry      *EntryPolicy
	exit       *ExitPolicy

	mu            sync.Mutex // Protects the maps below
	inFlight      map[string]bool
	cooldownUntil map[string]time.Time

	// entryMu serializes the global open-position count check against new
	// entries so concurrent symbol evaluations cannot overshoot the cap.
	entryMu sync.Mutex
}

// New creates a new Engine instance.
func New(
	cfg Config,
	logger ports.Logger,
	market ports.MarketDataProvider,
	exec ports.ExecutionClient,
	configs ports.CoinConfigRepository,
	analyses ports.AnalysisRepository,
	positions ports.PositionRepository,
	notifier ports.Notifier,
) (*Engine, error) {
	if logger == nil || market == nil || exec == nil || configs == nil || analyses == nil || positions == nil || notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}
	if cfg.EvalInterval <= 0 {
		return nil, fmt.Errorf("EvalInterval must be positive")
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("FetchTimeout must be positive")
	}
	if cfg.CandleLimit <= 0 {
		return nil, fmt.Errorf("CandleLimit must be positive")
	}
	if cfg.QuoteAsset == "" {
		return nil, fmt.Errorf("QuoteAsset must be set")
	}
	if cfg.MaxCloseAttempts <= 0 {
		cfg.MaxCloseAttempts = 5
	}
	if cfg.HigherCandleLimit <= 0 {
		cfg.HigherCandleLimit = cfg.CandleLimit
	}

	aggregator, err := analysis.NewAggregator(logger)
	if err != nil {
		return nil, err
	}
	entry, err := NewEntryPolicy(logger)
	if err != nil {
		return nil, err
	}
	exit, err := NewExitPolicy(logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:           cfg,
		logger:        logger,
		market:        market,
		exec:          exec,
		configs:       configs,
		analyses:      analyses,
		positions:     positions,
		notifier:      notifier,
		aggregator:    aggregator,
		entry:         entry,
		exit:          exit,
		inFlight:      make(map[string]bool),
		cooldownUntil: make(map[string]time.Time),
	}, nil
}

// Start runs the evaluation loop until the context is cancelled or a
// termination signal arrives.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info(ctx, "Starting bias engine...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		e.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	e.applyLeverage(ctx)
	e.restoreCooldowns(ctx)

	ticker := time.NewTicker(e.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info(ctx, "Bias engine stopped.")
			return nil
		case <-ticker.C:
			e.runTick(ctx)
		}
	}
}

// runTick evaluates all enabled symbols. Symbols are independent: one failed
// cycle never blocks the others, and a symbol still running from a previous
// tick is skipped (at most one evaluation per symbol in flight).
func (e *Engine) runTick(ctx context.Context) {
	coins, err := e.configs.FindEnabled(ctx)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to load enabled coin configs")
		return
	}

	var wg sync.WaitGroup
	for _, coin := range coins {
		if !e.claimSymbol(coin.Symbol) {
			e.logger.Debug(ctx, "Previous evaluation still running, skipping tick", map[string]interface{}{"symbol": coin.Symbol})
			continue
		}
		wg.Add(1)
		go func(coin *domain.CoinConfig) {
			defer wg.Done()
			defer e.releaseSymbol(coin.Symbol)
			if err := e.EvaluateSymbol(ctx, coin); err != nil {
				e.logger.Error(ctx, err, "Evaluation cycle failed", map[string]interface{}{"symbol": coin.Symbol})
			}
		}(coin)
	}
	wg.Wait()
}

// applyLeverage pushes each enabled symbol's configured leverage to the
// exchange. Sizing assumes the configured value, so a failure is loud: the
// symbol keeps the account's current leverage and the operator must reconcile.
func (e *Engine) applyLeverage(ctx context.Context) {
	coins, err := e.configs.FindEnabled(ctx)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to load enabled coin configs for leverage setup")
		return
	}
	for _, coin := range coins {
		lctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
		err := e.exec.SetLeverage(lctx, coin.Symbol, coin.Strategy.Capital.Leverage)
		cancel()
		if err != nil {
			e.logger.Error(ctx, err, "Failed to set leverage", map[string]interface{}{
				"symbol":         coin.Symbol,
				"targetLeverage": coin.Strategy.Capital.Leverage,
			})
			continue
		}
		e.logger.Info(ctx, "Leverage set", map[string]interface{}{
			"symbol":   coin.Symbol,
			"leverage": coin.Strategy.Capital.Leverage,
		})
	}
}

// restoreCooldowns re-seeds per-symbol entry cooldowns from the last persisted
// entry time, so a restart cannot re-enter inside an active cooldown window.
func (e *Engine) restoreCooldowns(ctx context.Context) {
	coins, err := e.configs.FindEnabled(ctx)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to load enabled coin configs for cooldown restore")
		return
	}
	now := time.Now().UTC()
	for _, coin := range coins {
		minutes := coin.Strategy.Entry.CooldownMin
		if minutes <= 0 {
			continue
		}
		last, err := e.positions.LastEntryTime(ctx, coin.Symbol)
		if err != nil {
			e.logger.Warn(ctx, "Failed to load last entry time, cooldown not restored", map[string]interface{}{"symbol": coin.Symbol, "error": err.Error()})
			continue
		}
		if last.IsZero() || !last.Add(time.Duration(minutes)*time.Minute).After(now) {
			continue
		}
		e.setCooldown(coin.Symbol, last, minutes)
		e.logger.Info(ctx, "Entry cooldown restored", map[string]interface{}{
			"symbol": coin.Symbol,
			"until":  e.cooldown(coin.Symbol),
		})
	}
}

func (e *Engine) claimSymbol(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[symbol] {
		return false
	}
	e.inFlight[symbol] = true
	return true
}

func (e *Engine) releaseSymbol(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, symbol)
}

// EvaluateSymbol runs one full evaluation cycle for a symbol: snapshot,
// modules, aggregation, persistence, then the exit path for open positions or
// the entry path when flat.
func (e *Engine) EvaluateSymbol(ctx context.Context, coin *domain.CoinConfig) error {
	if err := coin.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrConfigInvalid, err)
	}

	snap := e.fetchSnapshot(ctx, coin)
	if len(snap.Candles) == 0 {
		return fmt.Errorf("%w: no candles for %s", ports.ErrDataUnavailable, coin.Symbol)
	}

	results := e.runModules(ctx, coin, snap)
	a := e.aggregator.Aggregate(ctx, coin, snap.Time, results)

	id, err := e.analyses.Create(ctx, a)
	switch {
	case errors.Is(err, ports.ErrDuplicateEntry):
		// Already evaluated this (symbol, time); past analyses are immutable.
		e.logger.Debug(ctx, "Analysis already exists for cycle", map[string]interface{}{"symbol": coin.Symbol, "time": snap.Time})
		return nil
	case err != nil:
		return fmt.Errorf("failed to persist analysis: %w", err)
	}
	a.ID = id

	open, err := e.positions.FindOpenBySymbol(ctx, coin.Symbol)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}

	if len(open) > 0 {
		return e.runExits(ctx, coin, a, snap, open)
	}
	return e.runEntry(ctx, coin, a, snap)
}

// fetchSnapshot gathers all market-data feeds for a symbol. Every fetch
// carries a bounded timeout; a failed or timed-out fetch leaves its slice of
// the snapshot empty and the dependent modules degrade to unavailable.
func (e *Engine) fetchSnapshot(ctx context.Context, coin *domain.CoinConfig) *domain.Snapshot {
	snap := &domain.Snapshot{
		Symbol:    coin.Symbol,
		Timeframe: coin.Timeframe,
	}

	fetch := func(op string, fn func(context.Context) error) {
		fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()
		if err := fn(fctx); err != nil {
			e.logger.Warn(ctx, "Feed fetch failed, dependent modules degrade", map[string]interface{}{
				"symbol": coin.Symbol,
				"feed":   op,
				"error":  err.Error(),
			})
		}
	}

	fetch("klines", func(fctx context.Context) error {
		klines, err := e.market.GetKlines(fctx, coin.Symbol, coin.Timeframe, e.cfg.CandleLimit)
		if err != nil {
			return err
		}
		snap.Candles = klines
		return nil
	})
	fetch("higherKlines", func(fctx context.Context) error {
		klines, err := e.market.GetKlines(fctx, coin.Symbol, coin.Analysis.HigherMA.Timeframe, e.cfg.HigherCandleLimit)
		if err != nil {
			return err
		}
		snap.HigherCandles = klines
		return nil
	})
	fetch("book", func(fctx context.Context) error {
		book, err := e.market.GetBookWindow(fctx, coin.Symbol)
		if err != nil {
			return err
		}
		snap.Book = book
		return nil
	})
	fetch("openInterest", func(fctx context.Context) error {
		points, err := e.market.GetOpenInterest(fctx, coin.Symbol, coin.Analysis.OpenInterest.Window)
		if err != nil {
			return err
		}
		snap.OpenInterest = points
		return nil
	})
	fetch("liquidations", func(fctx context.Context) error {
		since := time.Now().Add(-time.Duration(coin.Analysis.Liquidations.WindowMin) * time.Minute)
		events, err := e.market.GetLiquidations(fctx, coin.Symbol, since)
		if err != nil {
			return err
		}
		snap.Liquidations = events
		return nil
	})
	fetch("longShort", func(fctx context.Context) error {
		points, err := e.market.GetLongShortRatio(fctx, coin.Symbol, coin.Analysis.LongShort.Window)
		if err != nil {
			return err
		}
		snap.LongShort = points
		return nil
	})
	fetch("markPrice", func(fctx context.Context) error {
		price, err := e.market.GetMarkPrice(fctx, coin.Symbol)
		if err != nil {
			return err
		}
		snap.MarkPrice = price
		return nil
	})

	// The exchange's open-interest statistics carry no price; the divergence
	// module needs one per point, so fill it from the candle series.
	backfillOpenInterestPrices(snap.OpenInterest, snap.Candles)

	// The cycle timestamp is the close of the latest candle so repeated
	// evaluations of the same candle collide on the (symbol, time) key.
	if n := len(snap.Candles); n > 0 {
		snap.Time = snap.Candles[n-1].CloseTime
	} else {
		snap.Time = time.Now().UTC()
	}
	return snap
}

// backfillOpenInterestPrices sets each point's reference price to the close of
// the candle covering its timestamp. Points older than the first candle keep a
// zero price and the module treats them as unavailable.
func backfillOpenInterestPrices(points []domain.OpenInterestPoint, candles []*domain.Kline) {
	for i := range points {
		if points[i].Price > 0 {
			continue
		}
		points[i].Price = closeAt(candles, points[i].Time)
	}
}

// closeAt returns the close of the last candle opened at or before t.
// Candles ascend by time.
func closeAt(candles []*domain.Kline, t time.Time) float64 {
	var price float64
	for _, k := range candles {
		if k.OpenTime.After(t) {
			break
		}
		price = k.Close
	}
	return price
}

// runModules evaluates all analysis modules of a symbol in parallel over the
// same immutable snapshot. A module error degrades that module to unavailable;
// it never fails the cycle.
func (e *Engine) runModules(ctx context.Context, coin *domain.CoinConfig, snap *domain.Snapshot) map[domain.ModuleName]*domain.ModuleResult {
	results := make(map[domain.ModuleName]*domain.ModuleResult)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, mod := range analysis.Build(coin) {
		mod := mod
		g.Go(func() error {
			res, err := mod.Evaluate(gctx, snap)
			if err != nil {
				e.logger.Warn(gctx, "Module evaluation failed, treating as unavailable", map[string]interface{}{
					"symbol": coin.Symbol,
					"module": mod.Name(),
					"error":  err.Error(),
				})
				res = nil
			}
			mu.Lock()
			results[mod.Name()] = res
			mu.Unlock()
			return nil
		})
	}
	// Errors are absorbed per module; Wait only synchronizes.
	_ = g.Wait()
	return results
}

// runExits evaluates the exit state machine for every open position of the
// symbol, then considers DCA adds for positions that stayed open.
func (e *Engine) runExits(ctx context.Context, coin *domain.CoinConfig, a *domain.Analysis, snap *domain.Snapshot, open []*domain.Position) error {
	recentLimit := coin.Strategy.Exit.OppositeCount
	if recentLimit < 5 {
		recentLimit = 5
	}
	recent, err := e.analyses.FindRecent(ctx, coin.Symbol, recentLimit)
	if err != nil {
		e.logger.Warn(ctx, "Failed to load recent analyses, opposite-count exit degraded", map[string]interface{}{"symbol": coin.Symbol, "error": err.Error()})
		recent = nil
	}

	last := snap.Candles[len(snap.Candles)-1]
	ec := &ExitContext{
		Cfg:      coin,
		Analysis: a,
		Recent:   recent,
		Price:    snap.LastPrice(),
		High:     last.High,
		Low:      last.Low,
		ATR:      e.currentATR(coin, snap),
		Now:      time.Now().UTC(),
	}

	for _, pos := range open {
		outcome, err := e.exit.Evaluate(ctx, pos, ec)
		if err != nil {
			e.logger.Error(ctx, err, "Exit evaluation failed", map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol})
			continue
		}

		if outcome.Mutated {
			if err := e.persistPosition(ctx, pos); err != nil {
				// Conflict or write failure: leave the shared state alone and
				// re-evaluate against fresh state next tick.
				continue
			}
		}

		if outcome.Closed {
			e.settleClose(ctx, pos, outcome)
			continue
		}

		// DCA add path for positions that stayed open.
		if e.entry.ShouldAdd(coin, pos, ec.Price) {
			e.applyAdd(ctx, coin, pos, ec)
		}
	}
	return nil
}

// persistPosition updates a position, surfacing concurrency conflicts.
func (e *Engine) persistPosition(ctx context.Context, pos *domain.Position) error {
	err := e.positions.Update(ctx, pos)
	if errors.Is(err, ports.ErrConcurrencyConflict) {
		fields := map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol, "localVersion": pos.Version}
		if fresh, ferr := e.positions.FindByID(ctx, pos.ID); ferr == nil && fresh != nil {
			fields["storedVersion"] = fresh.Version
		}
		e.logger.Warn(ctx, "Position modified concurrently, deferring to fresh state", fields)
		return err
	}
	if err != nil {
		e.logger.Error(ctx, err, "Failed to persist position", map[string]interface{}{"positionID": pos.ID})
		return err
	}
	return nil
}

// settleClose executes the closing market order, cancels the protective stop,
// and emits the position-closed notification. Close-side execution failures
// are retried with backoff and alerted on final failure: exposure left open
// must never fail silently.
func (e *Engine) settleClose(ctx context.Context, pos *domain.Position, outcome ExitOutcome) {
	if pos.Size > 0 {
		err := e.withCloseRetry(ctx, "close order", pos.Symbol, func(actx context.Context) error {
			_, err := e.exec.PlaceMarketOrder(actx, pos.Symbol, pos.Side.CloseOrderSide(), formatQuantity(pos.Size, pos.Meta.QtyPrecision), NewClientOrderID())
			return err
		})
		if err != nil {
			e.alert(ctx, pos.Symbol, fmt.Sprintf("failed to execute closing order for position %d: %v", pos.ID, err))
		}
	}

	if pos.StopOrderID != 0 {
		// A dangling stop order after a close is a safety hazard.
		err := e.withCloseRetry(ctx, "cancel stop order", pos.Symbol, func(actx context.Context) error {
			_, err := e.exec.CancelOrder(actx, pos.Symbol, pos.StopOrderID)
			if errors.Is(err, ports.ErrOrderNotFound) {
				return nil // Already gone
			}
			return err
		})
		if err != nil {
			e.alert(ctx, pos.Symbol, fmt.Sprintf("failed to cancel stop order %d for position %d: %v", pos.StopOrderID, pos.ID, err))
		}
	}

	event := ports.PositionClosedEvent{
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		Size:        pos.InitialSize,
		Leverage:    pos.Meta.Leverage,
		StopPrice:   pos.StopPrice,
		TakeProfits: pos.TakeProfits,
		ClosedBy:    pos.ClosedBy,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    pos.ClosedAt,
		FinalPnl:    pos.FinalPnl,
	}
	if err := e.notifier.PositionClosed(ctx, event); err != nil {
		e.logger.Error(ctx, err, "Failed to deliver position-closed notification", map[string]interface{}{"positionID": pos.ID})
	}
}

// withCloseRetry retries a close-side execution call with exponential backoff.
// Entry-side calls never use this: a failed entry is not retried.
func (e *Engine) withCloseRetry(ctx context.Context, op, symbol string, fn func(context.Context) error) error {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxCloseAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
		lastErr = fn(actx)
		cancel()
		if lastErr == nil {
			return nil
		}
		e.logger.Warn(ctx, "Close-side execution failed, retrying", map[string]interface{}{
			"operation": op,
			"symbol":    symbol,
			"attempt":   attempt,
			"error":     lastErr.Error(),
		})
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
		}
	}
	return fmt.Errorf("%w: %s exhausted %d attempts: %w", ports.ErrExecutionFailed, op, e.cfg.MaxCloseAttempts, lastErr)
}

func (e *Engine) alert(ctx context.Context, symbol, msg string) {
	e.logger.Error(ctx, errors.New(msg), "ALERT", map[string]interface{}{"symbol": symbol})
	if err := e.notifier.Alert(ctx, symbol, msg); err != nil {
		e.logger.Error(ctx, err, "Failed to deliver alert", map[string]interface{}{"symbol": symbol})
	}
}

// applyAdd executes one DCA add and blends it into the position.
func (e *Engine) applyAdd(ctx context.Context, coin *domain.CoinConfig, pos *domain.Position, ec *ExitContext) {
	qty := e.entry.AddQty(coin, pos, ec.Price)
	if qty <= 0 {
		return
	}

	octx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()
	order, err := e.exec.PlaceMarketOrder(octx, pos.Symbol, pos.Side.OrderSide(), formatQuantity(qty, pos.Meta.QtyPrecision), NewClientOrderID())
	if err != nil {
		// Adds are entry-side: one attempt, no retry.
		e.logger.Error(ctx, err, "DCA add order failed", map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol})
		return
	}

	price := order.AvgPrice
	if price == 0 {
		price = ec.Price
	}
	oldEntry := pos.EntryPrice
	pos.BlendAdd(domain.Add{Price: price, Qty: qty, Time: ec.Now})
	pos.Append(domain.Adjustment{
		ID:       NewClientOrderID(),
		Type:     domain.AdjustAdd,
		Time:     ec.Now,
		Reason:   fmt.Sprintf("adverse move add %d/%d", len(pos.Adds), coin.Strategy.DCA.MaxAdds),
		OldValue: oldEntry,
		NewValue: pos.EntryPrice,
	})
	if err := e.persistPosition(ctx, pos); err == nil {
		e.logger.Info(ctx, "DCA add applied", map[string]interface{}{
			"positionID": pos.ID,
			"symbol":     pos.Symbol,
			"qty":        qty,
			"newEntry":   pos.EntryPrice,
		})
	}
}

// runEntry applies the entry policy when the symbol is flat.
func (e *Engine) runEntry(ctx context.Context, coin *domain.CoinConfig, a *domain.Analysis, snap *domain.Snapshot) error {
	if a.Decision == domain.DecisionNoTrade {
		return nil
	}

	now := time.Now().UTC()
	spreadPct, spreadKnown := 0.0, false
	if snap.Book != nil {
		spreadPct, spreadKnown = snap.Book.SpreadPct()
	}

	// The global position count is read and acted on under one lock so
	// concurrent symbol evaluations cannot overshoot the cap together.
	e.entryMu.Lock()
	defer e.entryMu.Unlock()

	openCount, err := e.positions.CountOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to count open positions: %w", err)
	}

	state := EntryState{
		Now:           now,
		CooldownUntil: e.cooldown(coin.Symbol),
		SpreadPct:     spreadPct,
		SpreadKnown:   spreadKnown,
		OpenPositions: openCount,
	}
	side, ok, reason := e.entry.ShouldEnter(ctx, coin, a, state)
	if !ok {
		e.logger.Debug(ctx, "Entry rejected", map[string]interface{}{"symbol": coin.Symbol, "reason": reason})
		return nil
	}

	price := snap.LastPrice()
	atr := e.currentATR(coin, snap)
	stopPrice, err := StopPrice(coin, side, price, atr)
	if err != nil {
		return fmt.Errorf("cannot derive stop price: %w", err)
	}

	bctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	balance, err := e.exec.GetAccountBalance(bctx, e.cfg.QuoteAsset)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to fetch account balance: %w", err)
	}

	qty, err := e.entry.Size(coin, balance, price, stopPrice)
	if err != nil {
		return fmt.Errorf("sizing failed: %w", err)
	}

	// Entry order: one attempt only. Failure puts the symbol on cooldown.
	octx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	order, err := e.exec.PlaceMarketOrder(octx, coin.Symbol, side.OrderSide(), formatQuantity(qty, coin.Precision.Quantity), NewClientOrderID())
	cancel()
	if err != nil {
		e.setCooldown(coin.Symbol, now, coin.Strategy.Entry.CooldownMin)
		return fmt.Errorf("entry order failed: %w", err)
	}

	entryPrice := order.AvgPrice
	if entryPrice == 0 {
		e.logger.Warn(ctx, "Entry order AvgPrice is 0, using snapshot price as fallback", map[string]interface{}{"orderID": order.OrderID, "fallbackPrice": price})
		entryPrice = price
	}

	pos, err := e.entry.BuildPosition(coin, side, entryPrice, order.ExecutedQty, atr, a.ID, now)
	if err != nil {
		return fmt.Errorf("failed to build position: %w", err)
	}
	if pos.Size == 0 {
		pos.Size = qty
		pos.InitialSize = qty
	}

	id, err := e.positions.Create(ctx, pos)
	if err != nil {
		e.alert(ctx, coin.Symbol, fmt.Sprintf("position opened on exchange but persistence failed: %v", err))
		return fmt.Errorf("failed to persist position: %w", err)
	}
	pos.ID = id

	e.placeProtectiveStop(ctx, pos)
	e.setCooldown(coin.Symbol, now, coin.Strategy.Entry.CooldownMin)

	e.logger.Info(ctx, "Position opened", map[string]interface{}{
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"side":       pos.Side,
		"entryPrice": pos.EntryPrice,
		"size":       pos.Size,
		"stopPrice":  pos.StopPrice,
		"takeProfit": len(pos.TakeProfits),
	})
	return nil
}

// placeProtectiveStop places the exchange-side stop order for a new position.
// A placement failure triggers an immediate protective close: an unprotected
// position must not stay open.
func (e *Engine) placeProtectiveStop(ctx context.Context, pos *domain.Position) {
	octx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	resp, err := e.exec.PlaceStopMarketOrder(octx, pos.Symbol, pos.Side.CloseOrderSide(), formatQuantity(pos.Size, pos.Meta.QtyPrecision), formatPrice(pos.StopPrice, pos.Meta.PricePrecision))
	cancel()
	if err == nil {
		pos.StopOrderID = resp.OrderID
		_ = e.persistPosition(ctx, pos)
		return
	}

	e.logger.Error(ctx, err, "Stop order placement failed, closing unprotected position", map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol})
	closeErr := e.withCloseRetry(ctx, "emergency close", pos.Symbol, func(actx context.Context) error {
		_, err := e.exec.PlaceMarketOrder(actx, pos.Symbol, pos.Side.CloseOrderSide(), formatQuantity(pos.Size, pos.Meta.QtyPrecision), NewClientOrderID())
		return err
	})
	if closeErr != nil {
		e.alert(ctx, pos.Symbol, fmt.Sprintf("EMERGENCY CLOSE FAILED for unprotected position %d: %v", pos.ID, closeErr))
		return
	}
	if err := pos.Close(pos.EntryPrice, domain.ClosedBySystem, time.Now().UTC()); err == nil {
		_ = e.persistPosition(ctx, pos)
	}
	e.alert(ctx, pos.Symbol, fmt.Sprintf("position %d closed immediately: stop order could not be placed", pos.ID))
}

func (e *Engine) cooldown(symbol string) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cooldownUntil[symbol]
}

func (e *Engine) setCooldown(symbol string, from time.Time, minutes int) {
	if minutes <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldownUntil[symbol] = from.Add(time.Duration(minutes) * time.Minute)
}

// currentATR computes the ATR the stop policy needs, 0 when not applicable or
// not computable.
func (e *Engine) currentATR(coin *domain.CoinConfig, snap *domain.Snapshot) float64 {
	stop := coin.Strategy.Exit.Stop
	if stop.Type != domain.StopATR {
		return 0
	}
	atr, err := indicators.ATR(snap.Candles, stop.ATRPeriod)
	if err != nil {
		return 0
	}
	return atr
}

// Fallback decimal precision for symbols whose config leaves it unset.
const (
	defaultPriceDecimals = 2
	defaultQtyDecimals   = 3
)

// formatPrice formats a price for the exchange API at the symbol's precision.
func formatPrice(price float64, decimals int) string {
	if decimals <= 0 {
		decimals = defaultPriceDecimals
	}
	return strconv.FormatFloat(price, 'f', decimals, 64)
}

// formatQuantity formats a quantity for the exchange API at the symbol's
// precision.
func formatQuantity(quantity float64, decimals int) string {
	if decimals <= 0 {
		decimals = defaultQtyDecimals
	}
	return strconv.FormatFloat(quantity, 'f', decimals, 64)
}
