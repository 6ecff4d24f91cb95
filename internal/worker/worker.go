// Package worker runs one execution cycle per dispatched subscription:
// lease, risk pre-check, strategy decision, risk gate, order placement,
// persistence, release. Every external call carries a deadline and
// every failure path leaves no partial state behind.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"botcore/internal/events"
	"botcore/internal/lock"
	"botcore/internal/risk"
	"botcore/internal/strategy"
	"botcore/pkg/db"
	"botcore/pkg/exchange"
)

// Config wires a Worker.
type Config struct {
	Store      *db.Database
	Locker     lock.Locker
	Registry   *strategy.Registry
	Resolver   *exchange.Resolver
	Market     exchange.MarketData
	Bus        *events.Bus
	LockTTL    time.Duration
	CallWindow time.Duration // deadline per exchange call
	Retries    int           // attempts per transient exchange failure
	Now        func() time.Time
}

// Worker executes subscription cycles.
type Worker struct {
	store      *db.Database
	locker     lock.Locker
	registry   *strategy.Registry
	resolver   *exchange.Resolver
	market     exchange.MarketData
	bus        *events.Bus
	lockTTL    time.Duration
	callWindow time.Duration
	retries    int
	now        func() time.Time
}

// New creates a worker from config.
func New(cfg Config) *Worker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.CallWindow <= 0 {
		cfg.CallWindow = 10 * time.Second
	}
	return &Worker{
		store:      cfg.Store,
		locker:     cfg.Locker,
		registry:   cfg.Registry,
		resolver:   cfg.Resolver,
		market:     cfg.Market,
		bus:        cfg.Bus,
		lockTTL:    cfg.LockTTL,
		callWindow: cfg.CallWindow,
		retries:    cfg.Retries,
		now:        cfg.Now,
	}
}

// Run executes one full cycle and records it in cycle_logs. It is the
// scheduler's DispatchFunc.
func (w *Worker) Run(ctx context.Context, sub db.Subscription) {
	started := w.now()
	cycleID := uuid.NewString()
	if err := w.store.StartCycle(ctx, db.CycleLog{
		ID:             cycleID,
		SubscriptionID: sub.ID,
		StartedAt:      started,
	}); err != nil {
		log.Printf("worker: start cycle for %s: %v", sub.ID, err)
		return
	}

	outcome, detail := w.cycle(ctx, sub)

	// Finish the log even when ctx was cancelled mid-cycle.
	finishCtx := context.WithoutCancel(ctx)
	if err := w.store.FinishCycle(finishCtx, cycleID, outcome, detail, w.now()); err != nil {
		log.Printf("worker: finish cycle %s: %v", cycleID, err)
	}

	if w.bus != nil {
		w.bus.Publish(events.Message{
			Event:          events.EventCycleFinished,
			SubscriptionID: sub.ID,
			CycleID:        cycleID,
			Outcome:        outcome,
			Reason:         detail,
		})
	}
	log.Printf("worker: %s cycle %s -> %s %s", sub.ID, cycleID, outcome, detail)
}

func (w *Worker) cycle(ctx context.Context, sub db.Subscription) (outcome, detail string) {
	token, acquired, err := w.locker.Acquire(ctx, sub.ID, w.lockTTL)
	if err != nil {
		return db.CycleError, fmt.Sprintf("acquire lock: %v", err)
	}
	if !acquired {
		return db.CycleSkippedLock, "execution lock held elsewhere"
	}
	defer func() {
		if err := w.locker.Release(context.WithoutCancel(ctx), sub.ID, token); err != nil {
			log.Printf("worker: release lock %s: %v", sub.ID, err)
		}
	}()

	now := w.now()

	riskCfg, err := risk.ParseConfig(sub.RiskConfig)
	if err != nil {
		return w.fault(ctx, sub.ID, err)
	}
	params, err := parseParams(sub.StrategyParams)
	if err != nil {
		return w.fault(ctx, sub.ID, err)
	}
	strat, err := w.registry.Resolve(sub.StrategyType)
	if err != nil {
		return w.fault(ctx, sub.ID, err)
	}
	adapter, err := w.resolver.Adapter(sub.ExchangeType)
	if err != nil {
		return w.fault(ctx, sub.ID, err)
	}
	creds, err := exchange.CredentialsFor(sub.CredentialsRef)
	if err != nil {
		return w.fault(ctx, sub.ID, err)
	}

	state, err := w.store.GetRiskState(ctx, sub.ID, now)
	if err != nil {
		return db.CycleError, fmt.Sprintf("load risk state: %v", err)
	}
	if risk.CooldownActive(state, now) {
		w.riskAlert(sub.ID, "cooldown active")
		return db.CyclePausedRisk, "cooldown active until " + state.CooldownUntil.UTC().Format(time.RFC3339)
	}

	var balance exchange.Balance
	err = w.withRetry(ctx, func(callCtx context.Context) error {
		var e error
		balance, e = adapter.AccountBalance(callCtx, creds)
		return e
	})
	if err != nil {
		return db.CycleError, fmt.Sprintf("account balance: %v", err)
	}

	if riskCfg.MaxDailyLossPct > 0 && balance.Total > 0 &&
		state.DailyPnL <= -riskCfg.MaxDailyLossPct*balance.Total {
		w.riskAlert(sub.ID, "daily loss limit reached")
		return db.CyclePausedRisk, fmt.Sprintf("daily loss %.2f at limit", state.DailyPnL)
	}

	var snap exchange.Snapshot
	err = w.withRetry(ctx, func(callCtx context.Context) error {
		var e error
		snap, e = w.market.Snapshot(callCtx, sub.Symbol)
		return e
	})
	if err != nil {
		return db.CycleError, fmt.Sprintf("market snapshot: %v", err)
	}

	sig, err := strat.Decide(ctx, snap, params)
	if err != nil {
		return db.CycleError, fmt.Sprintf("strategy decide: %v", err)
	}
	if sig.Hold() {
		return db.CycleHold, ""
	}

	open, err := w.store.ListOpenBySubscription(ctx, sub.ID)
	if err != nil {
		return db.CycleError, fmt.Sprintf("list open positions: %v", err)
	}
	var exposure float64
	for _, p := range open {
		exposure += p.EntryPrice * p.Quantity
	}

	decision := risk.Evaluate(risk.Input{
		Now:      now,
		Signal:   sig,
		Snapshot: snap,
		Account:  risk.Account{Balance: balance.Total, Exposure: exposure},
		State:    state,
		Config:   riskCfg,
	})
	if !decision.Approved {
		w.riskAlert(sub.ID, decision.Reason)
		return db.CycleRejected, decision.Reason
	}
	for _, warn := range decision.Warnings {
		log.Printf("worker: %s risk warning: %s", sub.ID, warn)
	}

	side := db.SideLong
	if sig.Action == strategy.ActionSell {
		side = db.SideShort
	}
	req := exchange.OrderRequest{
		Symbol:     sub.Symbol,
		Side:       side,
		Quantity:   decision.Quantity,
		Price:      snap.Price,
		StopLoss:   decision.StopLoss,
		TakeProfit: decision.TakeProfit,
	}

	var result exchange.OrderResult
	err = w.withRetry(ctx, func(callCtx context.Context) error {
		var e error
		result, e = adapter.PlaceOrder(callCtx, creds, req)
		return e
	})
	if err != nil {
		// Venue rejection or exhausted retries: no position row exists.
		return db.CycleError, fmt.Sprintf("place order: %v", err)
	}

	pos := db.Position{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		Symbol:         sub.Symbol,
		Side:           side,
		EntryPrice:     result.FillPrice,
		Quantity:       decision.Quantity,
		Leverage:       decision.Leverage,
		StopLoss:       decision.StopLoss,
		TakeProfit:     decision.TakeProfit,
		Status:         db.PositionOpen,
		LastPrice:      result.FillPrice,
		Fees:           result.Fee,
		EntryTime:      w.now(),
	}
	if err := w.store.CreatePosition(ctx, pos); err != nil {
		// The venue holds a position we failed to record; the
		// reconciler will not close it (no row), so flag loudly.
		log.Printf("worker: CRITICAL persist position for order %s: %v", result.OrderID, err)
		return db.CycleError, fmt.Sprintf("persist position: %v", err)
	}

	if w.bus != nil {
		w.bus.Publish(events.Message{
			Event:          events.EventOrderPlaced,
			SubscriptionID: sub.ID,
			PositionID:     pos.ID,
			Symbol:         pos.Symbol,
			Side:           pos.Side,
			Quantity:       pos.Quantity,
			Price:          result.FillPrice,
		})
	}
	return db.CycleOrderPlaced, fmt.Sprintf("order %s filled at %.2f", result.OrderID, result.FillPrice)
}

// fault removes the subscription from dispatch and reports the cycle
// as errored. Fatal configuration problems only.
func (w *Worker) fault(ctx context.Context, subID string, cause error) (string, string) {
	if err := w.store.MarkFaulted(ctx, subID, cause.Error()); err != nil {
		log.Printf("worker: mark faulted %s: %v", subID, err)
	}
	return db.CycleError, "faulted: " + cause.Error()
}

func (w *Worker) riskAlert(subID, reason string) {
	if w.bus != nil {
		w.bus.Publish(events.Message{
			Event:          events.EventRiskAlert,
			SubscriptionID: subID,
			Reason:         reason,
		})
	}
}

// withRetry runs one exchange call with a per-attempt deadline,
// retrying transient failures with exponential backoff. Non-transient
// failures (venue rejections) return immediately.
func (w *Worker) withRetry(ctx context.Context, call func(context.Context) error) error {
	backoff := 200 * time.Millisecond
	var err error
	for attempt := 0; attempt < w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, w.callWindow)
		err = call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !exchange.IsTransient(err) {
			return err
		}
	}
	return fmt.Errorf("retries exhausted: %w", err)
}

// parseParams decodes the stored strategy_params JSON. Empty means no
// parameters; malformed is a fatal configuration error.
func parseParams(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("parse strategy params: %w", err)
	}
	return params, nil
}
