// Package reconciler converges stored positions with exchange reality.
// It runs on its own cadence, independent of the scheduler: marks and
// unrealized pnl refresh while a position lives, and a position the
// venue no longer reports gets finalized exactly once.
package reconciler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"botcore/internal/events"
	"botcore/internal/risk"
	"botcore/pkg/db"
	"botcore/pkg/exchange"
)

// Config wires a Reconciler.
type Config struct {
	Store      *db.Database
	Resolver   *exchange.Resolver
	Bus        *events.Bus
	Interval   time.Duration
	Tolerance  float64 // relative tolerance for SL/TP exit matching
	FeeRate    float64 // estimated taker fee, decimal
	CallWindow time.Duration
	Now        func() time.Time
}

// Reconciler drives periodic convergence passes.
type Reconciler struct {
	store      *db.Database
	resolver   *exchange.Resolver
	bus        *events.Bus
	interval   time.Duration
	tolerance  float64
	feeRate    float64
	callWindow time.Duration
	now        func() time.Time
}

// New creates a reconciler from config.
func New(cfg Config) *Reconciler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 0.001
	}
	if cfg.CallWindow <= 0 {
		cfg.CallWindow = 10 * time.Second
	}
	return &Reconciler{
		store:      cfg.Store,
		resolver:   cfg.Resolver,
		bus:        cfg.Bus,
		interval:   cfg.Interval,
		tolerance:  cfg.Tolerance,
		feeRate:    cfg.FeeRate,
		callWindow: cfg.CallWindow,
		now:        cfg.Now,
	}
}

// Run reconciles until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	log.Printf("reconciler: started (interval=%s tolerance=%.4f)", r.interval, r.tolerance)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopping")
			return
		case <-ticker.C:
			r.Pass(ctx)
		}
	}
}

// Pass reconciles every subscription holding open positions. One
// subscription's failure never blocks its siblings.
func (r *Reconciler) Pass(ctx context.Context) {
	subs, err := r.store.ListWithOpenPositions(ctx)
	if err != nil {
		log.Printf("reconciler: list working set: %v", err)
		return
	}
	for _, sub := range subs {
		if err := r.reconcile(ctx, sub); err != nil {
			log.Printf("reconciler: %s: %v", sub.ID, err)
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context, sub db.Subscription) error {
	open, err := r.store.ListOpenBySubscription(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	adapter, err := r.resolver.Adapter(sub.ExchangeType)
	if err != nil {
		return err
	}
	creds, err := exchange.CredentialsFor(sub.CredentialsRef)
	if err != nil {
		return err
	}

	symbols := make([]string, 0, len(open))
	seen := make(map[string]bool, len(open))
	for _, p := range open {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}

	// One venue call per subscription per pass.
	callCtx, cancel := context.WithTimeout(ctx, r.callWindow)
	venuePositions, err := adapter.OpenPositions(callCtx, creds, symbols)
	cancel()
	if err != nil {
		return fmt.Errorf("venue open positions: %w", err)
	}

	byKey := make(map[string]exchange.VenuePosition, len(venuePositions))
	for _, v := range venuePositions {
		byKey[strings.ToUpper(v.Symbol)+"|"+v.Side] = v
	}

	for _, p := range open {
		v, live := byKey[strings.ToUpper(p.Symbol)+"|"+p.Side]
		switch {
		case live && v.Liquidated:
			r.finalize(ctx, sub, p, db.ExitLiquidation, v.MarkPrice)
		case live && v.Quantity > 0:
			if err := r.mark(ctx, p, v.MarkPrice); err != nil {
				log.Printf("reconciler: mark %s: %v", p.ID, err)
			}
		default:
			reason, exitPrice := inferExit(p, r.tolerance)
			r.finalize(ctx, sub, p, reason, exitPrice)
		}
	}
	return nil
}

func (r *Reconciler) mark(ctx context.Context, p db.Position, price float64) error {
	unrealized := grossPnL(p, price) - price*p.Quantity*r.feeRate
	return r.store.UpdateMark(ctx, p.ID, price, unrealized)
}

// finalize performs the one-time close and folds the realized result
// into the subscription's risk state.
func (r *Reconciler) finalize(ctx context.Context, sub db.Subscription, p db.Position, reason string, exitPrice float64) {
	now := r.now()
	exitFee := exitPrice * p.Quantity * r.feeRate
	realized := grossPnL(p, exitPrice) - exitFee

	closed, err := r.store.ClosePosition(ctx, p.ID, db.ExitFill{
		Price:       exitPrice,
		Time:        now,
		Reason:      reason,
		RealizedPnL: realized,
		Fees:        p.Fees + exitFee,
	})
	if err != nil {
		log.Printf("reconciler: close %s: %v", p.ID, err)
		return
	}
	if !closed {
		// Another pass finalized it first.
		log.Printf("reconciler: position %s already closed, skipping", p.ID)
		return
	}

	log.Printf("reconciler: closed %s %s %s at %.2f (%s, pnl %.2f, held %s)",
		sub.ID, p.Side, p.Symbol, exitPrice, reason, realized, now.Sub(p.EntryTime).Round(time.Second))

	cfg, err := risk.ParseConfig(sub.RiskConfig)
	if err != nil {
		log.Printf("reconciler: risk config %s: %v", sub.ID, err)
		cfg = risk.DefaultConfig()
	}
	state, err := r.store.GetRiskState(ctx, sub.ID, now)
	if err != nil {
		log.Printf("reconciler: load risk state %s: %v", sub.ID, err)
		return
	}
	risk.ApplyFill(&state, realized, now, cfg)
	state.SubscriptionID = sub.ID
	if err := r.store.SaveRiskState(ctx, state); err != nil {
		log.Printf("reconciler: save risk state %s: %v", sub.ID, err)
	}

	if r.bus != nil {
		r.bus.Publish(events.Message{
			Event:          events.EventPositionClosed,
			SubscriptionID: sub.ID,
			PositionID:     p.ID,
			Symbol:         p.Symbol,
			Side:           p.Side,
			Reason:         reason,
			Price:          exitPrice,
			PnL:            realized,
		})
	}
}

// grossPnL is direction-aware pnl before fees.
func grossPnL(p db.Position, price float64) float64 {
	sign := 1.0
	if p.Side == db.SideShort {
		sign = -1.0
	}
	return (price - p.EntryPrice) * p.Quantity * sign
}

// inferExit names the reason a position vanished from the venue,
// judged against the stored stop-loss/take-profit levels and the last
// observed price. Take-profit is checked first; a price beyond both
// levels resolves by the side it travelled; a price between them means
// someone closed the position by hand. A position that was never
// marked carries no price information, so the exit is UNKNOWN and
// settles at entry.
func inferExit(p db.Position, tolerance float64) (reason string, exitPrice float64) {
	last := p.LastPrice
	if last <= 0 {
		return db.ExitUnknown, p.EntryPrice
	}

	if p.Side == db.SideLong {
		if p.TakeProfit > 0 && last >= p.TakeProfit*(1-tolerance) {
			return db.ExitTakeProfit, p.TakeProfit
		}
		if p.StopLoss > 0 && last <= p.StopLoss*(1+tolerance) {
			return db.ExitStopLoss, p.StopLoss
		}
		return db.ExitManual, last
	}

	// Short: take-profit sits below entry, stop-loss above.
	if p.TakeProfit > 0 && last <= p.TakeProfit*(1+tolerance) {
		return db.ExitTakeProfit, p.TakeProfit
	}
	if p.StopLoss > 0 && last >= p.StopLoss*(1-tolerance) {
		return db.ExitStopLoss, p.StopLoss
	}
	return db.ExitManual, last
}
