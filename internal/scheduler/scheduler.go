// Package scheduler scans for due subscriptions and dispatches their
// execution cycles. Dispatch is guarded by an optimistic next_run_at
// update so overlapping scans (slow ticks, multiple instances sharing
// a store) never run the same cycle twice.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"botcore/pkg/db"
)

// DispatchFunc runs one execution cycle for a claimed subscription.
type DispatchFunc func(ctx context.Context, sub db.Subscription)

// Config wires a Scheduler.
type Config struct {
	Store    *db.Database
	Dispatch DispatchFunc
	Tick     time.Duration
	PoolSize int
	Now      func() time.Time // defaults to time.Now
}

// Scheduler owns the tick loop and a bounded dispatch pool.
type Scheduler struct {
	store    *db.Database
	dispatch DispatchFunc
	tick     time.Duration
	pool     chan struct{}
	now      func() time.Time
	wg       sync.WaitGroup
}

// New creates a scheduler from config.
func New(cfg Config) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	return &Scheduler{
		store:    cfg.Store,
		dispatch: cfg.Dispatch,
		tick:     cfg.Tick,
		pool:     make(chan struct{}, cfg.PoolSize),
		now:      cfg.Now,
	}
}

// Run ticks until ctx is cancelled, then waits for in-flight cycles.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("scheduler: started (tick=%s pool=%d)", s.tick, cap(s.pool))
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopping, draining in-flight cycles")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

// scan claims and dispatches every due subscription it can. Store
// errors fail closed: nothing dispatches on a scan we cannot trust.
func (s *Scheduler) scan(ctx context.Context) {
	now := s.now()

	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		log.Printf("scheduler: due scan failed, skipping tick: %v", err)
		return
	}

	for i, sub := range due {
		interval, err := Interval(sub.Timeframe)
		if err != nil {
			log.Printf("scheduler: faulting subscription %s: %v", sub.ID, err)
			if ferr := s.store.MarkFaulted(ctx, sub.ID, err.Error()); ferr != nil {
				log.Printf("scheduler: mark faulted %s: %v", sub.ID, ferr)
			}
			continue
		}

		// Take a pool slot before claiming so a saturated pool leaves
		// the subscription due for the next tick instead of advancing
		// its schedule with no one to run it.
		select {
		case s.pool <- struct{}{}:
		default:
			log.Printf("scheduler: worker pool saturated, deferring %d due subscriptions", len(due)-i)
			return
		}

		claimed, err := s.store.AdvanceNextRun(ctx, sub.ID, sub.NextRunAt, nextAfter(sub.NextRunAt, interval, now))
		if err != nil {
			<-s.pool
			log.Printf("scheduler: claim %s failed, skipping: %v", sub.ID, err)
			continue
		}
		if !claimed {
			// Another scan got here first.
			<-s.pool
			continue
		}

		if err := s.store.MarkDispatched(ctx, sub.ID, now); err != nil {
			log.Printf("scheduler: stamp last_run_at %s: %v", sub.ID, err)
		}

		s.wg.Add(1)
		go func(sub db.Subscription) {
			defer s.wg.Done()
			defer func() { <-s.pool }()
			s.dispatch(ctx, sub)
		}(sub)
	}
}
