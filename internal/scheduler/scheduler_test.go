package scheduler

import (
	"bytes"
	"context"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"botcore/pkg/db"
)

func testStore(t *testing.T) *db.Database {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.ApplyMigrations(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func seedSub(t *testing.T, d *db.Database, id, timeframe string, nextRun time.Time) {
	t.Helper()
	err := d.CreateSubscription(context.Background(), db.Subscription{
		ID:             id,
		UserID:         "user-1",
		ExchangeType:   "paper",
		CredentialsRef: "paper-main",
		Symbol:         "BTCUSDT",
		Timeframe:      timeframe,
		StrategyType:   "momentum",
		Status:         db.SubActive,
		NextRunAt:      nextRun,
	})
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

func TestScanDispatchesDueOnce(t *testing.T) {
	d := testStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedSub(t, d, "sub-1", "5m", now.Add(-time.Second))

	var dispatched atomic.Int32
	s := New(Config{
		Store:    d,
		Dispatch: func(ctx context.Context, sub db.Subscription) { dispatched.Add(1) },
		Tick:     time.Second,
		PoolSize: 4,
		Now:      func() time.Time { return now },
	})

	// Two scans over the same instant model overlapping tick scans:
	// the next_run_at claim must hand the cycle to exactly one.
	s.scan(context.Background())
	s.scan(context.Background())
	s.wg.Wait()

	if got := dispatched.Load(); got != 1 {
		t.Fatalf("dispatched %d times, want 1", got)
	}

	sub, err := d.GetSubscription(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if !sub.NextRunAt.After(now) {
		t.Fatalf("next_run_at %s not advanced past %s", sub.NextRunAt, now)
	}
	if sub.LastRunAt.IsZero() {
		t.Fatal("last_run_at not stamped on dispatch")
	}
}

func TestScanDefersRemainingWhenPoolSaturated(t *testing.T) {
	d := testStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedSub(t, d, "sub-1", "5m", now.Add(-3*time.Second))
	seedSub(t, d, "sub-2", "5m", now.Add(-2*time.Second))
	seedSub(t, d, "sub-3", "5m", now.Add(-time.Second))

	release := make(chan struct{})
	var dispatched atomic.Int32
	s := New(Config{
		Store: d,
		Dispatch: func(ctx context.Context, sub db.Subscription) {
			dispatched.Add(1)
			<-release
		},
		Tick:     time.Second,
		PoolSize: 1,
		Now:      func() time.Time { return now },
	})

	var logs bytes.Buffer
	log.SetOutput(&logs)
	defer log.SetOutput(os.Stderr)

	// The single slot goes to the most overdue subscription; the scan
	// must stop there and report the two still waiting.
	s.scan(context.Background())
	close(release)
	s.wg.Wait()

	if got := dispatched.Load(); got != 1 {
		t.Fatalf("dispatched %d times with a pool of 1, want 1", got)
	}
	if !strings.Contains(logs.String(), "deferring 2 due subscriptions") {
		t.Fatalf("saturation log should count the remaining subscriptions, got %q", logs.String())
	}

	// Deferred subscriptions keep their schedule for the next tick.
	sub, err := d.GetSubscription(context.Background(), "sub-3")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.NextRunAt.After(now) {
		t.Fatalf("deferred subscription advanced to %s", sub.NextRunAt)
	}
}

func TestScanFailsClosedOnStoreError(t *testing.T) {
	d := testStore(t)
	now := time.Now().UTC()
	seedSub(t, d, "sub-1", "5m", now.Add(-time.Second))

	var dispatched atomic.Int32
	s := New(Config{
		Store:    d,
		Dispatch: func(ctx context.Context, sub db.Subscription) { dispatched.Add(1) },
		Tick:     time.Second,
		PoolSize: 4,
		Now:      func() time.Time { return now },
	})

	// A broken store must suppress dispatch entirely.
	d.DB.Close()
	s.scan(context.Background())
	s.wg.Wait()

	if got := dispatched.Load(); got != 0 {
		t.Fatalf("dispatched %d times on a failed scan, want 0", got)
	}
}

func TestScanFaultsUnknownTimeframe(t *testing.T) {
	d := testStore(t)
	now := time.Now().UTC()
	seedSub(t, d, "sub-bad", "7m", now.Add(-time.Second))

	var dispatched atomic.Int32
	s := New(Config{
		Store:    d,
		Dispatch: func(ctx context.Context, sub db.Subscription) { dispatched.Add(1) },
		Tick:     time.Second,
		PoolSize: 4,
		Now:      func() time.Time { return now },
	})
	s.scan(context.Background())
	s.wg.Wait()

	if got := dispatched.Load(); got != 0 {
		t.Fatalf("dispatched %d times for a faulted subscription, want 0", got)
	}
	sub, err := d.GetSubscription(context.Background(), "sub-bad")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.Status != db.SubFaulted {
		t.Fatalf("status = %s, want %s", sub.Status, db.SubFaulted)
	}
	if sub.FaultNote == "" {
		t.Fatal("fault note should record the reason")
	}
}

func TestInterval(t *testing.T) {
	tests := []struct {
		timeframe string
		want      time.Duration
	}{
		{"1m", time.Minute},
		{"3m", 3 * time.Minute},
		{"5m", 5 * time.Minute},
		{"15m", 15 * time.Minute},
		{"30m", 30 * time.Minute},
		{"1h", time.Hour},
		{"2h", 2 * time.Hour},
		{"4h", 4 * time.Hour},
		{"6h", 6 * time.Hour},
		{"12h", 12 * time.Hour},
		{"1d", 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.timeframe, func(t *testing.T) {
			got, err := Interval(tt.timeframe)
			if err != nil {
				t.Fatalf("Interval(%q): %v", tt.timeframe, err)
			}
			if got != tt.want {
				t.Fatalf("Interval(%q) = %s, want %s", tt.timeframe, got, tt.want)
			}
		})
	}

	if _, err := Interval("42s"); err == nil {
		t.Fatal("unknown timeframe should error")
	}
}

func TestNextAfterSkipsMissedCycles(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Three cycles overdue: catch up with a single future run.
	got := nextAfter(base, 5*time.Minute, base.Add(16*time.Minute))
	want := base.Add(20 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("nextAfter = %s, want %s", got, want)
	}

	// Barely due: plain advance.
	got = nextAfter(base, 5*time.Minute, base)
	if !got.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("nextAfter = %s, want %s", got, base.Add(5*time.Minute))
	}
}
