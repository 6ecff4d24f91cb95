package risk

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"botcore/internal/strategy"
	"botcore/pkg/db"
	"botcore/pkg/exchange"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func baseInput() Input {
	return Input{
		Now: testNow,
		Signal: strategy.Signal{
			Action:     strategy.ActionBuy,
			Entry:      50000,
			Confidence: 80,
		},
		Snapshot: exchange.Snapshot{Symbol: "BTCUSDT", Price: 50000},
		Account:  Account{Balance: 10000},
		State:    db.RiskState{Day: db.RiskDay(testNow)},
		Config:   DefaultConfig(),
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	in := baseInput()
	first := Evaluate(in)
	for i := 0; i < 10; i++ {
		if !reflect.DeepEqual(Evaluate(in), first) {
			t.Fatal("same input produced different decisions")
		}
	}
	if !first.Approved {
		t.Fatalf("base input should pass: %s", first.Reason)
	}
}

func TestEvaluateRuleOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		reason string
	}{
		{
			name: "cooldown blocks",
			mutate: func(in *Input) {
				in.State.CooldownUntil = testNow.Add(30 * time.Minute)
			},
			reason: "cooldown",
		},
		{
			name: "daily loss at limit blocks",
			mutate: func(in *Input) {
				// 5% limit on a 10000 balance: exactly -500 rejects.
				in.State.DailyPnL = -500
			},
			reason: "daily loss",
		},
		{
			name: "low confidence blocks",
			mutate: func(in *Input) {
				in.Signal.Confidence = 50
				in.Config.MinConfidence = 70
			},
			reason: "confidence",
		},
		{
			name: "exposure cap blocks",
			mutate: func(in *Input) {
				// 95% deployed, new order adds exactly 10% notional, cap 100%.
				in.Account.Exposure = 9500
				in.Config.RiskPerTradePct = 0.002 // sizes to 0.02 * 50000 = 1000 notional
			},
			reason: "exposure",
		},
		{
			name: "cooldown wins over confidence",
			mutate: func(in *Input) {
				in.State.CooldownUntil = testNow.Add(time.Minute)
				in.Signal.Confidence = 0
			},
			reason: "cooldown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			dec := Evaluate(in)
			if dec.Approved {
				t.Fatal("expected rejection")
			}
			if !strings.Contains(dec.Reason, tt.reason) {
				t.Fatalf("reason %q does not mention %q", dec.Reason, tt.reason)
			}
		})
	}
}

func TestEvaluateSizing(t *testing.T) {
	in := baseInput()
	in.Signal.StopLoss = 49000 // stop distance 1000
	in.Config.MinQty = 0.001
	in.Config.MaxQty = 100

	dec := Evaluate(in)
	if !dec.Approved {
		t.Fatalf("expected approval: %s", dec.Reason)
	}
	// risk budget 1% of 10000 = 100; 100 / 1000 = 0.1
	if dec.Quantity != 0.1 {
		t.Fatalf("quantity = %v, want 0.1", dec.Quantity)
	}
	if dec.StopLoss != 49000 {
		t.Fatalf("strategy stop loss overwritten: %v", dec.StopLoss)
	}
	// Only the take profit was derived; the supplied stop stays silent.
	if len(dec.Warnings) != 1 || !strings.Contains(dec.Warnings[0], "take profit") {
		t.Fatalf("warnings = %v, want a single take-profit derivation", dec.Warnings)
	}
}

func TestEvaluateSizingClamps(t *testing.T) {
	in := baseInput()
	in.Signal.StopLoss = 49999.99 // tiny stop distance blows up raw size
	in.Config.MaxQty = 0.5
	// widen exposure so the clamp, not the cap, is under test
	in.Config.MaxExposurePct = 10

	dec := Evaluate(in)
	if !dec.Approved {
		t.Fatalf("expected approval: %s", dec.Reason)
	}
	if dec.Quantity != 0.5 {
		t.Fatalf("quantity = %v, want clamp to 0.5", dec.Quantity)
	}
	var clamped bool
	for _, warn := range dec.Warnings {
		if strings.Contains(warn, "clamped to maximum") {
			clamped = true
		}
	}
	if !clamped {
		t.Fatalf("warnings = %v, want the max-size clamp reported", dec.Warnings)
	}
}

func TestEvaluateRewritesExitLevels(t *testing.T) {
	in := baseInput() // signal has no SL/TP
	dec := Evaluate(in)
	if !dec.Approved {
		t.Fatalf("expected approval: %s", dec.Reason)
	}
	// long at 50000 with 2% / 4% defaults
	if dec.StopLoss != 50000*0.98 {
		t.Fatalf("stop loss = %v, want %v", dec.StopLoss, 50000*0.98)
	}
	if dec.TakeProfit != 50000*1.04 {
		t.Fatalf("take profit = %v, want %v", dec.TakeProfit, 50000*1.04)
	}
	if len(dec.Warnings) != 2 {
		t.Fatalf("warnings = %v, want both derivations reported", dec.Warnings)
	}

	in.Signal.Action = strategy.ActionSell
	dec = Evaluate(in)
	if dec.StopLoss <= 50000 || dec.TakeProfit >= 50000 {
		t.Fatalf("short exit levels inverted: sl=%v tp=%v", dec.StopLoss, dec.TakeProfit)
	}
}

func TestApplyFillStreakAndCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveLosses = 3
	cfg.CooldownMinutes = 60

	st := db.RiskState{SubscriptionID: "sub-1", Day: db.RiskDay(testNow)}

	ApplyFill(&st, -50, testNow, cfg)
	ApplyFill(&st, -50, testNow, cfg)
	if !st.CooldownUntil.IsZero() {
		t.Fatal("cooldown armed before the streak cap")
	}
	if st.ConsecutiveLosses != 2 {
		t.Fatalf("losses = %d, want 2", st.ConsecutiveLosses)
	}

	ApplyFill(&st, -50, testNow, cfg)
	if st.CooldownUntil.IsZero() {
		t.Fatal("third straight loss should arm the cooldown")
	}
	if st.DailyPnL != -150 {
		t.Fatalf("daily pnl = %v, want -150", st.DailyPnL)
	}

	// A win resets the streak.
	st2 := db.RiskState{Day: db.RiskDay(testNow), ConsecutiveLosses: 2}
	ApplyFill(&st2, 25, testNow, cfg)
	if st2.ConsecutiveLosses != 0 {
		t.Fatalf("win should reset streak, got %d", st2.ConsecutiveLosses)
	}
}

func TestApplyFillDailyRollover(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveLosses = 10 // keep the cooldown out of this test's way
	st := db.RiskState{
		Day:               "2025-05-31",
		DailyPnL:          -400,
		DailyTrades:       7,
		ConsecutiveLosses: 2,
	}

	ApplyFill(&st, -10, testNow, cfg)

	if st.Day != "2025-06-01" {
		t.Fatalf("day = %s, want 2025-06-01", st.Day)
	}
	if st.DailyPnL != -10 {
		t.Fatalf("daily pnl should reset at the boundary, got %v", st.DailyPnL)
	}
	if st.DailyTrades != 1 {
		t.Fatalf("daily trades = %d, want 1", st.DailyTrades)
	}
	// The loss streak spans days.
	if st.ConsecutiveLosses != 3 {
		t.Fatalf("streak should survive rollover, got %d", st.ConsecutiveLosses)
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(`{"min_confidence": 75, "max_daily_loss_pct": 0.03}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.MinConfidence != 75 {
		t.Fatalf("min confidence = %v, want 75", cfg.MinConfidence)
	}
	if cfg.MaxDailyLossPct != 0.03 {
		t.Fatalf("max daily loss = %v, want 0.03", cfg.MaxDailyLossPct)
	}
	// untouched fields keep defaults
	if cfg.RiskPerTradePct != 0.01 {
		t.Fatalf("risk per trade = %v, want default 0.01", cfg.RiskPerTradePct)
	}

	if _, err := ParseConfig(`{not json`); err == nil {
		t.Fatal("malformed config should error")
	}

	cfg, err = ParseConfig("")
	if err != nil {
		t.Fatalf("empty config: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatal("empty config should yield defaults")
	}
}
