// Package risk is the policy gate between a strategy's signal and the
// exchange. Evaluation is a pure function: no I/O, no clock reads, so
// the same inputs always yield the same decision.
package risk

import (
	"encoding/json"
	"fmt"
	"time"

	"botcore/pkg/db"
)

// Config is the per-subscription risk policy, snapshotted as JSON on
// the subscription row at registration time.
type Config struct {
	MaxDailyLossPct      float64 `json:"max_daily_loss_pct"` // fraction of balance, e.g. 0.05
	MinConfidence        float64 `json:"min_confidence"`     // 0..100
	MaxExposurePct       float64 `json:"max_exposure_pct"`   // fraction of balance
	RiskPerTradePct      float64 `json:"risk_per_trade_pct"` // fraction of balance risked per trade
	MinQty               float64 `json:"min_qty"`
	MaxQty               float64 `json:"max_qty"`
	StopLossPct          float64 `json:"stop_loss_pct"` // fallback when the strategy supplies none
	TakeProfitPct        float64 `json:"take_profit_pct"`
	Leverage             float64 `json:"leverage"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
}

// DefaultConfig is the policy applied when a subscription carries no
// risk_config of its own.
func DefaultConfig() Config {
	return Config{
		MaxDailyLossPct:      0.05,
		MinConfidence:        60,
		MaxExposurePct:       1.0,
		RiskPerTradePct:      0.01,
		MinQty:               0.001,
		MaxQty:               100,
		StopLossPct:          0.02,
		TakeProfitPct:        0.04,
		Leverage:             1,
		MaxConsecutiveLosses: 3,
		CooldownMinutes:      60,
	}
}

// ParseConfig decodes a risk_config JSON snapshot over the defaults.
// Empty input yields the defaults; malformed input is a fatal
// configuration error.
func ParseConfig(raw string) (Config, error) {
	cfg := DefaultConfig()
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse risk config: %w", err)
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	return cfg, nil
}

// Account is the balance view the gate evaluates against.
type Account struct {
	Balance  float64 // total account value
	Exposure float64 // notional currently deployed across open positions
}

// Decision is the gate's verdict. When approved, Quantity/StopLoss/
// TakeProfit are the final order parameters; Warnings lists the
// adjustments the gate made on the way (rewritten exit levels, clamped
// size) without blocking the trade.
type Decision struct {
	Approved   bool
	Reason     string
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	Leverage   float64
	Warnings   []string
}

// reject builds a denial with a human-readable reason.
func reject(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// CooldownActive reports whether the state blocks trading at the given
// instant.
func CooldownActive(st db.RiskState, now time.Time) bool {
	return !st.CooldownUntil.IsZero() && now.Before(st.CooldownUntil)
}
