package risk

import (
	"fmt"
	"math"
	"time"

	"botcore/internal/strategy"
	"botcore/pkg/db"
	"botcore/pkg/exchange"
)

// Input bundles everything Evaluate needs. The caller supplies Now so
// the gate itself never reads the clock.
type Input struct {
	Now      time.Time
	Signal   strategy.Signal
	Snapshot exchange.Snapshot
	Account  Account
	State    db.RiskState
	Config   Config
}

// Evaluate applies the policy rules in a fixed order and, on approval,
// sizes the position and finalizes stop-loss/take-profit levels. The
// first failing rule rejects; later rules are not consulted.
func Evaluate(in Input) Decision {
	cfg := in.Config

	if CooldownActive(in.State, in.Now) {
		return reject("cooldown active until %s", in.State.CooldownUntil.UTC().Format(time.RFC3339))
	}

	if cfg.MaxDailyLossPct > 0 && in.Account.Balance > 0 {
		limit := cfg.MaxDailyLossPct * in.Account.Balance
		if in.State.DailyPnL <= -limit {
			return reject("daily loss %.2f at limit %.2f", in.State.DailyPnL, -limit)
		}
	}

	if in.Signal.Confidence < cfg.MinConfidence {
		return reject("confidence %.1f below threshold %.1f", in.Signal.Confidence, cfg.MinConfidence)
	}

	entry := in.Signal.Entry
	if entry <= 0 {
		entry = in.Snapshot.Price
	}
	if entry <= 0 {
		return reject("no usable entry price")
	}

	stopLoss, takeProfit, warnings := exitLevels(in.Signal, entry, in.Snapshot.Volatility, cfg)

	qty, sizeWarnings := size(entry, stopLoss, in.Account.Balance, cfg)
	if qty <= 0 {
		return reject("position size resolves to zero")
	}
	warnings = append(warnings, sizeWarnings...)

	notional := qty * entry
	if cfg.MaxExposurePct > 0 && in.Account.Balance > 0 {
		if (in.Account.Exposure+notional)/in.Account.Balance > cfg.MaxExposurePct {
			return reject("exposure %.2f + notional %.2f exceeds %.0f%% of balance",
				in.Account.Exposure, notional, cfg.MaxExposurePct*100)
		}
	}

	return Decision{
		Approved:   true,
		Quantity:   qty,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Leverage:   cfg.Leverage,
		Warnings:   warnings,
	}
}

// exitLevels keeps strategy-supplied levels and derives missing ones
// from the configured percentages, widened with snapshot volatility
// when available. Each derivation is reported as a warning.
func exitLevels(sig strategy.Signal, entry, volatility float64, cfg Config) (stopLoss, takeProfit float64, warnings []string) {
	stopLoss = sig.StopLoss
	takeProfit = sig.TakeProfit

	slPct := cfg.StopLossPct
	tpPct := cfg.TakeProfitPct
	if volatility > 0 {
		slPct *= 1 + volatility
		tpPct *= 1 + volatility
	}

	long := sig.Action == strategy.ActionBuy
	if stopLoss <= 0 {
		if long {
			stopLoss = entry * (1 - slPct)
		} else {
			stopLoss = entry * (1 + slPct)
		}
		warnings = append(warnings,
			fmt.Sprintf("stop loss not supplied by strategy, derived %.2f from config", stopLoss))
	}
	if takeProfit <= 0 {
		if long {
			takeProfit = entry * (1 + tpPct)
		} else {
			takeProfit = entry * (1 - tpPct)
		}
		warnings = append(warnings,
			fmt.Sprintf("take profit not supplied by strategy, derived %.2f from config", takeProfit))
	}
	return stopLoss, takeProfit, warnings
}

// size converts the per-trade risk budget into a quantity via the stop
// distance, clamped into the configured bounds. Clamps are reported as
// warnings.
func size(entry, stopLoss, balance float64, cfg Config) (float64, []string) {
	stopDistance := math.Abs(entry - stopLoss)
	if stopDistance <= 0 || balance <= 0 {
		return 0, nil
	}
	var warnings []string
	qty := (balance * cfg.RiskPerTradePct) / stopDistance
	if cfg.MinQty > 0 && qty < cfg.MinQty {
		qty = cfg.MinQty
		warnings = append(warnings, fmt.Sprintf("position size raised to minimum %v", cfg.MinQty))
	}
	if cfg.MaxQty > 0 && qty > cfg.MaxQty {
		qty = cfg.MaxQty
		warnings = append(warnings, fmt.Sprintf("position size clamped to maximum %v", cfg.MaxQty))
	}
	return qty, warnings
}
