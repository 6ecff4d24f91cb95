// Package db is the persistence store for subscriptions, positions,
// risk state and cycle history.
package db

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
)

// Subscription statuses.
const (
	SubActive  = "ACTIVE"
	SubPaused  = "PAUSED"
	SubStopped = "STOPPED"
	SubFaulted = "FAULTED" // fatal config error, excluded from dispatch
)

// Position statuses.
const (
	PositionOpen   = "OPEN"
	PositionClosed = "CLOSED"
)

// Position sides.
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Exit reasons for a closed position.
const (
	ExitTakeProfit  = "TAKE_PROFIT"
	ExitStopLoss    = "STOP_LOSS"
	ExitManual      = "MANUAL"
	ExitLiquidation = "LIQUIDATION"
	ExitUnknown     = "UNKNOWN"
)

// Cycle outcomes recorded in cycle_logs.
const (
	CycleOrderPlaced = "ORDER_PLACED"
	CycleHold        = "HOLD"
	CycleSkippedLock = "SKIPPED_LOCKED"
	CyclePausedRisk  = "PAUSED_RISK"
	CycleRejected    = "REJECTED"
	CycleError       = "ERROR"
)

// Subscription is one user's configured, running bot instance.
type Subscription struct {
	ID             string
	UserID         string
	ExchangeType   string
	CredentialsRef string
	Symbol         string
	Timeframe      string
	StrategyType   string
	StrategyParams string // JSON
	RiskConfig     string // JSON snapshot taken at registration
	Status         string
	NextRunAt      time.Time
	LastRunAt      time.Time // zero when never run
	FaultNote      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Position is a single open-or-closed exposure owned by one subscription.
type Position struct {
	ID             string
	SubscriptionID string
	Symbol         string
	Side           string
	EntryPrice     float64
	Quantity       float64
	Leverage       float64
	StopLoss       float64
	TakeProfit     float64
	Status         string
	LastPrice      float64
	UnrealizedPnL  float64
	ExitPrice      float64
	ExitTime       time.Time
	ExitReason     string
	RealizedPnL    float64
	Fees           float64
	EntryTime      time.Time
	UpdatedAt      time.Time
}

// IsOpen reports whether the position has not been finalized.
func (p *Position) IsOpen() bool { return p.Status == PositionOpen }

// Duration is the time the position was held. Zero while still open.
func (p *Position) Duration() time.Duration {
	if p.ExitTime.IsZero() {
		return 0
	}
	return p.ExitTime.Sub(p.EntryTime)
}

// ExitFill carries the finalization values for a one-time close.
type ExitFill struct {
	Price       float64
	Time        time.Time
	Reason      string
	RealizedPnL float64
	Fees        float64
}

// RiskState is the per-subscription daily accumulator.
type RiskState struct {
	SubscriptionID    string
	Day               string // UTC date, "2006-01-02"
	DailyPnL          float64
	DailyTrades       int
	ConsecutiveLosses int
	CooldownUntil     time.Time
	UpdatedAt         time.Time
}

// CycleLog is one scheduled invocation of a subscription's trade logic.
type CycleLog struct {
	ID             string
	SubscriptionID string
	StartedAt      time.Time
	FinishedAt     time.Time // zero while the cycle is still running
	Outcome        string
	Detail         string
}

// SubscriptionStatus is the read model behind the status API; it is
// served entirely from the store, never from live exchange calls.
type SubscriptionStatus struct {
	SubscriptionID string     `json:"subscription_id"`
	Status         string     `json:"status"`
	ActiveCycles   int        `json:"active_cycles"`
	LastRunAt      time.Time  `json:"last_run_at"`
	NextRunAt      time.Time  `json:"next_run_at"`
	OpenPositions  []Position `json:"open_positions"`
}
