// Package strategy holds the pluggable decision logic behind each
// subscription. Built-in template bots run in-process; uploaded bots
// run out-of-process behind a narrow RPC boundary.
package strategy

import (
	"context"
	"errors"

	"botcore/pkg/exchange"
)

// Signal actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

var (
	// ErrUnknownStrategy marks a strategy_type no factory is registered
	// for. Fatal configuration error: the subscription gets faulted.
	ErrUnknownStrategy = errors.New("unknown strategy type")
)

// Signal is a strategy's verdict for one market snapshot. Entry,
// StopLoss and TakeProfit may be zero; the risk gate fills in
// defaults before an order is placed.
type Signal struct {
	Action     string  `json:"action"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Confidence float64 `json:"confidence"` // 0..100
}

// Hold reports whether the signal requests no action.
func (s Signal) Hold() bool { return s.Action == ActionHold }

// Strategy decides what to do with one snapshot. Implementations must
// be safe for concurrent use; params come from the subscription's
// stored strategy_params and are validated per call.
type Strategy interface {
	Decide(ctx context.Context, snap exchange.Snapshot, params map[string]any) (Signal, error)
}

// floatParam reads a numeric parameter with a default. JSON numbers
// decode as float64; integers configured by hand are accepted too.
func floatParam(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return def
}
