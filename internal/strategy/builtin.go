package strategy

import (
	"context"
	"fmt"

	"botcore/pkg/exchange"
)

// rangePosition places the last price inside the 24h range on a 0..1
// scale. Returns an error when the snapshot carries no usable range.
func rangePosition(snap exchange.Snapshot) (float64, error) {
	span := snap.High24h - snap.Low24h
	if span <= 0 {
		return 0, fmt.Errorf("snapshot for %s has no 24h range", snap.Symbol)
	}
	r := (snap.Price - snap.Low24h) / span
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	return r, nil
}

// Momentum buys breakouts near the top of the 24h range and sells
// breakdowns near the bottom. Template bot.
//
// Params: breakout (default 0.8), breakdown (default 0.2).
type Momentum struct{}

func (Momentum) Decide(ctx context.Context, snap exchange.Snapshot, params map[string]any) (Signal, error) {
	r, err := rangePosition(snap)
	if err != nil {
		return Signal{}, err
	}

	breakout := floatParam(params, "breakout", 0.8)
	breakdown := floatParam(params, "breakdown", 0.2)

	switch {
	case r >= breakout:
		return Signal{
			Action:     ActionBuy,
			Entry:      snap.Price,
			Confidence: 50 + 50*(r-breakout)/(1-breakout+1e-9),
		}, nil
	case r <= breakdown:
		return Signal{
			Action:     ActionSell,
			Entry:      snap.Price,
			Confidence: 50 + 50*(breakdown-r)/(breakdown+1e-9),
		}, nil
	default:
		return Signal{Action: ActionHold}, nil
	}
}

// MeanRevert fades extremes: sells near the top of the 24h range and
// buys near the bottom. Template bot.
//
// Params: upper (default 0.9), lower (default 0.1).
type MeanRevert struct{}

func (MeanRevert) Decide(ctx context.Context, snap exchange.Snapshot, params map[string]any) (Signal, error) {
	r, err := rangePosition(snap)
	if err != nil {
		return Signal{}, err
	}

	upper := floatParam(params, "upper", 0.9)
	lower := floatParam(params, "lower", 0.1)

	switch {
	case r >= upper:
		return Signal{
			Action:     ActionSell,
			Entry:      snap.Price,
			Confidence: 50 + 50*(r-upper)/(1-upper+1e-9),
		}, nil
	case r <= lower:
		return Signal{
			Action:     ActionBuy,
			Entry:      snap.Price,
			Confidence: 50 + 50*(lower-r)/(lower+1e-9),
		}, nil
	default:
		return Signal{Action: ActionHold}, nil
	}
}
