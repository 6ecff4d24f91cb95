package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Paper is an in-process venue simulator. It backs paper-trading mode
// and the test suite: orders fill instantly at the current mark, open
// positions live in memory, and tests can move prices or force closes
// to drive the reconciler.
type Paper struct {
	mu        sync.RWMutex
	prices    map[string]float64
	ranges    map[string][2]float64 // symbol -> {high24h, low24h}
	balances  map[string]float64    // credentials ref -> available
	positions map[string][]VenuePosition
	feeRate   float64 // decimal, e.g. 0.0004 = 4 bps
}

// NewPaper creates a simulator with the given starting prices.
func NewPaper(prices map[string]float64, feeRate float64) *Paper {
	p := &Paper{
		prices:    make(map[string]float64, len(prices)),
		ranges:    make(map[string][2]float64),
		balances:  make(map[string]float64),
		positions: make(map[string][]VenuePosition),
		feeRate:   feeRate,
	}
	for sym, px := range prices {
		p.prices[sym] = px
	}
	return p
}

// SetPrice moves the simulated mark for a symbol.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
	for ref, list := range p.positions {
		for i := range list {
			if list[i].Symbol == symbol {
				list[i].MarkPrice = price
			}
		}
		p.positions[ref] = list
	}
}

// SetRange seeds the simulated 24h high/low for a symbol.
func (p *Paper) SetRange(symbol string, high, low float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ranges[symbol] = [2]float64{high, low}
}

// SetBalance seeds the available balance for a credentials ref.
func (p *Paper) SetBalance(ref string, amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[ref] = amount
}

// ForceClose removes an open position. With liquidated set, a
// zero-quantity tombstone carrying the liquidation flag remains so the
// next reconciliation pass can tell a forced closure from a manual one.
func (p *Paper) ForceClose(ref, symbol string, liquidated bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.positions[ref]
	out := list[:0]
	for _, pos := range list {
		if pos.Symbol != symbol {
			out = append(out, pos)
		} else if liquidated {
			out = append(out, VenuePosition{
				Symbol:     pos.Symbol,
				Side:       pos.Side,
				MarkPrice:  p.prices[symbol],
				Liquidated: true,
			})
		}
	}
	p.positions[ref] = out
}

func (p *Paper) Snapshot(ctx context.Context, symbol string) (Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	px, ok := p.prices[symbol]
	if !ok {
		return Snapshot{}, fmt.Errorf("paper: unknown symbol %q", symbol)
	}
	high, low := px*1.02, px*0.98
	if r, ok := p.ranges[symbol]; ok {
		high, low = r[0], r[1]
	}
	var vol float64
	if px > 0 {
		vol = (high - low) / px
	}
	return Snapshot{
		Symbol:     symbol,
		Price:      px,
		High24h:    high,
		Low24h:     low,
		Volatility: vol,
		At:         time.Now().UTC(),
	}, nil
}

func (p *Paper) AccountBalance(ctx context.Context, creds Credentials) (Balance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bal, ok := p.balances[creds.Ref]
	if !ok {
		bal = 10000 // default paper account
	}
	return Balance{Total: bal, Available: bal}, nil
}

func (p *Paper) OpenPositions(ctx context.Context, creds Credentials, symbols []string) ([]VenuePosition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[strings.ToUpper(s)] = true
	}

	var res []VenuePosition
	for _, pos := range p.positions[creds.Ref] {
		if len(want) == 0 || want[strings.ToUpper(pos.Symbol)] {
			res = append(res, pos)
		}
	}
	return res, nil
}

func (p *Paper) PlaceOrder(ctx context.Context, creds Credentials, req OrderRequest) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	px, ok := p.prices[req.Symbol]
	if !ok {
		return OrderResult{}, fmt.Errorf("paper: unknown symbol %q", req.Symbol)
	}

	bal, has := p.balances[creds.Ref]
	if !has {
		bal = 10000
		p.balances[creds.Ref] = bal
	}
	notional := req.Quantity * px
	if notional > bal {
		return OrderResult{}, ErrInsufficientBalance
	}

	fee := notional * p.feeRate
	p.positions[creds.Ref] = append(p.positions[creds.Ref], VenuePosition{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		EntryPrice: px,
		MarkPrice:  px,
	})

	return OrderResult{
		OrderID:   uuid.NewString(),
		FillPrice: px,
		Fee:       fee,
	}, nil
}

func (p *Paper) CancelOrder(ctx context.Context, creds Credentials, orderID string) error {
	// Paper orders fill instantly; there is never anything to cancel.
	return nil
}
