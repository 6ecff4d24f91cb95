// Package exchange defines the uniform venue boundary consumed by the
// execution workers and the reconciler. Venue implementations live
// behind the Adapter interface; this package ships the paper venue and
// the rate-limiting wrapper.
package exchange

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupportedVenue marks a fatal configuration error: the owning
// subscription must be faulted, not retried.
var ErrUnsupportedVenue = errors.New("unsupported exchange type")

// ErrInsufficientBalance is a venue-level order rejection.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Credentials reference one account on one venue.
type Credentials struct {
	Ref       string
	APIKey    string
	APISecret string
}

// Balance is the account snapshot used for risk sizing.
type Balance struct {
	Total     float64
	Available float64
}

// VenuePosition is an open exposure as reported by the venue.
type VenuePosition struct {
	Symbol     string
	Side       string // LONG or SHORT
	Quantity   float64
	EntryPrice float64
	MarkPrice  float64
	Liquidated bool // venue-flagged forced closure
}

// OrderRequest is a proposed entry order.
type OrderRequest struct {
	Symbol     string
	Side       string // LONG or SHORT
	Quantity   float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
}

// OrderResult is a venue acknowledgement of a filled order.
type OrderResult struct {
	OrderID   string
	FillPrice float64
	Fee       float64
}

// Snapshot is the market view handed to strategies and the risk gate.
type Snapshot struct {
	Symbol     string
	Price      float64
	High24h    float64
	Low24h     float64
	Volatility float64 // relative, e.g. 0.02 = 2%
	At         time.Time
}

// Adapter abstracts a trading venue.
type Adapter interface {
	AccountBalance(ctx context.Context, creds Credentials) (Balance, error)
	OpenPositions(ctx context.Context, creds Credentials, symbols []string) ([]VenuePosition, error)
	PlaceOrder(ctx context.Context, creds Credentials, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, creds Credentials, orderID string) error
}

// MarketData supplies the per-cycle market snapshot.
type MarketData interface {
	Snapshot(ctx context.Context, symbol string) (Snapshot, error)
}

// transientError marks a failure worth retrying within the same cycle.
type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient wraps an error as retryable (timeouts, 5xx responses).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether a failed call may be retried in-cycle.
// Deadline expiry counts: the caller set the deadline and the next
// attempt gets a fresh one.
func IsTransient(err error) bool {
	var te transientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
