package exchange

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps an Adapter so every venue call waits on a shared
// token bucket before it goes out.
type RateLimited struct {
	inner   Adapter
	limiter *rate.Limiter
}

// NewRateLimited builds a wrapper allowing perSecond sustained calls
// with a small burst.
func NewRateLimited(inner Adapter, perSecond float64) *RateLimited {
	if perSecond <= 0 {
		perSecond = 10
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
	}
}

func (r *RateLimited) AccountBalance(ctx context.Context, creds Credentials) (Balance, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Balance{}, err
	}
	return r.inner.AccountBalance(ctx, creds)
}

func (r *RateLimited) OpenPositions(ctx context.Context, creds Credentials, symbols []string) ([]VenuePosition, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.OpenPositions(ctx, creds, symbols)
}

func (r *RateLimited) PlaceOrder(ctx context.Context, creds Credentials, req OrderRequest) (OrderResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return OrderResult{}, err
	}
	return r.inner.PlaceOrder(ctx, creds, req)
}

func (r *RateLimited) CancelOrder(ctx context.Context, creds Credentials, orderID string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.inner.CancelOrder(ctx, creds, orderID)
}
