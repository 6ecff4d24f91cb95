package exchange

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Resolver maps a subscription's exchange_type and credentials_ref to a
// venue adapter and account credentials. Unknown venues are fatal
// configuration errors: the caller faults the subscription instead of
// retrying forever.
type Resolver struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewResolver creates an empty resolver; venues are registered at
// process start (no package-level registries).
func NewResolver() *Resolver {
	return &Resolver{adapters: make(map[string]Adapter)}
}

// Register binds a venue name to an adapter.
func (r *Resolver) Register(venue string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(venue)] = a
}

// Adapter returns the adapter for a venue.
func (r *Resolver) Adapter(venue string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(venue)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVenue, venue)
	}
	return a, nil
}

// CredentialsFor resolves a credentials reference into API keys. Keys
// live in the environment under CREDS_<REF>_KEY / CREDS_<REF>_SECRET;
// the store only ever holds the reference.
func CredentialsFor(ref string) (Credentials, error) {
	if ref == "" {
		return Credentials{}, fmt.Errorf("empty credentials reference")
	}
	name := strings.ToUpper(strings.ReplaceAll(ref, "-", "_"))
	creds := Credentials{
		Ref:       ref,
		APIKey:    os.Getenv("CREDS_" + name + "_KEY"),
		APISecret: os.Getenv("CREDS_" + name + "_SECRET"),
	}
	return creds, nil
}
