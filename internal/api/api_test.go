package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"botcore/internal/events"
	"botcore/internal/strategy"
	"botcore/pkg/db"
)

func testServer(t *testing.T) (*Server, *db.Database) {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.ApplyMigrations(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := New(Config{
		Store:    d,
		Bus:      events.NewBus(),
		Registry: strategy.NewRegistry(),
	})
	return s, d
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)
	w := get(t, s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestSubscriptionStatusNotFound(t *testing.T) {
	s, _ := testServer(t)
	w := get(t, s, "/api/subscriptions/nope/status")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSubscriptionStatus(t *testing.T) {
	s, d := testServer(t)
	ctx := context.Background()

	err := d.CreateSubscription(ctx, db.Subscription{
		ID:             "sub-1",
		UserID:         "user-1",
		ExchangeType:   "paper",
		CredentialsRef: "paper-main",
		Symbol:         "BTCUSDT",
		Timeframe:      "5m",
		StrategyType:   "momentum",
		Status:         db.SubActive,
		NextRunAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := get(t, s, "/api/subscriptions/sub-1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body db.SubscriptionStatus
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SubscriptionID != "sub-1" || body.Status != db.SubActive {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.ActiveCycles != 0 {
		t.Fatalf("active cycles = %d, want 0", body.ActiveCycles)
	}
}

func TestListPositionsRequiresSubscription(t *testing.T) {
	s, _ := testServer(t)
	w := get(t, s, "/api/positions")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListStrategies(t *testing.T) {
	s, _ := testServer(t)
	w := get(t, s, "/api/strategies")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Strategies []string `json:"strategies"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Strategies) < 2 {
		t.Fatalf("strategies = %v, want the built-ins", body.Strategies)
	}
}
