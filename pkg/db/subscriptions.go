package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const subscriptionCols = `
	id, user_id, exchange_type, credentials_ref, symbol, timeframe,
	strategy_type, strategy_params, risk_config, status,
	next_run_at, last_run_at, COALESCE(fault_note, ''), created_at, updated_at`

// CreateSubscription inserts a new subscription row.
func (d *Database) CreateSubscription(ctx context.Context, s Subscription) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, user_id, exchange_type, credentials_ref, symbol, timeframe,
			strategy_type, strategy_params, risk_config, status, next_run_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`,
		s.ID, s.UserID, s.ExchangeType, s.CredentialsRef, s.Symbol, s.Timeframe,
		s.StrategyType, s.StrategyParams, s.RiskConfig, s.Status, s.NextRunAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// GetSubscription returns a subscription by id.
func (d *Database) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	row := d.DB.QueryRowContext(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE id = ?`, id)
	s, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	return s, nil
}

// ListSubscriptions returns all subscriptions.
func (d *Database) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := d.DB.QueryContext(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// ListDue returns ACTIVE subscriptions whose next_run_at is at or before now.
func (d *Database) ListDue(ctx context.Context, now time.Time) ([]Subscription, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+subscriptionCols+`
		FROM subscriptions
		WHERE status = ? AND next_run_at <= ?
		ORDER BY next_run_at
	`, SubActive, now)
	if err != nil {
		return nil, fmt.Errorf("query due subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// ListWithOpenPositions returns subscriptions that currently hold at
// least one OPEN position (the reconciler's working set).
func (d *Database) ListWithOpenPositions(ctx context.Context) ([]Subscription, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+subscriptionCols+`
		FROM subscriptions
		WHERE id IN (SELECT DISTINCT subscription_id FROM positions WHERE status = ?)
	`, PositionOpen)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions with open positions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// AdvanceNextRun performs the optimistic-concurrency update that guards
// dispatch: next_run_at moves to next only if it still equals observed.
// A false return means another scheduler tick already claimed this cycle.
func (d *Database) AdvanceNextRun(ctx context.Context, id string, observed, next time.Time) (bool, error) {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE subscriptions
		SET next_run_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND next_run_at = ? AND status = ?
	`, next, id, observed, SubActive)
	if err != nil {
		return false, fmt.Errorf("advance next_run_at: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance next_run_at rows: %w", err)
	}
	return n == 1, nil
}

// MarkDispatched stamps last_run_at when a worker picks up the cycle.
func (d *Database) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE subscriptions SET last_run_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, at, id)
	return err
}

// SetSubscriptionStatus updates the lifecycle status.
func (d *Database) SetSubscriptionStatus(ctx context.Context, id, status string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE subscriptions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	return err
}

// MarkFaulted removes a subscription from dispatch until an operator
// intervenes, recording the reason.
func (d *Database) MarkFaulted(ctx context.Context, id, note string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = ?, fault_note = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, SubFaulted, note, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var s Subscription
	var lastRun sql.NullTime
	if err := row.Scan(
		&s.ID, &s.UserID, &s.ExchangeType, &s.CredentialsRef, &s.Symbol, &s.Timeframe,
		&s.StrategyType, &s.StrategyParams, &s.RiskConfig, &s.Status,
		&s.NextRunAt, &lastRun, &s.FaultNote, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		s.LastRunAt = lastRun.Time
	}
	return &s, nil
}

func collectSubscriptions(rows *sql.Rows) ([]Subscription, error) {
	var res []Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}
