package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StartCycle records that a worker picked up a cycle; the row stays
// unfinished until FinishCycle runs, which is what the status query
// counts as an active task.
func (d *Database) StartCycle(ctx context.Context, c CycleLog) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO cycle_logs (id, subscription_id, started_at)
		VALUES (?, ?, ?)
	`, c.ID, c.SubscriptionID, c.StartedAt)
	if err != nil {
		return fmt.Errorf("insert cycle log: %w", err)
	}
	return nil
}

// FinishCycle stamps the terminal outcome of a cycle.
func (d *Database) FinishCycle(ctx context.Context, id, outcome, detail string, at time.Time) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE cycle_logs SET finished_at = ?, outcome = ?, detail = ? WHERE id = ?
	`, at, outcome, detail, id)
	return err
}

// ListRecentCycles returns the latest cycle rows for a subscription.
func (d *Database) ListRecentCycles(ctx context.Context, subID string, limit int) ([]CycleLog, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, subscription_id, started_at, finished_at,
		       COALESCE(outcome, ''), COALESCE(detail, '')
		FROM cycle_logs
		WHERE subscription_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, subID, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycle logs: %w", err)
	}
	defer rows.Close()

	var res []CycleLog
	for rows.Next() {
		var c CycleLog
		var finished sql.NullTime
		if err := rows.Scan(&c.ID, &c.SubscriptionID, &c.StartedAt, &finished,
			&c.Outcome, &c.Detail); err != nil {
			return nil, fmt.Errorf("scan cycle log: %w", err)
		}
		if finished.Valid {
			c.FinishedAt = finished.Time
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// GetSubscriptionStatus assembles the read-only status view for one
// subscription entirely from the store.
func (d *Database) GetSubscriptionStatus(ctx context.Context, subID string) (*SubscriptionStatus, error) {
	sub, err := d.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	var active int
	err = d.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cycle_logs
		WHERE subscription_id = ? AND finished_at IS NULL
	`, subID).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("count active cycles: %w", err)
	}

	open, err := d.ListOpenBySubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	return &SubscriptionStatus{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
		ActiveCycles:   active,
		LastRunAt:      sub.LastRunAt,
		NextRunAt:      sub.NextRunAt,
		OpenPositions:  open,
	}, nil
}
