package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RiskDay formats the rolling daily boundary key (UTC).
func RiskDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// GetRiskState returns the accumulator for a subscription, resetting the
// daily counters when the stored row belongs to an earlier day. A missing
// row yields a zeroed state for today.
func (d *Database) GetRiskState(ctx context.Context, subID string, now time.Time) (RiskState, error) {
	today := RiskDay(now)
	st := RiskState{SubscriptionID: subID, Day: today}

	var cooldown sql.NullTime
	err := d.DB.QueryRowContext(ctx, `
		SELECT day, daily_pnl, daily_trades, COALESCE(consecutive_losses, 0),
		       cooldown_until, updated_at
		FROM risk_states WHERE subscription_id = ?
	`, subID).Scan(&st.Day, &st.DailyPnL, &st.DailyTrades, &st.ConsecutiveLosses,
		&cooldown, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return RiskState{SubscriptionID: subID, Day: today}, nil
	}
	if err != nil {
		return st, fmt.Errorf("query risk state: %w", err)
	}
	if cooldown.Valid {
		st.CooldownUntil = cooldown.Time
	}

	// Rolling daily boundary: stale day resets daily counters. The
	// consecutive-loss streak and an armed cooldown survive midnight.
	if st.Day != today {
		st.Day = today
		st.DailyPnL = 0
		st.DailyTrades = 0
	}
	return st, nil
}

// SaveRiskState upserts the accumulator row.
func (d *Database) SaveRiskState(ctx context.Context, st RiskState) error {
	var cooldown any
	if !st.CooldownUntil.IsZero() {
		cooldown = st.CooldownUntil
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO risk_states (
			subscription_id, day, daily_pnl, daily_trades, consecutive_losses,
			cooldown_until, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(subscription_id) DO UPDATE SET
			day = excluded.day,
			daily_pnl = excluded.daily_pnl,
			daily_trades = excluded.daily_trades,
			consecutive_losses = excluded.consecutive_losses,
			cooldown_until = excluded.cooldown_until,
			updated_at = CURRENT_TIMESTAMP
	`, st.SubscriptionID, st.Day, st.DailyPnL, st.DailyTrades,
		st.ConsecutiveLosses, cooldown)
	if err != nil {
		return fmt.Errorf("save risk state: %w", err)
	}
	return nil
}
