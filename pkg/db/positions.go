package db

import (
	"context"
	"database/sql"
	"fmt"
)

const positionCols = `
	id, subscription_id, symbol, side, entry_price, quantity, leverage,
	stop_loss, take_profit, status, last_price, unrealized_pnl,
	exit_price, exit_time, COALESCE(exit_reason, ''), realized_pnl,
	COALESCE(fees, 0), entry_time, updated_at`

// CreatePosition inserts a new OPEN position row.
func (d *Database) CreatePosition(ctx context.Context, p Position) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (
			id, subscription_id, symbol, side, entry_price, quantity, leverage,
			stop_loss, take_profit, status, last_price, unrealized_pnl, fees,
			entry_time, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, CURRENT_TIMESTAMP)
	`,
		p.ID, p.SubscriptionID, p.Symbol, p.Side, p.EntryPrice, p.Quantity, p.Leverage,
		p.StopLoss, p.TakeProfit, PositionOpen, p.EntryPrice, p.Fees, p.EntryTime,
	)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetPosition returns a position by id.
func (d *Database) GetPosition(ctx context.Context, id string) (*Position, error) {
	row := d.DB.QueryRowContext(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query position: %w", err)
	}
	return p, nil
}

// ListOpenBySubscription returns all OPEN positions for one subscription.
func (d *Database) ListOpenBySubscription(ctx context.Context, subID string) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+positionCols+`
		FROM positions
		WHERE subscription_id = ? AND status = ?
		ORDER BY entry_time
	`, subID, PositionOpen)
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// ListBySubscription returns all positions for one subscription, newest first.
func (d *Database) ListBySubscription(ctx context.Context, subID string, limit int) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+positionCols+`
		FROM positions
		WHERE subscription_id = ?
		ORDER BY entry_time DESC
		LIMIT ?
	`, subID, limit)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// UpdateMark refreshes last observed price and unrealized PnL while a
// position is OPEN. Racing writers are safe: a fresher price simply
// overwrites a staler one.
func (d *Database) UpdateMark(ctx context.Context, id string, price, unrealized float64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE positions
		SET last_price = ?, unrealized_pnl = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, price, unrealized, id, PositionOpen)
	return err
}

// ClosePosition performs the one-time OPEN -> CLOSED transition. The
// guard on status makes the close a compare-and-set: a false return
// means the position was already finalized and nothing changed.
func (d *Database) ClosePosition(ctx context.Context, id string, exit ExitFill) (bool, error) {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE positions
		SET status = ?, exit_price = ?, exit_time = ?, exit_reason = ?,
		    realized_pnl = ?, fees = ?, unrealized_pnl = 0,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, PositionClosed, exit.Price, exit.Time, exit.Reason,
		exit.RealizedPnL, exit.Fees, id, PositionOpen)
	if err != nil {
		return false, fmt.Errorf("close position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close position rows: %w", err)
	}
	return n == 1, nil
}

func scanPosition(row rowScanner) (*Position, error) {
	var p Position
	var exitTime sql.NullTime
	if err := row.Scan(
		&p.ID, &p.SubscriptionID, &p.Symbol, &p.Side, &p.EntryPrice, &p.Quantity,
		&p.Leverage, &p.StopLoss, &p.TakeProfit, &p.Status, &p.LastPrice,
		&p.UnrealizedPnL, &p.ExitPrice, &exitTime, &p.ExitReason, &p.RealizedPnL,
		&p.Fees, &p.EntryTime, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if exitTime.Valid {
		p.ExitTime = exitTime.Time
	}
	return &p, nil
}

func collectPositions(rows *sql.Rows) ([]Position, error) {
	var res []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		res = append(res, *p)
	}
	return res, rows.Err()
}
