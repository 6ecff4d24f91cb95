package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS subscriptions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    exchange_type TEXT NOT NULL,
    credentials_ref TEXT NOT NULL,
    symbol TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    strategy_type TEXT NOT NULL,
    strategy_params TEXT NOT NULL DEFAULT '{}',
    risk_config TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'ACTIVE',
    next_run_at DATETIME NOT NULL,
    last_run_at DATETIME,
    fault_note TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_due
    ON subscriptions (status, next_run_at);

CREATE TABLE IF NOT EXISTS positions (
    id TEXT PRIMARY KEY,
    subscription_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    entry_price REAL NOT NULL,
    quantity REAL NOT NULL,
    leverage REAL NOT NULL DEFAULT 1,
    stop_loss REAL DEFAULT 0,
    take_profit REAL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'OPEN',
    last_price REAL DEFAULT 0,
    unrealized_pnl REAL DEFAULT 0,
    exit_price REAL DEFAULT 0,
    exit_time DATETIME,
    exit_reason TEXT DEFAULT '',
    realized_pnl REAL DEFAULT 0,
    fees REAL DEFAULT 0,
    entry_time DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(subscription_id) REFERENCES subscriptions(id)
);

CREATE INDEX IF NOT EXISTS idx_positions_open
    ON positions (subscription_id, status);

CREATE TABLE IF NOT EXISTS risk_states (
    subscription_id TEXT PRIMARY KEY,
    day TEXT NOT NULL,
    daily_pnl REAL DEFAULT 0,
    daily_trades INTEGER DEFAULT 0,
    consecutive_losses INTEGER DEFAULT 0,
    cooldown_until DATETIME,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(subscription_id) REFERENCES subscriptions(id)
);

CREATE TABLE IF NOT EXISTS cycle_logs (
    id TEXT PRIMARY KEY,
    subscription_id TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    outcome TEXT DEFAULT '',
    detail TEXT DEFAULT '',
    FOREIGN KEY(subscription_id) REFERENCES subscriptions(id)
);

CREATE INDEX IF NOT EXISTS idx_cycle_logs_sub
    ON cycle_logs (subscription_id, started_at);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Lightweight, idempotent migrations for older DB files.
	if err := ensureColumn(d.DB, "subscriptions", "fault_note", "TEXT DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "subscriptions", "last_run_at", "DATETIME"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "positions", "fees", "REAL DEFAULT 0"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "positions", "leverage", "REAL NOT NULL DEFAULT 1"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "risk_states", "consecutive_losses", "INTEGER DEFAULT 0"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
