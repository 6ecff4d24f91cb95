package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedEntry describes one subscription in the YAML bootstrap file.
type SeedEntry struct {
	ID             string                 `yaml:"id"`
	UserID         string                 `yaml:"user_id"`
	ExchangeType   string                 `yaml:"exchange_type"`
	CredentialsRef string                 `yaml:"credentials_ref"`
	Symbol         string                 `yaml:"symbol"`
	Timeframe      string                 `yaml:"timeframe"`
	StrategyType   string                 `yaml:"strategy_type"`
	StrategyParams map[string]interface{} `yaml:"strategy_params"`
	RiskConfig     map[string]interface{} `yaml:"risk_config"`
	Status         string                 `yaml:"status"`
}

// SeedFile is the top-level YAML structure.
type SeedFile struct {
	Subscriptions []SeedEntry `yaml:"subscriptions"`
}

// LoadSeed reads subscriptions from a YAML file.
func LoadSeed(path string) ([]SeedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Subscriptions, nil
}

// SyncSeed upserts seed subscriptions into the store. Existing rows keep
// their next_run_at so a restart never re-dispatches early.
func (d *Database) SyncSeed(ctx context.Context, entries []SeedEntry, now time.Time) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO subscriptions (
			id, user_id, exchange_type, credentials_ref, symbol, timeframe,
			strategy_type, strategy_params, risk_config, status, next_run_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			exchange_type = excluded.exchange_type,
			credentials_ref = excluded.credentials_ref,
			symbol = excluded.symbol,
			timeframe = excluded.timeframe,
			strategy_type = excluded.strategy_type,
			strategy_params = excluded.strategy_params,
			risk_config = excluded.risk_config,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		paramsJSON, err := json.Marshal(e.StrategyParams)
		if err != nil {
			return fmt.Errorf("marshal params for subscription %s: %w", e.ID, err)
		}
		riskJSON, err := json.Marshal(e.RiskConfig)
		if err != nil {
			return fmt.Errorf("marshal risk config for subscription %s: %w", e.ID, err)
		}
		status := e.Status
		if status == "" {
			status = SubActive
		}
		if _, err := stmt.Exec(
			e.ID, e.UserID, e.ExchangeType, e.CredentialsRef, e.Symbol, e.Timeframe,
			e.StrategyType, string(paramsJSON), string(riskJSON), status, now,
		); err != nil {
			return fmt.Errorf("upsert subscription %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}
