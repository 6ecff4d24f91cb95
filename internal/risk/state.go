package risk

import (
	"time"

	"botcore/pkg/db"
)

// ApplyFill folds one realized close into the per-subscription risk
// state: daily pnl and trade count roll over at the UTC date boundary,
// the loss streak survives it, and the streak arms a cooldown once it
// reaches the configured cap.
func ApplyFill(st *db.RiskState, realized float64, now time.Time, cfg Config) {
	day := db.RiskDay(now)
	if st.Day != day {
		st.Day = day
		st.DailyPnL = 0
		st.DailyTrades = 0
	}

	st.DailyPnL += realized
	st.DailyTrades++

	if realized < 0 {
		st.ConsecutiveLosses++
	} else {
		st.ConsecutiveLosses = 0
	}

	if cfg.MaxConsecutiveLosses > 0 && st.ConsecutiveLosses >= cfg.MaxConsecutiveLosses && cfg.CooldownMinutes > 0 {
		st.CooldownUntil = now.Add(time.Duration(cfg.CooldownMinutes) * time.Minute)
		st.ConsecutiveLosses = 0
	}
}
