package scheduler

import (
	"fmt"
	"time"
)

// Interval maps a subscription timeframe to its cycle cadence. An
// unknown timeframe is a fatal configuration error; the caller faults
// the subscription rather than guessing.
func Interval(timeframe string) (time.Duration, error) {
	switch timeframe {
	case "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "6h":
		return 6 * time.Hour, nil
	case "12h":
		return 12 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
}

// nextAfter advances a run time by whole intervals until it lands in
// the future. An overdue subscription catches up with one run instead
// of a burst.
func nextAfter(observed time.Time, interval time.Duration, now time.Time) time.Time {
	next := observed.Add(interval)
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next
}
