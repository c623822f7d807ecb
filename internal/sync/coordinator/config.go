package coordinator

import (
	"log/slog"
	"time"

	"github.com/fieldsync/fieldsync/internal/config"
)

// cadence resolves the cadence class of a record type to a duration.
// Unknown classes fall back to FREQUENT.
func cadence(intervals map[string]time.Duration, rt config.RecordTypeConfig) time.Duration {
	if interval, ok := intervals[rt.GetSyncInterval()]; ok && interval > 0 {
		return interval
	}
	fallback := intervals[config.IntervalFrequent]
	slog.Warn("Unknown sync interval, using FREQUENT",
		"record_type", rt.Name,
		"interval", rt.GetSyncInterval(),
		"default", fallback)
	return fallback
}

// isDue reports whether a record type's cadence has elapsed since its last attempt
func isDue(lastAttempt *time.Time, interval time.Duration, now time.Time) bool {
	if lastAttempt == nil {
		return true
	}
	return now.Sub(*lastAttempt) >= interval
}
