package scheduler

import (
	"strings"
	"time"
)

// Minutes between successive runs of one stream for one tenant, by
// plan. Orders are the hot path; catalog and ledger streams run colder.
var (
	orderIntervals = map[string]int{"free": 30, "starter": 15, "growth": 5, "pro": 2}

	catalogIntervals = map[string]int{"free": 60, "starter": 30, "growth": 30, "pro": 15}

	paymentIntervals = map[string]int{"free": 60, "starter": 30, "growth": 15, "pro": 10}
)

const defaultIntervalMinutes = 30

// NextInterval returns the recurring cadence for a job type under a
// plan.
func NextInterval(jobType, plan string) time.Duration {
	intervals := orderIntervals
	switch {
	case strings.Contains(jobType, "listings"),
		strings.Contains(jobType, "products"),
		strings.Contains(jobType, "customers"):
		intervals = catalogIntervals
	case strings.Contains(jobType, "payments"):
		intervals = paymentIntervals
	}

	minutes, ok := intervals[plan]
	if !ok {
		minutes = defaultIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// RecurringPriority returns the queue priority for recurring runs.
func RecurringPriority(plan string) int {
	if plan == "pro" {
		return 1
	}
	return 0
}

// Platform extracts the platform token from a job type, the first
// underscore-delimited segment. Backfill jobs resolve to the backfill
// pseudo-platform; the real upstream is checked inside the worker.
func Platform(jobType string) string {
	if i := strings.IndexByte(jobType, '_'); i > 0 {
		return jobType[:i]
	}
	return jobType
}
