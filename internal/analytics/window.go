// Package analytics holds the pure derivations behind business analytics:
// time windows, period-over-period metrics and top-service rankings.
package analytics

import (
	"regexp"
	"time"

	"localbiz-chat/internal/domain"
)

// TimeRange is an accepted analytics window selector.
type TimeRange string

const (
	Range7Days  TimeRange = "7days"
	Range30Days TimeRange = "30days"
	Range90Days TimeRange = "90days"
	RangeYear   TimeRange = "year"

	DefaultRange = Range30Days
)

var wellFormedToken = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

// ParseTimeRange maps a token to a TimeRange. An empty or unrecognized but
// well-formed token falls back to DefaultRange unless strict is set. Tokens
// outside [a-z0-9]{1,16} are always rejected as malformed.
func ParseTimeRange(token string, strict bool) (TimeRange, error) {
	if token == "" {
		if strict {
			return "", domain.ErrUnknownTimeRange
		}
		return DefaultRange, nil
	}
	if !wellFormedToken.MatchString(token) {
		return "", domain.ErrMalformedTimeRange
	}

	switch tr := TimeRange(token); tr {
	case Range7Days, Range30Days, Range90Days, RangeYear:
		return tr, nil
	}
	if strict {
		return "", domain.ErrUnknownTimeRange
	}
	return DefaultRange, nil
}

// Window is a closed [Start, End] interval in UTC.
type Window struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// WindowFor computes the window ending at now for the given range.
func WindowFor(tr TimeRange, now time.Time) Window {
	end := now.UTC()
	var start time.Time
	switch tr {
	case Range7Days:
		start = end.AddDate(0, 0, -7)
	case Range90Days:
		start = end.AddDate(0, 0, -90)
	case RangeYear:
		start = end.AddDate(-1, 0, 0)
	default:
		start = end.AddDate(0, 0, -30)
	}
	return Window{Start: start, End: end}
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Filter keeps the items whose creation time falls inside the window.
func Filter[T any](w Window, items []T, createdAt func(T) time.Time) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if w.Contains(createdAt(item)) {
			out = append(out, item)
		}
	}
	return out
}
