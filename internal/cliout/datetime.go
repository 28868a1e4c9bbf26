package cliout

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ParseISODateTime accepts RFC3339[Nano] or a bare date, adapted from the
// teacher's datetime_display.go for rendering lock/checkpoint timestamps.
func ParseISODateTime(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed, true
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, true
	}
	if parsed, err := time.ParseInLocation("2006-01-02", value, time.Local); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}

// RelativeTime renders target relative to now ("3 minutes ago", "in 2
// hours"), the style ru's status output uses for run/lock timestamps.
func RelativeTime(target, now time.Time) string {
	if target.IsZero() {
		return ""
	}
	diff := target.Sub(now)
	if diff >= 0 {
		return "in " + durationPhrase(diff)
	}
	past := -diff
	if past < time.Minute {
		return "just now"
	}
	return durationPhrase(past) + " ago"
}

func durationPhrase(d time.Duration) string {
	minutes := int(math.Ceil(d.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	if minutes < 60 {
		return pluralize(minutes, "minute")
	}
	hours := int(math.Ceil(d.Hours()))
	if hours < 24 {
		return pluralize(hours, "hour")
	}
	days := int(math.Ceil(d.Hours() / 24.0))
	return pluralize(days, "day")
}

func pluralize(value int, unit string) string {
	if value == 1 {
		return fmt.Sprintf("%d %s", value, unit)
	}
	return fmt.Sprintf("%d %ss", value, unit)
}

// FormatISORelativeNow parses raw as an ISO timestamp and renders it
// relative to now; returns raw unchanged if it doesn't parse.
func FormatISORelativeNow(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "-"
	}
	parsed, ok := ParseISODateTime(value)
	if !ok {
		return value
	}
	return RelativeTime(parsed, time.Now())
}
