package values

import (
	"strconv"
	"strings"
	"time"
)

// Datetime parsing prefers one column-wide layout inferred from a
// sample, then falls back to generic parsing. Unparseable entries become
// null rather than raising.

var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"02-01-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"2006-01-02 15:04",
	"15:04:05",
	time.RFC3339,
}

func matchDatetimeLayout(s string) string {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return layout
		}
	}
	return ""
}

func parseWithLayout(s, layout string) (time.Time, error) {
	return time.Parse(layout, s)
}

// InferDatetimeFormat returns the layout that parses the most samples,
// or "" when nothing matches. Deterministic: ties break on layout order.
func InferDatetimeFormat(samples []string) string {
	best, bestCount := "", 0
	for _, layout := range datetimeLayouts {
		count := 0
		for _, s := range samples {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, err := time.Parse(layout, s); err == nil {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = layout, count
		}
	}
	return best
}

// ParseDatetime parses s with the preferred layout when given, falling
// back to the generic layout list. ok=false means the entry is null.
func ParseDatetime(s, layout string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, l := range datetimeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseTimedelta accepts Go duration syntax ("1h30m"), clock syntax
// ("HH:MM:SS"), pandas-style "N days HH:MM:SS", and bare second counts.
func ParseTimedelta(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	days := int64(0)
	if idx := strings.Index(s, "days"); idx > 0 {
		n, err := strconv.ParseInt(strings.TrimSpace(s[:idx]), 10, 64)
		if err != nil {
			return 0, false
		}
		days = n
		s = strings.TrimSpace(s[idx+len("days"):])
		if s == "" {
			return time.Duration(days) * 24 * time.Hour, true
		}
	}
	if parts := strings.Split(s, ":"); len(parts) == 3 {
		h, err1 := strconv.ParseInt(parts[0], 10, 64)
		m, err2 := strconv.ParseInt(parts[1], 10, 64)
		sec, err3 := strconv.ParseFloat(parts[2], 64)
		if err1 == nil && err2 == nil && err3 == nil {
			d := time.Duration(days)*24*time.Hour +
				time.Duration(h)*time.Hour +
				time.Duration(m)*time.Minute +
				time.Duration(sec*float64(time.Second))
			return d, true
		}
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), true
	}
	return 0, false
}

func secondsDur(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
