// Package cron translates standard 5-field cron expressions into the
// EventBridge native recurrence format and computes upcoming fire times.
//
// Standard cron numbers days of the week 0-6 with 0 = Sunday; EventBridge
// numbers them 1-7 with 1 = Sunday. The translation shifts the field
// explicitly rather than passing it through.
package cron

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Expression is a parsed 5-field cron expression
type Expression struct {
	Minutes     map[int]bool
	Hours       map[int]bool
	DaysOfMonth map[int]bool
	Months      map[int]bool
	DaysOfWeek  map[int]bool // 0 = Sunday

	minuteAny, hourAny, domAny, monthAny, dowAny bool

	raw string
}

type fieldRange struct {
	min, max int
}

var fieldRanges = []fieldRange{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week
}

// Parse parses a standard 5-field cron expression.
// Supported syntax per field: "*", "*/n", "a", "a-b", "a-b/n" and comma
// lists of any of those.
func Parse(expr string) (*Expression, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d: %q", len(fields), expr)
	}

	parsed := make([]map[int]bool, 5)
	anyFlags := make([]bool, 5)
	for i, field := range fields {
		values, isAny, err := parseField(field, fieldRanges[i].min, fieldRanges[i].max)
		if err != nil {
			return nil, fmt.Errorf("invalid cron field %d (%q): %w", i, field, err)
		}
		parsed[i] = values
		anyFlags[i] = isAny
	}

	return &Expression{
		Minutes:     parsed[0],
		Hours:       parsed[1],
		DaysOfMonth: parsed[2],
		Months:      parsed[3],
		DaysOfWeek:  parsed[4],
		minuteAny:   anyFlags[0],
		hourAny:     anyFlags[1],
		domAny:      anyFlags[2],
		monthAny:    anyFlags[3],
		dowAny:      anyFlags[4],
		raw:         expr,
	}, nil
}

func parseField(field string, min, max int) (map[int]bool, bool, error) {
	values := make(map[int]bool)

	if field == "*" {
		for v := min; v <= max; v++ {
			values[v] = true
		}
		return values, true, nil
	}

	for _, part := range strings.Split(field, ",") {
		step := 1
		if idx := strings.Index(part, "/"); idx >= 0 {
			s, err := strconv.Atoi(part[idx+1:])
			if err != nil || s < 1 {
				return nil, false, fmt.Errorf("invalid step in %q", part)
			}
			step = s
			part = part[:idx]
		}

		var lo, hi int
		switch {
		case part == "*":
			lo, hi = min, max
		case strings.Contains(part, "-"):
			bounds := strings.SplitN(part, "-", 2)
			a, errA := strconv.Atoi(bounds[0])
			b, errB := strconv.Atoi(bounds[1])
			if errA != nil || errB != nil || a > b {
				return nil, false, fmt.Errorf("invalid range %q", part)
			}
			lo, hi = a, b
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, false, fmt.Errorf("invalid value %q", part)
			}
			lo, hi = v, v
		}

		if lo < min || hi > max {
			return nil, false, fmt.Errorf("value out of range [%d,%d]: %q", min, max, part)
		}
		for v := lo; v <= hi; v += step {
			values[v] = true
		}
	}

	if len(values) == 0 {
		return nil, false, fmt.Errorf("empty field")
	}
	return values, false, nil
}

// ToEventBridge converts a standard cron expression into an EventBridge
// schedule expression of the form "cron(min hour dom mon dow year)".
//
// EventBridge requires exactly one of day-of-month and day-of-week to be "?",
// and its day-of-week field is 1-7 with 1 = Sunday.
func ToEventBridge(expr string) (string, error) {
	parsed, err := Parse(expr)
	if err != nil {
		return "", err
	}

	fields := strings.Fields(strings.TrimSpace(expr))
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	switch {
	case parsed.dowAny && parsed.domAny:
		dow = "?"
	case parsed.dowAny:
		dow = "?"
	case parsed.domAny:
		dom = "?"
		dow = shiftDayOfWeek(parsed.DaysOfWeek)
	default:
		return "", fmt.Errorf("eventbridge does not support restricting both day-of-month and day-of-week: %q", expr)
	}

	return fmt.Sprintf("cron(%s %s %s %s %s *)", minute, hour, dom, month, dow), nil
}

// shiftDayOfWeek renders a cron day-of-week set (0=Sunday) as an EventBridge
// enumeration (1=Sunday).
func shiftDayOfWeek(days map[int]bool) string {
	shifted := make([]int, 0, len(days))
	for d := range days {
		shifted = append(shifted, d+1)
	}
	sort.Ints(shifted)

	parts := make([]string, len(shifted))
	for i, d := range shifted {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// Next returns the first time strictly after the given instant at which the
// expression fires. The scan is bounded; an expression that cannot fire
// within five years (e.g. Feb 30) returns an error.
func (e *Expression) Next(after time.Time) (time.Time, error) {
	loc := after.Location()
	start := after.Truncate(time.Minute).Add(time.Minute)

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	limit := day.AddDate(5, 0, 0)

	hours := sortedKeys(e.Hours)
	minutes := sortedKeys(e.Minutes)

	for ; day.Before(limit); day = day.AddDate(0, 0, 1) {
		if !e.Months[int(day.Month())] {
			continue
		}
		if !e.dayMatches(day) {
			continue
		}
		for _, h := range hours {
			for _, m := range minutes {
				candidate := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
				if !candidate.Before(start) {
					return candidate, nil
				}
			}
		}
	}

	return time.Time{}, fmt.Errorf("no fire time within five years for %q", e.raw)
}

// dayMatches applies the classic cron rule: when both day fields are
// restricted a day matches if either one matches; otherwise the restricted
// field decides.
func (e *Expression) dayMatches(day time.Time) bool {
	domMatch := e.DaysOfMonth[day.Day()]
	dowMatch := e.DaysOfWeek[int(day.Weekday())]

	switch {
	case e.domAny && e.dowAny:
		return true
	case e.domAny:
		return dowMatch
	case e.dowAny:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

func sortedKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
