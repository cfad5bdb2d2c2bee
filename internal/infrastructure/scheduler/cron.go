package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
//
//   - "*/5 * * * *"  every 5 minutes
//   - "0 3 * * *"    every day at 03:00
//   - "30 6 * * 1-5" weekdays at 06:30
type CronExpression struct {
	raw      string
	minutes  uint64 // bits 0-59
	hours    uint64 // bits 0-23
	days     uint64 // bits 1-31
	months   uint64 // bits 1-12
	weekdays uint64 // bits 0-6, 0 = Sunday

	// Restricted day fields are OR-ed, as in classic cron.
	anyDay     bool
	anyWeekday bool
}

type fieldSpec struct {
	name     string
	min, max int
}

var cronFields = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// ParseCronExpression parses a 5-field cron expression.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	var sets [5]uint64
	for i, f := range fields {
		set, err := parseField(f, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", cronFields[i].name, err)
		}
		sets[i] = set
	}

	return &CronExpression{
		raw:        expr,
		minutes:    sets[0],
		hours:      sets[1],
		days:       sets[2],
		months:     sets[3],
		weekdays:   sets[4],
		anyDay:     fields[2] == "*",
		anyWeekday: fields[4] == "*",
	}, nil
}

// MustParseCronExpression panics on an invalid expression.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

// parseField parses a comma-separated list of terms, each one of
// "*", "n", "n-m", optionally followed by "/step".
func parseField(field string, spec fieldSpec) (uint64, error) {
	var set uint64
	for _, term := range strings.Split(field, ",") {
		lo, hi, step := spec.min, spec.max, 1

		rng := term
		if i := strings.IndexByte(term, '/'); i >= 0 {
			s, err := strconv.Atoi(term[i+1:])
			if err != nil || s <= 0 {
				return 0, fmt.Errorf("invalid step in %q", term)
			}
			step = s
			rng = term[:i]
		}

		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if lo, err = strconv.Atoi(a); err != nil {
				return 0, fmt.Errorf("invalid range start in %q", term)
			}
			if hi, err = strconv.Atoi(b); err != nil {
				return 0, fmt.Errorf("invalid range end in %q", term)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return 0, fmt.Errorf("invalid value %q", term)
			}
			lo = v
			if step == 1 {
				hi = v
			}
		}

		if lo < spec.min || hi > spec.max || lo > hi {
			return 0, fmt.Errorf("%q out of range [%d-%d]", term, spec.min, spec.max)
		}
		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

// String returns the original expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after t, or the zero time
// if none exists within five years.
func (ce *CronExpression) Next(t time.Time) time.Time {
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if ce.months&(1<<uint(t.Month())) == 0 {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !ce.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if ce.hours&(1<<uint(t.Hour())) == 0 {
			t = t.Truncate(time.Hour).Add(time.Hour)
			continue
		}
		if ce.minutes&(1<<uint(t.Minute())) == 0 {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (ce *CronExpression) dayMatches(t time.Time) bool {
	dom := ce.days&(1<<uint(t.Day())) != 0
	dow := ce.weekdays&(1<<uint(t.Weekday())) != 0
	switch {
	case ce.anyDay && ce.anyWeekday:
		return true
	case ce.anyDay:
		return dow
	case ce.anyWeekday:
		return dom
	default:
		return dom || dow
	}
}

// ParseSchedule accepts "@every <duration>", the "@hourly", "@daily" and
// "@weekly" shorthands, or a 5-field cron expression.
func ParseSchedule(s string) (Schedule, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "@hourly":
		return ParseCronExpression("0 * * * *")
	case "@daily", "@midnight":
		return ParseCronExpression("0 0 * * *")
	case "@weekly":
		return ParseCronExpression("0 0 * * 0")
	}
	if rest, ok := strings.CutPrefix(s, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("interval must be positive, got %s", d)
		}
		return NewIntervalSchedule(d), nil
	}
	return ParseCronExpression(s)
}
