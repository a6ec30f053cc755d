package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The date-range mini-language accepts, as a filter value:
//
//	an absolute instant (time.Time or epoch seconds)  exact match
//	"2006-01-02"                                      whole-day match
//	"2006-01-02 15:04:05"                             exact second match
//	">v" ">=v" "<v" "<=v"                             one-sided bound
//	"v1...v2"                                         inclusive range
//
// Bare dates have day precision: their bounds align to midnight calendar
// boundaries. Values with a time component have second precision.

const rangeSeparator = "..."

// dateBound is one parsed endpoint.
type dateBound struct {
	at  time.Time
	day bool // day precision: align comparisons to calendar-day bounds
}

func (b dateBound) dayStart() time.Time {
	return time.Date(b.at.Year(), b.at.Month(), b.at.Day(), 0, 0, 0, 0, b.at.Location())
}

func (b dateBound) dayEnd() time.Time {
	return time.Date(b.at.Year(), b.at.Month(), b.at.Day(), 23, 59, 59, 0, b.at.Location())
}

// lower returns the bound's inclusive lower edge.
func (b dateBound) lower() time.Time {
	if b.day {
		return b.dayStart()
	}
	return b.at
}

// upper returns the bound's inclusive upper edge.
func (b dateBound) upper() time.Time {
	if b.day {
		return b.dayEnd()
	}
	return b.at
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// dayPrecisionLayouts are the layouts without a time component.
var dayPrecisionLayouts = map[string]bool{
	"2006-01-02": true,
	"2006-01":    true,
	"2006":       true,
}

func parseBound(s string) (dateBound, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return dateBound{}, fmt.Errorf("empty date value")
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return dateBound{at: time.Unix(epoch, 0).UTC()}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return dateBound{at: t, day: dayPrecisionLayouts[layout]}, nil
		}
	}
	return dateBound{}, fmt.Errorf("unparseable date value %q", s)
}

// parseDateRange compiles one date-range expression into a FieldCond against
// the given column. The same result feeds compileMetaDateRange for
// meta-stored timestamps.
func parseDateRange(column, expr string) (FieldCond, error) {
	expr = strings.TrimSpace(expr)

	if from, to, ok := strings.Cut(expr, rangeSeparator); ok {
		lo, err := parseBound(from)
		if err != nil {
			return FieldCond{}, err
		}
		hi, err := parseBound(to)
		if err != nil {
			return FieldCond{}, err
		}
		return FieldCond{Column: column, Op: OpBetween, From: lo.lower(), To: hi.upper()}, nil
	}

	op := OpEq
	switch {
	case strings.HasPrefix(expr, ">="):
		op, expr = OpGte, expr[2:]
	case strings.HasPrefix(expr, "<="):
		op, expr = OpLte, expr[2:]
	case strings.HasPrefix(expr, ">"):
		op, expr = OpGt, expr[1:]
	case strings.HasPrefix(expr, "<"):
		op, expr = OpLt, expr[1:]
	}

	b, err := parseBound(expr)
	if err != nil {
		return FieldCond{}, err
	}

	switch op {
	case OpEq:
		if b.day {
			// A whole-day match is an inclusive range over the calendar day.
			return FieldCond{Column: column, Op: OpBetween, From: b.dayStart(), To: b.dayEnd()}, nil
		}
		return FieldCond{Column: column, Op: OpEq, Value: b.at}, nil
	case OpGt:
		// ">T" excludes T; for day precision that means after the day ends.
		return FieldCond{Column: column, Op: OpGt, Value: b.upper()}, nil
	case OpGte:
		return FieldCond{Column: column, Op: OpGte, Value: b.lower()}, nil
	case OpLt:
		return FieldCond{Column: column, Op: OpLt, Value: b.lower()}, nil
	default: // OpLte
		return FieldCond{Column: column, Op: OpLte, Value: b.upper()}, nil
	}
}

// metaDateConds converts a compiled date condition into the pair of numeric
// comparisons used when the timestamp lives in a metadata row rather than a
// first-class column.
func metaDateConds(key string, fc FieldCond) []MetaCond {
	epoch := func(v any) int64 {
		if t, ok := v.(time.Time); ok {
			return t.Unix()
		}
		return 0
	}
	switch fc.Op {
	case OpBetween:
		return []MetaCond{
			{Key: key, Op: OpGte, Value: fc.From.Unix(), Numeric: true},
			{Key: key, Op: OpLte, Value: fc.To.Unix(), Numeric: true},
		}
	case OpEq:
		return []MetaCond{{Key: key, Op: OpEq, Value: epoch(fc.Value), Numeric: true}}
	default:
		return []MetaCond{{Key: key, Op: fc.Op, Value: epoch(fc.Value), Numeric: true}}
	}
}
