package table

import (
	"strconv"
	"time"
)

// Kind is the narrowed storage type of a column.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInt
	KindFloat
	KindTime
	KindCategory
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindTime:
		return "time"
	case KindCategory:
		return "category"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// categoryMaxUniqueRatio is the narrowing threshold: a column whose chunk
// has fewer than 5% unique values is stored dictionary-encoded.
const categoryMaxUniqueRatio = 0.05

// timeLayouts are tried in order when narrowing a column to KindTime.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// Widen returns the least-restrictive kind covering both a and b.
// Widening never reverses: once a column has widened past a kind, later
// chunks cannot narrow it back.
func Widen(a, b Kind) Kind {
	if a == b {
		return a
	}
	if a == KindUnknown {
		return b
	}
	if b == KindUnknown {
		return a
	}

	// Numeric tower: int widens to float.
	if (a == KindInt && b == KindFloat) || (a == KindFloat && b == KindInt) {
		return KindFloat
	}

	// Everything else mixes down to free text.
	return KindString
}

// InferKind narrows the storage kind for one chunk's worth of raw cell
// values. Empty cells are treated as missing and do not vote.
func InferKind(values []string) Kind {
	nonEmpty := 0
	allInt, allFloat, allTime := true, true, true
	unique := make(map[string]struct{})

	for _, v := range values {
		if v == "" {
			continue
		}
		nonEmpty++
		if len(unique) <= len(values) {
			unique[v] = struct{}{}
		}

		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if allTime && !parseableTime(v) {
			allTime = false
		}
	}

	if nonEmpty == 0 {
		return KindUnknown
	}
	if allInt {
		return KindInt
	}
	if allFloat {
		return KindFloat
	}
	if allTime {
		return KindTime
	}
	if float64(len(unique))/float64(nonEmpty) < categoryMaxUniqueRatio {
		return KindCategory
	}
	return KindString
}

func parseableTime(v string) bool {
	for _, layout := range timeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// ParseTime parses a cell using the layouts InferKind accepts.
func ParseTime(v string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
