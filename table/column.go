package table

import (
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// Column is one typed column of a Table. Exactly one of the value slices is
// populated, selected by Kind. Missing or unparseable cells are recorded in
// the null bitmap and read back as (zero, false).
type Column struct {
	Name string
	Kind Kind

	ints   []int64
	floats []float64
	times  []time.Time
	strs   []string

	// Category storage: codes index into dict.
	codes []uint32
	dict  []string

	nulls *roaring.Bitmap

	catOnce  sync.Once
	catIndex map[string]*roaring.Bitmap
}

// Len returns the number of rows.
func (c *Column) Len() int {
	switch c.Kind {
	case KindInt:
		return len(c.ints)
	case KindFloat:
		return len(c.floats)
	case KindTime:
		return len(c.times)
	case KindCategory:
		return len(c.codes)
	default:
		return len(c.strs)
	}
}

// IsNull reports whether row i holds a missing value.
func (c *Column) IsNull(i int) bool {
	return c.nulls != nil && c.nulls.ContainsInt(i)
}

// Int returns the integer value at row i.
func (c *Column) Int(i int) (int64, bool) {
	if c.Kind != KindInt || c.IsNull(i) {
		return 0, false
	}
	return c.ints[i], true
}

// Float returns the float value at row i. Integer columns are readable as
// floats so numeric consumers need not branch on the narrowed kind.
func (c *Column) Float(i int) (float64, bool) {
	if c.IsNull(i) {
		return 0, false
	}
	switch c.Kind {
	case KindFloat:
		return c.floats[i], true
	case KindInt:
		return float64(c.ints[i]), true
	default:
		return 0, false
	}
}

// Time returns the timestamp at row i.
func (c *Column) Time(i int) (time.Time, bool) {
	if c.Kind != KindTime || c.IsNull(i) {
		return time.Time{}, false
	}
	return c.times[i], true
}

// String returns the textual value at row i. Category columns resolve
// through their dictionary.
func (c *Column) String(i int) (string, bool) {
	if c.IsNull(i) {
		return "", false
	}
	switch c.Kind {
	case KindString:
		return c.strs[i], true
	case KindCategory:
		return c.dict[c.codes[i]], true
	default:
		return "", false
	}
}

// Value returns the value at row i as its natural Go type, or nil for null.
func (c *Column) Value(i int) any {
	if c.IsNull(i) {
		return nil
	}
	switch c.Kind {
	case KindInt:
		return c.ints[i]
	case KindFloat:
		return c.floats[i]
	case KindTime:
		return c.times[i]
	case KindCategory:
		return c.dict[c.codes[i]]
	default:
		return c.strs[i]
	}
}

// Categories returns the dictionary of a category column, in first-seen
// order. Nil for other kinds.
func (c *Column) Categories() []string {
	if c.Kind != KindCategory {
		return nil
	}
	return c.dict
}

// Rows returns the set of row numbers holding value. Only category columns
// maintain this index; other kinds return nil. The index is built lazily
// on first use and shared by subsequent calls.
func (c *Column) Rows(value string) *roaring.Bitmap {
	if c.Kind != KindCategory {
		return nil
	}
	c.catOnce.Do(func() {
		c.catIndex = make(map[string]*roaring.Bitmap, len(c.dict))
		for _, v := range c.dict {
			c.catIndex[v] = roaring.New()
		}
		for i, code := range c.codes {
			if c.IsNull(i) {
				continue
			}
			c.catIndex[c.dict[code]].AddInt(i)
		}
	})
	return c.catIndex[value]
}

// footprint estimates the heap bytes held by the column's value storage.
func (c *Column) footprint() int64 {
	var n int64
	n += int64(len(c.ints)) * 8
	n += int64(len(c.floats)) * 8
	n += int64(len(c.times)) * 24
	n += int64(len(c.codes)) * 4
	for _, s := range c.dict {
		n += int64(len(s)) + 16
	}
	for _, s := range c.strs {
		n += int64(len(s)) + 16
	}
	if c.nulls != nil {
		n += int64(c.nulls.GetSizeInBytes())
	}
	return n
}
