package table

import (
	"strconv"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// ColumnSchema describes one column of a published dataset.
type ColumnSchema struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Chunk is one bounded slice of parsed source rows, before normalization.
// Kinds holds the storage kinds narrowed from this chunk's values alone;
// the Builder reconciles them across chunks by widening.
type Chunk struct {
	Index  int
	Header []string
	Rows   [][]string
	Kinds  []Kind
}

// NarrowKinds fills in the chunk's per-column kinds from its own values.
func (c *Chunk) NarrowKinds() {
	c.Kinds = make([]Kind, len(c.Header))
	values := make([]string, len(c.Rows))
	for col := range c.Header {
		for i, row := range c.Rows {
			values[i] = row[col]
		}
		c.Kinds[col] = InferKind(values)
	}
}

// Table is a normalized columnar dataset.
type Table struct {
	cols   []*Column
	byName map[string]int
	rows   int
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.cols) }

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Schema returns the column schemas in source order.
func (t *Table) Schema() []ColumnSchema {
	out := make([]ColumnSchema, len(t.cols))
	for i, c := range t.cols {
		out[i] = ColumnSchema{Name: c.Name, Kind: c.Kind}
	}
	return out
}

// MemoryFootprint estimates the heap bytes held by the table.
func (t *Table) MemoryFootprint() int64 {
	var n int64
	for _, c := range t.cols {
		n += c.footprint()
	}
	return n
}

// Builder accumulates chunks and materializes a Table once the final,
// fully widened kind of every column is known. Raw cells are kept as
// strings until Finish because a later chunk may widen an earlier column.
type Builder struct {
	header []string
	kinds  []Kind
	rows   [][]string
}

// NewBuilder creates a builder for sources with the given header.
func NewBuilder(header []string) *Builder {
	return &Builder{
		header: header,
		kinds:  make([]Kind, len(header)),
	}
}

// Append merges a chunk into the builder, widening column kinds as needed.
func (b *Builder) Append(c *Chunk) {
	if c.Kinds == nil {
		c.NarrowKinds()
	}
	for i := range b.kinds {
		if i < len(c.Kinds) {
			b.kinds[i] = Widen(b.kinds[i], c.Kinds[i])
		}
	}
	b.rows = append(b.rows, c.Rows...)
}

// NumRows returns the rows accumulated so far.
func (b *Builder) NumRows() int { return len(b.rows) }

// Truncate drops accumulated rows beyond n. Bounded sample loads use it
// when the last chunk overshoots the sample size.
func (b *Builder) Truncate(n int) {
	if n >= 0 && n < len(b.rows) {
		b.rows = b.rows[:n]
	}
}

// Kinds returns the current widened kind per column.
func (b *Builder) Kinds() []Kind { return b.kinds }

// Finish converts the accumulated raw rows into typed columns.
// Cells that fail to parse under the final kind become nulls.
func (b *Builder) Finish() *Table {
	t := &Table{
		byName: make(map[string]int, len(b.header)),
		rows:   len(b.rows),
	}

	for col, name := range b.header {
		kind := b.kinds[col]
		if kind == KindUnknown {
			kind = KindString
		}
		c := buildColumn(name, kind, b.rows, col)
		t.byName[name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return t
}

func buildColumn(name string, kind Kind, rows [][]string, col int) *Column {
	c := &Column{Name: name, Kind: kind, nulls: roaring.New()}

	switch kind {
	case KindInt:
		c.ints = make([]int64, len(rows))
		for i, row := range rows {
			v, err := strconv.ParseInt(cell(row, col), 10, 64)
			if err != nil {
				c.nulls.AddInt(i)
				continue
			}
			c.ints[i] = v
		}
	case KindFloat:
		c.floats = make([]float64, len(rows))
		for i, row := range rows {
			v, err := strconv.ParseFloat(cell(row, col), 64)
			if err != nil {
				c.nulls.AddInt(i)
				continue
			}
			c.floats[i] = v
		}
	case KindTime:
		c.times = make([]time.Time, len(rows))
		for i, row := range rows {
			v, ok := ParseTime(cell(row, col))
			if !ok {
				c.nulls.AddInt(i)
				continue
			}
			c.times[i] = v
		}
	case KindCategory:
		c.codes = make([]uint32, len(rows))
		byValue := make(map[string]uint32)
		for i, row := range rows {
			v := cell(row, col)
			if v == "" {
				c.nulls.AddInt(i)
				continue
			}
			code, ok := byValue[v]
			if !ok {
				code = uint32(len(c.dict))
				byValue[v] = code
				c.dict = append(c.dict, v)
			}
			c.codes[i] = code
		}
	default:
		c.strs = make([]string, len(rows))
		for i, row := range rows {
			v := cell(row, col)
			if v == "" {
				c.nulls.AddInt(i)
				continue
			}
			c.strs[i] = v
		}
	}

	if c.nulls.IsEmpty() {
		c.nulls = nil
	}
	return c
}

func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}
