// Package model defines the open, column-oriented row batch that flows
// through partition reads, aggregation, caching, and the rebuilder.
package model

import (
	"math"
	"sort"
	"time"
)

// ColumnKind tags the storage representation of a Column.
type ColumnKind int

const (
	ColumnTimestamp ColumnKind = iota
	ColumnNumeric
	ColumnString
)

// Column is one named field of a Batch. Exactly one of the three slices is
// populated, selected by Kind; all three are exported so a Batch round-trips
// through encoding/gob without custom marshaling.
type Column struct {
	Kind       ColumnKind
	Timestamps []time.Time
	Numerics   []float64
	Strings    []string
}

func newTimestampColumn(n int) *Column {
	return &Column{Kind: ColumnTimestamp, Timestamps: make([]time.Time, n)}
}

func newNumericColumn(n int) *Column {
	c := &Column{Kind: ColumnNumeric, Numerics: make([]float64, n)}
	for i := range c.Numerics {
		c.Numerics[i] = math.NaN()
	}
	return c
}

func newStringColumn(n int) *Column {
	return &Column{Kind: ColumnString, Strings: make([]string, n)}
}

func (c *Column) length() int {
	switch c.Kind {
	case ColumnTimestamp:
		return len(c.Timestamps)
	case ColumnNumeric:
		return len(c.Numerics)
	default:
		return len(c.Strings)
	}
}

// selectIndices returns a new Column containing only the given row indices,
// in order.
func (c *Column) selectIndices(idx []int) *Column {
	switch c.Kind {
	case ColumnTimestamp:
		out := make([]time.Time, len(idx))
		for i, j := range idx {
			out[i] = c.Timestamps[j]
		}
		return &Column{Kind: ColumnTimestamp, Timestamps: out}
	case ColumnNumeric:
		out := make([]float64, len(idx))
		for i, j := range idx {
			out[i] = c.Numerics[j]
		}
		return &Column{Kind: ColumnNumeric, Numerics: out}
	default:
		out := make([]string, len(idx))
		for i, j := range idx {
			out[i] = c.Strings[j]
		}
		return &Column{Kind: ColumnString, Strings: out}
	}
}

// Batch is an ordered sequence of rows sharing a schema subset. Column names
// are open; the columns the rest of the system understands by name are
// "timestamp" and the two grouping columns "sensor_name" and "asset_id".
type Batch struct {
	Rows    int
	Columns map[string]*Column
}

// NewBatch returns an empty batch with no rows and no columns.
func NewBatch() *Batch {
	return &Batch{Columns: make(map[string]*Column)}
}

// Empty reports whether the batch carries no rows.
func (b *Batch) Empty() bool {
	return b == nil || b.Rows == 0
}

// ColumnNames returns the batch's column names in no particular order.
func (b *Batch) ColumnNames() []string {
	names := make([]string, 0, len(b.Columns))
	for name := range b.Columns {
		names = append(names, name)
	}
	return names
}

// NumericColumnNames returns the names of columns tagged ColumnNumeric,
// excluding well-known non-metric columns, sorted for determinism.
func (b *Batch) NumericColumnNames() []string {
	var out []string
	for name, col := range b.Columns {
		if col.Kind == ColumnNumeric {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Timestamps returns the "timestamp" column's values, or nil if absent.
func (b *Batch) Timestamps() []time.Time {
	col, ok := b.Columns["timestamp"]
	if !ok || col.Kind != ColumnTimestamp {
		return nil
	}
	return col.Timestamps
}

// StringAt returns the value of string column name at row i. Returns
// ("", false) when the column is absent, is not a string column, or has no
// such row.
func (b *Batch) StringAt(name string, i int) (string, bool) {
	col, ok := b.Columns[name]
	if !ok || col.Kind != ColumnString || i >= len(col.Strings) {
		return "", false
	}
	return col.Strings[i], true
}

// NumericAt returns the numeric value of column name at row i. Returns
// (NaN, false) when the column or row is absent.
func (b *Batch) NumericAt(name string, i int) (float64, bool) {
	col, ok := b.Columns[name]
	if !ok || col.Kind != ColumnNumeric || i >= len(col.Numerics) {
		return math.NaN(), false
	}
	return col.Numerics[i], true
}

// Select projects the batch down to the given row indices, in the order
// given. It is the building block for sort, filter and downsample.
func (b *Batch) Select(idx []int) *Batch {
	out := &Batch{Rows: len(idx), Columns: make(map[string]*Column, len(b.Columns))}
	for name, col := range b.Columns {
		out.Columns[name] = col.selectIndices(idx)
	}
	return out
}

// Filter keeps only rows for which keep(i) is true.
func (b *Batch) Filter(keep func(i int) bool) *Batch {
	idx := make([]int, 0, b.Rows)
	for i := 0; i < b.Rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return b.Select(idx)
}

// SortByTimestamp returns a new batch with rows ordered by ascending
// timestamp, stable with respect to the original row order on ties.
func (b *Batch) SortByTimestamp() *Batch {
	ts := b.Timestamps()
	if ts == nil {
		return b
	}
	idx := make([]int, b.Rows)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return ts[idx[i]].Before(ts[idx[j]])
	})
	return b.Select(idx)
}

// Concat concatenates batches in order, unioning their column sets. Rows
// from a batch missing a column present in another get NaN/zero-value/empty
// filler for that column.
func Concat(batches ...*Batch) *Batch {
	allNames := make(map[string]ColumnKind)
	total := 0
	for _, b := range batches {
		if b == nil {
			continue
		}
		total += b.Rows
		for name, col := range b.Columns {
			allNames[name] = col.Kind
		}
	}
	out := &Batch{Rows: total, Columns: make(map[string]*Column, len(allNames))}
	for name, kind := range allNames {
		switch kind {
		case ColumnTimestamp:
			out.Columns[name] = newTimestampColumn(total)
		case ColumnNumeric:
			out.Columns[name] = newNumericColumn(total)
		default:
			out.Columns[name] = newStringColumn(total)
		}
	}
	offset := 0
	for _, b := range batches {
		if b == nil {
			continue
		}
		for name, outCol := range out.Columns {
			srcCol, ok := b.Columns[name]
			if !ok {
				offset2 := offset
				_ = offset2
				continue
			}
			copyInto(outCol, srcCol, offset)
		}
		offset += b.Rows
	}
	return out
}

func copyInto(dst, src *Column, offset int) {
	switch dst.Kind {
	case ColumnTimestamp:
		copy(dst.Timestamps[offset:], src.Timestamps)
	case ColumnNumeric:
		copy(dst.Numerics[offset:], src.Numerics)
	default:
		copy(dst.Strings[offset:], src.Strings)
	}
}

// Builder accumulates rows into column slices before sealing them into a
// Batch; it is the append-friendly counterpart to the immutable Batch.
type Builder struct {
	n       int
	columns map[string]*Column
}

// NewBuilder returns a Builder ready to append rows.
func NewBuilder() *Builder {
	return &Builder{columns: make(map[string]*Column)}
}

// AddRow appends one row described by timestamp plus string and numeric
// fields. Columns absent from a given row are back-filled for earlier rows
// and this row alike (NaN for numeric columns, the zero time for timestamp
// columns, "" for string columns), preserving equal column lengths.
func (bd *Builder) AddRow(ts time.Time, strings map[string]string, numerics map[string]float64) {
	bd.ensureColumn("timestamp", ColumnTimestamp)
	bd.columns["timestamp"].Timestamps = append(bd.columns["timestamp"].Timestamps, ts)

	seen := map[string]bool{"timestamp": true}
	for name, v := range strings {
		bd.ensureColumn(name, ColumnString)
		bd.columns[name].Strings = append(bd.columns[name].Strings, v)
		seen[name] = true
	}
	for name, v := range numerics {
		bd.ensureColumn(name, ColumnNumeric)
		bd.columns[name].Numerics = append(bd.columns[name].Numerics, v)
		seen[name] = true
	}
	bd.n++
	for name, col := range bd.columns {
		if seen[name] {
			continue
		}
		bd.padOne(col)
	}
}

func (bd *Builder) ensureColumn(name string, kind ColumnKind) {
	if _, ok := bd.columns[name]; ok {
		return
	}
	var col *Column
	switch kind {
	case ColumnTimestamp:
		col = &Column{Kind: kind}
	case ColumnNumeric:
		col = &Column{Kind: kind}
	default:
		col = &Column{Kind: kind}
	}
	// Back-fill for rows already appended.
	for i := 0; i < bd.n; i++ {
		bd.padOne(col)
	}
	bd.columns[name] = col
}

func (bd *Builder) padOne(col *Column) {
	switch col.Kind {
	case ColumnTimestamp:
		col.Timestamps = append(col.Timestamps, time.Time{})
	case ColumnNumeric:
		col.Numerics = append(col.Numerics, math.NaN())
	default:
		col.Strings = append(col.Strings, "")
	}
}

// Build seals the builder into a Batch.
func (bd *Builder) Build() *Batch {
	return &Batch{Rows: bd.n, Columns: bd.columns}
}
