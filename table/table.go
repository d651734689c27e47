// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package table accumulates per-instance metric rows into one result table
// per experiment name, merges tables produced by separate jobs, and
// finalizes them into a deterministic row order.
package table

import (
	"fmt"
	"slices"

	"github.com/petenewcomb/nampipe/internal/cerr"
	"github.com/petenewcomb/nampipe/network"
	"gonum.org/v1/gonum/mat"
)

// Phase distinguishes tables that still accept rows from finalized ones.
type Phase int

const (
	// Accumulating tables have a write cursor; only rows before it are
	// valid.
	Accumulating Phase = iota
	// Finalized tables hold exactly their valid rows, sorted, and accept no
	// further rows.
	Finalized
)

func (p Phase) String() string {
	switch p {
	case Accumulating:
		return "accumulating"
	case Finalized:
		return "finalized"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

const (
	ErrKeyMismatch = cerr.Error("column keys do not match")
	ErrCapacity    = cerr.Error("table capacity exceeded")
	ErrFinalized   = cerr.Error("table is finalized")
)

// Table is the result table of one experiment name. Its columns are the
// varied parameter keys followed by the metric keys.
type Table struct {
	keys      []string
	dims      int
	simulator string
	phase     Phase
	idx       int
	size      int
	data      *mat.Dense
	times     network.Times
}

// New creates an empty accumulating table with room for size rows. The first
// dims keys are the varied parameter keys.
func New(keys []string, dims, size int, simulator string) *Table {
	if dims < 0 || dims > len(keys) {
		panic("dims must be in [0, len(keys)]")
	}
	if size < 0 {
		panic("size must not be negative")
	}
	return &Table{
		keys:      slices.Clone(keys),
		dims:      dims,
		simulator: simulator,
		size:      size,
		data:      newDense(size, len(keys)),
	}
}

// newDense returns nil for an empty matrix, which gonum cannot represent.
func newDense(r, c int) *mat.Dense {
	if r == 0 || c == 0 {
		return nil
	}
	return mat.NewDense(r, c, nil)
}

// Keys returns the column keys.
func (t *Table) Keys() []string { return slices.Clone(t.keys) }

// Dims returns the number of varied parameter columns.
func (t *Table) Dims() int { return t.dims }

// Simulator returns the backend that produced the table's rows.
func (t *Table) Simulator() string { return t.simulator }

// Phase returns the table's phase.
func (t *Table) Phase() Phase { return t.phase }

// Len returns the number of valid rows.
func (t *Table) Len() int { return t.idx }

// Cap returns the number of rows the table can hold.
func (t *Table) Cap() int { return t.size }

// Times returns the accumulated job timings.
func (t *Table) Times() network.Times { return t.times }

// Row returns a copy of valid row i.
func (t *Table) Row(i int) []float64 {
	if i < 0 || i >= t.idx {
		panic("row index out of range")
	}
	return mat.Row(nil, i, t.data)
}

// Column returns a copy of the valid values of the named column.
func (t *Table) Column(key string) ([]float64, bool) {
	j := slices.Index(t.keys, key)
	if j < 0 {
		return nil, false
	}
	col := make([]float64, t.idx)
	for i := range col {
		col[i] = t.data.At(i, j)
	}
	return col, true
}

// Append writes row at the cursor and advances it.
func (t *Table) Append(row []float64) error {
	if t.phase == Finalized {
		return ErrFinalized
	}
	if len(row) != len(t.keys) {
		return fmt.Errorf("%w: row has %d values for %d keys", ErrKeyMismatch, len(row), len(t.keys))
	}
	if t.idx >= t.size {
		return fmt.Errorf("%w: %d rows", ErrCapacity, t.size)
	}
	t.data.SetRow(t.idx, row)
	t.idx++
	return nil
}

// AddTimes adds one job's timings to the accumulated timings.
func (t *Table) AddTimes(times network.Times) {
	t.times = t.times.Add(times)
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	c := *t
	c.keys = slices.Clone(t.keys)
	if t.data != nil {
		c.data = mat.DenseCopyOf(t.data)
	}
	return &c
}

// Equal reports whether t and u hold the same keys, rows, phase and timings.
// Rows beyond the cursor are ignored.
func (t *Table) Equal(u *Table) bool {
	if t.dims != u.dims || t.simulator != u.simulator || t.phase != u.phase ||
		t.idx != u.idx || t.times != u.times || !slices.Equal(t.keys, u.keys) {
		return false
	}
	for i := range t.idx {
		if !slices.Equal(t.Row(i), u.Row(i)) {
			return false
		}
	}
	return true
}

// Set holds the result tables of an experiment by name.
type Set map[string]*Table
