// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package table

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/petenewcomb/nampipe/network"
)

// Summary is the rendering of a finalized table with exactly one row.
type Summary struct {
	Name   string
	Keys   []string
	Values []float64
	Times  network.Times
}

// Heading returns the line introducing the summary.
func (s Summary) Heading() string {
	return fmt.Sprintf("Results for experiment %q", s.Name)
}

// Body renders the keys with their values and the timing breakdown.
func (s Summary) Body() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(s.Keys, "\t"))
	vals := make([]string, len(s.Values))
	for i, v := range s.Values {
		vals[i] = fmt.Sprintf("%.2f", v)
	}
	fmt.Fprintln(w, strings.Join(vals, "\t"))
	w.Flush()
	fmt.Fprintf(&b, "Timings for experiment %q\n", s.Name)
	w = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "total\t%.2fs\n", s.Times.Total.Seconds())
	fmt.Fprintf(w, "sim\t%.2fs\n", s.Times.Sim.Seconds())
	fmt.Fprintf(w, "initialize\t%.2fs\n", s.Times.Initialize.Seconds())
	fmt.Fprintf(w, "finalize\t%.2fs\n", s.Times.Finalize.Seconds())
	w.Flush()
	return b.String()
}

func (s Summary) String() string {
	return s.Heading() + "\n" + s.Body()
}

// Finalize sorts the valid rows of every table by its varied parameter
// columns, trims each matrix to its valid rows and marks the tables
// finalized. It returns a summary, ordered by name, for every table with
// exactly one row.
func Finalize(s Set) []Summary {
	var summaries []Summary
	for _, name := range slices.Sorted(maps.Keys(s)) {
		t := s[name]
		t.finalize()
		if t.idx == 1 {
			summaries = append(summaries, Summary{
				Name:   name,
				Keys:   t.Keys(),
				Values: t.Row(0),
				Times:  t.times,
			})
		}
	}
	return summaries
}

func (t *Table) finalize() {
	if t.phase == Finalized {
		return
	}
	rows := make([][]float64, t.idx)
	for i := range rows {
		rows[i] = t.Row(i)
	}
	if t.dims > 0 {
		slices.SortStableFunc(rows, func(a, b []float64) int {
			for j := range t.dims {
				if c := cmp.Compare(a[j], b[j]); c != 0 {
					return c
				}
			}
			return 0
		})
	}
	t.data = newDense(t.idx, len(t.keys))
	for i, row := range rows {
		t.data.SetRow(i, row)
	}
	t.size = t.idx
	t.phase = Finalized
}
