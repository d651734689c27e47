// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package analysis turns the raw output of a job into rows of metrics in the
// result tables of the job's experiments.
package analysis

import (
	"fmt"
	"slices"

	"github.com/petenewcomb/nampipe/network"
	"github.com/petenewcomb/nampipe/table"
	"go.uber.org/zap"
)

// MetricKeys names the metric columns that follow the varied parameter
// columns of every result table.
var MetricKeys = []string{
	"I", "I_n", "I_ref",
	"fp", "fp_n", "fp_ref", "fp_ref_n",
	"fn", "fn_n",
	"lat_avg", "lat_std", "n_lat_inv",
}

const progressInterval = 50

// Analyze appends one row per instance of the result to the table of the
// instance's experiment, creating tables as needed. The job's timings are
// added once, to the table of its first instance. A nil into is replaced by a
// new Set, which is returned.
func Analyze(res *network.Result, into table.Set, log *zap.Logger) (table.Set, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if into == nil {
		into = make(table.Set)
	}
	analyses, err := network.Demultiplex(res)
	if err != nil {
		return into, err
	}
	for i, a := range analyses {
		name := a.Meta.Experiment
		t, err := tableFor(into, a)
		if err != nil {
			return into, err
		}
		if i == 0 {
			t.AddTimes(res.Times)
		}
		row := make([]float64, 0, len(a.Meta.Keys)+len(MetricKeys))
		for _, key := range a.Meta.Keys {
			v, err := a.Params.Resolve(key)
			if err != nil {
				return into, fmt.Errorf("experiment %q: %w", name, err)
			}
			row = append(row, v)
		}
		row = append(row, Measure(a).Row(a)...)
		if err := t.Append(row); err != nil {
			return into, fmt.Errorf("experiment %q: %w", name, err)
		}
		if n := i + 1; n == 1 || n%progressInterval == 0 || n == len(analyses) {
			log.Info("analysed instance",
				zap.Int("pool", res.Pool.Index),
				zap.Int("instance", n),
				zap.Int("of", len(analyses)),
				zap.String("experiment", name))
		}
	}
	return into, nil
}

func tableFor(s table.Set, a *network.Analysis) (*table.Table, error) {
	keys := append(slices.Clone(a.Meta.Keys), MetricKeys...)
	t, ok := s[a.Meta.Experiment]
	if !ok {
		t = table.New(keys, len(a.Meta.Keys), a.Meta.Size, a.Meta.Simulator)
		s[a.Meta.Experiment] = t
		return t, nil
	}
	if !slices.Equal(t.Keys(), keys) {
		return nil, fmt.Errorf("experiment %q: %w", a.Meta.Experiment, table.ErrKeyMismatch)
	}
	return t, nil
}
