// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package network

import (
	"fmt"
	"time"

	"github.com/petenewcomb/nampipe/internal/cerr"
)

// Times holds the wall-clock measurements of one simulation run.
type Times struct {
	Total      time.Duration `json:"total"`
	Sim        time.Duration `json:"sim"`
	Initialize time.Duration `json:"initialize"`
	Finalize   time.Duration `json:"finalize"`
}

// Add returns the element-wise sum of t and u.
func (t Times) Add(u Times) Times {
	return Times{
		Total:      t.Total + u.Total,
		Sim:        t.Sim + u.Sim,
		Initialize: t.Initialize + u.Initialize,
		Finalize:   t.Finalize + u.Finalize,
	}
}

// Output is the raw output of a backend for one pool. Spikes[i][j] holds the
// spike times, in milliseconds, of output neuron j of instance i.
type Output struct {
	Spikes [][][]float64 `json:"spikes"`
}

// Result is the outcome of running one pool.
type Result struct {
	Pool   *Pool   `json:"pool"`
	Times  Times   `json:"times"`
	Output *Output `json:"output"`
}

// Analysis is one instance of a result, paired with its own spike trains.
type Analysis struct {
	*Instance
	Spikes [][]float64
}

const ErrMalformedOutput = cerr.Error("backend output does not match pool")

// Demultiplex splits a result into one Analysis per instance, in pool order.
func Demultiplex(res *Result) ([]*Analysis, error) {
	if res.Pool == nil || res.Output == nil {
		return nil, fmt.Errorf("%w: result has no pool or no output", ErrMalformedOutput)
	}
	if len(res.Output.Spikes) != len(res.Pool.Instances) {
		return nil, fmt.Errorf("%w: %d spike groups for %d instances",
			ErrMalformedOutput, len(res.Output.Spikes), len(res.Pool.Instances))
	}
	analyses := make([]*Analysis, len(res.Pool.Instances))
	for i, inst := range res.Pool.Instances {
		spikes := res.Output.Spikes[i]
		if len(spikes) != inst.Params.Data.NBitsOut {
			return nil, fmt.Errorf("%w: instance %d has %d output neurons, want %d",
				ErrMalformedOutput, i, len(spikes), inst.Params.Data.NBitsOut)
		}
		analyses[i] = &Analysis{Instance: inst, Spikes: spikes}
	}
	return analyses, nil
}
