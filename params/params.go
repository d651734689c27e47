// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package params defines the parameter records of a neural associative memory
// experiment and resolves dotted parameter paths such as "data.n_samples"
// against them.
package params

import (
	"fmt"
	"math"
	"strings"

	"github.com/petenewcomb/nampipe/internal/cerr"
)

// Data describes the stored pattern set.
type Data struct {
	NBitsIn  int `yaml:"n_bits_in" json:"n_bits_in"`
	NBitsOut int `yaml:"n_bits_out" json:"n_bits_out"`
	NOnesIn  int `yaml:"n_ones_in" json:"n_ones_in"`
	NOnesOut int `yaml:"n_ones_out" json:"n_ones_out"`
	NSamples int `yaml:"n_samples" json:"n_samples"`
}

// Topology describes the network built for the pattern set.
type Topology struct {
	Multiplicity int     `yaml:"multiplicity" json:"multiplicity"`
	Weight       float64 `yaml:"weight" json:"weight"`
	Threshold    float64 `yaml:"threshold" json:"threshold"`
	Tau          float64 `yaml:"tau" json:"tau"`
	Delay        float64 `yaml:"delay" json:"delay"`
}

// Input describes how a pattern is presented to the network as spikes. Times
// are in milliseconds.
type Input struct {
	BurstSize  int     `yaml:"burst_size" json:"burst_size"`
	TimeWindow float64 `yaml:"time_window" json:"time_window"`
	ISI        float64 `yaml:"isi" json:"isi"`
	SigmaT     float64 `yaml:"sigma_t" json:"sigma_t"`
	P0         float64 `yaml:"p0" json:"p0"`
	P1         float64 `yaml:"p1" json:"p1"`
}

// Output describes how output spikes are decoded back into bits.
type Output struct {
	BurstSize  int     `yaml:"burst_size" json:"burst_size"`
	TimeWindow float64 `yaml:"time_window" json:"time_window"`
}

// Set is the complete parameter snapshot of one experiment instance.
type Set struct {
	Data     Data     `yaml:"data" json:"data"`
	Topology Topology `yaml:"topology" json:"topology"`
	Input    Input    `yaml:"input" json:"input"`
	Output   Output   `yaml:"output" json:"output"`
}

// Default returns the parameters used for every field an experiment
// description leaves unset.
func Default() Set {
	return Set{
		Data: Data{
			NBitsIn:  16,
			NBitsOut: 16,
			NOnesIn:  3,
			NOnesOut: 3,
			NSamples: 20,
		},
		Topology: Topology{
			Multiplicity: 1,
			Weight:       0.3,
			Threshold:    0.8,
			Tau:          20,
			Delay:        1,
		},
		Input: Input{
			BurstSize:  1,
			TimeWindow: 100,
			ISI:        1,
		},
		Output: Output{
			BurstSize:  1,
			TimeWindow: 100,
		},
	}
}

// Neurons returns the number of neurons an instance with these parameters
// occupies on a backend.
func (s Set) Neurons() int {
	return (s.Data.NBitsIn + s.Data.NBitsOut) * s.Topology.Multiplicity
}

const ErrInvalid = cerr.Error("invalid parameters")

// Validate reports the first out-of-range parameter, wrapped in ErrInvalid.
func (s Set) Validate() error {
	d := s.Data
	switch {
	case d.NBitsIn <= 0 || d.NBitsOut <= 0:
		return fmt.Errorf("%w: n_bits_in and n_bits_out must be positive", ErrInvalid)
	case d.NOnesIn < 0 || d.NOnesIn > d.NBitsIn:
		return fmt.Errorf("%w: n_ones_in must be in [0, n_bits_in]", ErrInvalid)
	case d.NOnesOut < 0 || d.NOnesOut > d.NBitsOut:
		return fmt.Errorf("%w: n_ones_out must be in [0, n_bits_out]", ErrInvalid)
	case d.NSamples < 0:
		return fmt.Errorf("%w: n_samples must not be negative", ErrInvalid)
	case s.Topology.Multiplicity < 1:
		return fmt.Errorf("%w: topology.multiplicity must be at least 1", ErrInvalid)
	case s.Topology.Tau <= 0:
		return fmt.Errorf("%w: topology.tau must be positive", ErrInvalid)
	case s.Topology.Delay < 0:
		return fmt.Errorf("%w: topology.delay must not be negative", ErrInvalid)
	case s.Input.BurstSize < 0 || s.Output.BurstSize < 0:
		return fmt.Errorf("%w: burst_size must not be negative", ErrInvalid)
	case s.Input.TimeWindow <= 0 || s.Output.TimeWindow <= 0:
		return fmt.Errorf("%w: time_window must be positive", ErrInvalid)
	case s.Input.ISI < 0 || s.Input.SigmaT < 0:
		return fmt.Errorf("%w: input.isi and input.sigma_t must not be negative", ErrInvalid)
	case !isProbability(s.Input.P0) || !isProbability(s.Input.P1):
		return fmt.Errorf("%w: input.p0 and input.p1 must be in [0, 1]", ErrInvalid)
	}
	return nil
}

func isProbability(p float64) bool {
	return p >= 0 && p <= 1
}

// PathError reports a parameter path that does not name a parameter.
type PathError struct {
	Path    string
	Segment string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("unknown parameter %q in path %q", e.Segment, e.Path)
}

// field is a typed handle to one numeric parameter.
type field struct {
	get func() float64
	set func(float64)
}

func intField(p *int) field {
	return field{
		get: func() float64 { return float64(*p) },
		set: func(v float64) { *p = int(math.Round(v)) },
	}
}

func floatField(p *float64) field {
	return field{
		get: func() float64 { return *p },
		set: func(v float64) { *p = v },
	}
}

func (d *Data) field(name string) (field, bool) {
	switch name {
	case "n_bits_in":
		return intField(&d.NBitsIn), true
	case "n_bits_out":
		return intField(&d.NBitsOut), true
	case "n_ones_in":
		return intField(&d.NOnesIn), true
	case "n_ones_out":
		return intField(&d.NOnesOut), true
	case "n_samples":
		return intField(&d.NSamples), true
	}
	return field{}, false
}

func (t *Topology) field(name string) (field, bool) {
	switch name {
	case "multiplicity":
		return intField(&t.Multiplicity), true
	case "weight":
		return floatField(&t.Weight), true
	case "threshold":
		return floatField(&t.Threshold), true
	case "tau":
		return floatField(&t.Tau), true
	case "delay":
		return floatField(&t.Delay), true
	}
	return field{}, false
}

func (in *Input) field(name string) (field, bool) {
	switch name {
	case "burst_size":
		return intField(&in.BurstSize), true
	case "time_window":
		return floatField(&in.TimeWindow), true
	case "isi":
		return floatField(&in.ISI), true
	case "sigma_t":
		return floatField(&in.SigmaT), true
	case "p0":
		return floatField(&in.P0), true
	case "p1":
		return floatField(&in.P1), true
	}
	return field{}, false
}

func (o *Output) field(name string) (field, bool) {
	switch name {
	case "burst_size":
		return intField(&o.BurstSize), true
	case "time_window":
		return floatField(&o.TimeWindow), true
	}
	return field{}, false
}

func (s *Set) lookup(path string) (field, error) {
	category, name, ok := strings.Cut(path, ".")
	if !ok {
		return field{}, &PathError{Path: path, Segment: path}
	}
	if strings.Contains(name, ".") {
		return field{}, &PathError{Path: path, Segment: name}
	}
	var (
		f     field
		found bool
	)
	switch category {
	case "data":
		f, found = s.Data.field(name)
	case "topology":
		f, found = s.Topology.field(name)
	case "input":
		f, found = s.Input.field(name)
	case "output":
		f, found = s.Output.field(name)
	default:
		return field{}, &PathError{Path: path, Segment: category}
	}
	if !found {
		return field{}, &PathError{Path: path, Segment: name}
	}
	return f, nil
}

// Resolve returns the value of the parameter named by a "category.field"
// path. Integer parameters are returned as their float64 value.
func (s Set) Resolve(path string) (float64, error) {
	f, err := s.lookup(path)
	if err != nil {
		return 0, err
	}
	return f.get(), nil
}

// Assign sets the parameter named by path. Values assigned to integer
// parameters are rounded to the nearest integer.
func (s *Set) Assign(path string, value float64) error {
	f, err := s.lookup(path)
	if err != nil {
		return err
	}
	f.set(value)
	return nil
}

// Check reports whether path names a parameter.
func Check(path string) error {
	var s Set
	_, err := s.lookup(path)
	return err
}
