// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package experiment reads experiment descriptions and partitions them into
// the pools that are executed by a backend.
package experiment

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/petenewcomb/nampipe/internal/cerr"
	"github.com/petenewcomb/nampipe/params"
	"gopkg.in/yaml.v3"
)

// Sweep varies one parameter over Count evenly spaced values in [Min, Max].
type Sweep struct {
	Key   string  `yaml:"key"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Count int     `yaml:"count"`
}

// Values returns the swept values in ascending index order.
func (sw Sweep) Values() []float64 {
	if sw.Count == 1 {
		return []float64{sw.Min}
	}
	vs := make([]float64, sw.Count)
	step := (sw.Max - sw.Min) / float64(sw.Count-1)
	for i := range vs {
		vs[i] = sw.Min + float64(i)*step
	}
	vs[len(vs)-1] = sw.Max
	return vs
}

// Sub is a named sub-experiment. All of its instances accumulate into one
// result table.
type Sub struct {
	Name string `yaml:"name"`
	// Params overrides individual parameters of the experiment's base
	// parameters, keyed by "category.field" path.
	Params map[string]float64 `yaml:"params"`
	Sweeps []Sweep            `yaml:"sweeps"`
	// Repeat is the number of instances built for every parameter
	// combination. Zero means one.
	Repeat int `yaml:"repeat"`
}

// Keys returns the varied parameter paths in declaration order.
func (sub *Sub) Keys() []string {
	keys := make([]string, len(sub.Sweeps))
	for i, sw := range sub.Sweeps {
		keys[i] = sw.Key
	}
	return keys
}

// Size returns the number of instances the sub-experiment expands to.
func (sub *Sub) Size() int {
	n := max(sub.Repeat, 1)
	for _, sw := range sub.Sweeps {
		n *= sw.Count
	}
	return n
}

// Experiment is a complete experiment description.
type Experiment struct {
	// Name is derived from the description's file name.
	Name string `yaml:"-"`
	// Base holds the parameters shared by all sub-experiments. Fields left
	// out of the description take their values from [params.Default].
	Base params.Set `yaml:",inline"`
	// PoolSize caps the number of instances in a single pool. Zero means no
	// cap beyond the backend's neuron limit.
	PoolSize    int   `yaml:"pool_size"`
	Experiments []Sub `yaml:"experiments"`
}

const ErrInvalid = cerr.Error("invalid experiment description")

// Parse decodes an experiment description. Both YAML and JSON are accepted.
func Parse(r io.Reader) (*Experiment, error) {
	exp := &Experiment{Base: params.Default()}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(exp); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty description", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return exp, nil
}

// Read parses the experiment description in the named file and names the
// experiment after the file's base name up to its first dot.
func Read(path string) (*Experiment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	exp, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	exp.Name = NameOf(path)
	return exp, nil
}

// NameOf returns the experiment name for a description file path.
func NameOf(path string) string {
	name, _, _ := strings.Cut(filepath.Base(path), ".")
	return name
}

// Validate checks the description for structural errors.
func (exp *Experiment) Validate() error {
	if len(exp.Experiments) == 0 {
		return fmt.Errorf("%w: no experiments", ErrInvalid)
	}
	if exp.PoolSize < 0 {
		return fmt.Errorf("%w: pool_size must not be negative", ErrInvalid)
	}
	seen := make(map[string]bool)
	for i := range exp.Experiments {
		sub := &exp.Experiments[i]
		switch {
		case sub.Name == "":
			return fmt.Errorf("%w: experiment %d has no name", ErrInvalid, i)
		case strings.HasPrefix(sub.Name, "__"):
			return fmt.Errorf("%w: experiment name %q is reserved", ErrInvalid, sub.Name)
		case seen[sub.Name]:
			return fmt.Errorf("%w: duplicate experiment name %q", ErrInvalid, sub.Name)
		case sub.Repeat < 0:
			return fmt.Errorf("%w: %s: repeat must not be negative", ErrInvalid, sub.Name)
		}
		seen[sub.Name] = true
		for path := range sub.Params {
			if err := params.Check(path); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalid, sub.Name, err)
			}
		}
		keys := make(map[string]bool)
		for _, sw := range sub.Sweeps {
			if err := params.Check(sw.Key); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalid, sub.Name, err)
			}
			if keys[sw.Key] {
				return fmt.Errorf("%w: %s: %s swept twice", ErrInvalid, sub.Name, sw.Key)
			}
			keys[sw.Key] = true
			if sw.Count < 1 {
				return fmt.Errorf("%w: %s: %s: count must be at least 1", ErrInvalid, sub.Name, sw.Key)
			}
		}
	}
	return nil
}

// Expand returns the parameter set of every instance of the sub-experiment,
// iterating the first sweep outermost, each combination repeated.
func (exp *Experiment) Expand(sub *Sub) ([]params.Set, error) {
	base := exp.Base
	for path, v := range sub.Params {
		if err := base.Assign(path, v); err != nil {
			return nil, err
		}
	}
	sets := []params.Set{base}
	for _, sw := range sub.Sweeps {
		next := make([]params.Set, 0, len(sets)*sw.Count)
		for _, s := range sets {
			for _, v := range sw.Values() {
				if err := s.Assign(sw.Key, v); err != nil {
					return nil, err
				}
				next = append(next, s)
			}
		}
		sets = next
	}
	repeat := max(sub.Repeat, 1)
	out := make([]params.Set, 0, len(sets)*repeat)
	for _, s := range sets {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", sub.Name, err)
		}
		for range repeat {
			out = append(out, s)
		}
	}
	return out, nil
}
