// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package backend describes the simulation backends a pool can run on and
// provides implementations for them.
package backend

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/petenewcomb/nampipe/internal/cerr"
	"github.com/petenewcomb/nampipe/network"
)

// Info describes the resource limits of a backend.
type Info struct {
	// Name is the normalized backend identifier.
	Name string
	// Exclusive backends drive a physical resource of which only one
	// instance may run on a host at a time.
	Exclusive bool
	// MaxNeurons bounds the number of neurons a single pool may occupy. Zero
	// means no bound.
	MaxNeurons int
}

// A Backend runs the simulation of a pool.
type Backend interface {
	Run(ctx context.Context, pool *network.Pool) (*network.Output, network.Times, error)
}

// Names of the known backends.
const (
	Reference = "ref"
	NMPM1     = "nmpm1"
)

const ErrUnknown = cerr.Error("unknown backend")

var registry = map[string]Info{
	Reference: {Name: Reference},
	NMPM1:     {Name: NMPM1, Exclusive: true, MaxNeurons: 384},
}

var aliases = map[string]string{
	"sim":       Reference,
	"reference": Reference,
	"nest":      Reference,
	"spikey":    NMPM1,
}

// Normalize maps a user-supplied backend identifier to its canonical form.
func Normalize(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimPrefix(id, "pynn.")
	if canonical, ok := aliases[id]; ok {
		return canonical
	}
	return id
}

// Lookup returns the Info of the backend named by id.
func Lookup(id string) (Info, error) {
	info, ok := registry[Normalize(id)]
	if !ok {
		return Info{}, fmt.Errorf("%w %q (known: %s)", ErrUnknown, id, strings.Join(Names(), ", "))
	}
	return info, nil
}

// Names returns the canonical names of all known backends, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Options configures [New].
type Options struct {
	// Driver is the executable run for backends that are driven by an
	// external program.
	Driver string
}

const ErrNoDriver = cerr.Error("backend requires a driver executable")

// New returns a runnable Backend for the backend named by id.
func New(id string, opts Options) (Backend, error) {
	info, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	switch info.Name {
	case Reference:
		return Simulator{}, nil
	case NMPM1:
		if opts.Driver == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoDriver, info.Name)
		}
		return &Driver{Path: opts.Driver}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknown, id)
}
