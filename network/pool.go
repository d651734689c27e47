// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package network holds the job units of a partitioned experiment (pools of
// network instances), the results of running them, and the file codec used
// to hand both between pipeline stages.
package network

import (
	"math/rand/v2"
	"slices"

	"github.com/petenewcomb/nampipe/params"
)

// Meta identifies an instance within its experiment.
type Meta struct {
	// Experiment is the name of the sub-experiment the instance belongs to.
	Experiment string `json:"experiment"`
	// Keys lists the varied parameter paths, in declaration order.
	Keys []string `json:"keys"`
	// Size is the total number of instances in the sub-experiment.
	Size int `json:"size"`
	// Simulator is the normalized backend name the instance was built for.
	Simulator string `json:"simulator"`
	// Ordinal is the instance's position within the whole experiment.
	Ordinal int `json:"ordinal"`
}

// Instance is one network of a pool: a parameter snapshot together with the
// pattern pairs it stores. Patterns are lists of active bit indices.
type Instance struct {
	Meta    Meta       `json:"meta"`
	Params  params.Set `json:"params"`
	Inputs  [][]int    `json:"inputs"`
	Outputs [][]int    `json:"outputs"`
}

// Pool is a job unit: a set of instances that a backend runs together as one
// simulation. A Pool is immutable once built.
type Pool struct {
	Index     int         `json:"index"`
	Backend   string      `json:"backend"`
	Seed      uint64      `json:"seed"`
	Instances []*Instance `json:"instances"`
}

// Neurons returns the number of neurons the pool occupies on a backend.
func (p *Pool) Neurons() int {
	n := 0
	for _, inst := range p.Instances {
		n += inst.Params.Neurons()
	}
	return n
}

// NewInstance draws NSamples random pattern pairs with exactly NOnesIn and
// NOnesOut active bits each.
func NewInstance(meta Meta, ps params.Set, rng *rand.Rand) *Instance {
	d := ps.Data
	inst := &Instance{
		Meta:    meta,
		Params:  ps,
		Inputs:  make([][]int, d.NSamples),
		Outputs: make([][]int, d.NSamples),
	}
	for s := range d.NSamples {
		inst.Inputs[s] = pattern(rng, d.NBitsIn, d.NOnesIn)
		inst.Outputs[s] = pattern(rng, d.NBitsOut, d.NOnesOut)
	}
	return inst
}

// Streams of the per-instance random sources returned by [NewRand].
const (
	PatternStream uint64 = iota
	NoiseStream
)

// NewRand returns the deterministic random source of one stream of the
// instance with the given ordinal.
func NewRand(seed uint64, ordinal int, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(ordinal)<<1|stream))
}

func pattern(rng *rand.Rand, bits, ones int) []int {
	p := rng.Perm(bits)[:ones]
	slices.Sort(p)
	return p
}

// Matrix is the binary Willshaw weight matrix of an instance: Matrix[i][j]
// is true when input bit i and output bit j were both active in at least one
// stored pattern pair.
type Matrix [][]bool

// Matrix trains the instance's weight matrix from its pattern pairs.
func (inst *Instance) Matrix() Matrix {
	d := inst.Params.Data
	m := make(Matrix, d.NBitsIn)
	for i := range m {
		m[i] = make([]bool, d.NBitsOut)
	}
	for s := range inst.Inputs {
		for _, i := range inst.Inputs[s] {
			for _, j := range inst.Outputs[s] {
				m[i][j] = true
			}
		}
	}
	return m
}

// Recall returns the output pattern the ideal Willshaw network recalls for
// the given input pattern: every output bit connected to all active inputs.
func (m Matrix) Recall(input []int, nBitsOut int) []int {
	var out []int
	for j := range nBitsOut {
		all := true
		for _, i := range input {
			if !m[i][j] {
				all = false
				break
			}
		}
		if all {
			out = append(out, j)
		}
	}
	return out
}
