// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package backend

import (
	"cmp"
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/addrummond/heap"
	"github.com/petenewcomb/nampipe/network"
)

// Simulator is the reference backend: an event-driven simulation of a
// Willshaw network whose output layer consists of leaky integrate-and-fire
// neurons. Input patterns are presented one per input time window as bursts
// of spikes. Active input bits miss each spike with probability p1, inactive
// bits emit spurious spikes with probability p0, and every spike time is
// jittered by a normal deviate scaled by sigma_t.
//
// Runs are deterministic for a given pool.
type Simulator struct{}

type spikeEvent struct {
	Time   float64
	Neuron int
}

func (a *spikeEvent) Cmp(b *spikeEvent) int {
	if c := cmp.Compare(a.Time, b.Time); c != 0 {
		return c
	}
	return cmp.Compare(a.Neuron, b.Neuron)
}

func (Simulator) Run(ctx context.Context, pool *network.Pool) (*network.Output, network.Times, error) {
	var times network.Times
	start := time.Now()

	matrices := make([]network.Matrix, len(pool.Instances))
	for i, inst := range pool.Instances {
		matrices[i] = inst.Matrix()
	}
	times.Initialize = time.Since(start)

	simStart := time.Now()
	out := &network.Output{Spikes: make([][][]float64, len(pool.Instances))}
	for i, inst := range pool.Instances {
		if err := ctx.Err(); err != nil {
			return nil, times, err
		}
		rng := network.NewRand(pool.Seed, inst.Meta.Ordinal, network.NoiseStream)
		out.Spikes[i] = simulate(inst, matrices[i], rng)
	}
	times.Sim = time.Since(simStart)

	times.Total = time.Since(start)
	return out, times, nil
}

func simulate(inst *network.Instance, m network.Matrix, rng *rand.Rand) [][]float64 {
	ps := inst.Params
	d := ps.Data
	in := ps.Input
	top := ps.Topology

	var events heap.Heap[spikeEvent, heap.Min]
	for s := range inst.Inputs {
		offset := float64(s) * in.TimeWindow
		active := make([]bool, d.NBitsIn)
		for _, i := range inst.Inputs[s] {
			active[i] = true
		}
		for i := range d.NBitsIn {
			for k := range in.BurstSize {
				p := 1 - in.P1
				if !active[i] {
					p = in.P0
				}
				if rng.Float64() >= p {
					continue
				}
				t := offset + float64(k)*in.ISI + rng.NormFloat64()*in.SigmaT
				t = math.Min(math.Max(t, offset), offset+in.TimeWindow)
				heap.PushOrderable(&events, spikeEvent{Time: t + top.Delay, Neuron: i})
			}
		}
	}

	// Each input bit drives Multiplicity neurons, each connected to the
	// Multiplicity neurons of every output bit its Willshaw matrix row
	// selects.
	w := top.Weight * float64(top.Multiplicity)
	potential := make([]float64, d.NBitsOut)
	updated := make([]float64, d.NBitsOut)
	spikes := make([][]float64, d.NBitsOut)
	for {
		ev, ok := heap.PopOrderable(&events)
		if !ok {
			break
		}
		for j := range d.NBitsOut {
			if !m[ev.Neuron][j] {
				continue
			}
			potential[j] = potential[j]*math.Exp(-(ev.Time-updated[j])/top.Tau) + w
			updated[j] = ev.Time
			if potential[j] >= top.Threshold {
				spikes[j] = append(spikes[j], ev.Time)
				potential[j] = 0
			}
		}
	}
	return spikes
}
