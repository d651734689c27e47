// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package experiment

import (
	"fmt"

	"github.com/petenewcomb/nampipe/backend"
	"github.com/petenewcomb/nampipe/internal/cerr"
	"github.com/petenewcomb/nampipe/network"
)

// DefaultSeed seeds partitioning unless configured otherwise.
const DefaultSeed uint64 = 1437243

const ErrTooLarge = cerr.Error("instance exceeds the backend's neuron limit")

// Partition expands the experiment and packs its instances, in order, into
// pools that fit the backend. The result depends only on the experiment, the
// backend and the seed.
func Partition(exp *Experiment, info backend.Info, seed uint64) ([]*network.Pool, error) {
	var (
		pools   []*network.Pool
		current *network.Pool
		neurons int
		ordinal int
	)
	closePool := func() {
		if current != nil {
			pools = append(pools, current)
			current = nil
		}
	}
	for i := range exp.Experiments {
		sub := &exp.Experiments[i]
		sets, err := exp.Expand(sub)
		if err != nil {
			return nil, err
		}
		keys := sub.Keys()
		for _, ps := range sets {
			n := ps.Neurons()
			if info.MaxNeurons > 0 && n > info.MaxNeurons {
				return nil, fmt.Errorf("%w: %s needs %d neurons, %s has %d",
					ErrTooLarge, sub.Name, n, info.Name, info.MaxNeurons)
			}
			if current != nil &&
				((info.MaxNeurons > 0 && neurons+n > info.MaxNeurons) ||
					(exp.PoolSize > 0 && len(current.Instances) >= exp.PoolSize)) {
				closePool()
			}
			if current == nil {
				current = &network.Pool{Index: len(pools), Backend: info.Name, Seed: seed}
				neurons = 0
			}
			meta := network.Meta{
				Experiment: sub.Name,
				Keys:       keys,
				Size:       len(sets),
				Simulator:  info.Name,
				Ordinal:    ordinal,
			}
			rng := network.NewRand(seed, ordinal, network.PatternStream)
			current.Instances = append(current.Instances, network.NewInstance(meta, ps, rng))
			neurons += n
			ordinal++
		}
	}
	closePool()
	return pools, nil
}
