// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package analysis

import (
	"math"

	"github.com/petenewcomb/nampipe/network"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/combin"
)

// Errors counts the false positive and false negative output bits over all
// samples of an instance.
type Errors struct {
	FP int
	FN int
}

// Metrics holds the raw measurements of one instance.
type Metrics struct {
	// I is the storage capacity in bits realized by the network.
	I float64
	// IRef is the storage capacity of ideal Willshaw recall.
	IRef      float64
	Errors    Errors
	RefErrors Errors
	// Latencies holds one recall latency per sample, in milliseconds.
	// Samples whose recall never completed have an infinite latency.
	Latencies []float64
}

// Measure computes the metrics of an analysis instance.
func Measure(a *network.Analysis) Metrics {
	d := a.Params.Data
	decoded := Decode(a)
	m := Metrics{Latencies: Latencies(a)}

	ref := a.Matrix()
	for s := range a.Outputs {
		e := compare(decoded[s], a.Outputs[s])
		m.I += Capacity(d.NBitsOut, d.NOnesOut, e)
		m.Errors.FP += e.FP
		m.Errors.FN += e.FN

		recalled := ref.Recall(a.Inputs[s], d.NBitsOut)
		e = compare(recalled, a.Outputs[s])
		m.IRef += Capacity(d.NBitsOut, d.NOnesOut, e)
		m.RefErrors.FP += e.FP
		m.RefErrors.FN += e.FN
	}
	return m
}

// Capacity returns the information in bits carried by one recalled pattern
// of n bits with d ones, given its errors.
func Capacity(n, d int, e Errors) float64 {
	return (combin.LogGeneralizedBinomial(float64(n), float64(d)) -
		combin.LogGeneralizedBinomial(float64(d-e.FN+e.FP), float64(d-e.FN))) / math.Ln2
}

// compare counts the errors of a sorted recalled pattern against the
// expected one.
func compare(got, want []int) Errors {
	var e Errors
	i, j := 0, 0
	for i < len(got) || j < len(want) {
		switch {
		case j == len(want) || (i < len(got) && got[i] < want[j]):
			e.FP++
			i++
		case i == len(got) || want[j] < got[i]:
			e.FN++
			j++
		default:
			i++
			j++
		}
	}
	return e
}

// window returns the bounds of the output decoding window of sample s.
func window(a *network.Analysis, s int) (float64, float64) {
	lo := float64(s) * a.Params.Input.TimeWindow
	return lo, lo + a.Params.Output.TimeWindow
}

// Decode returns, for every sample, the sorted output bits whose neuron
// fired at least output.burst_size times within the sample's window.
func Decode(a *network.Analysis) [][]int {
	need := max(a.Params.Output.BurstSize, 1)
	decoded := make([][]int, len(a.Outputs))
	for s := range decoded {
		lo, hi := window(a, s)
		for j, ts := range a.Spikes {
			n := 0
			for _, t := range ts {
				if t >= lo && t < hi {
					n++
				}
			}
			if n >= need {
				decoded[s] = append(decoded[s], j)
			}
		}
	}
	return decoded
}

// Latencies returns the time from the start of each sample until the last of
// its expected output neurons first fired. It is infinite if one of them
// stayed silent or if the pattern has no ones.
func Latencies(a *network.Analysis) []float64 {
	lats := make([]float64, len(a.Outputs))
	for s, want := range a.Outputs {
		lo, hi := window(a, s)
		lat := math.Inf(1)
		if len(want) > 0 {
			lat = 0
		}
		for _, j := range want {
			first := math.Inf(1)
			for _, t := range a.Spikes[j] {
				if t >= lo && t < hi && t < first {
					first = t
				}
			}
			lat = math.Max(lat, first-lo)
		}
		lats[s] = lat
	}
	return lats
}

// LatencyStats returns the mean and population standard deviation of the
// finite latencies along with the number of infinite ones. The mean is
// infinite when there are no finite latencies.
func LatencyStats(lats []float64) (mean, std float64, invalid int) {
	valid := make([]float64, 0, len(lats))
	for _, l := range lats {
		if math.IsInf(l, 0) {
			invalid++
			continue
		}
		valid = append(valid, l)
	}
	switch n := len(valid); n {
	case 0:
		return math.Inf(1), 0, invalid
	case 1:
		return valid[0], 0, invalid
	default:
		mean, variance := stat.MeanVariance(valid, nil)
		return mean, math.Sqrt(variance * float64(n-1) / float64(n)), invalid
	}
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Row renders the metrics as the values of the metric columns, in
// [MetricKeys] order.
func (m Metrics) Row(a *network.Analysis) []float64 {
	d := a.Params.Data
	fpNorm := float64(d.NSamples * (d.NBitsOut - d.NOnesOut))
	fnNorm := float64(d.NSamples * d.NOnesOut)
	mean, std, invalid := LatencyStats(m.Latencies)
	return []float64{
		m.I,
		ratio(m.I, m.IRef),
		m.IRef,
		float64(m.Errors.FP),
		ratio(float64(m.Errors.FP), fpNorm),
		float64(m.RefErrors.FP),
		ratio(float64(m.RefErrors.FP), fpNorm),
		float64(m.Errors.FN),
		ratio(float64(m.Errors.FN), fnNorm),
		mean,
		std,
		float64(invalid),
	}
}
