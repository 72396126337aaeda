// Package aggregate reduces sample buffers to single values
package aggregate

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the spread of one quantity's samples
type Summary struct {
	Count  int
	Median float64
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Median returns the median of samples without modifying them. Odd lengths yield the
// middle element, even lengths the mean of the two middle elements.
// It panics on an empty slice; callers must collect at least one sample.
func Median(samples []float64) float64 {
	if len(samples) == 0 {
		panic("aggregate: median of empty sample set")
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 != 0 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Summarize computes the median plus spread statistics for samples
func Summarize(samples []float64) Summary {
	if len(samples) == 0 {
		panic("aggregate: summary of empty sample set")
	}

	s := Summary{
		Count:  len(samples),
		Median: Median(samples),
		Min:    floats.Min(samples),
		Max:    floats.Max(samples),
	}

	if len(samples) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(samples, nil)
	} else {
		s.Mean = samples[0]
	}

	return s
}
