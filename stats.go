package srcompare

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// BandStats summarizes the valid (non-NaN) pixels of one band.
type BandStats struct {
	Name   string
	Total  int
	Valid  int
	NaN    int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	AllNaN bool
}

// ComputeBandStats computes NaN-aware statistics. The standard deviation is
// the population deviation.
func ComputeBandStats(data []float64, name string) BandStats {
	s := BandStats{Name: name, Total: len(data)}

	valid := validValues(data)
	s.Valid = len(valid)
	s.NaN = s.Total - s.Valid
	if s.Valid == 0 {
		s.AllNaN = true
		s.Min, s.Max, s.Mean, s.StdDev = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}

	f := stats.Float64Data(valid)
	s.Min, _ = f.Min()
	s.Max, _ = f.Max()
	s.Mean, _ = f.Mean()
	s.StdDev, _ = f.StandardDeviationPopulation()
	return s
}

// validValues returns the non-NaN values of data.
func validValues(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Percentiles returns the requested percentiles (0-100) of the non-NaN
// values of data, interpolating linearly between closest ranks. It returns
// nil when there are no valid values.
func Percentiles(data []float64, ps ...float64) []float64 {
	valid := validValues(data)
	if len(valid) == 0 {
		return nil
	}
	sort.Float64s(valid)
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = percentileSorted(valid, p)
	}
	return out
}

// percentileSorted interpolates the p-th percentile of sorted values
// between the two nearest ranks, rank = p/100*(n-1).
func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	p = math.Max(0, math.Min(100, p))
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
