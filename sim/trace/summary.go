package trace

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Emitted     int
	Delivered   int
	SourceAcked int
	SuccessRate float64

	MeanDelay   float64
	StdDevDelay float64
	P50Delay    float64
	P95Delay    float64
	MaxDelay    float64

	MeanHops float64
	MaxHops  int
	// HopDistribution maps hop count to number of delivered messages.
	HopDistribution map[int]int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		HopDistribution: make(map[int]int),
	}
	if st == nil {
		return summary
	}

	summary.Emitted = len(st.Packets)
	var delays, hops []float64
	for _, p := range st.Packets {
		if p.SourceAckTime != nil {
			summary.SourceAcked++
		}
		if !p.Delivered() {
			continue
		}
		summary.Delivered++
		delays = append(delays, p.Delay())
		if p.HopCount != nil {
			hops = append(hops, float64(*p.HopCount))
			summary.HopDistribution[*p.HopCount]++
		}
	}
	if summary.Emitted > 0 {
		summary.SuccessRate = float64(summary.Delivered) / float64(summary.Emitted)
	}

	if len(delays) > 0 {
		slices.Sort(delays)
		summary.MeanDelay = stat.Mean(delays, nil)
		if len(delays) > 1 {
			summary.StdDevDelay = stat.StdDev(delays, nil)
		}
		summary.P50Delay = stat.Quantile(0.5, stat.Empirical, delays, nil)
		summary.P95Delay = stat.Quantile(0.95, stat.Empirical, delays, nil)
		summary.MaxDelay = floats.Max(delays)
	}
	if len(hops) > 0 {
		summary.MeanHops = stat.Mean(hops, nil)
		summary.MaxHops = int(math.Round(floats.Max(hops)))
	}

	return summary
}
