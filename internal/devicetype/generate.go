package devicetype

import (
	"math"
	"math/rand"
)

// Reading is one instantaneous electrical measurement, before energy
// accumulation is applied by the caller.
type Reading struct {
	Voltage float64 // volts, 2dp
	Current float64 // amps, 2dp
	Power   float64 // watts, 2dp, always voltage × current
}

// Generate produces a random reading within the variant's ranges.
//
// Voltage and current are drawn uniformly and rounded to two decimals;
// power is derived from the rounded values so the stored triple stays
// internally consistent.
func (s Spec) Generate(rng *rand.Rand) Reading {
	voltage := round2(uniform(rng, s.Voltage))
	current := round2(uniform(rng, s.Current))

	return Reading{
		Voltage: voltage,
		Current: current,
		Power:   round2(voltage * current),
	}
}

// uniform draws from [r.Min, r.Max).
func uniform(rng *rand.Rand, r Range) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
