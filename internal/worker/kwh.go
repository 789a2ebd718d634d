package worker

import (
	"math"
	"time"
)

// energyAfter advances a cumulative kilowatt-hour counter by one
// sampling window at the given power draw.
func energyAfter(base, powerWatts float64, window time.Duration) float64 {
	return roundKwh(base + powerWatts/1000*window.Hours())
}

// roundKwh rounds to six decimals. At watt-scale power and second-scale
// windows the increments live in the fifth and sixth decimal, so this
// keeps stored counters stable without accumulating float noise.
func roundKwh(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
