package sensor

import (
	"math"

	"github.com/chrissnell/barograph/internal/types"
)

const (
	minCurveVolts = 3.50
	maxCurveVolts = 4.19
)

// Percent estimates the remaining charge of a single Li-ion cell from its
// open-circuit voltage using a fitted fourth-order polynomial.
func Percent(volts float32) float32 {
	v := float64(volts)
	if v < minCurveVolts {
		return 0
	}
	if v > maxCurveVolts {
		return 100
	}
	p := 2808.3808*math.Pow(v, 4) -
		43560.9157*math.Pow(v, 3) +
		252848.5888*math.Pow(v, 2) -
		650767.4615*v +
		626532.5703
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return float32(p)
}

// Reading pairs a voltage with its charge estimate.
func Reading(volts float32) types.BatteryReading {
	return types.BatteryReading{Volts: volts, Percent: Percent(volts)}
}
