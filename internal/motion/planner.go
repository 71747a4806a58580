// Package motion translates high-level motion intents (rotation counts,
// RPM, target rotor angles) into the device-level pulse parameters §4.6
// specifies: a microstep divisor, a pulse interval, and a pulse count.
package motion

import (
	"errors"
	"math"

	"github.com/nullstream/stepperctl/internal/config"
)

// ErrNegativeRPM is returned when a requested RPM is negative.
var ErrNegativeRPM = errors.New("motion: rpm must not be negative")

// SelectMicrostep implements §4.6 steps 1-3: choosing the microstep
// divisor and pulse interval for a requested RPM.
//
// Step 1: if rpm exceeds what microstep=1 can achieve, use microstep=1 at
// the minimum pulse interval outright. Step 2: otherwise scan the
// microstep vector ascending and keep the largest divisor whose max_rpm is
// strictly greater than rpm; ties (rpm == max_rpm[i] exactly) fall through
// to the smaller divisor because the comparison is strict.
func SelectMicrostep(cfg *config.Config, rpm float64) (microstep uint8, pulseIntervalUs uint32, err error) {
	if rpm < 0 {
		return 0, 0, ErrNegativeRPM
	}
	if rpm > cfg.MaxRPM[0] {
		return cfg.Microsteps[0], cfg.MinimumPulseIntervalUs, nil
	}

	chosenIdx := 0
	for i, maxRPM := range cfg.MaxRPM {
		if maxRPM > rpm {
			chosenIdx = i
		}
	}
	microstep = cfg.Microsteps[chosenIdx]
	return microstep, pulseIntervalFor(cfg, rpm, microstep), nil
}

func pulseIntervalFor(cfg *config.Config, rpm float64, microstep uint8) uint32 {
	if rpm <= 0 {
		return cfg.MinimumPulseIntervalUs
	}
	pulsesPerSecond := (rpm / 60) * float64(cfg.StepsPerRevolution) * float64(microstep)
	interval := math.Round(1e6 / pulsesPerSecond)
	if interval < float64(cfg.MinimumPulseIntervalUs) {
		interval = float64(cfg.MinimumPulseIntervalUs)
	}
	return uint32(interval)
}

// Pulses implements §4.6 step 4: total pulse count for a rotation count at
// a chosen microstep.
func Pulses(cfg *config.Config, rotations float64, microstep uint8) uint32 {
	whole := math.Floor(math.Abs(rotations) * float64(cfg.StepsPerRevolution))
	return uint32(whole) * uint32(microstep)
}

// AngleDelta computes the rotor travel, in radians, to reach target from
// current while moving in the given direction (forward=true).
func AngleDelta(current, target float64, forward bool) float64 {
	const twoPi = 2 * math.Pi
	if forward {
		if target >= current {
			return target - current
		}
		return twoPi - (current - target)
	}
	if target <= current {
		return current - target
	}
	return twoPi - (target - current)
}

// AdjustmentDirection picks direction and magnitude for a position-loop
// re-command: direction follows the sign of target-current, and magnitude
// is the absolute angular error, per §4.6's adjustment rule.
func AdjustmentDirection(current, target float64) (forward bool, delta float64) {
	diff := target - current
	return diff >= 0, math.Abs(diff)
}

// IsAtTarget reports whether current is within the configured setpoint
// tolerance of target.
func IsAtTarget(cfg *config.Config, current, target float64) bool {
	return math.Abs(target-current) < cfg.ToleranceRadians()
}

// RadiansToRotations converts an angular delta into a rotation count.
func RadiansToRotations(delta float64) float64 {
	return delta / (2 * math.Pi)
}
