package motion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullstream/stepperctl/internal/config"
)

func testConfig() *config.Config {
	return config.NewReferenceConfig()
}

// TestSelectMicrostepScenarioS1 mirrors SPEC_FULL.md §8 S1.
func TestSelectMicrostepScenarioS1(t *testing.T) {
	cfg := testConfig()

	microstep, intervalUs, err := SelectMicrostep(cfg, 0.5)
	require.NoError(t, err)
	require.Equal(t, uint8(32), microstep)
	require.Equal(t, uint32(18750), intervalUs)

	pulses := Pulses(cfg, 1, microstep)
	require.Equal(t, uint32(6400), pulses)
}

// TestSelectMicrostepScenarioS2 mirrors SPEC_FULL.md §8 S2.
func TestSelectMicrostepScenarioS2(t *testing.T) {
	cfg := testConfig()

	microstep, intervalUs, err := SelectMicrostep(cfg, 10_000.0)
	require.NoError(t, err)
	require.Equal(t, uint8(1), microstep)
	require.Equal(t, cfg.MinimumPulseIntervalUs, intervalUs)

	pulses := Pulses(cfg, 10, microstep)
	require.Equal(t, uint32(2000), pulses)
}

func TestSelectMicrostepRejectsNegativeRPM(t *testing.T) {
	cfg := testConfig()
	_, _, err := SelectMicrostep(cfg, -1)
	require.ErrorIs(t, err, ErrNegativeRPM)
}

// TestSelectMicrostepInvariant checks invariant 4: for every RPM up to the
// fastest achievable, the chosen microstep is an allowed divisor and the
// requested RPM is strictly below that divisor's ceiling.
func TestSelectMicrostepInvariant(t *testing.T) {
	cfg := testConfig()
	allowed := map[uint8]bool{}
	for _, m := range cfg.Microsteps {
		allowed[m] = true
	}

	for rpm := 0.0; rpm <= cfg.MaxRPM[0]; rpm += 17.3 {
		microstep, intervalUs, err := SelectMicrostep(cfg, rpm)
		require.NoError(t, err)
		require.True(t, allowed[microstep], "microstep %d must be an allowed divisor", microstep)
		require.GreaterOrEqual(t, intervalUs, cfg.MinimumPulseIntervalUs, "invariant 5: pulse interval must not undercut the minimum")

		idx := indexOf(cfg.Microsteps, microstep)
		require.Less(t, rpm, cfg.MaxRPM[idx]+1e-9)
	}
}

func TestSelectMicrostepTieBreakPrefersSmallerDivisor(t *testing.T) {
	cfg := testConfig()
	// max_rpm[1] for microstep=2 is MaxMotorRPM/2 = 1500 exactly.
	microstep, _, err := SelectMicrostep(cfg, cfg.MaxRPM[1])
	require.NoError(t, err)
	require.Equal(t, cfg.Microsteps[0], microstep, "exact equality with max_rpm[i] must not select a larger divisor")
}

func TestAngleDeltaForward(t *testing.T) {
	require.InDelta(t, math.Pi, AngleDelta(0, math.Pi, true), 1e-9)
	// target behind current while moving forward wraps around the circle.
	require.InDelta(t, 2*math.Pi-1, AngleDelta(1, 0, true), 1e-9)
}

func TestAngleDeltaReverse(t *testing.T) {
	require.InDelta(t, 1, AngleDelta(1, 0, false), 1e-9)
	require.InDelta(t, 2*math.Pi-1, AngleDelta(0, 1, false), 1e-9)
}

// TestGotoAngleScenarioS4 mirrors SPEC_FULL.md §8 S4.
func TestGotoAngleScenarioS4(t *testing.T) {
	delta := AngleDelta(0, math.Pi, true)
	require.InDelta(t, math.Pi, delta, 1e-9)
	require.InDelta(t, 0.5, RadiansToRotations(delta), 1e-9)
}

func TestIsAtTarget(t *testing.T) {
	cfg := testConfig()
	tol := cfg.ToleranceRadians()

	require.True(t, IsAtTarget(cfg, 0, tol/2))
	require.False(t, IsAtTarget(cfg, 0, tol*2))
}

func TestAdjustmentDirection(t *testing.T) {
	forward, delta := AdjustmentDirection(1.0, 2.0)
	require.True(t, forward)
	require.InDelta(t, 1.0, delta, 1e-9)

	reverse, delta2 := AdjustmentDirection(2.0, 1.0)
	require.False(t, reverse)
	require.InDelta(t, 1.0, delta2, 1e-9)
}

func indexOf(s []uint8, v uint8) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
