package stepperctl

import (
	"github.com/nullstream/stepperctl/internal/config"
	"github.com/nullstream/stepperctl/internal/frame"
	"github.com/nullstream/stepperctl/internal/motion"
)

// JobParams carries the raw, device-level parameters RotationsWithParams
// accepts directly, for callers that want to bypass RPM translation. A nil
// PulseOnPeriod selects the short frame family that omits both pulse
// interval and pulse-on-period (§4.7); RampingSteps and RampScaler are
// added on top when present, per the variant-selection rule in §4.7.
type JobParams struct {
	Microstep       byte
	PulseIntervalUs uint32
	PulseOnPeriod   *uint32
	RampingSteps    *uint32
	RampScaler      *byte
}

// Enable issues ENABLE_MOTOR.
func (c *Controller) Enable() error { return c.control(c.cfg.Wire.Cmd.EnableMotor) }

// Disable issues DISABLE_MOTOR.
func (c *Controller) Disable() error { return c.control(c.cfg.Wire.Cmd.DisableMotor) }

// Wake issues WAKE_MOTOR.
func (c *Controller) Wake() error { return c.control(c.cfg.Wire.Cmd.WakeMotor) }

// Sleep issues SLEEP_MOTOR.
func (c *Controller) Sleep() error { return c.control(c.cfg.Wire.Cmd.SleepMotor) }

// Pause issues PAUSE_JOB.
func (c *Controller) Pause() error { return c.control(c.cfg.Wire.Cmd.PauseJob) }

// Resume issues RESUME_JOB.
func (c *Controller) Resume() error { return c.control(c.cfg.Wire.Cmd.ResumeJob) }

// Cancel issues CANCEL_JOB.
func (c *Controller) Cancel() error { return c.control(c.cfg.Wire.Cmd.CancelJob) }

// Reset issues RESET_MOTOR and clears the sticky fault flag in the
// Feedback Store; per §7, MotorFault never clears on its own.
func (c *Controller) Reset() error {
	if err := c.control(c.cfg.Wire.Cmd.ResetMotor); err != nil {
		return err
	}
	c.store.Reset()
	return nil
}

func (c *Controller) control(cmd byte) error {
	return c.enqueue(frame.EncodeControl(c.cfg.Wire, cmd))
}

// RotationsAtRPM submits a motion job for a given number of rotations at a
// given RPM, in the given direction, correlated by jobID (§4.6/§4.7).
func (c *Controller) RotationsAtRPM(rotations, rpm float64, forward bool, jobID byte) error {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	if !c.machine.IsIdle() {
		return NewError("rotations_at_rpm", CodeNotIdle, "a job is already pending or active")
	}
	microstep, pulseIntervalUs, err := motion.SelectMicrostep(c.cfg, rpm)
	if err != nil {
		return WrapError("rotations_at_rpm", CodeInvalidParameter, err)
	}
	pulses := motion.Pulses(c.cfg, rotations, microstep)
	if pulses == 0 {
		return NewError("rotations_at_rpm", CodeInvalidParameter, "zero-pulse job")
	}
	pulseOnPeriod := c.cfg.DefaultPulseOnPeriod
	cmd, b := c.encodeSendJob(forward, microstep, jobID, pulses, JobParams{
		PulseIntervalUs: pulseIntervalUs,
		PulseOnPeriod:   &pulseOnPeriod,
	})
	if err := c.enqueue(b); err != nil {
		return err
	}
	c.submit(jobID, cmd, false, 0, rpm)
	return nil
}

// PulsesAtRPM submits a motion job for an explicit pulse count at a given
// RPM, in the given direction, correlated by jobID.
func (c *Controller) PulsesAtRPM(pulses uint32, rpm float64, forward bool, jobID byte) error {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	if !c.machine.IsIdle() {
		return NewError("pulses_at_rpm", CodeNotIdle, "a job is already pending or active")
	}
	if pulses == 0 {
		return NewError("pulses_at_rpm", CodeInvalidParameter, "zero-pulse job")
	}
	microstep, pulseIntervalUs, err := motion.SelectMicrostep(c.cfg, rpm)
	if err != nil {
		return WrapError("pulses_at_rpm", CodeInvalidParameter, err)
	}
	pulseOnPeriod := c.cfg.DefaultPulseOnPeriod
	cmd, b := c.encodeSendJob(forward, microstep, jobID, pulses, JobParams{
		PulseIntervalUs: pulseIntervalUs,
		PulseOnPeriod:   &pulseOnPeriod,
	})
	if err := c.enqueue(b); err != nil {
		return err
	}
	c.submit(jobID, cmd, false, 0, rpm)
	return nil
}

// RotationsWithParams submits a motion job using caller-supplied,
// device-level parameters rather than an RPM translation. Microstep falls
// back to 1 if not in the configured allowed set (§4.7); whenever the chosen
// frame carries a pulse interval (PulseOnPeriod or RampScaler set),
// PulseIntervalUs is clamped to the configured minimum.
func (c *Controller) RotationsWithParams(rotations float64, forward bool, jobID byte, params JobParams) error {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	if !c.machine.IsIdle() {
		return NewError("rotations_with_params", CodeNotIdle, "a job is already pending or active")
	}
	if !validMicrostep(c.cfg, params.Microstep) {
		params.Microstep = 1
	}
	if (params.PulseOnPeriod != nil || params.RampScaler != nil) && params.PulseIntervalUs < c.cfg.MinimumPulseIntervalUs {
		params.PulseIntervalUs = c.cfg.MinimumPulseIntervalUs
	}
	pulses := motion.Pulses(c.cfg, rotations, params.Microstep)
	if pulses == 0 {
		return NewError("rotations_with_params", CodeInvalidParameter, "zero-pulse job")
	}
	cmd, b := c.encodeSendJob(forward, params.Microstep, jobID, pulses, params)
	if err := c.enqueue(b); err != nil {
		return err
	}
	c.submit(jobID, cmd, false, 0, 0)
	return nil
}

// GotoAngle submits a motion job that drives the rotor to targetRad,
// travelling in the given direction at the given RPM, and registers a
// position target so the Job State Machine closes the loop with bounded
// re-commands on completion (§4.6).
func (c *Controller) GotoAngle(targetRad float64, forward bool, rpm float64, jobID byte) error {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	if !c.machine.IsIdle() {
		return NewError("goto_angle", CodeNotIdle, "a job is already pending or active")
	}
	current := c.CurrentAngleRadians()
	delta := motion.AngleDelta(current, targetRad, forward)
	rotations := motion.RadiansToRotations(delta)

	microstep, pulseIntervalUs, err := motion.SelectMicrostep(c.cfg, rpm)
	if err != nil {
		return WrapError("goto_angle", CodeInvalidParameter, err)
	}
	pulses := motion.Pulses(c.cfg, rotations, microstep)
	if pulses == 0 {
		// Already within a whole pulse of target; the position loop is
		// complete without transmitting anything (§4.6).
		return nil
	}
	pulseOnPeriod := c.cfg.DefaultPulseOnPeriod
	cmd, b := c.encodeSendJob(forward, microstep, jobID, pulses, JobParams{
		PulseIntervalUs: pulseIntervalUs,
		PulseOnPeriod:   &pulseOnPeriod,
	})
	if err := c.enqueue(b); err != nil {
		return err
	}
	c.submit(jobID, cmd, true, targetRad, rpm)
	return nil
}

// encodeSendJob chooses the minimal SEND_JOB frame variant that carries
// the supplied parameters (§4.7): absence of PulseOnPeriod selects the
// short variant family; RampingSteps adds the ramping variant; RampScaler
// selects the longest variant.
func (c *Controller) encodeSendJob(forward bool, microstep, jobID byte, pulses uint32, params JobParams) (byte, []byte) {
	wc := c.cfg.Wire
	switch {
	case params.RampScaler != nil:
		rampingSteps := uint32(0)
		if params.RampingSteps != nil {
			rampingSteps = *params.RampingSteps
		}
		pulseOnPeriod := c.cfg.DefaultPulseOnPeriod
		if params.PulseOnPeriod != nil {
			pulseOnPeriod = *params.PulseOnPeriod
		}
		b := frame.EncodeSendJobAllVariablesWithRampingAndRate(wc, forward, microstep, jobID, pulses, params.PulseIntervalUs, pulseOnPeriod, rampingSteps, *params.RampScaler)
		return wc.Cmd.SendJobAllVariablesWithRampingAndRate, b
	case params.PulseOnPeriod != nil && params.RampingSteps != nil:
		b := frame.EncodeSendJobAllVariablesWithRamping(wc, forward, microstep, jobID, pulses, params.PulseIntervalUs, *params.PulseOnPeriod, *params.RampingSteps)
		return wc.Cmd.SendJobAllVariablesWithRamping, b
	case params.PulseOnPeriod != nil:
		b := frame.EncodeSendJobAllVariables(wc, forward, microstep, jobID, pulses, params.PulseIntervalUs, *params.PulseOnPeriod)
		return wc.Cmd.SendJobAllVariables, b
	case params.RampingSteps != nil:
		b := frame.EncodeSendJobWithRamping(wc, forward, microstep, jobID, pulses, *params.RampingSteps)
		return wc.Cmd.SendJobWithRamping, b
	default:
		b := frame.EncodeSendJob(wc, forward, microstep, jobID, pulses)
		return wc.Cmd.SendJob, b
	}
}

func validMicrostep(cfg *config.Config, m byte) bool {
	for _, v := range cfg.Microsteps {
		if v == m {
			return true
		}
	}
	return false
}
