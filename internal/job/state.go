// Package job implements the Job State Machine (§4.4): the idle/pending/
// active lifecycle of a single in-flight motion job, ACK/NAK correlation,
// the 2s response timeout, and the bounded position-loop re-command that
// closes §4.6's motion loop on job completion.
package job

import (
	"sync"
	"time"
)

// State is one of the three job lifecycle states.
type State int

const (
	Idle State = iota
	Pending
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// record is the guarded state-machine record. At most one job may be in
// {Pending, Active} at a time (§4.4).
type record struct {
	state               State
	requestedJobID      byte
	currentJobID        byte
	commandedCommand    byte
	hasTarget           bool
	targetPositionRad   float64
	commandedRPM        float64
	atCommandedPosition bool
	adjustmentAttempts  int
	deadline            time.Time
}

// AdjustmentDecision is returned by Callbacks.DecideAdjustment to tell the
// machine whether a position-loop re-command is needed, and with what
// parameters, when a job completes short of its target.
type AdjustmentDecision struct {
	Needed          bool
	Forward         bool
	Microstep       byte
	Pulses          uint32
	PulseIntervalUs uint32
	// CommandCode is the command code the re-command frame will carry.
	// The machine records it as the outstanding correlation target for the
	// resubmission, exactly as it does for an initial Submit, so a NAK or
	// timeout on the re-command is still observable instead of leaving the
	// job stuck Active forever (spec.md §4.4's "response(NAK) matching a
	// later submission" transition).
	CommandCode byte
}

// Callbacks lets the owning Controller (root package) supply the motion
// and transport logic the state machine needs without the job package
// importing either — the same dependency-handoff shape the teacher uses
// for its Observer interface.
type Callbacks struct {
	// DecideAdjustment is invoked when an active job with a position
	// target completes; it reports whether the rotor is off target and,
	// if so, the parameters for a re-command.
	DecideAdjustment func() AdjustmentDecision
	// Resubmit re-sends the same job id with newly computed parameters.
	Resubmit func(jobID byte, forward bool, microstep byte, pulses, pulseIntervalUs uint32) error
	// EnqueueSleep sends SLEEP_MOTOR once a job is done (on target, off
	// target after exhausting the adjustment cap, or with no target at
	// all).
	EnqueueSleep func() error
	// OnAck is invoked when a submitted command is acknowledged, before
	// the state transitions to Active. Used by the root package to record
	// response-latency metrics; optional.
	OnAck func()
	// OnNak is invoked with the device's response code when a submitted
	// command is rejected.
	OnNak func(responseCode byte)
	// OnTimeout is invoked when no correlated response arrives within the
	// configured response timeout.
	OnTimeout func()
}

// Machine owns the Job Record and is driven by the router thread
// (OnResponse, OnJobComplete, OnJobCancelled, CheckTimeout) and by caller
// threads (Submit, IsIdle).
type Machine struct {
	mu            sync.Mutex
	rec           record
	callbacks     Callbacks
	adjustmentCap int
	timeout       time.Duration
}

// New creates a Machine in the idle state.
func New(callbacks Callbacks, adjustmentCap int, responseTimeout time.Duration) *Machine {
	return &Machine{
		callbacks:     callbacks,
		adjustmentCap: adjustmentCap,
		timeout:       responseTimeout,
	}
}

// IsIdle reports whether a new motion job may be submitted.
func (m *Machine) IsIdle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.state == Idle
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.state
}

// AtCommandedPosition reports whether the most recently completed job
// finished with the rotor within tolerance of its target (always true for
// jobs with no position target). A job that completes after using up the
// adjustment cap reports false without the rotor being checked again.
func (m *Machine) AtCommandedPosition() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.atCommandedPosition
}

// Target returns the active job's position target and commanded RPM, for
// the owning Controller's DecideAdjustment callback. ok is false when the
// current job (if any) carries no position target.
func (m *Machine) Target() (targetPositionRad, commandedRPM float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.targetPositionRad, m.rec.commandedRPM, m.rec.hasTarget
}

// SubmitParams describes a newly submitted job for bookkeeping purposes;
// the frame itself has already been handed to the outbound queue by the
// caller before Submit is invoked.
type SubmitParams struct {
	JobID             byte
	CommandCode       byte
	HasTarget         bool
	TargetPositionRad float64
	CommandedRPM      float64
}

// Submit records a newly submitted job and transitions idle -> pending.
// Callers must check IsIdle first; Submit itself does not re-validate, to
// avoid a TOCTOU gap between the check and the enqueue that must happen in
// between (see root package verbs.go).
func (m *Machine) Submit(p SubmitParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = record{
		state:               Pending,
		requestedJobID:      p.JobID,
		commandedCommand:    p.CommandCode,
		hasTarget:           p.HasTarget,
		targetPositionRad:   p.TargetPositionRad,
		commandedRPM:        p.CommandedRPM,
		atCommandedPosition: false,
		deadline:            time.Now().Add(m.timeout),
	}
}

// OnResponse handles a Response frame. Correlation is on command_code
// alone while pending, per §4.4/§9's decision.
func (m *Machine) OnResponse(commandCode byte, ack bool, responseCode byte) {
	m.mu.Lock()
	if m.rec.state != Pending || commandCode != m.rec.commandedCommand {
		m.mu.Unlock()
		return
	}
	if ack {
		m.rec.currentJobID = m.rec.requestedJobID
		m.rec.state = Active
		m.mu.Unlock()
		if m.callbacks.OnAck != nil {
			m.callbacks.OnAck()
		}
		return
	}
	m.rec = record{}
	m.mu.Unlock()
	if m.callbacks.OnNak != nil {
		m.callbacks.OnNak(responseCode)
	}
}

// OnJobComplete handles a Job-Complete frame. If the job carries a
// position target that has not been reached, and the adjustment cap has
// not been exhausted, it issues a bounded re-command and moves the record
// back to Pending, correlated on the re-command's own command code, so a
// NAK or response timeout on that re-command can still be observed
// (spec.md §4.4's "response(NAK) matching a later submission" transition,
// and the response-timeout transition) instead of leaving the job stuck
// Active with no way back to idle. Otherwise it returns to idle and sends
// SLEEP_MOTOR.
func (m *Machine) OnJobComplete(jobID byte) {
	m.mu.Lock()
	if m.rec.state != Active || jobID != m.rec.currentJobID {
		m.mu.Unlock()
		return
	}
	hasTarget := m.rec.hasTarget
	attempts := m.rec.adjustmentAttempts
	m.mu.Unlock()

	if hasTarget && attempts < m.adjustmentCap && m.callbacks.DecideAdjustment != nil {
		decision := m.callbacks.DecideAdjustment()
		if decision.Needed {
			m.mu.Lock()
			m.rec.adjustmentAttempts++
			m.rec.state = Pending
			m.rec.requestedJobID = jobID
			m.rec.commandedCommand = decision.CommandCode
			m.rec.deadline = time.Now().Add(m.timeout)
			m.mu.Unlock()
			if m.callbacks.Resubmit != nil {
				_ = m.callbacks.Resubmit(jobID, decision.Forward, decision.Microstep, decision.Pulses, decision.PulseIntervalUs)
			}
			return
		}
	}

	m.mu.Lock()
	m.rec.state = Idle
	m.rec.atCommandedPosition = !hasTarget || attempts < m.adjustmentCap
	m.mu.Unlock()
	if m.callbacks.EnqueueSleep != nil {
		_ = m.callbacks.EnqueueSleep()
	}
}

// OnJobCancelled handles a Job-Cancelled frame.
func (m *Machine) OnJobCancelled(jobID byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec.state != Active || jobID != m.rec.currentJobID {
		return
	}
	m.rec = record{}
}

// CheckTimeout is invoked by the router on each receive-timeout iteration.
// If a job has been pending longer than the configured response timeout,
// it returns to idle and the OnTimeout callback fires.
func (m *Machine) CheckTimeout(now time.Time) {
	m.mu.Lock()
	if m.rec.state != Pending || now.Before(m.rec.deadline) {
		m.mu.Unlock()
		return
	}
	m.rec = record{}
	m.mu.Unlock()
	if m.callbacks.OnTimeout != nil {
		m.callbacks.OnTimeout()
	}
}
