// Package simulator implements a protocol-correct stand-in microcontroller
// (SPEC_FULL.md §2.3): it reads outbound command frames off a Loopback
// transport and answers with the ACK/JOB_COMPLETE/FEEDBACK/STATUS sequence
// a real device would, so the whole driver stack is exercisable without
// hardware. Adapted from the teacher's in-memory RAM-disk backend
// (backend/mem.go): a small, single-goroutine stand-in for a real device
// rather than real hardware, polling a shared buffer instead of touching a
// block device.
package simulator

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/nullstream/stepperctl/internal/config"
	"github.com/nullstream/stepperctl/internal/frame"
	"github.com/nullstream/stepperctl/internal/transport"
)

// Firmware tracks just enough motor state to answer the protocol
// correctly: whether the motor is enabled/sleeping/paused/faulted, the
// in-flight job id and pulse count, and the rotor's simulated position.
type Firmware struct {
	lb  *transport.Loopback
	cfg *config.Config

	angleRad     float64
	encoderCount int16

	enabled  bool
	sleeping bool
	paused   bool
	fault    bool

	activeJobID     byte
	pulsesRemaining uint32
	microstep       byte
	forward         bool
	running         bool
}

// NewFirmware creates a simulated firmware instance answering frames
// written to lb. The motor starts disabled and asleep, matching a freshly
// powered-on controller.
func NewFirmware(cfg *config.Config, lb *transport.Loopback) *Firmware {
	return &Firmware{lb: lb, cfg: cfg, sleeping: true}
}

// Run polls lb for newly-written outbound frames and answers them until
// ctx is cancelled. Pulse trains complete on the same tick their SEND_JOB
// is read, a deliberate simplification: nothing in this spec's tests
// depends on multi-tick pulse timing, only on the ACK/FEEDBACK/STATUS/
// JOB_COMPLETE sequence arriving in order.
func (f *Firmware) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, b := range f.lb.TakeWrittenFrames() {
				f.handle(b)
			}
			f.tick()
		}
	}
}

func (f *Firmware) handle(b []byte) {
	if len(b) < 4 {
		return
	}
	wc := f.cfg.Wire
	cmd := b[2]

	switch cmd {
	case wc.Cmd.EnableMotor:
		f.enabled = true
		f.respond(cmd, 0, true)
	case wc.Cmd.DisableMotor:
		f.enabled = false
		f.respond(cmd, 0, true)
	case wc.Cmd.WakeMotor:
		f.sleeping = false
		f.respond(cmd, 0, true)
	case wc.Cmd.SleepMotor:
		f.sleeping = true
		f.respond(cmd, 0, true)
	case wc.Cmd.PauseJob:
		f.paused = true
		f.respond(cmd, 0, true)
	case wc.Cmd.ResumeJob:
		f.paused = false
		f.respond(cmd, 0, true)
	case wc.Cmd.ResetMotor:
		f.fault = false
		f.respond(cmd, 0, true)
	case wc.Cmd.CancelJob:
		f.handleCancel(cmd)
	case wc.Cmd.SendJob, wc.Cmd.SendJobWithRamping, wc.Cmd.SendJobAllVariables,
		wc.Cmd.SendJobAllVariablesWithRamping, wc.Cmd.SendJobAllVariablesWithRampingAndRate:
		f.handleSendJob(cmd, b)
	default:
		if wc.IdentifyCommandCode != nil && cmd == *wc.IdentifyCommandCode {
			f.respond(cmd, 0, true)
		}
	}
}

func (f *Firmware) handleCancel(cmd byte) {
	wasRunning := f.running
	jobID := f.activeJobID
	f.running = false
	f.pulsesRemaining = 0
	f.respond(cmd, 0, true)
	if wasRunning {
		f.lb.Push(frame.EncodeJobCancelledFrame(f.cfg.Wire, jobID))
	}
}

// handleSendJob decodes the common dir/microstep/job_id/pulses prefix every
// SEND_JOB* variant shares (§3): the longer variants only append fields
// after this prefix, so the firmware does not need to special-case them to
// start a job.
func (f *Firmware) handleSendJob(cmd byte, b []byte) {
	if len(b) < 11 {
		return
	}
	dir := b[3] == 1
	microstep := b[4]
	jobID := b[5]
	pulses := binary.BigEndian.Uint32(b[6:10])

	f.activeJobID = jobID
	if !f.enabled {
		f.respond(cmd, 1, false)
		return
	}

	f.forward = dir
	f.microstep = microstep
	f.pulsesRemaining = pulses
	f.running = true
	f.respond(cmd, 0, true)
}

// tick advances any in-flight job to completion and emits the resulting
// Feedback, Status, and Job-Complete frames.
func (f *Firmware) tick() {
	if !f.running || f.pulsesRemaining == 0 {
		return
	}
	rotations := float64(f.pulsesRemaining) / (float64(f.microstep) * float64(f.cfg.StepsPerRevolution))
	delta := rotations * 2 * math.Pi
	if f.forward {
		f.angleRad += delta
	} else {
		f.angleRad -= delta
	}
	f.angleRad = wrapAngle(f.angleRad)
	f.encoderCount = encoderCountFor(f.angleRad, f.cfg.EncoderPulsesPerRevolution)

	f.pulsesRemaining = 0
	f.running = false

	wc := f.cfg.Wire
	f.lb.Push(frame.EncodeFeedbackFrame(wc, 0, float32(f.angleRad), f.encoderCount))
	f.lb.Push(frame.EncodeStatusFrame(wc, f.statusByte(), f.activeJobID, f.microstep, 0))
	f.lb.Push(frame.EncodeJobCompleteFrame(wc, f.activeJobID))
}

func (f *Firmware) respond(cmd, responseCode byte, ack bool) {
	f.lb.Push(frame.EncodeResponseFrame(f.cfg.Wire, cmd, f.activeJobID, responseCode, ack))
}

func (f *Firmware) statusByte() byte {
	bits := f.cfg.StatusBits
	var b byte
	set := func(bit uint8, v bool) {
		if v {
			b |= 1 << bit
		}
	}
	set(bits.Direction, f.forward)
	set(bits.Fault, f.fault)
	set(bits.Paused, f.paused)
	set(bits.Enabled, f.enabled)
	set(bits.Running, f.running)
	set(bits.Sleeping, f.sleeping)
	return b
}

// InjectFault pushes a Fault frame directly, for tests that exercise the
// sticky-fault path (§7's MotorFault) without a real fault condition.
func (f *Firmware) InjectFault() {
	f.fault = true
	f.lb.Push(frame.EncodeFaultFrame(f.cfg.Wire))
}

// AngleRadians reports the firmware's current simulated rotor angle.
func (f *Firmware) AngleRadians() float64 {
	return f.angleRad
}

func wrapAngle(a float64) float64 {
	const twoPi = 2 * math.Pi
	for a >= twoPi {
		a -= twoPi
	}
	for a < 0 {
		a += twoPi
	}
	return a
}

func encoderCountFor(angleRad float64, pulsesPerRev uint32) int16 {
	frac := angleRad / (2 * math.Pi)
	count := int64(math.Round(frac * float64(pulsesPerRev)))
	return int16(count)
}
