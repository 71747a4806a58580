// Package feedback implements the Feedback Store (§4.5): a thread-safe
// most-recent-value record for velocity, angle, and encoder count, plus a
// status snapshot unpacked from the controller's status byte. No reader
// blocks on the writer for longer than a single field copy, and a sticky
// fault flag survives until an explicit reset.
package feedback

import (
	"sync"

	"github.com/nullstream/stepperctl/internal/config"
)

// Status is the set of booleans packed into a status frame's status byte.
type Status struct {
	Direction bool
	Fault     bool
	Paused    bool
	Ramping   bool
	Enabled   bool
	Running   bool
	Sleeping  bool
}

// Snapshot is a point-in-time copy of everything the store tracks.
type Snapshot struct {
	VelocityRadPerS float32
	AngleRad        float32
	EncoderCount    int16

	Status          Status
	StatusJobID     byte
	Microstep       byte
	PulsesRemaining uint32

	// StickyFault is OR'd into Status.Fault and is only cleared by Reset.
	StickyFault bool
	HasStatus   bool
}

// Store holds the latest feedback and status values reported by the
// controller. The I/O thread (internal/ioloop) writes feedback values and
// the router thread (internal/router) writes status and fault; callers on
// any goroutine may read a Snapshot at any time.
type Store struct {
	mu   sync.RWMutex
	bits config.StatusBits
	snap Snapshot
}

// New creates an empty Store that will unpack status bytes using bits.
func New(bits config.StatusBits) *Store {
	return &Store{bits: bits}
}

// UpdateFeedback records a newly-arrived Feedback frame's values.
func (s *Store) UpdateFeedback(velocity, angle float32, encoderCount int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.VelocityRadPerS = velocity
	s.snap.AngleRad = angle
	s.snap.EncoderCount = encoderCount
}

// UpdateStatus unpacks a newly-arrived Status frame's status byte using the
// configured bit positions and records the job id, microstep, and pulses
// remaining it reported.
func (s *Store) UpdateStatus(statusByte, jobID, microstep byte, pulsesRemaining uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Status = unpackStatus(statusByte, s.bits)
	s.snap.StatusJobID = jobID
	s.snap.Microstep = microstep
	s.snap.PulsesRemaining = pulsesRemaining
	s.snap.HasStatus = true
}

// SetFault records the arrival of a Fault frame: it sets a sticky fault bit
// that survives subsequent status/feedback traffic until Reset is called.
func (s *Store) SetFault() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.StickyFault = true
}

// Reset clears the sticky fault bit. Callers invoke this when a
// RESET_MOTOR command has been issued, per §7's MotorFault policy.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.StickyFault = false
}

// Snapshot returns a copy of the current state. Status.Fault reflects the
// sticky fault flag OR'd with the most recent status byte's fault bit.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Status.Fault = out.Status.Fault || out.StickyFault
	return out
}

func unpackStatus(b byte, bits config.StatusBits) Status {
	has := func(bit uint8) bool { return b&(1<<bit) != 0 }
	return Status{
		Direction: has(bits.Direction),
		Fault:     has(bits.Fault),
		Paused:    has(bits.Paused),
		Ramping:   has(bits.Ramping),
		Enabled:   has(bits.Enabled),
		Running:   has(bits.Running),
		Sleeping:  has(bits.Sleeping),
	}
}
