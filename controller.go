// Package stepperctl is the public API: construction, lifecycle, the
// Command Surface verbs, and the typed errors and metrics the rest of the
// module reports through.
package stepperctl

import (
	"context"
	"sync"
	"time"

	"github.com/nullstream/stepperctl/internal/config"
	"github.com/nullstream/stepperctl/internal/feedback"
	"github.com/nullstream/stepperctl/internal/frame"
	"github.com/nullstream/stepperctl/internal/ioloop"
	"github.com/nullstream/stepperctl/internal/job"
	"github.com/nullstream/stepperctl/internal/logging"
	"github.com/nullstream/stepperctl/internal/motion"
	"github.com/nullstream/stepperctl/internal/router"
	"github.com/nullstream/stepperctl/internal/transport"
)

// Controller is the public handle onto a stepper motor controller: the
// Command Surface (§4.7), the I/O/router thread pair (§5), and read
// accessors onto the Feedback Store and Job State Machine.
type Controller struct {
	cfg       *config.Config
	transport transport.Transport
	loop      *ioloop.Loop
	router    *router.Router
	store     *feedback.Store
	machine   *job.Machine
	log       *logging.Logger

	// Metrics is exported so callers can read a snapshot for telemetry;
	// the controller itself only ever writes to it.
	Metrics *Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// submitMu serializes the check-then-enqueue-then-submit sequence
	// every motion verb performs, closing the TOCTOU gap job.Machine's
	// own doc comment calls out.
	submitMu sync.Mutex

	mu           sync.Mutex
	pendingSince time.Time
}

// New constructs a Controller from a resolved Config, backed by a real
// serial transport. If devicePath is non-nil it is the sole candidate
// device path tried on Start; otherwise cfg.DevicePaths is used (§4.2's
// TryConnect candidate list).
func New(cfg *config.Config, devicePath *string) (*Controller, error) {
	if cfg == nil {
		return nil, NewError("New", CodeInvalidParameter, "config must not be nil")
	}
	paths := cfg.DevicePaths
	if devicePath != nil {
		paths = []string{*devicePath}
	}
	if len(paths) == 0 {
		return nil, NewError("New", CodeInvalidParameter, "no candidate device path configured")
	}
	log := logging.Default()
	st := transport.NewSerialTransport(paths, cfg.BaudRate, cfg.Wire, log)
	return newController(cfg, st, log), nil
}

// NewWithTransport builds a Controller atop an already-constructed
// Transport (typically a transport.Loopback), for tests and the simulated
// firmware demo that have no real serial device to open.
func NewWithTransport(cfg *config.Config, t transport.Transport) (*Controller, error) {
	if cfg == nil {
		return nil, NewError("NewWithTransport", CodeInvalidParameter, "config must not be nil")
	}
	return newController(cfg, t, logging.Default()), nil
}

func newController(cfg *config.Config, t transport.Transport, log *logging.Logger) *Controller {
	store := feedback.New(cfg.StatusBits)
	metrics := NewMetrics()

	c := &Controller{
		cfg:       cfg,
		transport: t,
		store:     store,
		Metrics:   metrics,
		log:       log,
	}

	c.loop = ioloop.New(t, cfg.Wire, store, cfg.OutboundQueueDepth, cfg.InboundQueueDepth, ioloop.Callbacks{
		OnFrameSent:      func([]byte) { metrics.RecordFrameSent() },
		OnFrameReceived:  func(frame.Kind) { metrics.RecordFrameReceived() },
		OnInboundDropped: func() { metrics.RecordFrameDropped() },
		OnTransportError: func(err error) {
			metrics.RecordTransportError()
			log.WithError(err).Warn("transport error")
		},
	})

	c.machine = job.New(job.Callbacks{
		DecideAdjustment: c.decideAdjustment,
		Resubmit:         c.resubmit,
		EnqueueSleep:     c.enqueueSleep,
		OnAck:            c.onAck,
		OnNak:            c.onNak,
		OnTimeout:        c.onTimeout,
	}, cfg.AdjustmentCap, cfg.ResponseTimeout)

	c.router = router.New(c.loop.Inbound(), store, c.machine, router.Callbacks{
		OnDispatch: func(kind frame.Kind) {
			if kind == frame.KindJobCancelled {
				metrics.RecordJobCancelled()
			}
		},
	})

	return c
}

// Start connects the transport (a no-op for an already-open transport such
// as a Loopback) and launches the I/O thread and router thread (§5). For a
// real serial transport, TryConnect itself gates the WHO_AM_I handshake
// (§4.2): it only returns once a candidate path has both opened and, when
// the probe is configured, answered it within IdentifyTimeout.
func (c *Controller) Start(ctx context.Context) error {
	if st, ok := c.transport.(*transport.SerialTransport); ok {
		if err := st.TryConnect(); err != nil {
			return WrapError("Start", CodeTransportLost, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.loop.Run(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.router.Run(runCtx)
	}()
	return nil
}

// Stop halts both background threads, sends a final cancel+sleep+disable
// triplet (§5), and closes the transport. Stop is idempotent; calling it
// before Start is a no-op.
func (c *Controller) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.cancel = nil

	wc := c.cfg.Wire
	_, _ = c.transport.Write(frame.EncodeControl(wc, wc.Cmd.CancelJob))
	_, _ = c.transport.Write(frame.EncodeControl(wc, wc.Cmd.SleepMotor))
	_, _ = c.transport.Write(frame.EncodeControl(wc, wc.Cmd.DisableMotor))
	_ = c.transport.Close()
}

// IsReadyForJob reports whether the Job State Machine is idle and a new
// motion verb may be submitted.
func (c *Controller) IsReadyForJob() bool {
	return c.machine.IsIdle()
}

// IsConnected reports whether the transport currently believes it has an
// open link.
func (c *Controller) IsConnected() bool {
	return c.transport.IsOpen()
}

// CurrentAngleRadians returns the most recently reported rotor angle.
func (c *Controller) CurrentAngleRadians() float64 {
	return float64(c.store.Snapshot().AngleRad)
}

// StatusSnapshot returns the latest Feedback Store snapshot (§4.5).
func (c *Controller) StatusSnapshot() feedback.Snapshot {
	return c.store.Snapshot()
}

func (c *Controller) enqueue(b []byte) error {
	if err := c.loop.TryEnqueue(b); err != nil {
		c.Metrics.RecordSendError()
		return WrapError("enqueue", CodeQueueFull, err)
	}
	return nil
}

func (c *Controller) submit(jobID, cmd byte, hasTarget bool, targetRad, commandedRPM float64) {
	c.mu.Lock()
	c.pendingSince = time.Now()
	c.mu.Unlock()
	c.machine.Submit(job.SubmitParams{
		JobID:             jobID,
		CommandCode:       cmd,
		HasTarget:         hasTarget,
		TargetPositionRad: targetRad,
		CommandedRPM:      commandedRPM,
	})
	c.Metrics.RecordJobSubmitted()
}

func (c *Controller) onAck() {
	c.recordLatency(true)
}

func (c *Controller) onNak(code byte) {
	c.recordLatency(false)
	c.log.Warn("job rejected", "response_code", code)
}

func (c *Controller) recordLatency(ack bool) {
	c.mu.Lock()
	since := c.pendingSince
	c.mu.Unlock()
	if since.IsZero() {
		return
	}
	c.Metrics.RecordResponse(uint64(time.Since(since)), ack)
}

func (c *Controller) onTimeout() {
	c.Metrics.RecordTimeout()
	c.log.Warn("response timeout, returning to idle")
}

func (c *Controller) enqueueSleep() error {
	c.Metrics.RecordJobCompleted()
	return c.enqueue(frame.EncodeControl(c.cfg.Wire, c.cfg.Wire.Cmd.SleepMotor))
}

// decideAdjustment implements the position-loop re-command decision for
// job.Machine: whether the rotor has arrived at the job's target, and if
// not, the parameters for a bounded re-command (§4.6).
func (c *Controller) decideAdjustment() job.AdjustmentDecision {
	target, rpm, ok := c.machine.Target()
	if !ok {
		return job.AdjustmentDecision{}
	}
	current := c.CurrentAngleRadians()
	if motion.IsAtTarget(c.cfg, current, target) {
		return job.AdjustmentDecision{}
	}
	forward, delta := motion.AdjustmentDirection(current, target)
	rotations := motion.RadiansToRotations(delta)
	microstep, pulseIntervalUs, err := motion.SelectMicrostep(c.cfg, rpm)
	if err != nil {
		return job.AdjustmentDecision{}
	}
	pulses := motion.Pulses(c.cfg, rotations, microstep)
	if pulses == 0 {
		return job.AdjustmentDecision{}
	}
	c.Metrics.RecordAdjustment()
	return job.AdjustmentDecision{
		Needed:          true,
		Forward:         forward,
		Microstep:       microstep,
		Pulses:          pulses,
		PulseIntervalUs: pulseIntervalUs,
		CommandCode:     c.cfg.Wire.Cmd.SendJobAllVariables,
	}
}

// resubmit re-sends the same job id with the adjustment's recomputed
// parameters, using the full-variables frame since the pulse interval must
// always be carried for a re-command. Its command code matches the
// CommandCode decideAdjustment reported, which job.Machine has recorded as
// the re-command's correlation target.
func (c *Controller) resubmit(jobID byte, forward bool, microstep byte, pulses, pulseIntervalUs uint32) error {
	b := frame.EncodeSendJobAllVariables(c.cfg.Wire, forward, microstep, jobID, pulses, pulseIntervalUs, c.cfg.DefaultPulseOnPeriod)
	return c.enqueue(b)
}
