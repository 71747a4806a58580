package transport

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/nullstream/stepperctl/internal/constants"
	"github.com/nullstream/stepperctl/internal/frame"
	"github.com/nullstream/stepperctl/internal/logging"
)

// SerialTransport is the real, hardware-backed Transport. It tries a list
// of candidate device paths in order and keeps the first one that opens
// and, when a WHO_AM_I probe is configured, answers it, matching §4.2's
// TryConnect behaviour.
type SerialTransport struct {
	mu          sync.Mutex
	port        serial.Port
	probe       availabilityProbe
	baud        int
	devicePaths []string
	wire        frame.WireConfig
	current     string
	log         *logging.Logger
}

// NewSerialTransport creates a transport that will try each of
// devicePaths, in order, on TryConnect. wire supplies the frame delimiters
// and, if set, the WHO_AM_I command code TryConnect probes each candidate
// with before declaring it connected.
func NewSerialTransport(devicePaths []string, baud int, wire frame.WireConfig, log *logging.Logger) *SerialTransport {
	if log == nil {
		log = logging.Default()
	}
	return &SerialTransport{
		baud:        baud,
		devicePaths: devicePaths,
		wire:        wire,
		log:         log,
	}
}

// TryConnect opens the first candidate device path that succeeds, at 8N1
// and the configured baud rate, with a read timeout so blocking reads
// periodically return to let the I/O thread check its context. If
// wire.IdentifyCommandCode is set, a candidate is only declared connected
// once it answers the WHO_AM_I probe with a matching Response frame within
// IdentifyTimeout (§4.2; grounded in the original Python driver's
// search_for_port/who_am_i handshake); a candidate that opens but never
// answers is abandoned and the next candidate path is tried.
func (t *SerialTransport) TryConnect() error {
	mode := &serial.Mode{
		BaudRate: t.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	var lastErr error
	for _, path := range t.devicePaths {
		port, err := serial.Open(path, mode)
		if err != nil {
			lastErr = err
			continue
		}
		if err := port.SetReadTimeout(constants.TransportReadTimeout); err != nil {
			port.Close()
			lastErr = err
			continue
		}

		probe, err := newAvailabilityProbe(path)
		if err != nil {
			t.log.Warn("availability probe unavailable, falling back to blocking reads", "path", path, "err", err)
			probe = noopProbe{}
		}

		if t.wire.IdentifyCommandCode != nil && !t.awaitIdentity(port, *t.wire.IdentifyCommandCode) {
			t.log.Warn("no identification response within timeout, trying next candidate", "path", path, "timeout", constants.IdentifyTimeout)
			_ = probe.Close()
			port.Close()
			lastErr = fmt.Errorf("transport: %s did not answer the identification probe within %s", path, constants.IdentifyTimeout)
			continue
		}

		t.mu.Lock()
		t.closeLocked()
		t.port = port
		t.probe = probe
		t.current = path
		t.mu.Unlock()

		t.log.Info("serial transport connected", "path", path, "baud", t.baud)
		return nil
	}
	return fmt.Errorf("transport: no candidate device path could be opened (tried %v): %w", t.devicePaths, lastErr)
}

// awaitIdentity writes the WHO_AM_I probe and polls for a matching Response
// frame for up to IdentifyTimeout, reporting whether one arrived.
func (t *SerialTransport) awaitIdentity(port serial.Port, commandCode byte) bool {
	if _, err := port.Write(frame.EncodeControl(t.wire, commandCode)); err != nil {
		return false
	}
	reader := frame.NewReader(t.wire)
	buf := make([]byte, 64)
	deadline := time.Now().Add(constants.IdentifyTimeout)
	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			return false
		}
		if n == 0 {
			continue
		}
		reader.Feed(buf[:n])
		for {
			in, ok := reader.Next()
			if !ok {
				break
			}
			if in.Kind == frame.KindResponse && in.Response.CommandCode == commandCode {
				return true
			}
		}
	}
	return false
}

// CurrentPath returns the device path currently open, or "" if none.
func (t *SerialTransport) CurrentPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *SerialTransport) Write(b []byte) (int, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return 0, ErrNotConnected
	}
	n, err := port.Write(b)
	if err != nil {
		t.dropOnError(port)
	}
	return n, err
}

func (t *SerialTransport) Read(b []byte) (int, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return 0, ErrNotConnected
	}
	n, err := port.Read(b)
	if err != nil {
		t.dropOnError(port)
	}
	return n, err
}

// dropOnError closes the port and marks the transport disconnected after an
// I/O fault, per §4.2/§7 (TransportLost): the I/O thread notices via IsOpen
// and re-enters TryConnect, without losing outbound frames already queued
// ahead of it.
func (t *SerialTransport) dropOnError(failed serial.Port) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != failed {
		return
	}
	t.closeLocked()
}

// ReadAvailable reports bytes pending in the kernel's tty input queue,
// without consuming them, via the platform-specific probe.
func (t *SerialTransport) ReadAvailable() (int, error) {
	t.mu.Lock()
	probe := t.probe
	t.mu.Unlock()
	if probe == nil {
		return 0, nil
	}
	return probe.Available()
}

func (t *SerialTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *SerialTransport) closeLocked() error {
	var err error
	if t.probe != nil {
		_ = t.probe.Close()
		t.probe = nil
	}
	if t.port != nil {
		err = t.port.Close()
		t.port = nil
	}
	t.current = ""
	return err
}

var _ Transport = (*SerialTransport)(nil)
var _ Reconnector = (*SerialTransport)(nil)
