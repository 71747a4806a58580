// Package transport owns the serial link to the stepper controller: opening
// and reconnecting to the device (§4.2), blocking reads with a timeout, a
// best-effort "how many bytes are waiting" probe, and writes. It also
// provides an in-memory Loopback implementation used by tests and the
// protocol simulator.
package transport

import "errors"

// Transport is what the I/O thread (internal/ioloop) needs from the link.
// ReadAvailable is advisory: an implementation that cannot offer a true
// byte count (see serial_other.go) returns 0 and callers fall back to a
// plain blocking Read with a timeout.
type Transport interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	ReadAvailable() (int, error)
	IsOpen() bool
	Close() error
}

// ErrNotConnected is returned by operations attempted before TryConnect has
// succeeded, or after the link has been lost.
var ErrNotConnected = errors.New("transport: not connected")

// Reconnector is implemented by transports that can re-establish a lost
// link on their own (§4.2's try_connect loop). The I/O thread type-asserts
// for this and calls TryConnect whenever IsOpen reports false; transports
// with no reconnect notion (such as Loopback) simply do not implement it.
type Reconnector interface {
	TryConnect() error
}

// availabilityProbe is the OS-specific half of ReadAvailable; see
// serial_linux.go and serial_other.go.
type availabilityProbe interface {
	Available() (int, error)
	Close() error
}

type noopProbe struct{}

func (noopProbe) Available() (int, error) { return 0, nil }
func (noopProbe) Close() error             { return nil }
