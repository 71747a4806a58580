// Package ioloop implements the I/O thread (§5): the single goroutine that
// owns the serial transport, drains every available inbound frame on each
// pass (dispatching high-rate Feedback frames straight into the Feedback
// Store and queuing everything else for the router), then pops at most one
// outbound frame and writes it.
package ioloop

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nullstream/stepperctl/internal/constants"
	"github.com/nullstream/stepperctl/internal/feedback"
	"github.com/nullstream/stepperctl/internal/frame"
	"github.com/nullstream/stepperctl/internal/transport"
)

// ErrQueueFull is returned by TryEnqueue when the outbound queue is
// saturated; per §5, the caller must not block the wire, so the frame is
// never transmitted.
var ErrQueueFull = errors.New("ioloop: outbound queue full")

// Callbacks lets the owning Controller observe traffic (for metrics)
// without this package importing the root package.
type Callbacks struct {
	OnFrameSent       func(b []byte)
	OnFrameReceived   func(kind frame.Kind)
	OnInboundDropped  func()
	OnTransportError  func(err error)
}

// Loop is the I/O thread: transport ownership, the outbound queue, and
// inbound frame classification.
type Loop struct {
	transport transport.Transport
	reader    *frame.Reader
	store     *feedback.Store
	callbacks Callbacks

	outbound chan []byte
	inbound  chan *frame.Inbound

	readBuf []byte
	dropped atomic.Uint64
}

// New creates a Loop. outboundDepth/inboundDepth bound the two queues
// described in §5; inboundDepth never receives Feedback frames, which
// bypass it entirely.
func New(t transport.Transport, wc frame.WireConfig, store *feedback.Store, outboundDepth, inboundDepth int, cb Callbacks) *Loop {
	return &Loop{
		transport: t,
		reader:    frame.NewReader(wc),
		store:     store,
		callbacks: cb,
		outbound:  make(chan []byte, outboundDepth),
		inbound:   make(chan *frame.Inbound, inboundDepth),
		readBuf:   make([]byte, 256),
	}
}

// Inbound exposes the queue of non-feedback frames for the router to
// consume.
func (l *Loop) Inbound() <-chan *frame.Inbound {
	return l.inbound
}

// TryEnqueue hands a fully-encoded frame to the outbound queue without
// blocking. A full queue returns ErrQueueFull to the caller rather than
// applying backpressure to the wire.
func (l *Loop) TryEnqueue(b []byte) error {
	select {
	case l.outbound <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

// DroppedInbound reports how many non-feedback frames have been discarded
// because the inbound queue was full.
func (l *Loop) DroppedInbound() uint64 {
	return l.dropped.Load()
}

// Run drives the read-then-write cycle until ctx is cancelled. Whenever the
// transport reports itself closed (a lost link, §4.2), Run re-enters the
// transport's reconnect loop instead of reading/writing; frames already
// sitting in the outbound queue are retained and sent once the link comes
// back, per §5.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !l.transport.IsOpen() {
			if !l.reconnect() {
				time.Sleep(constants.ReconnectBackoff)
				continue
			}
		}
		l.drain()
		l.writeOne()
		time.Sleep(constants.IOLoopIdleSleep)
	}
}

// reconnect attempts to re-establish a lost link via the transport's
// Reconnector interface. Transports with no reconnect notion (Loopback)
// report true unconditionally, since a closed Loopback is a deliberate test
// teardown, not a recoverable fault.
func (l *Loop) reconnect() bool {
	r, ok := l.transport.(transport.Reconnector)
	if !ok {
		return true
	}
	if err := r.TryConnect(); err != nil {
		if l.callbacks.OnTransportError != nil {
			l.callbacks.OnTransportError(err)
		}
		return false
	}
	return true
}

func (l *Loop) drain() {
	for {
		n, err := l.transport.Read(l.readBuf)
		if err != nil {
			if l.callbacks.OnTransportError != nil {
				l.callbacks.OnTransportError(err)
			}
			return
		}
		if n <= 0 {
			return
		}
		l.reader.Feed(l.readBuf[:n])
		for {
			in, ok := l.reader.Next()
			if !ok {
				break
			}
			l.dispatch(in)
		}

		// On transports with a real byte-count probe, keep draining
		// while more is known to be pending; otherwise one read per
		// pass is enough, the next Run iteration will pick up the rest.
		avail, _ := l.transport.ReadAvailable()
		if avail <= 0 {
			return
		}
	}
}

func (l *Loop) dispatch(in *frame.Inbound) {
	if in.Kind == frame.KindFeedback {
		fb := in.Feedback
		l.store.UpdateFeedback(fb.VelocityRadPerS, fb.AngleRad, fb.EncoderCount)
	} else {
		select {
		case l.inbound <- in:
		default:
			l.dropped.Add(1)
			if l.callbacks.OnInboundDropped != nil {
				l.callbacks.OnInboundDropped()
			}
		}
	}
	if l.callbacks.OnFrameReceived != nil {
		l.callbacks.OnFrameReceived(in.Kind)
	}
}

func (l *Loop) writeOne() {
	select {
	case b := <-l.outbound:
		if _, err := l.transport.Write(b); err != nil {
			if l.callbacks.OnTransportError != nil {
				l.callbacks.OnTransportError(err)
			}
			return
		}
		if l.callbacks.OnFrameSent != nil {
			l.callbacks.OnFrameSent(b)
		}
	case <-time.After(constants.IOLoopWriteWait):
	}
}
