// Package router implements the Router thread (§5 / §4.3): it consumes the
// non-feedback frames queued by the I/O thread, dispatches each to the
// Feedback Store or the Job State Machine, and checks the pending job's
// response timeout on every receive-timeout iteration.
package router

import (
	"context"
	"time"

	"github.com/nullstream/stepperctl/internal/constants"
	"github.com/nullstream/stepperctl/internal/feedback"
	"github.com/nullstream/stepperctl/internal/frame"
	"github.com/nullstream/stepperctl/internal/job"
)

// Callbacks lets the owning Controller observe dispatch activity (for
// metrics) without this package importing the root package.
type Callbacks struct {
	OnDispatch func(kind frame.Kind)
}

// Router drains an inbound frame channel and applies each frame to the
// Feedback Store or the Job State Machine.
type Router struct {
	inbound   <-chan *frame.Inbound
	store     *feedback.Store
	machine   *job.Machine
	callbacks Callbacks
}

// New creates a Router reading from inbound.
func New(inbound <-chan *frame.Inbound, store *feedback.Store, machine *job.Machine, cb Callbacks) *Router {
	return &Router{inbound: inbound, store: store, machine: machine, callbacks: cb}
}

// Run drives the receive/dispatch/timeout-check cycle until ctx is
// cancelled.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-r.inbound:
			r.dispatch(in)
		case <-time.After(constants.RouterReceiveTimeout):
			r.machine.CheckTimeout(time.Now())
			time.Sleep(constants.RouterIdleSleep)
		}
	}
}

func (r *Router) dispatch(in *frame.Inbound) {
	switch in.Kind {
	case frame.KindStatus:
		s := in.Status
		r.store.UpdateStatus(s.StatusByte, s.JobID, s.Microstep, s.PulsesRemaining)
	case frame.KindFault:
		r.store.SetFault()
	case frame.KindResponse:
		resp := in.Response
		r.machine.OnResponse(resp.CommandCode, resp.Ack, resp.ResponseCode)
	case frame.KindJobComplete:
		r.machine.OnJobComplete(in.JobComplete.JobID)
	case frame.KindJobCancelled:
		r.machine.OnJobCancelled(in.JobCancelled.JobID)
	}
	if r.callbacks.OnDispatch != nil {
		r.callbacks.OnDispatch(in.Kind)
	}
}
