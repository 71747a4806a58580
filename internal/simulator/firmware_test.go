package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/nullstream/stepperctl/internal/config"
	"github.com/nullstream/stepperctl/internal/frame"
	"github.com/nullstream/stepperctl/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestFirmwareAcksControlCommands(t *testing.T) {
	cfg := config.NewReferenceConfig()
	lb := transport.NewLoopback()
	fw := NewFirmware(cfg, lb)
	reader := frame.NewReader(cfg.Wire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fw.Run(ctx)

	_, err := lb.Write(frame.EncodeControl(cfg.Wire, cfg.Wire.Cmd.EnableMotor))
	require.NoError(t, err)

	in := readOne(t, lb, reader)
	require.Equal(t, frame.KindResponse, in.Kind)
	require.True(t, in.Response.Ack)
	require.Equal(t, cfg.Wire.Cmd.EnableMotor, in.Response.CommandCode)
}

func TestFirmwareRunsJobToCompletion(t *testing.T) {
	cfg := config.NewReferenceConfig()
	lb := transport.NewLoopback()
	fw := NewFirmware(cfg, lb)
	reader := frame.NewReader(cfg.Wire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fw.Run(ctx)

	_, err := lb.Write(frame.EncodeControl(cfg.Wire, cfg.Wire.Cmd.EnableMotor))
	require.NoError(t, err)
	requireKind(t, lb, reader, frame.KindResponse)

	pulseOnPeriod := cfg.DefaultPulseOnPeriod
	job := frame.EncodeSendJobAllVariables(cfg.Wire, true, 1, 7, 200, cfg.MinimumPulseIntervalUs, pulseOnPeriod)
	_, err = lb.Write(job)
	require.NoError(t, err)

	ack := requireKind(t, lb, reader, frame.KindResponse)
	require.True(t, ack.Response.Ack)

	feedback := requireKind(t, lb, reader, frame.KindFeedback)
	require.Greater(t, feedback.Feedback.AngleRad, float32(0))

	status := requireKind(t, lb, reader, frame.KindStatus)
	require.Equal(t, byte(7), status.Status.JobID)

	complete := requireKind(t, lb, reader, frame.KindJobComplete)
	require.Equal(t, byte(7), complete.JobComplete.JobID)
}

func TestFirmwareRejectsJobWhenDisabled(t *testing.T) {
	cfg := config.NewReferenceConfig()
	lb := transport.NewLoopback()
	fw := NewFirmware(cfg, lb)
	reader := frame.NewReader(cfg.Wire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fw.Run(ctx)

	job := frame.EncodeSendJob(cfg.Wire, true, 1, 3, 100)
	_, err := lb.Write(job)
	require.NoError(t, err)

	nak := requireKind(t, lb, reader, frame.KindResponse)
	require.False(t, nak.Response.Ack)
}

func TestFirmwareCancelEmitsJobCancelled(t *testing.T) {
	cfg := config.NewReferenceConfig()
	lb := transport.NewLoopback()
	fw := NewFirmware(cfg, lb)
	fw.enabled = true
	fw.running = true
	fw.activeJobID = 9
	fw.pulsesRemaining = 1000
	reader := frame.NewReader(cfg.Wire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fw.Run(ctx)

	_, err := lb.Write(frame.EncodeControl(cfg.Wire, cfg.Wire.Cmd.CancelJob))
	require.NoError(t, err)

	ack := requireKind(t, lb, reader, frame.KindResponse)
	require.True(t, ack.Response.Ack)

	cancelled := requireKind(t, lb, reader, frame.KindJobCancelled)
	require.Equal(t, byte(9), cancelled.JobCancelled.JobID)
}

// readOne drains whatever bytes are currently available on lb into reader
// and returns the next complete frame, polling until one arrives. reader is
// shared across calls within a test so bytes belonging to a later frame,
// read incidentally while waiting for an earlier one, are not discarded.
func readOne(t *testing.T, lb *transport.Loopback, reader *frame.Reader) *frame.Inbound {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if in, ok := reader.Next(); ok {
			return in
		}
		buf := make([]byte, 256)
		n, err := lb.Read(buf)
		require.NoError(t, err)
		if n > 0 {
			reader.Feed(buf[:n])
			continue
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for frame")
	return nil
}

func requireKind(t *testing.T, lb *transport.Loopback, reader *frame.Reader, kind frame.Kind) *frame.Inbound {
	t.Helper()
	in := readOne(t, lb, reader)
	require.Equal(t, kind, in.Kind)
	return in
}
