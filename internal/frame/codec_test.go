package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testWireConfig() WireConfig {
	return WireConfig{
		STX: 0x02,
		ETX: 0x03,
		ACK: 0x06,
		NAK: 0x15,
		IDs: MessageIDs{
			Status:       0x01,
			Feedback:     0x02,
			Fault:        0x03,
			Response:     0x04,
			JobComplete:  0x05,
			JobCancelled: 0x06,
		},
		Cmd: CommandCodes{
			SendJob:                               0x10,
			SendJobWithRamping:                    0x11,
			SendJobAllVariables:                   0x12,
			SendJobAllVariablesWithRamping:        0x13,
			SendJobAllVariablesWithRampingAndRate: 0x14,
			PauseJob:                              0x20,
			ResumeJob:                             0x21,
			CancelJob:                             0x22,
			EnableMotor:                           0x23,
			DisableMotor:                          0x24,
			SleepMotor:                            0x25,
			WakeMotor:                             0x26,
			ResetMotor:                             0x27,
		},
	}
}

func TestEncodeControlFrameShape(t *testing.T) {
	wc := testWireConfig()
	b := EncodeControl(wc, wc.Cmd.SleepMotor)
	require.Len(t, b, 4)
	require.Equal(t, wc.STX, b[0])
	require.Equal(t, byte(len(b)), b[1])
	require.Equal(t, b[len(b)-1], wc.ETX)
}

func TestEncodeSendJobVariantLengths(t *testing.T) {
	wc := testWireConfig()

	cases := []struct {
		name string
		b    []byte
		want int
	}{
		{"SendJob", EncodeSendJob(wc, true, 1, 1, 100), 11},
		{"SendJobWithRamping", EncodeSendJobWithRamping(wc, true, 1, 1, 100, 10), 15},
		{"SendJobAllVariables", EncodeSendJobAllVariables(wc, true, 1, 1, 100, 200, 50), 19},
		{"SendJobAllVariablesWithRamping", EncodeSendJobAllVariablesWithRamping(wc, true, 1, 1, 100, 200, 50, 10), 23},
		{"SendJobAllVariablesWithRampingAndRate", EncodeSendJobAllVariablesWithRampingAndRate(wc, true, 1, 1, 100, 200, 50, 10, 3), 24},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Len(t, tc.b, tc.want)
			require.Equal(t, byte(tc.want), tc.b[1], "length byte must equal total frame length")
			require.Equal(t, wc.STX, tc.b[0])
			require.Equal(t, wc.ETX, tc.b[len(tc.b)-1])
		})
	}
}

func TestReaderRoundTripsStatusFrame(t *testing.T) {
	wc := testWireConfig()
	raw := EncodeStatusFrame(wc, 0b0010101, 7, 4, 123)

	r := NewReader(wc)
	r.Feed(raw)
	in, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, KindStatus, in.Kind)
	require.Equal(t, byte(0b0010101), in.Status.StatusByte)
	require.Equal(t, byte(7), in.Status.JobID)
	require.Equal(t, byte(4), in.Status.Microstep)
	require.Equal(t, uint32(123), in.Status.PulsesRemaining)
}

func TestReaderRoundTripsFeedbackFrame(t *testing.T) {
	wc := testWireConfig()
	raw := EncodeFeedbackFrame(wc, 3.5, 1.25, -42)

	r := NewReader(wc)
	r.Feed(raw)
	in, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, KindFeedback, in.Kind)
	require.InDelta(t, 3.5, in.Feedback.VelocityRadPerS, 1e-6)
	require.InDelta(t, 1.25, in.Feedback.AngleRad, 1e-6)
	require.Equal(t, int16(-42), in.Feedback.EncoderCount)
}

func TestReaderRoundTripsResponseFrame(t *testing.T) {
	wc := testWireConfig()
	raw := EncodeResponseFrame(wc, wc.Cmd.SendJob, 9, 0, true)

	r := NewReader(wc)
	r.Feed(raw)
	in, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, KindResponse, in.Kind)
	require.Equal(t, wc.Cmd.SendJob, in.Response.CommandCode)
	require.Equal(t, byte(9), in.Response.JobID)
	require.True(t, in.Response.Ack)
}

// TestReaderSkipsGarbageAndFindsFault mirrors scenario S6: a stream with
// leading garbage bytes that is not framed at all still yields exactly one
// fault frame and then waits for more data.
func TestReaderSkipsGarbageAndFindsFault(t *testing.T) {
	wc := testWireConfig()
	stream := []byte{0xFF, 0xFF, wc.STX, 0x05, wc.IDs.Fault, 0x00, wc.ETX}

	r := NewReader(wc)
	r.Feed(stream)

	in, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, KindFault, in.Kind)

	_, ok = r.Next()
	require.False(t, ok, "no second frame should be produced from the same stream")
}

func TestReaderWaitsForMoreDataOnTruncatedFrame(t *testing.T) {
	wc := testWireConfig()
	raw := EncodeJobCompleteFrame(wc, 3)

	r := NewReader(wc)
	r.Feed(raw[:len(raw)-1])
	_, ok := r.Next()
	require.False(t, ok)

	r.Feed(raw[len(raw)-1:])
	in, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, KindJobComplete, in.Kind)
	require.Equal(t, byte(3), in.JobComplete.JobID)
}

func TestBufferPoolReusesCapacity(t *testing.T) {
	b := GetBuffer()
	*b = append(*b, 0x02, 0x03)
	PutBuffer(b)

	b2 := GetBuffer()
	require.Equal(t, 0, len(*b2))
	require.GreaterOrEqual(t, cap(*b2), 2)
}
