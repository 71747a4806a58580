package frame

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ErrMalformed indicates a frame whose length or ETX did not check out; the
// caller should treat this as a dropped frame and keep reading, per §4.1.
var ErrMalformed = fmt.Errorf("frame: malformed")

// Reader incrementally decodes frames out of a byte stream. Bytes that do
// not align to STX ... ETX framing are discarded silently so the reader
// resynchronises on the next STX, matching §4.1's resync behaviour.
type Reader struct {
	wc  WireConfig
	buf []byte
}

// NewReader creates a streaming frame reader for the given wire
// configuration.
func NewReader(wc WireConfig) *Reader {
	return &Reader{wc: wc}
}

// Feed appends newly-read bytes to the reader's internal buffer.
func (r *Reader) Feed(b []byte) {
	r.buf = append(r.buf, b...)
}

// Pending reports how many unconsumed bytes are buffered.
func (r *Reader) Pending() int {
	return len(r.buf)
}

// Next extracts the next complete frame from the buffer, if one is
// available. It returns ok=false when more bytes are needed; callers should
// Feed more data and call Next again. Garbage and malformed frames are
// dropped internally and never surfaced as an error.
func (r *Reader) Next() (*Inbound, bool) {
	for {
		if len(r.buf) == 0 {
			return nil, false
		}
		if r.buf[0] != r.wc.STX {
			r.buf = r.buf[1:]
			continue
		}
		if len(r.buf) < 2 {
			return nil, false
		}
		length := int(r.buf[1])
		if length < 3 {
			// Not a viable frame; drop the STX and resync.
			r.buf = r.buf[1:]
			continue
		}
		if len(r.buf) < length {
			return nil, false
		}
		candidate := r.buf[:length]
		if candidate[length-1] != r.wc.ETX {
			r.buf = r.buf[1:]
			continue
		}
		r.buf = r.buf[length:]

		payload := candidate[2 : length-1]
		in, err := decodePayload(payload, r.wc)
		if err != nil {
			continue
		}
		return in, true
	}
}

func decodePayload(payload []byte, wc WireConfig) (*Inbound, error) {
	if len(payload) < 1 {
		return nil, ErrMalformed
	}
	id := payload[0]
	rest := payload[1:]

	switch {
	case id == wc.IDs.Status:
		if len(rest) < 3+4 {
			return nil, ErrMalformed
		}
		return &Inbound{
			Kind: KindStatus,
			Status: &StatusFrame{
				StatusByte:      rest[0],
				JobID:           rest[1],
				Microstep:       rest[2],
				PulsesRemaining: binary.LittleEndian.Uint32(rest[3:7]),
			},
		}, nil
	case id == wc.IDs.Feedback:
		if len(rest) < 4+4+2 {
			return nil, ErrMalformed
		}
		return &Inbound{
			Kind: KindFeedback,
			Feedback: &FeedbackFrame{
				VelocityRadPerS: decodeFloat32LE(rest[0:4]),
				AngleRad:        decodeFloat32LE(rest[4:8]),
				EncoderCount:    int16(binary.LittleEndian.Uint16(rest[8:10])),
			},
		}, nil
	case id == wc.IDs.Fault:
		return &Inbound{Kind: KindFault, Fault: &FaultFrame{}}, nil
	case id == wc.IDs.Response:
		if len(rest) < 4 {
			return nil, ErrMalformed
		}
		return &Inbound{
			Kind: KindResponse,
			Response: &ResponseFrame{
				CommandCode:  rest[0],
				JobID:        rest[1],
				ResponseCode: rest[2],
				Ack:          rest[3] == wc.ACK,
			},
		}, nil
	case id == wc.IDs.JobComplete:
		if len(rest) < 1 {
			return nil, ErrMalformed
		}
		return &Inbound{Kind: KindJobComplete, JobComplete: &JobCompleteFrame{JobID: rest[0]}}, nil
	case id == wc.IDs.JobCancelled:
		if len(rest) < 1 {
			return nil, ErrMalformed
		}
		return &Inbound{Kind: KindJobCancelled, JobCancelled: &JobCancelledFrame{JobID: rest[0]}}, nil
	default:
		return nil, ErrMalformed
	}
}

func decodeFloat32LE(b []byte) float32 {
	bits := binary.LittleEndian.Uint32(b)
	return math.Float32frombits(bits)
}

// EncodeControl builds a length-4 control frame: STX, length, command,
// ETX. Every idempotent verb in §4.7 (pause/resume/cancel/enable/
// disable/sleep/wake/reset, and the optional WHO_AM_I probe) uses this
// shape.
func EncodeControl(wc WireConfig, command byte) []byte {
	return []byte{wc.STX, 4, command, wc.ETX}
}

// EncodeSendJob builds the minimal SEND_JOB frame (length 11): direction,
// microstep, job id, and pulse count only.
func EncodeSendJob(wc WireConfig, dir bool, microstep, jobID byte, pulses uint32) []byte {
	b := make([]byte, 11)
	b[0] = wc.STX
	b[1] = 11
	b[2] = wc.Cmd.SendJob
	b[3] = dirByte(dir)
	b[4] = microstep
	b[5] = jobID
	binary.BigEndian.PutUint32(b[6:10], pulses)
	b[10] = wc.ETX
	return b
}

// EncodeSendJobWithRamping builds the length-15 variant adding a ramp step
// count.
func EncodeSendJobWithRamping(wc WireConfig, dir bool, microstep, jobID byte, pulses, rampingSteps uint32) []byte {
	b := make([]byte, 15)
	b[0] = wc.STX
	b[1] = 15
	b[2] = wc.Cmd.SendJobWithRamping
	b[3] = dirByte(dir)
	b[4] = microstep
	b[5] = jobID
	binary.BigEndian.PutUint32(b[6:10], pulses)
	binary.BigEndian.PutUint32(b[10:14], rampingSteps)
	b[14] = wc.ETX
	return b
}

// EncodeSendJobAllVariables builds the length-19 variant adding explicit
// pulse interval and pulse-on period.
func EncodeSendJobAllVariables(wc WireConfig, dir bool, microstep, jobID byte, pulses, pulseIntervalUs, pulseOnPeriod uint32) []byte {
	b := make([]byte, 19)
	b[0] = wc.STX
	b[1] = 19
	b[2] = wc.Cmd.SendJobAllVariables
	b[3] = dirByte(dir)
	b[4] = microstep
	b[5] = jobID
	binary.BigEndian.PutUint32(b[6:10], pulses)
	binary.BigEndian.PutUint32(b[10:14], pulseIntervalUs)
	binary.BigEndian.PutUint32(b[14:18], pulseOnPeriod)
	b[18] = wc.ETX
	return b
}

// EncodeSendJobAllVariablesWithRamping builds the length-23 variant adding
// a ramp step count atop EncodeSendJobAllVariables.
func EncodeSendJobAllVariablesWithRamping(wc WireConfig, dir bool, microstep, jobID byte, pulses, pulseIntervalUs, pulseOnPeriod, rampingSteps uint32) []byte {
	b := make([]byte, 23)
	b[0] = wc.STX
	b[1] = 23
	b[2] = wc.Cmd.SendJobAllVariablesWithRamping
	b[3] = dirByte(dir)
	b[4] = microstep
	b[5] = jobID
	binary.BigEndian.PutUint32(b[6:10], pulses)
	binary.BigEndian.PutUint32(b[10:14], pulseIntervalUs)
	binary.BigEndian.PutUint32(b[14:18], pulseOnPeriod)
	binary.BigEndian.PutUint32(b[18:22], rampingSteps)
	b[22] = wc.ETX
	return b
}

// EncodeSendJobAllVariablesWithRampingAndRate builds the longest variant
// (length 24), adding a one-byte ramp scaler.
func EncodeSendJobAllVariablesWithRampingAndRate(wc WireConfig, dir bool, microstep, jobID byte, pulses, pulseIntervalUs, pulseOnPeriod, rampingSteps uint32, rampScaler byte) []byte {
	b := make([]byte, 24)
	b[0] = wc.STX
	b[1] = 24
	b[2] = wc.Cmd.SendJobAllVariablesWithRampingAndRate
	b[3] = dirByte(dir)
	b[4] = microstep
	b[5] = jobID
	binary.BigEndian.PutUint32(b[6:10], pulses)
	binary.BigEndian.PutUint32(b[10:14], pulseIntervalUs)
	binary.BigEndian.PutUint32(b[14:18], pulseOnPeriod)
	binary.BigEndian.PutUint32(b[18:22], rampingSteps)
	b[22] = rampScaler
	b[23] = wc.ETX
	return b
}

// EncodeFloat32LE renders f as little-endian bytes, matching the inbound
// byte order feedback frames use on the wire. Exposed for the simulator and
// for tests that construct raw feedback frames.
func EncodeFloat32LE(f float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
	return b
}

// EncodeStatusFrame builds a raw inbound-shaped status frame (little-endian
// fields), for use by the simulator and by tests that drive a frame.Reader
// directly.
func EncodeStatusFrame(wc WireConfig, statusByte, jobID, microstep byte, pulsesRemaining uint32) []byte {
	b := make([]byte, 11)
	b[0] = wc.STX
	b[1] = 11
	b[2] = wc.IDs.Status
	b[3] = statusByte
	b[4] = jobID
	b[5] = microstep
	binary.LittleEndian.PutUint32(b[6:10], pulsesRemaining)
	b[10] = wc.ETX
	return b
}

// EncodeFeedbackFrame builds a raw inbound-shaped feedback frame.
func EncodeFeedbackFrame(wc WireConfig, velocity, angle float32, encoderCount int16) []byte {
	b := make([]byte, 14)
	b[0] = wc.STX
	b[1] = 14
	b[2] = wc.IDs.Feedback
	copy(b[3:7], EncodeFloat32LE(velocity))
	copy(b[7:11], EncodeFloat32LE(angle))
	binary.LittleEndian.PutUint16(b[11:13], uint16(encoderCount))
	b[13] = wc.ETX
	return b
}

// EncodeFaultFrame builds a raw inbound-shaped fault frame.
func EncodeFaultFrame(wc WireConfig) []byte {
	return []byte{wc.STX, 4, wc.IDs.Fault, wc.ETX}
}

// EncodeResponseFrame builds a raw inbound-shaped response frame.
func EncodeResponseFrame(wc WireConfig, commandCode, jobID, responseCode byte, ack bool) []byte {
	ackByte := wc.NAK
	if ack {
		ackByte = wc.ACK
	}
	return []byte{wc.STX, 8, wc.IDs.Response, commandCode, jobID, responseCode, ackByte, wc.ETX}
}

// EncodeJobCompleteFrame builds a raw inbound-shaped job-complete frame.
func EncodeJobCompleteFrame(wc WireConfig, jobID byte) []byte {
	return []byte{wc.STX, 5, wc.IDs.JobComplete, jobID, wc.ETX}
}

// EncodeJobCancelledFrame builds a raw inbound-shaped job-cancelled frame.
func EncodeJobCancelledFrame(wc WireConfig, jobID byte) []byte {
	return []byte{wc.STX, 5, wc.IDs.JobCancelled, jobID, wc.ETX}
}

func dirByte(dir bool) byte {
	if dir {
		return 1
	}
	return 0
}
