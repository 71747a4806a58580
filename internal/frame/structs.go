// Package frame implements the length-delimited wire protocol spoken with
// the stepper controller: framing, the six inbound record variants, the six
// outbound command variants, and the byte-order asymmetry between them
// (inbound fields are little-endian, outbound fields are big-endian).
package frame

// MessageIDs holds the configured message-id byte for each inbound frame
// variant, resolved once from the external configuration.
type MessageIDs struct {
	Status      byte
	Feedback    byte
	Fault       byte
	Response    byte
	JobComplete byte
	JobCancelled byte
}

// CommandCodes holds the configured command-code byte for every outbound
// verb, resolved once from the external configuration.
type CommandCodes struct {
	SendJob                               byte
	SendJobWithRamping                    byte
	SendJobAllVariables                   byte
	SendJobAllVariablesWithRamping        byte
	SendJobAllVariablesWithRampingAndRate byte
	PauseJob                              byte
	ResumeJob                             byte
	CancelJob                             byte
	EnableMotor                           byte
	DisableMotor                          byte
	SleepMotor                            byte
	WakeMotor                             byte
	ResetMotor                            byte
}

// WireConfig is the subset of the resolved configuration the codec needs:
// frame delimiters plus the message-id and command-code tables.
type WireConfig struct {
	STX byte
	ETX byte
	ACK byte
	NAK byte

	IDs MessageIDs
	Cmd CommandCodes

	// IdentifyCommandCode, if non-nil, is the reserved control command
	// used to probe device identity (§2.3's WHO_AM_I). Nil disables it.
	IdentifyCommandCode *byte
}

// Kind discriminates which variant an Inbound frame carries.
type Kind int

const (
	KindUnknown Kind = iota
	KindStatus
	KindFeedback
	KindFault
	KindResponse
	KindJobComplete
	KindJobCancelled
)

// StatusFrame reports the controller's current operating status and the
// job it believes it is executing.
type StatusFrame struct {
	StatusByte      byte
	JobID           byte
	Microstep       byte
	PulsesRemaining uint32
}

// FeedbackFrame reports instantaneous velocity, rotor angle, and encoder
// count. Feedback frames arrive at the encoder update rate and bypass the
// inbound queue (see internal/ioloop).
type FeedbackFrame struct {
	VelocityRadPerS float32
	AngleRad        float32
	EncoderCount    int16
}

// FaultFrame carries no payload beyond the message id; its mere arrival
// sets a sticky fault condition (see internal/feedback).
type FaultFrame struct{}

// ResponseFrame correlates to an outstanding command by CommandCode, and
// reports ACK/NAK plus an auxiliary response code.
type ResponseFrame struct {
	CommandCode  byte
	JobID        byte
	ResponseCode byte
	Ack          bool
}

// JobCompleteFrame reports that the named job has finished its pulse train.
type JobCompleteFrame struct {
	JobID byte
}

// JobCancelledFrame reports that the named job was cancelled before
// completion.
type JobCancelledFrame struct {
	JobID byte
}

// Inbound is a decoded frame of whichever variant Kind names; only the
// matching field is populated.
type Inbound struct {
	Kind         Kind
	Status       *StatusFrame
	Feedback     *FeedbackFrame
	Fault        *FaultFrame
	Response     *ResponseFrame
	JobComplete  *JobCompleteFrame
	JobCancelled *JobCancelledFrame
}
