// Package config resolves the external, two-level constant map (section ->
// name -> value) the header-file loader produces into a single typed,
// pre-validated Config record. Resolution happens once, at construction;
// a missing or malformed key is a hard construction-time error rather than
// something deferred to first use (see SPEC_FULL.md §9).
package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nullstream/stepperctl/internal/constants"
	"github.com/nullstream/stepperctl/internal/frame"
)

// RawMap is the two-level section -> name -> value map produced by the
// external header-definition loader.
type RawMap map[string]map[string]uint64

// StatusBits gives the bit index (0-7) of each flag packed into a status
// frame's status byte.
type StatusBits struct {
	Direction uint8
	Fault     uint8
	Paused    uint8
	Ramping   uint8
	Enabled   uint8
	Running   uint8
	Sleeping  uint8
}

// Config is the fully resolved, immutable configuration the rest of the
// driver operates on.
type Config struct {
	Wire frame.WireConfig

	BaudRate    int
	DevicePaths []string

	EncoderPulsesPerRevolution uint32
	EncoderUpdatePeriod        time.Duration
	SetpointToleranceCounts    uint32

	StatusBits StatusBits

	StepsPerRevolution    uint32
	MinimumPulseIntervalUs uint32
	DefaultPulseOnPeriod   uint32
	Microsteps             []uint8

	OutboundQueueDepth int
	InboundQueueDepth  int
	ResponseTimeout    time.Duration
	AdjustmentCap      int

	// Derived, computed once from the fields above.
	MaxPulsesPerSecond float64
	MaxMotorRPM        float64
	MaxRPM             []float64 // indexed the same as Microsteps
}

// ConfigError accumulates every missing or malformed key found while
// resolving a RawMap, so a misconfigured header produces one actionable
// diagnostic instead of a sequence of single-field failures.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %d problem(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ConfigError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ConfigError) fail() error {
	if len(e.Problems) == 0 {
		return nil
	}
	sort.Strings(e.Problems)
	return e
}

// Resolve validates and converts a RawMap into a Config. Every key listed
// below is required; Resolve collects all problems before returning rather
// than failing on the first one.
func Resolve(raw RawMap) (*Config, error) {
	errs := &ConfigError{}
	cfg := &Config{
		BaudRate:           constants.DefaultBaudRate,
		OutboundQueueDepth: constants.DefaultOutboundQueueDepth,
		InboundQueueDepth:  constants.DefaultInboundQueueDepth,
		ResponseTimeout:    constants.ResponseTimeout,
		AdjustmentCap:      constants.DefaultAdjustmentCap,
		Microsteps:         append([]uint8(nil), constants.Microsteps...),
	}

	section := func(name string) map[string]uint64 {
		s, ok := raw[name]
		if !ok {
			errs.add("missing section %q", name)
			return nil
		}
		return s
	}

	get := func(s map[string]uint64, section, key string) uint64 {
		if s == nil {
			return 0
		}
		v, ok := s[key]
		if !ok {
			errs.add("missing key %s.%s", section, key)
		}
		return v
	}
	getByte := func(s map[string]uint64, section, key string) byte {
		v := get(s, section, key)
		if v > 0xFF {
			errs.add("key %s.%s out of byte range: %d", section, key, v)
		}
		return byte(v)
	}

	serial := section("serial_settings")
	cfg.Wire.STX = getByte(serial, "serial_settings", "stx")
	cfg.Wire.ETX = getByte(serial, "serial_settings", "etx")
	cfg.Wire.ACK = getByte(serial, "serial_settings", "ack")
	cfg.Wire.NAK = getByte(serial, "serial_settings", "nak")
	if v, ok := serial["baud_rate"]; ok {
		cfg.BaudRate = int(v)
	}

	encoder := section("encoder_settings")
	cfg.EncoderPulsesPerRevolution = uint32(get(encoder, "encoder_settings", "pulses_per_revolution"))
	if v, ok := encoder["update_period_us"]; ok {
		cfg.EncoderUpdatePeriod = time.Duration(v) * time.Microsecond
	}
	cfg.SetpointToleranceCounts = uint32(get(encoder, "encoder_settings", "setpoint_tolerance_counts"))

	bits := section("status_message_bits")
	cfg.StatusBits = StatusBits{
		Direction: uint8(get(bits, "status_message_bits", "direction")),
		Fault:     uint8(get(bits, "status_message_bits", "fault")),
		Paused:    uint8(get(bits, "status_message_bits", "paused")),
		Ramping:   uint8(get(bits, "status_message_bits", "ramping")),
		Enabled:   uint8(get(bits, "status_message_bits", "enabled")),
		Running:   uint8(get(bits, "status_message_bits", "running")),
		Sleeping:  uint8(get(bits, "status_message_bits", "sleeping")),
	}

	msgs := section("message_types")
	cfg.Wire.IDs = frame.MessageIDs{
		Status:       getByte(msgs, "message_types", "MOTOR_STATUS_MESSAGE_ID"),
		Feedback:     getByte(msgs, "message_types", "MOTOR_FEEDBACK_MESSAGE_ID"),
		Fault:        getByte(msgs, "message_types", "MOTOR_FAULT_MESSAGE_ID"),
		Response:     getByte(msgs, "message_types", "RESPONSE_MESSAGE_ID"),
		JobComplete:  getByte(msgs, "message_types", "JOB_COMPLETE_MESSAGE_ID"),
		JobCancelled: getByte(msgs, "message_types", "JOB_CANCELLED_MESSAGE_ID"),
	}

	cmds := section("command_types")
	cfg.Wire.Cmd = frame.CommandCodes{
		SendJob:                               getByte(cmds, "command_types", "SEND_JOB"),
		SendJobWithRamping:                    getByte(cmds, "command_types", "SEND_JOB_WITH_RAMPING"),
		SendJobAllVariables:                   getByte(cmds, "command_types", "SEND_JOB_ALL_VARIABLES"),
		SendJobAllVariablesWithRamping:        getByte(cmds, "command_types", "SEND_JOB_ALL_VARIABLES_WITH_RAMPING"),
		SendJobAllVariablesWithRampingAndRate: getByte(cmds, "command_types", "SEND_JOB_ALL_VARIABLES_WITH_RAMPING_AND_RATE"),
		PauseJob:                              getByte(cmds, "command_types", "PAUSE_JOB"),
		ResumeJob:                             getByte(cmds, "command_types", "RESUME_JOB"),
		CancelJob:                             getByte(cmds, "command_types", "CANCEL_JOB"),
		EnableMotor:                           getByte(cmds, "command_types", "ENABLE_MOTOR"),
		DisableMotor:                          getByte(cmds, "command_types", "DISABLE_MOTOR"),
		SleepMotor:                            getByte(cmds, "command_types", "SLEEP_MOTOR"),
		WakeMotor:                             getByte(cmds, "command_types", "WAKE_MOTOR"),
		ResetMotor:                            getByte(cmds, "command_types", "RESET_MOTOR"),
	}
	if v, ok := cmds["WHO_AM_I"]; ok {
		b := byte(v)
		cfg.Wire.IdentifyCommandCode = &b
	}

	motor := section("motor_settings")
	cfg.StepsPerRevolution = uint32(get(motor, "motor_settings", "steps_per_revolution"))
	cfg.MinimumPulseIntervalUs = uint32(get(motor, "motor_settings", "minimum_pulse_interval_us"))
	if v, ok := motor["default_pulse_on_period_us"]; ok {
		cfg.DefaultPulseOnPeriod = uint32(v)
	}

	if err := errs.fail(); err != nil {
		return nil, err
	}

	if cfg.MinimumPulseIntervalUs == 0 {
		return nil, &ConfigError{Problems: []string{"motor_settings.minimum_pulse_interval_us must be nonzero"}}
	}
	if cfg.StepsPerRevolution == 0 {
		return nil, &ConfigError{Problems: []string{"motor_settings.steps_per_revolution must be nonzero"}}
	}
	if cfg.EncoderPulsesPerRevolution == 0 {
		return nil, &ConfigError{Problems: []string{"encoder_settings.pulses_per_revolution must be nonzero"}}
	}
	sort.Slice(cfg.Microsteps, func(i, j int) bool { return cfg.Microsteps[i] < cfg.Microsteps[j] })

	cfg.deriveLimits()
	return cfg, nil
}

func (c *Config) deriveLimits() {
	c.MaxPulsesPerSecond = 1e6 / float64(c.MinimumPulseIntervalUs)
	c.MaxMotorRPM = (c.MaxPulsesPerSecond / float64(c.StepsPerRevolution)) * 60
	c.MaxRPM = make([]float64, len(c.Microsteps))
	for i, m := range c.Microsteps {
		c.MaxRPM[i] = c.MaxMotorRPM / float64(m)
	}
}

// ToleranceRadians converts the setpoint tolerance count to radians,
// using 2*pi / pulses_per_revolution.
func (c *Config) ToleranceRadians() float64 {
	return float64(c.SetpointToleranceCounts) * (2 * math.Pi / float64(c.EncoderPulsesPerRevolution))
}
