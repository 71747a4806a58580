package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDerivesLimits(t *testing.T) {
	cfg := NewReferenceConfig()

	require.Equal(t, 10000.0, cfg.MaxPulsesPerSecond) // 1e6/100
	require.Equal(t, 3000.0, cfg.MaxMotorRPM)          // (10000/200)*60
	require.Equal(t, []uint8{1, 2, 4, 8, 16, 32}, cfg.Microsteps)
	require.Equal(t, 3000.0, cfg.MaxRPM[0])
	require.Equal(t, 1500.0, cfg.MaxRPM[1])
	require.Equal(t, float64(3000)/32, cfg.MaxRPM[5])
}

func TestResolveCollectsAllMissingKeys(t *testing.T) {
	_, err := Resolve(RawMap{})
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Greater(t, len(cfgErr.Problems), 5, "a totally empty map should report many missing keys at once")
}

func TestResolveRejectsZeroStepsPerRevolution(t *testing.T) {
	raw := RawMap{
		"serial_settings":      {"stx": 2, "etx": 3, "ack": 6, "nak": 0x15},
		"encoder_settings":     {"pulses_per_revolution": 1000, "setpoint_tolerance_counts": 1},
		"status_message_bits":  {"direction": 0, "fault": 1, "paused": 2, "ramping": 3, "enabled": 4, "running": 5, "sleeping": 6},
		"message_types": {
			"MOTOR_STATUS_MESSAGE_ID": 1, "MOTOR_FEEDBACK_MESSAGE_ID": 2, "MOTOR_FAULT_MESSAGE_ID": 3,
			"RESPONSE_MESSAGE_ID": 4, "JOB_COMPLETE_MESSAGE_ID": 5, "JOB_CANCELLED_MESSAGE_ID": 6,
		},
		"command_types": {
			"SEND_JOB": 0x10, "SEND_JOB_WITH_RAMPING": 0x11, "SEND_JOB_ALL_VARIABLES": 0x12,
			"SEND_JOB_ALL_VARIABLES_WITH_RAMPING": 0x13, "SEND_JOB_ALL_VARIABLES_WITH_RAMPING_AND_RATE": 0x14,
			"PAUSE_JOB": 0x20, "RESUME_JOB": 0x21, "CANCEL_JOB": 0x22, "ENABLE_MOTOR": 0x23,
			"DISABLE_MOTOR": 0x24, "SLEEP_MOTOR": 0x25, "WAKE_MOTOR": 0x26, "RESET_MOTOR": 0x27,
		},
		"motor_settings": {"steps_per_revolution": 0, "minimum_pulse_interval_us": 100},
	}

	_, err := Resolve(raw)
	require.Error(t, err)
}

func TestToleranceRadians(t *testing.T) {
	cfg := NewReferenceConfig()
	require.InDelta(t, float64(4)*(2*3.14159265/4000), cfg.ToleranceRadians(), 1e-6)
}

func TestParseYAMLRoundTrip(t *testing.T) {
	doc := []byte(`
serial_settings:
  stx: 2
  etx: 3
  ack: 6
  nak: 21
  baud_rate: 9600
encoder_settings:
  pulses_per_revolution: 4000
  setpoint_tolerance_counts: 4
status_message_bits:
  direction: 0
  fault: 1
  paused: 2
  ramping: 3
  enabled: 4
  running: 5
  sleeping: 6
message_types:
  MOTOR_STATUS_MESSAGE_ID: 1
  MOTOR_FEEDBACK_MESSAGE_ID: 2
  MOTOR_FAULT_MESSAGE_ID: 3
  RESPONSE_MESSAGE_ID: 4
  JOB_COMPLETE_MESSAGE_ID: 5
  JOB_CANCELLED_MESSAGE_ID: 6
command_types:
  SEND_JOB: 16
  SEND_JOB_WITH_RAMPING: 17
  SEND_JOB_ALL_VARIABLES: 18
  SEND_JOB_ALL_VARIABLES_WITH_RAMPING: 19
  SEND_JOB_ALL_VARIABLES_WITH_RAMPING_AND_RATE: 20
  PAUSE_JOB: 32
  RESUME_JOB: 33
  CANCEL_JOB: 34
  ENABLE_MOTOR: 35
  DISABLE_MOTOR: 36
  SLEEP_MOTOR: 37
  WAKE_MOTOR: 38
  RESET_MOTOR: 39
motor_settings:
  steps_per_revolution: 200
  minimum_pulse_interval_us: 100
  default_pulse_on_period_us: 20
`)

	cfg, err := ParseYAML(doc)
	require.NoError(t, err)
	require.Equal(t, 9600, cfg.BaudRate)
	require.Equal(t, 3000.0, cfg.MaxMotorRPM)
}
