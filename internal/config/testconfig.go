package config

// NewReferenceConfig returns a fully resolved Config built from a concrete,
// internally consistent constant map. It is used by the simulator, the demo
// command's default flags, and by tests throughout the driver so every
// package exercises the same numeric fixture the scenarios in SPEC_FULL.md
// §8 are defined against.
func NewReferenceConfig() *Config {
	raw := RawMap{
		"serial_settings": {
			"stx":       0x02,
			"etx":       0x03,
			"ack":       0x06,
			"nak":       0x15,
			"baud_rate": 115200,
		},
		"encoder_settings": {
			"pulses_per_revolution":    4000,
			"update_period_us":         1000,
			"setpoint_tolerance_counts": 4,
		},
		"status_message_bits": {
			"direction": 0,
			"fault":     1,
			"paused":    2,
			"ramping":   3,
			"enabled":   4,
			"running":   5,
			"sleeping":  6,
		},
		"message_types": {
			"MOTOR_STATUS_MESSAGE_ID":   0x01,
			"MOTOR_FEEDBACK_MESSAGE_ID": 0x02,
			"MOTOR_FAULT_MESSAGE_ID":    0x03,
			"RESPONSE_MESSAGE_ID":       0x04,
			"JOB_COMPLETE_MESSAGE_ID":   0x05,
			"JOB_CANCELLED_MESSAGE_ID":  0x06,
		},
		"command_types": {
			"SEND_JOB":                                      0x10,
			"SEND_JOB_WITH_RAMPING":                         0x11,
			"SEND_JOB_ALL_VARIABLES":                        0x12,
			"SEND_JOB_ALL_VARIABLES_WITH_RAMPING":           0x13,
			"SEND_JOB_ALL_VARIABLES_WITH_RAMPING_AND_RATE":  0x14,
			"PAUSE_JOB":                                     0x20,
			"RESUME_JOB":                                    0x21,
			"CANCEL_JOB":                                    0x22,
			"ENABLE_MOTOR":                                  0x23,
			"DISABLE_MOTOR":                                 0x24,
			"SLEEP_MOTOR":                                   0x25,
			"WAKE_MOTOR":                                    0x26,
			"RESET_MOTOR":                                   0x27,
		},
		"motor_settings": {
			"steps_per_revolution":       200,
			"minimum_pulse_interval_us":  100,
			"default_pulse_on_period_us": 20,
		},
	}

	cfg, err := Resolve(raw)
	if err != nil {
		// The fixture above is maintained by hand and must always resolve;
		// a failure here means the fixture itself regressed.
		panic(err)
	}
	return cfg
}
