package stepperctl

import "github.com/nullstream/stepperctl/internal/constants"

// Re-exported defaults for callers that build a Config by hand rather than
// through internal/config.Resolve (e.g. overriding one knob on top of a
// resolved configuration).
const (
	DefaultBaudRate           = constants.DefaultBaudRate
	DefaultOutboundQueueDepth = constants.DefaultOutboundQueueDepth
	DefaultInboundQueueDepth  = constants.DefaultInboundQueueDepth
	DefaultAdjustmentCap      = constants.DefaultAdjustmentCap
)
