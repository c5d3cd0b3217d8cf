package halo

import "time"

// Version is the configuration schema version reported to the Halo.
const Version = "2.0.0"

// WebSocketPort is the fixed port of the Halo's WebSocket server.
const WebSocketPort = 8080

// WebSocketTimeout is used for the connect timeout, the heartbeat
// interval and the delay between reconnection attempts.
const WebSocketTimeout = 5 * time.Second

// Button value bounds.
const (
	MinValue = 0
	MaxValue = 100
)

// Configuration tree cardinality limits.
const (
	MinPages   = 0
	MaxPages   = 3
	MinButtons = 0
	MaxButtons = 8
)

// Text budgets for the Halo display. The button title limit differs
// between firmware generations; 15 is the documented limit of current
// firmware and is used everywhere in this module.
const (
	PageTitleMaxLength      = 40
	ButtonTitleMaxLength    = 15
	ButtonSubtitleMaxLength = 20
	ButtonTextMaxLength     = 15
)
