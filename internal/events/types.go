package events

import "time"

// EventType names a lifecycle event.
type EventType string

const (
	EventProcessStarted EventType = "process.started"
	EventProcessExited  EventType = "process.exited"
	// EventRelayFailed: a stream lost its channel; the process keeps running.
	EventRelayFailed EventType = "relay.failed"
)

// ProcessStarted describes a successful spawn.
type ProcessStarted struct {
	Name      string   `json:"name"`
	Args      []string `json:"args,omitempty"`
	OSPID     int      `json:"os_pid"`
	ChannelID string   `json:"channel_id,omitempty"`
}

// ProcessExited describes an exit. Terminated is set when an operator killed it.
type ProcessExited struct {
	Name       string        `json:"name"`
	ExitCode   int           `json:"exit_code"`
	Terminated bool          `json:"terminated"`
	Duration   time.Duration `json:"duration"`
}

// RelayFailed describes a stopped relay.
type RelayFailed struct {
	Stream string `json:"stream"`
	Error  string `json:"error"`
}

// Event is what travels on a Bus; Type decides the Payload struct.
type Event struct {
	Type      EventType
	PID       int
	RunID     string
	Timestamp time.Time
	Payload   any
}
