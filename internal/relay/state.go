package relay

// State is the lifecycle stage of a Relay.
type State int

const (
	Idle State = iota
	Reading
	Flushing
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Flushing:
		return "flushing"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
