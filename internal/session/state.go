package session

// State of the session lifecycle.
type State int

const (
	Idle State = iota
	Activating
	Active
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Activating:
		return "activating"
	case Active:
		return "active"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Event sources reported to Options.OnEvent.
const (
	SourceClient = "client"
	SourcePeer   = "peer"
	SourceRelay  = "relay"
)
