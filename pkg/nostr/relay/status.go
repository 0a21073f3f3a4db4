package relay

// Status is the state of a relay connection.
//
//	Disconnected -> Connecting -> Connected -> Disconnecting -> Disconnected
//	Connecting -> Disconnected    (dial failed)
//	Connected -> Disconnected     (transport error)
//	Connected -> Terminated       (the relay broke the protocol)
//
// A Disconnected or Terminated relay can be connected again.
type Status int32

const (
	Disconnected Status = iota
	Connecting
	Connected
	Disconnecting
	Terminated
)

var statusNames = [...]string{
	Disconnected:  "disconnected",
	Connecting:    "connecting",
	Connected:     "connected",
	Disconnecting: "disconnecting",
	Terminated:    "terminated",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// IsConnected is true only for Connected.
func (s Status) IsConnected() bool { return s == Connected }
