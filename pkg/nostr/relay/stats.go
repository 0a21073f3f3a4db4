package relay

import (
	"sync/atomic"
	"time"
)

// Stats counts activity on a relay across reconnections.
type Stats struct {
	Attempts       int64
	Successes      int64
	BytesSent      int64
	BytesReceived  int64
	EventsReceived int64
	// ConnectedAt is zero when the relay is not connected.
	ConnectedAt time.Time
}

type stats struct {
	attempts, successes  atomic.Int64
	bytesSent, bytesRecv atomic.Int64
	eventsRecv           atomic.Int64
	connectedAt          atomic.Int64
}

func (s *stats) snapshot() (st Stats) {
	st = Stats{
		Attempts:       s.attempts.Load(),
		Successes:      s.successes.Load(),
		BytesSent:      s.bytesSent.Load(),
		BytesReceived:  s.bytesRecv.Load(),
		EventsReceived: s.eventsRecv.Load(),
	}
	if at := s.connectedAt.Load(); at != 0 {
		st.ConnectedAt = time.Unix(0, at)
	}
	return
}
