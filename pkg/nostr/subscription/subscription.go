package subscription

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/closeenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/reqenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filters"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/interfaces/relayer"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/subscriptionid"
	"github.com/Hubmakerlabs/nopu/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// EventBuffer is the capacity of the Events channel.
const EventBuffer = 64

// QueueLimit bounds the events held for a consumer that is not reading
// Events. Further events are dropped and counted in Dropped.
const QueueLimit = 1024

// item is an event or the end of stored events marker.
type item struct {
	ev   *event.T
	eose bool
}

// T is one REQ on one relay.
type T struct {
	ID      subscriptionid.T
	Relay   relayer.I
	Filters filters.T

	// Events emits the matching events in the order the relay sent them. It
	// is closed when the subscription ends.
	Events chan *event.T

	// queue holds what the relay delivered and Start has not yet passed on
	qmu     sync.Mutex
	queue   []item
	wake    chan struct{}
	dropped atomic.Int64

	// EndOfStoredEvents is closed when the relay sends EOSE. All stored
	// events have been put on Events by then.
	EndOfStoredEvents chan struct{}

	// ClosedReason receives the reason when the relay sends CLOSED.
	ClosedReason chan string

	// Context is done when the subscription ends.
	Context context.T
	Cancel  context.F

	live   atomic.Bool
	eosed  atomic.Bool
	closed atomic.Bool
}

// New makes a subscription bound to c. Call Start in a goroutine and then
// Fire to send the REQ.
func New(c context.T, r relayer.I, id subscriptionid.T, ff filters.T) *T {
	sub := &T{
		ID:                id,
		Relay:             r,
		Filters:           ff,
		Events:            make(chan *event.T, EventBuffer),
		wake:              make(chan struct{}, 1),
		EndOfStoredEvents: make(chan struct{}),
		ClosedReason:      make(chan string, 1),
	}
	sub.Context, sub.Cancel = context.Cancel(c)
	return sub
}

func (sub *T) GetID() subscriptionid.T { return sub.ID }

// Live reports whether the REQ is open on the relay.
func (sub *T) Live() bool { return sub.live.Load() }

// Dropped is the number of events lost because the consumer fell more than
// QueueLimit events behind.
func (sub *T) Dropped() int64 { return sub.dropped.Load() }

// Start passes queued events on to Events in arrival order until the
// subscription ends, and then releases it.
func (sub *T) Start() {
	defer func() {
		sub.Unsub()
		close(sub.Events)
	}()
	for {
		it, ok := sub.next()
		if !ok {
			select {
			case <-sub.wake:
				continue
			case <-sub.Context.Done():
				return
			}
		}
		if it.eose {
			if sub.eosed.CompareAndSwap(false, true) {
				close(sub.EndOfStoredEvents)
			}
			continue
		}
		select {
		case sub.Events <- it.ev:
		case <-sub.Context.Done():
			return
		}
	}
}

func (sub *T) next() (it item, ok bool) {
	sub.qmu.Lock()
	defer sub.qmu.Unlock()
	if len(sub.queue) == 0 {
		return
	}
	it, ok = sub.queue[0], true
	sub.queue[0] = item{}
	sub.queue = sub.queue[1:]
	return
}

func (sub *T) enqueue(it item) {
	sub.qmu.Lock()
	sub.queue = append(sub.queue, it)
	sub.qmu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// DispatchEvent queues ev for the consumer and returns at once. The relay
// read loop calls it in arrival order.
func (sub *T) DispatchEvent(ev *event.T) {
	if !sub.live.Load() {
		return
	}
	sub.qmu.Lock()
	full := len(sub.queue) >= QueueLimit
	sub.qmu.Unlock()
	if full {
		if sub.dropped.Add(1) == 1 {
			log.W.F("{%s} subscription %s is not being read, dropping events",
				sub.Relay.URL(), sub.ID)
		}
		return
	}
	sub.enqueue(item{ev: ev})
}

// DispatchEose closes EndOfStoredEvents once the events before it are on
// Events.
func (sub *T) DispatchEose() { sub.enqueue(item{eose: true}) }

// DispatchClosed ends the subscription after the relay closed it. No CLOSE is
// sent back.
func (sub *T) DispatchClosed(reason string) {
	if sub.closed.CompareAndSwap(false, true) {
		sub.live.Store(false)
		sub.ClosedReason <- reason
		sub.Cancel()
	}
}

// Abandon ends the subscription without sending CLOSE, for when the
// connection it was opened on is gone.
func (sub *T) Abandon() {
	sub.live.Store(false)
	sub.Cancel()
}

// Unsub ends the subscription and sends CLOSE to the relay if the REQ is
// still open.
func (sub *T) Unsub() {
	sub.Cancel()
	if sub.live.CompareAndSwap(true, false) {
		sub.Close()
	}
	sub.Relay.Delete(sub.ID, sub)
}

// Close just sends a CLOSE message. You probably want Unsub instead.
func (sub *T) Close() {
	if !sub.Relay.IsConnected() {
		return
	}
	b, _ := closeenvelope.New(sub.ID.String()).MarshalJSON()
	log.D.F("{%s} sending %s", sub.Relay.URL(), b)
	chk.D(<-sub.Relay.Write(b))
}

// Fire sends the REQ.
func (sub *T) Fire() (err error) {
	b, _ := reqenvelope.New(sub.ID.String(), sub.Filters).MarshalJSON()
	log.D.F("{%s} sending %s", sub.Relay.URL(), b)
	sub.live.Store(true)
	if err = <-sub.Relay.Write(b); err != nil {
		sub.live.Store(false)
		sub.Cancel()
		return fmt.Errorf("failed to write: %w", err)
	}
	return
}
