package pool

import (
	"errors"
	"sync"
	"time"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filter"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filters"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/relay"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/subscriptionid"
	"github.com/puzpuzpuz/xsync/v2"
)

// Subscription is a live query across the pool. Events carries each
// matching event once, from whichever relay delivered it first. Events and
// Done are closed when the subscription ends.
type Subscription struct {
	ID             string
	Filter         *filter.T
	AutoCloseAfter time.Duration
	Events         <-chan *event.T
	Done           <-chan struct{}
}

var errEnded = errors.New("subscription ended")

// logical is one pool subscription and its per-relay parts, which all use
// the same wire id.
type logical struct {
	id     string
	filter *filter.T
	ctx    context.T
	cancel context.F
	stop   func() bool
	out    chan *event.T
	done   chan struct{}
	seen   *xsync.MapOf[string, struct{}]

	mu     sync.Mutex
	ended  bool
	per    map[string]*subscription.T
	relays sync.WaitGroup
}

// Subscribe opens f on every connected relay. Relays that connect later
// join the subscription. It ends when c is done, when autoCloseAfter is
// above zero and has elapsed, on Unsubscribe, or when the pool is closed.
// It fails when no relay took the REQ.
//
// A consumer that stops reading Events does not hold up the relays: each
// relay keeps up to subscription.QueueLimit events for it and drops the
// rest, counted in the events_dropped_total metric.
func (p *T) Subscribe(c context.T, f *filter.T,
	autoCloseAfter time.Duration) (s *Subscription, err error) {

	if f == nil {
		f = &filter.T{}
	}
	if err = f.Validate(); err != nil {
		return nil, errs.New(errs.SubscriptionFailed, err)
	}
	if err = c.Err(); err != nil {
		return nil, errs.New(errs.SubscriptionFailed, err)
	}
	relays := p.connected()
	if len(relays) == 0 {
		return nil, errs.F(errs.SubscriptionFailed, "no connected relays")
	}
	l := &logical{
		id:     subscriptionid.NewRandom("sub").String(),
		filter: f.Clone(),
		out:    make(chan *event.T),
		done:   make(chan struct{}),
		seen:   xsync.NewMapOf[struct{}](),
		per:    make(map[string]*subscription.T),
	}
	if autoCloseAfter > 0 {
		l.ctx, l.cancel = context.Timeout(p.ctx, autoCloseAfter)
	} else {
		l.ctx, l.cancel = context.Cancel(p.ctx)
	}
	l.stop = context.AfterFunc(c, l.cancel)
	p.subs.Store(l.id, l)
	go p.reap(l)
	var accepted int
	for _, r := range relays {
		if err = p.attach(l, r); err == nil {
			accepted++
		}
	}
	if accepted == 0 {
		l.cancel()
		<-l.done
		return nil, errs.New(errs.SubscriptionFailed, err)
	}
	err = nil
	log.D.F("subscription %s open on %d relays", l.id, accepted)
	return &Subscription{
		ID:             l.id,
		Filter:         l.filter,
		AutoCloseAfter: autoCloseAfter,
		Events:         l.out,
		Done:           l.done,
	}, nil
}

// Unsubscribe ends the subscription with this id and closes it on every
// relay. An unknown or already ended id is ignored.
func (p *T) Unsubscribe(id string) {
	l, ok := p.subs.Load(id)
	if !ok {
		return
	}
	l.cancel()
	<-l.done
}

// reap releases l once it ended.
func (p *T) reap(l *logical) {
	<-l.ctx.Done()
	l.stop()
	p.subs.Delete(l.id)
	l.mu.Lock()
	l.ended = true
	l.mu.Unlock()
	// the per-relay subscriptions share l.ctx and send CLOSE as they end
	l.relays.Wait()
	close(l.out)
	close(l.done)
	log.D.F("subscription %s ended", l.id)
}

// attach opens l on r unless it is already live there.
func (p *T) attach(l *logical, r *relay.T) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ended {
		return errEnded
	}
	if sub, ok := l.per[r.URL()]; ok && sub.Context.Err() == nil {
		return
	}
	var sub *subscription.T
	if sub, err = r.Subscribe(l.ctx, filters.New(l.filter),
		relay.WithID(l.id)); err != nil {

		log.D.F("subscription %s on %s: %v", l.id, r.URL(), err)
		return
	}
	l.per[r.URL()] = sub
	l.relays.Add(1)
	go p.forward(l, sub)
	return
}

// detach closes l on the relay at url.
func (l *logical) detach(url string) {
	l.mu.Lock()
	sub, ok := l.per[url]
	delete(l.per, url)
	l.mu.Unlock()
	if ok {
		sub.Unsub()
	}
}

func (p *T) forward(l *logical, sub *subscription.T) {
	defer func() {
		if n := sub.Dropped(); n > 0 {
			p.metrics.dropped.Add(float64(n))
		}
		l.relays.Done()
	}()
	for ev := range sub.Events {
		if _, dup := l.seen.LoadOrStore(ev.ID.String(), struct{}{}); dup {
			p.metrics.duplicates.Inc()
			continue
		}
		p.metrics.received.Inc()
		if l.ctx.Err() != nil {
			return
		}
		select {
		case l.out <- ev:
		case <-l.ctx.Done():
			return
		}
	}
}

// resubscribe opens every live subscription on r, which just connected.
func (p *T) resubscribe(r *relay.T) {
	p.subs.Range(func(_ string, l *logical) bool {
		if err := p.attach(l, r); err == nil {
			log.T.F("subscription %s active on %s", l.id, r.URL())
		}
		return true
	})
}
