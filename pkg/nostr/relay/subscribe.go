package relay

import (
	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filter"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filters"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/subscriptionid"
)

// Subscribe sends a REQ and returns the live subscription. It ends when c is
// canceled, Unsub is called, the relay closes it, or the connection is lost.
func (r *T) Subscribe(c context.T, ff filters.T,
	opts ...SubOption) (sub *subscription.T, err error) {

	if !r.IsConnected() {
		return nil, &errs.T{Kind: errs.SubscriptionFailed, URL: r.url,
			Err: ErrNotConnected}
	}
	sub = r.PrepareSubscription(c, ff, opts...)
	if err = sub.Fire(); err != nil {
		return nil, &errs.T{Kind: errs.SubscriptionFailed, URL: r.url,
			Err: err}
	}
	return
}

// PrepareSubscription registers a subscription without sending the REQ.
func (r *T) PrepareSubscription(c context.T, ff filters.T,
	opts ...SubOption) (sub *subscription.T) {

	var o subOptions
	for _, opt := range opts {
		opt(&o)
	}
	id := subscriptionid.T(o.id)
	if !id.IsValid() {
		id = subscriptionid.NewRandom(o.label)
	}
	sub = subscription.New(c, r, id, ff)
	r.register(sub)
	go sub.Start()
	return
}

// Query collects the stored events matching f. It returns when the relay
// sends EOSE, or when c is done, in which case the events received so far
// are returned with a Timeout error. If c has no deadline DefaultQueryTimeout
// applies.
func (r *T) Query(c context.T, f *filter.T) (evs []*event.T, err error) {
	c, cancel := context.Default(c, DefaultQueryTimeout)
	defer cancel()
	var sub *subscription.T
	if sub, err = r.Subscribe(c, filters.New(f), WithLabel("query")); err != nil {
		err = &errs.T{Kind: errs.EventQueryFailed, URL: r.url, Err: err}
		return
	}
	defer sub.Unsub()
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				select {
				case reason := <-sub.ClosedReason:
					return evs, errs.F(errs.EventQueryFailed,
						"closed by %s: %s", r.url, reason)
				default:
				}
				if c.Err() != nil {
					return evs, &errs.T{Kind: errs.Timeout, URL: r.url,
						Err: c.Err()}
				}
				return evs, &errs.T{Kind: errs.EventQueryFailed, URL: r.url,
					Err: ErrNotConnected}
			}
			evs = append(evs, ev)
		case <-sub.EndOfStoredEvents:
			return drain(sub, evs), nil
		case reason := <-sub.ClosedReason:
			return drain(sub, evs), errs.F(errs.EventQueryFailed,
				"closed by %s: %s", r.url, reason)
		case <-c.Done():
			return evs, &errs.T{Kind: errs.Timeout, URL: r.url, Err: c.Err()}
		}
	}
}

// drain takes the events already queued on sub without waiting for more.
func drain(sub *subscription.T, evs []*event.T) []*event.T {
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}
