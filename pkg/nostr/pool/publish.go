package pool

import (
	"errors"
	"sync"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/relay"
)

// PublishResult is the outcome of sending one event to the pool.
type PublishResult struct {
	EventID string
	// Accepted lists the relays that acknowledged the event, in
	// registration order.
	Accepted []string
	// Failed maps each other relay that was tried to its error.
	Failed map[string]error
}

// Publish sends ev to every connected relay in parallel and waits for their
// answers. It succeeds when at least one relay accepted the event.
func (p *T) Publish(c context.T, ev *event.T) (res *PublishResult, err error) {
	res = &PublishResult{EventID: ev.ID.String(), Failed: make(map[string]error)}
	relays := p.connected()
	if len(relays) == 0 {
		return res, errs.F(errs.EventPublishingFailed, "no connected relays")
	}
	c, cancel := context.Default(c, p.publishTimeout)
	defer cancel()
	outcome := make([]error, len(relays))
	var wg sync.WaitGroup
	for i, r := range relays {
		wg.Add(1)
		go func(i int, r *relay.T) {
			defer wg.Done()
			outcome[i] = r.Publish(c, ev)
		}(i, r)
	}
	wg.Wait()
	var failed []error
	for i, r := range relays {
		if outcome[i] == nil {
			res.Accepted = append(res.Accepted, r.URL())
			p.metrics.published.WithLabelValues("accepted").Inc()
			continue
		}
		log.D.F("publish %s to %s: %v", res.EventID, r.URL(), outcome[i])
		res.Failed[r.URL()] = outcome[i]
		failed = append(failed, outcome[i])
		p.metrics.published.WithLabelValues("failed").Inc()
	}
	if len(res.Accepted) == 0 {
		return res, errs.New(errs.EventPublishingFailed, errors.Join(failed...))
	}
	return
}
