package relay

import (
	"fmt"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/eventenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
)

// Publish sends ev and waits for the relay's OK. If c has no deadline
// DefaultPublishTimeout applies. A rejection or write failure is an
// EventPublishingFailed error carrying the relay url; no answer in time is a
// Timeout error.
func (r *T) Publish(c context.T, ev *event.T) (err error) {
	if !r.IsConnected() {
		return &errs.T{Kind: errs.EventPublishingFailed, URL: r.url,
			Err: ErrNotConnected}
	}
	c, cancel := context.Default(c, DefaultPublishTimeout)
	defer cancel()
	id := ev.ID.String()
	result := make(chan error, 1)
	r.okCallbacks.Store(id, func(ok bool, reason string) {
		var res error
		if !ok {
			res = fmt.Errorf("rejected: %s", reason)
		}
		select {
		case result <- res:
		default:
		}
	})
	defer r.okCallbacks.Delete(id)
	var b []byte
	if b, err = eventenvelope.New(ev).MarshalJSON(); err != nil {
		return errs.New(errs.EventPublishingFailed, err)
	}
	log.D.F("{%s} sending %s", r.url, b)
	select {
	case err = <-r.Write(b):
		if err != nil {
			return &errs.T{Kind: errs.EventPublishingFailed, URL: r.url,
				Err: fmt.Errorf("failed to write: %w", err)}
		}
	case <-c.Done():
		return &errs.T{Kind: errs.Timeout, URL: r.url, Err: c.Err()}
	}
	select {
	case err = <-result:
		if err != nil {
			return &errs.T{Kind: errs.EventPublishingFailed, URL: r.url,
				Err: err}
		}
		log.D.F("{%s} accepted %s", r.url, id)
		return nil
	case <-c.Done():
		if r.IsConnected() {
			return &errs.T{Kind: errs.Timeout, URL: r.url,
				Err: fmt.Errorf("no OK for %s: %w", id, c.Err())}
		}
		return &errs.T{Kind: errs.EventPublishingFailed, URL: r.url,
			Err: ErrNotConnected}
	}
}
