package pool

import (
	"errors"
	"sync"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filter"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/relay"
	"github.com/puzpuzpuz/xsync/v2"
	"golang.org/x/exp/slices"
)

// Fetch queries every connected relay for f and merges the answers. Each id
// is kept once, as first received. The result is ordered newest first and
// cut to the filter's limit. When c ends before every relay finished, what
// arrived so far is returned. If c has no deadline the pool fetch timeout
// applies.
func (p *T) Fetch(c context.T, f *filter.T) (evs []*event.T, err error) {
	if f == nil {
		f = &filter.T{}
	}
	if err = f.Validate(); err != nil {
		return
	}
	relays := p.connected()
	if len(relays) == 0 {
		return nil, errs.F(errs.EventQueryFailed, "no connected relays")
	}
	c, cancel := context.Default(c, p.fetchTimeout)
	defer cancel()
	seen := xsync.NewMapOf[*event.T]()
	var mu sync.Mutex
	var failed []error
	var wg sync.WaitGroup
	for _, r := range relays {
		wg.Add(1)
		go func(r *relay.T) {
			defer wg.Done()
			got, err := r.Query(c, f)
			for _, ev := range got {
				if _, dup := seen.LoadOrStore(ev.ID.String(), ev); dup {
					p.metrics.duplicates.Inc()
					continue
				}
				p.metrics.received.Inc()
			}
			if err != nil && !errors.Is(err, errs.ErrTimeout) {
				log.D.F("fetch from %s: %v", r.URL(), err)
				mu.Lock()
				failed = append(failed, err)
				mu.Unlock()
			}
		}(r)
	}
	wg.Wait()
	if len(failed) == len(relays) {
		return nil, errs.New(errs.EventQueryFailed, errors.Join(failed...))
	}
	evs = make([]*event.T, 0, seen.Size())
	seen.Range(func(_ string, ev *event.T) bool {
		evs = append(evs, ev)
		return true
	})
	slices.SortFunc(evs, event.CompareDescending)
	if f.HasLimit() && len(evs) > f.GetLimit() {
		evs = evs[:f.GetLimit()]
	}
	return
}
