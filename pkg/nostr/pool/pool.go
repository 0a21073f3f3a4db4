// Package pool manages a set of relay connections and fans operations out
// across them.
package pool

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/relay"
	"github.com/Hubmakerlabs/nopu/pkg/slog"
	"github.com/cenkalti/backoff/v4"
	"github.com/fiatjaf/generic-ristretto/z"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v2"
	"golang.org/x/exp/slices"
)

var log, chk = slog.New(os.Stderr)

const (
	DefaultFetchTimeout         = 10 * time.Second
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectInterval = 5 * time.Minute
)

const MaxLocks = 50

var namedMutexPool = make([]sync.Mutex, MaxLocks)

func namedLock(name string) (unlock func()) {
	idx := z.MemHashString(name) % MaxLocks
	namedMutexPool[idx].Lock()
	return namedMutexPool[idx].Unlock
}

// RelayInfo is a snapshot of one registered relay.
type RelayInfo struct {
	URL       string
	Status    relay.Status
	Connected bool
	Stats     relay.Stats
	LastError string
}

type entry struct {
	relay *relay.T
	// manual is set while the caller wants the relay down
	manual        atomic.Bool
	connectedOnce atomic.Bool
	reconnecting  atomic.Bool
}

// T is a pool of relays. All methods are safe for concurrent use.
type T struct {
	ctx    context.T
	cancel context.F

	mu     sync.RWMutex
	relays map[string]*entry
	// order is the registration order of relays
	order []string

	subs *xsync.MapOf[string, *logical]

	autoReconnect  bool
	minBackoff     time.Duration
	maxBackoff     time.Duration
	connectTimeout time.Duration
	publishTimeout time.Duration
	fetchTimeout   time.Duration
	relayOpts      []relay.Option

	Registry *prometheus.Registry
	metrics  *metrics
}

// Option configures a pool at construction.
type Option func(p *T)

// WithAutoReconnect toggles reconnecting relays that dropped. On by default.
func WithAutoReconnect(on bool) Option {
	return func(p *T) { p.autoReconnect = on }
}

// WithReconnectInterval bounds the exponential reconnect backoff.
func WithReconnectInterval(initial, limit time.Duration) Option {
	return func(p *T) {
		if initial > 0 {
			p.minBackoff = initial
		}
		if limit >= p.minBackoff {
			p.maxBackoff = limit
		}
	}
}

// WithTimeouts sets the defaults used when a context has no deadline. Zero
// values keep the current default.
func WithTimeouts(connect, publish, fetch time.Duration) Option {
	return func(p *T) {
		if connect > 0 {
			p.connectTimeout = connect
		}
		if publish > 0 {
			p.publishTimeout = publish
		}
		if fetch > 0 {
			p.fetchTimeout = fetch
		}
	}
}

// WithRelayOptions are applied to every relay the pool creates.
func WithRelayOptions(opts ...relay.Option) Option {
	return func(p *T) { p.relayOpts = append(p.relayOpts, opts...) }
}

// WithRegistry registers the pool metrics in reg instead of a private
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(p *T) { p.Registry = reg }
}

// New makes an empty pool. Everything it starts ends when c is canceled or
// Close is called.
func New(c context.T, opts ...Option) (p *T) {
	c, cancel := context.Cancel(c)
	p = &T{
		ctx:            c,
		cancel:         cancel,
		relays:         make(map[string]*entry),
		subs:           xsync.NewMapOf[*logical](),
		autoReconnect:  true,
		minBackoff:     DefaultReconnectInterval,
		maxBackoff:     DefaultMaxReconnectInterval,
		connectTimeout: relay.DefaultConnectTimeout,
		publishTimeout: relay.DefaultPublishTimeout,
		fetchTimeout:   DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.Registry == nil {
		p.Registry = prometheus.NewRegistry()
	}
	p.metrics = newMetrics(p.Registry)
	return
}

// Close ends every subscription and disconnects every relay.
func (p *T) Close() {
	p.cancel()
	p.DisconnectAll()
}

func (p *T) entry(url string) *entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.relays[url]
}

// entries is a snapshot of the registry in registration order.
func (p *T) entries() (ee []*entry) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ee = make([]*entry, 0, len(p.order))
	for _, u := range p.order {
		ee = append(ee, p.relays[u])
	}
	return
}

func (p *T) connected() (rr []*relay.T) {
	for _, e := range p.entries() {
		if e.relay.IsConnected() {
			rr = append(rr, e.relay)
		}
	}
	return
}

// AddRelay registers url and connects to it. Adding a registered relay only
// reconnects it if needed. When the connection fails the relay stays
// registered and the RelayConnectionFailed error is returned.
func (p *T) AddRelay(c context.T, url string) (err error) {
	var nm string
	if nm, err = normalize.Relay(url); err != nil {
		return errs.Relay(url, err)
	}
	p.mu.Lock()
	e, ok := p.relays[nm]
	if !ok {
		opts := make([]relay.Option, 0, len(p.relayOpts)+1)
		opts = append(opts, p.relayOpts...)
		opts = append(opts, relay.WithStatusHandler(p.relayStatus))
		var r *relay.T
		if r, err = relay.New(p.ctx, nm, opts...); err != nil {
			p.mu.Unlock()
			return errs.Relay(url, err)
		}
		e = &entry{relay: r}
		p.relays[nm] = e
		p.order = append(p.order, nm)
		log.D.F("added relay %s", nm)
	}
	p.mu.Unlock()
	e.manual.Store(false)
	c, cancel := context.Default(c, p.connectTimeout)
	defer cancel()
	return p.dial(c, e)
}

func (p *T) dial(c context.T, e *entry) (err error) {
	defer namedLock(e.relay.URL())()
	if e.relay.IsConnected() {
		return nil
	}
	if err = e.relay.Connect(c); err != nil {
		log.D.F("failed to connect to %s: %v", e.relay.URL(), err)
		return
	}
	e.connectedOnce.Store(true)
	return
}

// RemoveRelay closes the relay's subscriptions, disconnects it and forgets
// it. An unknown url is a RelayConnectionFailed error.
func (p *T) RemoveRelay(url string) (err error) {
	nm := normalize.URL(url)
	p.mu.Lock()
	e, ok := p.relays[nm]
	if !ok {
		p.mu.Unlock()
		return errs.Relay(url, fmt.Errorf("relay is not in the pool"))
	}
	delete(p.relays, nm)
	if i := slices.Index(p.order, nm); i >= 0 {
		p.order = slices.Delete(p.order, i, i+1)
	}
	p.mu.Unlock()
	e.manual.Store(true)
	p.subs.Range(func(_ string, l *logical) bool {
		l.detach(nm)
		return true
	})
	e.relay.Disconnect()
	p.metrics.connected.Set(float64(len(p.connected())))
	log.D.F("removed relay %s", nm)
	return
}

// ConnectAll connects every registered relay that is not connected, in
// parallel. It fails only when relays are registered and none of them could
// be connected.
func (p *T) ConnectAll(c context.T) (err error) {
	c, cancel := context.Default(c, p.connectTimeout)
	defer cancel()
	ee := p.entries()
	if len(ee) == 0 {
		return
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []error
	for _, e := range ee {
		e.manual.Store(false)
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			if err := p.dial(c, e); err != nil {
				mu.Lock()
				failed = append(failed, err)
				mu.Unlock()
			}
		}(e)
	}
	wg.Wait()
	if len(failed) == len(ee) {
		return errs.New(errs.RelayConnectionFailed, errors.Join(failed...))
	}
	return
}

// DisconnectAll disconnects every relay. Relays stay registered and are not
// reconnected automatically.
func (p *T) DisconnectAll() {
	var wg sync.WaitGroup
	for _, e := range p.entries() {
		e.manual.Store(true)
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			e.relay.Disconnect()
		}(e)
	}
	wg.Wait()
}

// RelayStatuses reports every registered relay in registration order.
func (p *T) RelayStatuses() (ri []RelayInfo) {
	for _, e := range p.entries() {
		st := e.relay.Status()
		ri = append(ri, RelayInfo{
			URL:       e.relay.URL(),
			Status:    st,
			Connected: st.IsConnected(),
			Stats:     e.relay.Stats(),
			LastError: e.relay.LastError(),
		})
	}
	return
}

// relayStatus is the status handler given to every relay of the pool.
func (p *T) relayStatus(url string, s relay.Status, cause error) {
	p.metrics.connected.Set(float64(len(p.connected())))
	e := p.entry(url)
	if e == nil {
		return
	}
	switch s {
	case relay.Connected:
		go p.resubscribe(e.relay)
	case relay.Disconnected, relay.Terminated:
		// cause is nil when the caller asked for the disconnection
		if cause != nil {
			p.maybeReconnect(e)
		}
	}
}

func (p *T) maybeReconnect(e *entry) {
	if !p.autoReconnect || !e.connectedOnce.Load() || e.manual.Load() ||
		p.ctx.Err() != nil {
		return
	}
	if e.reconnecting.CompareAndSwap(false, true) {
		go p.reconnect(e)
	}
}

var errStopped = errors.New("reconnection stopped")

func (p *T) reconnect(e *entry) {
	url := e.relay.URL()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.minBackoff
	b.MaxInterval = p.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	op := func() error {
		if e.manual.Load() || p.entry(url) != e {
			return backoff.Permanent(errStopped)
		}
		p.metrics.reconnects.Inc()
		c, cancel := context.Timeout(p.ctx, p.connectTimeout)
		defer cancel()
		return p.dial(c, e)
	}
	// the first attempt waits one interval like the rest
	select {
	case <-time.After(b.NextBackOff()):
	case <-p.ctx.Done():
		e.reconnecting.Store(false)
		return
	}
	err := backoff.RetryNotify(op, backoff.WithContext(b, p.ctx),
		func(err error, d time.Duration) {
			log.D.F("reconnecting %s failed, next attempt in %v: %v", url,
				d, err)
		})
	e.reconnecting.Store(false)
	if err != nil {
		log.D.F("gave up reconnecting %s: %v", url, err)
		return
	}
	log.I.F("reconnected to %s", url)
	// it may have dropped again before reconnecting was cleared
	if !e.relay.IsConnected() {
		p.maybeReconnect(e)
	}
}
