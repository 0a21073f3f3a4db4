// Package relaytest runs a small in-memory nostr relay on a loopback port for
// tests of code that talks to relays.
package relaytest

import (
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/closedenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/closeenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/eoseenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/eventenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/noticeenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/okenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/reqenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filters"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/interfaces/enveloper"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/nopu/pkg/slog"
	"github.com/fasthttp/websocket"
	"github.com/puzpuzpuz/xsync/v2"
	"golang.org/x/exp/slices"
)

var log, chk = slog.New(os.Stderr)

const MaxMessageSize = 512000

// T is a running relay. Its zero value is not usable; call New.
type T struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	stored    []*event.T
	published []*event.T
	clients   map[*client]struct{}
	reject    func(ev *event.T) string

	reqs    atomic.Int64
	closes  atomic.Int64
	pings   atomic.Int64
	deflate atomic.Int64
	// silent relays read everything and answer nothing
	silent atomic.Bool
	noEOSE atomic.Bool
}

type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	subs *xsync.MapOf[string, filters.T]
}

func (c *client) send(env enveloper.I) {
	b, err := env.MarshalJSON()
	if chk.E(err) {
		return
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	chk.D(c.conn.WriteMessage(websocket.TextMessage, b))
}

// Option configures a relay before it starts listening.
type Option func(r *T)

// WithCompression makes the relay accept permessage-deflate.
func WithCompression() Option {
	return func(r *T) { r.upgrader.EnableCompression = true }
}

// New starts a relay. Close it when done.
func New(opts ...Option) (r *T) {
	r = &T{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.srv = httptest.NewServer(http.HandlerFunc(r.handleWebsocket))
	return
}

// URL is the ws:// address of the relay.
func (r *T) URL() string { return normalize.URL(r.srv.URL) }

// Close drops every client and stops the listener.
func (r *T) Close() {
	r.DropClients()
	r.srv.Close()
}

// Store adds events as if they had been published earlier.
func (r *T) Store(evs ...*event.T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range evs {
		r.storeLocked(ev)
	}
}

func (r *T) storeLocked(ev *event.T) bool {
	for _, have := range r.stored {
		if have.ID == ev.ID {
			return false
		}
	}
	r.stored = append(r.stored, ev)
	return true
}

// Published returns the events clients sent, accepted or not.
func (r *T) Published() []*event.T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.published)
}

// SetReject installs a policy for published events. A non-empty reason
// rejects the event with that message.
func (r *T) SetReject(fn func(ev *event.T) string) {
	r.mu.Lock()
	r.reject = fn
	r.mu.Unlock()
}

// SetSilent makes the relay stop answering REQ and EVENT messages.
func (r *T) SetSilent(on bool) { r.silent.Store(on) }

// SetNoEOSE makes the relay send stored events without a trailing EOSE.
func (r *T) SetNoEOSE(on bool) { r.noEOSE.Store(on) }

// Reqs counts REQ messages received.
func (r *T) Reqs() int64 { return r.reqs.Load() }

// Closes counts CLOSE messages received.
func (r *T) Closes() int64 { return r.closes.Load() }

// Pings counts ping frames received from clients.
func (r *T) Pings() int64 { return r.pings.Load() }

// DeflateOffers counts handshakes that offered permessage-deflate.
func (r *T) DeflateOffers() int64 { return r.deflate.Load() }

// Clients is the number of open connections.
func (r *T) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Subscriptions is the number of open subscriptions across clients.
func (r *T) Subscriptions() (n int) {
	for _, c := range r.snapshot() {
		n += c.subs.Size()
	}
	return
}

func (r *T) snapshot() (cc []*client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		cc = append(cc, c)
	}
	return
}

// DropClients closes every connection without a close handshake.
func (r *T) DropClients() {
	for _, c := range r.snapshot() {
		chk.D(c.conn.UnderlyingConn().Close())
	}
}

// Broadcast stores ev and delivers it to every open subscription it matches.
func (r *T) Broadcast(ev *event.T) {
	r.Store(ev)
	r.deliver(ev)
}

// CloseSubscriptions sends CLOSED for every open subscription.
func (r *T) CloseSubscriptions(reason string) {
	for _, c := range r.snapshot() {
		c.subs.Range(func(id string, _ filters.T) bool {
			c.subs.Delete(id)
			c.send(closedenvelope.New(id, reason))
			return true
		})
	}
}

// Notice sends a NOTICE to every client.
func (r *T) Notice(msg string) {
	for _, c := range r.snapshot() {
		c.send(noticeenvelope.New(msg))
	}
}

func (r *T) deliver(ev *event.T) {
	for _, c := range r.snapshot() {
		c.subs.Range(func(id string, ff filters.T) bool {
			if ff.Match(ev) {
				c.send(&eventenvelope.T{SubscriptionID: id, Event: ev})
			}
			return true
		})
	}
}

func (r *T) handleWebsocket(w http.ResponseWriter, req *http.Request) {
	if strings.Contains(req.Header.Get("Sec-Websocket-Extensions"),
		"permessage-deflate") {
		r.deflate.Add(1)
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.E.F("failed to upgrade websocket: %v", err)
		return
	}
	conn.SetPingHandler(func(data string) error {
		r.pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data),
			time.Now().Add(time.Second))
	})
	c := &client{conn: conn, subs: xsync.NewMapOf[filters.T]()}
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.clients, c)
		r.mu.Unlock()
		conn.Close()
	}()
	conn.SetReadLimit(MaxMessageSize)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,    // 1000
				websocket.CloseGoingAway,        // 1001
				websocket.CloseNoStatusReceived, // 1005
				websocket.CloseAbnormalClosure,  // 1006
			) {
				log.D.F("unexpected close error from %s: %v",
					req.RemoteAddr, err)
			}
			return
		}
		env, err := envelopes.Parse(message)
		if err != nil {
			c.send(noticeenvelope.New(err.Error()))
			continue
		}
		switch env := env.(type) {
		case *eventenvelope.T:
			r.handleEvent(c, env.Event)
		case *reqenvelope.T:
			r.handleReq(c, env)
		case *closeenvelope.T:
			r.closes.Add(1)
			c.subs.Delete(env.SubscriptionID)
		default:
			c.send(noticeenvelope.New("unexpected " + env.Label()))
		}
	}
}

func (r *T) handleEvent(c *client, ev *event.T) {
	r.mu.Lock()
	r.published = append(r.published, ev)
	reject := r.reject
	r.mu.Unlock()
	if r.silent.Load() {
		return
	}
	if err := ev.Validate(); err != nil {
		c.send(okenvelope.New(ev.ID.String(), false, "invalid: "+err.Error()))
		return
	}
	if reject != nil {
		if reason := reject(ev); reason != "" {
			c.send(okenvelope.New(ev.ID.String(), false, reason))
			return
		}
	}
	r.mu.Lock()
	fresh := r.storeLocked(ev)
	r.mu.Unlock()
	if !fresh {
		c.send(okenvelope.New(ev.ID.String(), true, "duplicate: already have"))
		return
	}
	c.send(okenvelope.New(ev.ID.String(), true, ""))
	r.deliver(ev)
}

func (r *T) handleReq(c *client, env *reqenvelope.T) {
	r.reqs.Add(1)
	if r.silent.Load() {
		return
	}
	c.subs.Store(env.SubscriptionID, env.Filters)
	r.mu.Lock()
	stored := slices.Clone(r.stored)
	r.mu.Unlock()
	slices.SortFunc(stored, event.CompareDescending)
	sent := make(map[string]struct{})
	for _, f := range env.Filters {
		var n int
		for _, ev := range stored {
			if f.HasLimit() && n >= f.GetLimit() {
				break
			}
			if !f.Matches(ev) {
				continue
			}
			n++
			if _, ok := sent[ev.ID.String()]; ok {
				continue
			}
			sent[ev.ID.String()] = struct{}{}
			c.send(&eventenvelope.T{SubscriptionID: env.SubscriptionID,
				Event: ev})
		}
	}
	if !r.noEOSE.Load() {
		c.send(eoseenvelope.New(env.SubscriptionID))
	}
}
