// Package relay is a single websocket connection to a nostr relay.
package relay

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/connection"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/closedenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/eoseenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/eventenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/noticeenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/okenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/interfaces/enveloper"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/interfaces/relayer"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/subscriptionid"
	"github.com/Hubmakerlabs/nopu/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

const (
	DefaultConnectTimeout = 7 * time.Second
	DefaultPublishTimeout = 4 * time.Second
	DefaultQueryTimeout   = 7 * time.Second
	DefaultPingInterval   = 29 * time.Second
)

// ErrNotConnected is the cause reported for operations on a relay that has no
// live connection.
var ErrNotConnected = errors.New("not connected")

var _ relayer.I = (*T)(nil)

// session is one established connection. A relay has at most one at a time.
type session struct {
	conn   *connection.C
	ctx    context.T
	cancel context.F
	// done is closed once the writer has closed the socket
	done chan struct{}
}

type T struct {
	url           string
	RequestHeader http.Header
	// AssumeValid skips verifying signatures of events from this relay
	AssumeValid bool
	// Compress offers permessage-deflate during the handshake
	Compress bool

	// lifetime bounds every connection of this relay
	lifetime context.T

	// connMutex serialises Connect and Disconnect
	connMutex sync.Mutex
	status    atomic.Int32
	sess      atomic.Pointer[session]
	lastError atomic.Pointer[string]

	// subMutex serialises registration and removal in Subscriptions
	subMutex      sync.Mutex
	Subscriptions *xsync.MapOf[string, *subscription.T]
	okCallbacks   *xsync.MapOf[string, func(bool, string)]
	writeQueue    chan writeRequest

	pingInterval time.Duration
	onStatus     StatusHandler
	onNotice     func(string)
	stats        stats
}

type writeRequest struct {
	msg    []byte
	answer chan error
}

// New returns a disconnected relay for url. Every connection it makes ends
// when c is canceled. The url is normalized; an unusable url is an InvalidURL
// error.
func New(c context.T, url string, opts ...Option) (r *T, err error) {
	var u string
	if u, err = normalize.Relay(url); err != nil {
		return
	}
	r = &T{
		url:           u,
		Compress:      true,
		lifetime:      c,
		Subscriptions: xsync.NewMapOf[*subscription.T](),
		okCallbacks:   xsync.NewMapOf[func(bool, string)](),
		writeQueue:    make(chan writeRequest),
		pingInterval:  DefaultPingInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return
}

func (r *T) URL() string { return r.url }

func (r *T) String() string { return r.url }

func (r *T) Status() Status { return Status(r.status.Load()) }

func (r *T) IsConnected() bool { return r.Status().IsConnected() }

func (r *T) Stats() Stats { return r.stats.snapshot() }

// Compressed reports whether the current connection uses permessage-deflate.
func (r *T) Compressed() bool {
	if s := r.sess.Load(); s != nil {
		return s.conn.Compressed()
	}
	return false
}

// LastError is the message of the most recent failure, or empty.
func (r *T) LastError() string {
	if s := r.lastError.Load(); s != nil {
		return *s
	}
	return ""
}

func (r *T) setStatus(s Status, cause error) {
	old := Status(r.status.Swap(int32(s)))
	if cause != nil {
		msg := cause.Error()
		r.lastError.Store(&msg)
	}
	if old == s {
		return
	}
	log.D.F("{%s} %s -> %s", r.url, old, s)
	if r.onStatus != nil {
		r.onStatus(r.url, s, cause)
	}
}

// Connect dials the relay. If c has no deadline DefaultConnectTimeout
// applies. Once connected, canceling c has no effect; use Disconnect. A
// failure leaves the relay Disconnected and is a RelayConnectionFailed error.
func (r *T) Connect(c context.T) (err error) {
	r.connMutex.Lock()
	defer r.connMutex.Unlock()
	if r.IsConnected() {
		return nil
	}
	if err = r.lifetime.Err(); err != nil {
		return errs.Relay(r.url, err)
	}
	r.setStatus(Connecting, nil)
	r.stats.attempts.Add(1)
	c, cancel := context.Default(c, DefaultConnectTimeout)
	defer cancel()
	var conn *connection.C
	if conn, err = connection.New(c, r.url, r.RequestHeader,
		r.Compress); err != nil {

		if c.Err() != nil {
			err = errs.Relay(r.url, errs.New(errs.Timeout, err))
		} else {
			err = errs.Relay(r.url, err)
		}
		r.setStatus(Disconnected, err)
		return
	}
	s := &session{conn: conn, done: make(chan struct{})}
	s.ctx, s.cancel = context.Cancel(r.lifetime)
	r.sess.Store(s)
	r.stats.successes.Add(1)
	r.stats.connectedAt.Store(time.Now().UnixNano())
	go r.writeLoop(s)
	go r.readLoop(s)
	r.setStatus(Connected, nil)
	return
}

// Disconnect closes the connection and ends its subscriptions. It is a no-op
// on a relay that is not connected.
func (r *T) Disconnect() {
	r.connMutex.Lock()
	defer r.connMutex.Unlock()
	s := r.sess.Load()
	if s == nil {
		if r.Status() == Terminated {
			r.setStatus(Disconnected, nil)
		}
		return
	}
	r.setStatus(Disconnecting, nil)
	if r.end(s) {
		select {
		case <-s.done:
		case <-time.After(time.Second):
			log.D.F("{%s} writer did not stop in time", r.url)
		}
	}
	r.setStatus(Disconnected, nil)
}

// end detaches s if it is still the current session. Only one caller wins.
func (r *T) end(s *session) bool {
	if !r.sess.CompareAndSwap(s, nil) {
		return false
	}
	s.cancel()
	r.stats.connectedAt.Store(0)
	r.Subscriptions.Range(func(_ string, sub *subscription.T) bool {
		sub.Abandon()
		return true
	})
	return true
}

// drop handles the loss of s from inside the connection loops.
func (r *T) drop(s *session, status Status, cause error) {
	if r.end(s) {
		log.D.F("{%s} connection lost: %v", r.url, cause)
		r.setStatus(status, cause)
	}
}

// Write queues msg for the writer goroutine. The channel reports the write
// outcome.
func (r *T) Write(msg []byte) <-chan error {
	ch := make(chan error, 1)
	s := r.sess.Load()
	if s == nil {
		ch <- ErrNotConnected
		return ch
	}
	select {
	case r.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-s.ctx.Done():
		ch <- ErrNotConnected
	}
	return ch
}

func (r *T) writeLoop(s *session) {
	ticker := time.NewTicker(r.pingInterval)
	defer func() {
		ticker.Stop()
		chk.T(s.conn.Close())
		close(s.done)
	}()
	for {
		select {
		case <-ticker.C:
			if err := s.conn.WritePing(); err != nil {
				r.drop(s, Disconnected, errs.Relay(r.url,
					fmt.Errorf("ping failed: %w", err)))
				return
			}
		case wr := <-r.writeQueue:
			if s.ctx.Err() != nil {
				wr.answer <- ErrNotConnected
				return
			}
			err := s.conn.WriteMessage(wr.msg)
			wr.answer <- err
			if err != nil {
				r.drop(s, Disconnected, errs.Relay(r.url, err))
				return
			}
			r.stats.bytesSent.Add(int64(len(wr.msg)))
		case <-s.ctx.Done():
			return
		}
	}
}

func (r *T) readLoop(s *session) {
	buf := new(bytes.Buffer)
	for {
		buf.Reset()
		if err := s.conn.ReadMessage(s.ctx, buf); err != nil {
			r.drop(s, Disconnected, errs.Relay(r.url, err))
			return
		}
		r.stats.bytesRecv.Add(int64(buf.Len()))
		message := buf.Bytes()
		log.T.F("{%s} received %s", r.url, message)
		env, err := envelopes.Parse(message)
		if err != nil {
			if errors.Is(err, envelopes.ErrMalformed) {
				log.W.F("{%s} %v, terminating connection", r.url, err)
				r.drop(s, Terminated, errs.Relay(r.url, err))
				return
			}
			log.D.F("{%s} ignoring message: %v", r.url, err)
			continue
		}
		r.handle(env)
	}
}

func (r *T) handle(env enveloper.I) {
	switch env := env.(type) {
	case *noticeenvelope.T:
		log.I.F("NOTICE from %s: '%s'", r.url, env.Message)
		if r.onNotice != nil {
			r.onNotice(env.Message)
		}
	case *eventenvelope.T:
		if env.SubscriptionID == "" {
			log.D.F("{%s} event without subscription id", r.url)
			return
		}
		sub, ok := r.Subscriptions.Load(env.SubscriptionID)
		if !ok {
			log.D.F("{%s} no subscription with id '%s'", r.url,
				env.SubscriptionID)
			return
		}
		if !sub.Filters.Match(env.Event) {
			log.D.F("{%s} filter does not match event %s", r.url,
				env.Event.ID)
			return
		}
		if !r.AssumeValid {
			if err := env.Event.Validate(); err != nil {
				log.D.F("{%s} dropping event: %v", r.url, err)
				return
			}
		}
		r.stats.eventsRecv.Add(1)
		sub.DispatchEvent(env.Event)
	case *eoseenvelope.T:
		if sub, ok := r.Subscriptions.Load(env.SubscriptionID); ok {
			sub.DispatchEose()
		}
	case *closedenvelope.T:
		if sub, ok := r.Subscriptions.Load(env.SubscriptionID); ok {
			log.D.F("{%s} subscription %s closed: %s", r.url,
				env.SubscriptionID, env.Reason)
			sub.DispatchClosed(env.Reason)
		}
	case *okenvelope.T:
		if cb, ok := r.okCallbacks.Load(env.EventID); ok {
			cb(env.OK, env.Reason)
		}
	default:
		log.D.F("{%s} unexpected %s message", r.url, env.Label())
	}
}

// Delete removes sub from the registry if it is still the one under id.
func (r *T) Delete(id subscriptionid.T, sub any) {
	r.subMutex.Lock()
	defer r.subMutex.Unlock()
	if cur, ok := r.Subscriptions.Load(id.String()); ok && any(cur) == sub {
		r.Subscriptions.Delete(id.String())
	}
}

func (r *T) register(sub *subscription.T) {
	r.subMutex.Lock()
	defer r.subMutex.Unlock()
	if old, ok := r.Subscriptions.Load(sub.ID.String()); ok && old != sub {
		old.Abandon()
	}
	r.Subscriptions.Store(sub.ID.String(), sub)
}
