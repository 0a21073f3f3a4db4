// Package client is the entry point for applications: one identity signing
// everything it sends through one pool of relays.
package client

import (
	"fmt"
	"os"
	"time"

	"github.com/Hubmakerlabs/nopu/pkg/config"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/draft"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filter"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/keys"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/kind"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/metadata"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/nip04"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/pool"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/relay"
	"github.com/Hubmakerlabs/nopu/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// T owns an identity and a relay pool. It is safe for concurrent use.
type T struct {
	id     *keys.T
	ctx    context.T
	cancel context.F
	Pool   *pool.T
}

// New makes a client for id with no relays. Everything the client starts
// ends when c is canceled or Close is called.
func New(c context.T, id *keys.T, opts ...pool.Option) (cl *T, err error) {
	if id == nil {
		return nil, errs.F(errs.InvalidSecretKey, "client needs an identity")
	}
	cl = &T{id: id}
	cl.ctx, cl.cancel = context.Cancel(c)
	cl.Pool = pool.New(cl.ctx, opts...)
	return
}

// NewFromConfig builds the identity, pool options and relay list from cfg.
// Without a secret key a fresh identity is generated. Relays that cannot be
// reached stay registered and are reported in RelayStatuses.
func NewFromConfig(c context.T, cfg *config.T) (cl *T, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}
	var id *keys.T
	if cfg.SecKey == "" {
		if id, err = keys.Generate(); err != nil {
			return
		}
		log.W.Ln("no secret key configured, using a new identity",
			id.PublicKeyHex())
	} else if id, err = keys.FromString(cfg.SecKey); err != nil {
		return
	}
	opts := []pool.Option{
		pool.WithAutoReconnect(!cfg.NoReconnect),
		pool.WithReconnectInterval(cfg.ReconnectMin, cfg.ReconnectMax),
		pool.WithTimeouts(cfg.ConnectTimeout, cfg.PublishTimeout,
			cfg.FetchTimeout),
		pool.WithRelayOptions(
			relay.WithCompression(!cfg.NoCompression),
			relay.WithPingInterval(cfg.PingInterval),
		),
	}
	if cl, err = New(c, id, opts...); err != nil {
		return
	}
	for _, u := range cfg.Relays {
		chk.D(cl.AddRelay(c, u))
	}
	return
}

// Close disconnects every relay and ends every subscription.
func (cl *T) Close() {
	cl.Pool.Close()
	cl.cancel()
}

func (cl *T) GetPublicKey() string { return cl.id.PublicKeyHex() }

func (cl *T) Identity() *keys.T { return cl.id }

func (cl *T) AddRelay(c context.T, url string) error {
	return cl.Pool.AddRelay(c, url)
}

func (cl *T) RemoveRelay(url string) error { return cl.Pool.RemoveRelay(url) }

// Connect connects every registered relay that is not connected.
func (cl *T) Connect(c context.T) error { return cl.Pool.ConnectAll(c) }

func (cl *T) Disconnect() { cl.Pool.DisconnectAll() }

func (cl *T) RelayStatuses() []pool.RelayInfo { return cl.Pool.RelayStatuses() }

// publish signs d and sends it to the pool.
func (cl *T) publish(c context.T, d *draft.T) (ev *event.T,
	res *pool.PublishResult, err error) {

	if ev, err = d.Sign(cl.id); err != nil {
		return
	}
	res, err = cl.Pool.Publish(c, ev)
	return
}

// PublishTextNote publishes a kind 1 note. Tag shorthands that cannot be used
// are skipped with a warning in the log.
func (cl *T) PublishTextNote(c context.T, content string,
	tags [][]string) (ev *event.T, res *pool.PublishResult, err error) {

	d := draft.TextNote(content, tags)
	for _, w := range d.Warnings {
		log.W.Ln("text note:", w)
	}
	return cl.publish(c, d)
}

// PublishEvent publishes an event of any kind with the tags as given.
func (cl *T) PublishEvent(c context.T, k kind.T, content string,
	tags [][]string) (ev *event.T, res *pool.PublishResult, err error) {

	return cl.publish(c, draft.New(k, content, tags))
}

// SetMetadata publishes the identity's profile.
func (cl *T) SetMetadata(c context.T, m *metadata.T) (ev *event.T,
	res *pool.PublishResult, err error) {

	var d *draft.T
	if d, err = draft.Metadata(m); err != nil {
		return
	}
	return cl.publish(c, d)
}

// GetMetadata is not supported: profiles of other users would need a local
// event index. It always fails with UnsupportedOperation.
func (cl *T) GetMetadata(c context.T, pubkey string) (*metadata.T, error) {
	return nil, errs.F(errs.UnsupportedOperation,
		"metadata lookup for %s needs a local event index", pubkey)
}

// SendPrivateMessage publishes text encrypted for receiver, given as hex or
// npub.
func (cl *T) SendPrivateMessage(c context.T, receiver,
	text string) (ev *event.T, res *pool.PublishResult, err error) {

	var pk string
	if pk, err = keys.PublicKeyFromString(receiver); err != nil {
		return
	}
	var d *draft.T
	if d, err = draft.DirectMessage(cl.id, pk, text); err != nil {
		return
	}
	return cl.publish(c, d)
}

// DecryptMessage returns the plaintext of a direct message sent to or by
// this identity.
func (cl *T) DecryptMessage(ev *event.T) (text string, err error) {
	if ev.Kind != kind.EncryptedDirectMessage {
		return "", errs.F(errs.UnsupportedOperation,
			"event %s is kind %d, not a direct message", ev.ID, ev.Kind)
	}
	peer := ev.PubKey
	if peer == cl.GetPublicKey() {
		tg := ev.Tags.GetFirst("p")
		if tg == nil || len(tg) < 2 {
			return "", errs.F(errs.InvalidPublicKey,
				"direct message %s has no receiver", ev.ID)
		}
		peer = tg.Value()
	}
	return nip04.Decrypt(cl.id, peer, ev.Content)
}

// FetchEvents queries the pool. See pool.T.Fetch.
func (cl *T) FetchEvents(c context.T, f *filter.T) ([]*event.T, error) {
	return cl.Pool.Fetch(c, f)
}

// Subscribe opens a live query. It ends when c is done, on Unsubscribe or
// Close, and with autoCloseAfter above zero by itself after that long.
func (cl *T) Subscribe(c context.T, f *filter.T,
	autoCloseAfter time.Duration) (*pool.Subscription, error) {

	return cl.Pool.Subscribe(c, f, autoCloseAfter)
}

// Unsubscribe ends a subscription. Unknown ids are ignored.
func (cl *T) Unsubscribe(id string) { cl.Pool.Unsubscribe(id) }

func (cl *T) String() string {
	return fmt.Sprintf("client %s (%d relays)", cl.id.PublicKeyHex(),
		len(cl.Pool.RelayStatuses()))
}
