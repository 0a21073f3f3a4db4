package pool

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/draft"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filter"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/keys"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/kind"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/relay"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/relaytest"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/timestamp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func note(t *testing.T, k *keys.T, content string, at int64) *event.T {
	t.Helper()
	d := draft.TextNote(content, [][]string{{"t", "nopu"}})
	d.CreatedAt = timestamp.T(at)
	ev, err := d.Sign(k)
	require.NoError(t, err)
	return ev
}

func newKeys(t *testing.T) *keys.T {
	t.Helper()
	k, err := keys.Generate()
	require.NoError(t, err)
	return k
}

// twoRelays starts two test relays and a pool connected to both.
func twoRelays(t *testing.T, opts ...Option) (p *T, a, b *relaytest.T) {
	t.Helper()
	a, b = relaytest.New(), relaytest.New()
	t.Cleanup(a.Close)
	t.Cleanup(b.Close)
	p = New(context.Bg(), opts...)
	t.Cleanup(p.Close)
	require.NoError(t, p.AddRelay(context.Bg(), a.URL()))
	require.NoError(t, p.AddRelay(context.Bg(), b.URL()))
	return
}

func metricValue(t *testing.T, p *T, name string) float64 {
	t.Helper()
	mfs, err := p.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			if g := m.GetGauge(); g != nil {
				sum += g.GetValue()
			} else if c := m.GetCounter(); c != nil {
				sum += c.GetValue()
			}
		}
		return sum
	}
	return 0
}

func TestAddRelayUnreachable(t *testing.T) {
	p := New(context.Bg(), WithAutoReconnect(false))
	defer p.Close()
	start := time.Now()
	err := p.AddRelay(context.Bg(), "ws://127.0.0.1:1")
	require.Error(t, err)
	assert.Equal(t, errs.RelayConnectionFailed, errs.KindOf(err))
	assert.Less(t, time.Since(start), relay.DefaultConnectTimeout+time.Second)
	st := p.RelayStatuses()
	require.Len(t, st, 1)
	assert.Equal(t, "ws://127.0.0.1:1", st[0].URL)
	assert.Equal(t, relay.Disconnected, st[0].Status)
	assert.False(t, st[0].Connected)
	assert.NotEmpty(t, st[0].LastError)
}

func TestAddRelayInvalidURL(t *testing.T) {
	p := New(context.Bg())
	defer p.Close()
	err := p.AddRelay(context.Bg(), "not a relay")
	assert.True(t, errors.Is(err, errs.ErrRelayConnectionFailed))
	assert.True(t, errors.Is(err, errs.ErrInvalidURL))
	assert.Empty(t, p.RelayStatuses())
}

func TestAddRelayIdempotent(t *testing.T) {
	r := relaytest.New()
	defer r.Close()
	p := New(context.Bg())
	defer p.Close()
	require.NoError(t, p.AddRelay(context.Bg(), r.URL()))
	require.NoError(t, p.AddRelay(context.Bg(), r.URL()+"/"))
	st := p.RelayStatuses()
	require.Len(t, st, 1)
	assert.True(t, st[0].Connected)
	assert.Equal(t, 1, r.Clients())
	assert.Equal(t, float64(1), metricValue(t, p, "nopu_pool_connected_relays"))
}

func TestRemoveRelay(t *testing.T) {
	p, a, b := twoRelays(t)
	err := p.RemoveRelay("wss://unknown.example.com")
	assert.Equal(t, errs.RelayConnectionFailed, errs.KindOf(err))
	require.NoError(t, p.RemoveRelay(a.URL()))
	st := p.RelayStatuses()
	require.Len(t, st, 1)
	assert.Equal(t, b.URL(), st[0].URL)
	assert.Eventually(t, func() bool { return a.Clients() == 0 },
		3*time.Second, 10*time.Millisecond)
	assert.Equal(t, errs.RelayConnectionFailed,
		errs.KindOf(p.RemoveRelay(a.URL())))
}

func TestConnectAllDisconnectAll(t *testing.T) {
	p, a, b := twoRelays(t)
	p.DisconnectAll()
	for _, ri := range p.RelayStatuses() {
		assert.Equal(t, relay.Disconnected, ri.Status)
	}
	assert.Eventually(t, func() bool { return a.Clients()+b.Clients() == 0 },
		3*time.Second, 10*time.Millisecond)
	// a relay the caller disconnected is not brought back
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, float64(0), metricValue(t, p,
		"nopu_pool_reconnect_attempts_total"))
	require.NoError(t, p.ConnectAll(context.Bg()))
	for _, ri := range p.RelayStatuses() {
		assert.True(t, ri.Connected, ri.URL)
	}
	// one dead relay is not a failure
	b.Close()
	p.DisconnectAll()
	assert.NoError(t, p.ConnectAll(context.Bg()))
	a.Close()
	p.DisconnectAll()
	assert.Equal(t, errs.RelayConnectionFailed,
		errs.KindOf(p.ConnectAll(context.Bg())))
}

func TestConnectAllEmpty(t *testing.T) {
	p := New(context.Bg())
	defer p.Close()
	assert.NoError(t, p.ConnectAll(context.Bg()))
}

func TestPublish(t *testing.T) {
	p, a, b := twoRelays(t)
	ev := note(t, newKeys(t), "hello", 1000)
	b.SetReject(func(*event.T) string { return "blocked: not today" })
	res, err := p.Publish(context.Bg(), ev)
	require.NoError(t, err)
	assert.Equal(t, ev.ID.String(), res.EventID)
	assert.Equal(t, []string{a.URL()}, res.Accepted)
	require.Contains(t, res.Failed, b.URL())
	assert.Contains(t, res.Failed[b.URL()].Error(), "blocked")
	assert.Len(t, a.Published(), 1)
	assert.Len(t, b.Published(), 1)

	a.SetReject(func(*event.T) string { return "blocked: nope" })
	res, err = p.Publish(context.Bg(), note(t, newKeys(t), "again", 1001))
	assert.Equal(t, errs.EventPublishingFailed, errs.KindOf(err))
	assert.Empty(t, res.Accepted)
	assert.Len(t, res.Failed, 2)
}

func TestPublishTimeout(t *testing.T) {
	p, a, b := twoRelays(t)
	a.SetSilent(true)
	ev := note(t, newKeys(t), "hello", 1000)
	c, cancel := context.Timeout(context.Bg(), 300*time.Millisecond)
	defer cancel()
	res, err := p.Publish(c, ev)
	require.NoError(t, err)
	assert.Equal(t, []string{b.URL()}, res.Accepted)
	assert.True(t, errors.Is(res.Failed[a.URL()], errs.ErrTimeout))
}

func TestPublishNoRelays(t *testing.T) {
	p := New(context.Bg())
	defer p.Close()
	_, err := p.Publish(context.Bg(), note(t, newKeys(t), "x", 1))
	assert.Equal(t, errs.EventPublishingFailed, errs.KindOf(err))
}

func TestFetchDedupSortLimit(t *testing.T) {
	p, a, b := twoRelays(t)
	k := newKeys(t)
	shared1 := note(t, k, "shared one", 100)
	shared2 := note(t, k, "shared two", 300)
	onlyA := note(t, k, "only a", 200)
	onlyB := note(t, k, "only b", 400)
	a.Store(shared1, shared2, onlyA)
	b.Store(shared1, shared2, onlyB)

	evs, err := p.Fetch(context.Bg(), &filter.T{Kinds: []kind.T{kind.TextNote}})
	require.NoError(t, err)
	require.Len(t, evs, 4)
	want := []*event.T{onlyB, shared2, onlyA, shared1}
	for i := range want {
		assert.Equal(t, want[i].ID, evs[i].ID, "position %d", i)
	}
	assert.Equal(t, float64(4), metricValue(t, p,
		"nopu_pool_events_received_total"))
	assert.Equal(t, float64(2), metricValue(t, p,
		"nopu_pool_events_duplicate_total"))

	evs, err = p.Fetch(context.Bg(),
		(&filter.T{Authors: []string{k.PublicKeyHex()}}).SetLimit(2))
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, onlyB.ID, evs[0].ID)
	assert.Equal(t, shared2.ID, evs[1].ID)
}

func TestFetchPartialOnTimeout(t *testing.T) {
	p, a, b := twoRelays(t)
	k := newKeys(t)
	a.Store(note(t, k, "from a", 1))
	b.Store(note(t, k, "from b", 2))
	b.SetNoEOSE(true)
	c, cancel := context.Timeout(context.Bg(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	evs, err := p.Fetch(c, &filter.T{})
	require.NoError(t, err)
	assert.Len(t, evs, 2)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchErrors(t *testing.T) {
	p := New(context.Bg())
	defer p.Close()
	_, err := p.Fetch(context.Bg(), &filter.T{})
	assert.Equal(t, errs.EventQueryFailed, errs.KindOf(err))

	p, _, _ = twoRelays(t)
	_, err = p.Fetch(context.Bg(), &filter.T{IDs: []string{"abc"}})
	assert.Equal(t, errs.InvalidHex, errs.KindOf(err))
	_, err = p.Fetch(context.Bg(), &filter.T{Authors: []string{"xyz"}})
	assert.Equal(t, errs.InvalidPublicKey, errs.KindOf(err))
}

func TestFetchAllClosed(t *testing.T) {
	p, a, b := twoRelays(t)
	a.SetSilent(true)
	b.SetSilent(true)
	c, cancel := context.Timeout(context.Bg(), 200*time.Millisecond)
	defer cancel()
	evs, err := p.Fetch(c, &filter.T{})
	// silence is a timeout, not a failure
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func receive(t *testing.T, s *Subscription) *event.T {
	t.Helper()
	select {
	case ev, ok := <-s.Events:
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no event")
	}
	return nil
}

func TestSubscribeMergesAndDedups(t *testing.T) {
	p, a, b := twoRelays(t)
	k := newKeys(t)
	s, err := p.Subscribe(context.Bg(), &filter.T{Kinds: []kind.T{kind.TextNote}},
		0)
	require.NoError(t, err)
	assert.Zero(t, s.AutoCloseAfter)
	require.Eventually(t, func() bool {
		return a.Subscriptions() == 1 && b.Subscriptions() == 1
	}, 3*time.Second, 10*time.Millisecond)

	shared := note(t, k, "both", 10)
	a.Broadcast(shared)
	b.Broadcast(shared)
	assert.Equal(t, shared.ID, receive(t, s).ID)
	onlyB := note(t, k, "b", 11)
	b.Broadcast(onlyB)
	assert.Equal(t, onlyB.ID, receive(t, s).ID)
	// kind mismatch never arrives
	d := draft.New(kind.Reaction, "+", nil)
	reaction, err := d.Sign(k)
	require.NoError(t, err)
	a.Broadcast(reaction)
	select {
	case ev := <-s.Events:
		t.Fatalf("unexpected event %s", ev)
	case <-time.After(100 * time.Millisecond):
	}
	p.Unsubscribe(s.ID)
}

func TestSubscribeAutoClose(t *testing.T) {
	p, a, _ := twoRelays(t)
	s, err := p.Subscribe(context.Bg(), &filter.T{}, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, s.AutoCloseAfter)
	select {
	case <-s.Done:
	case <-time.After(3 * time.Second):
		t.Fatal("subscription did not close itself")
	}
	_, ok := <-s.Events
	assert.False(t, ok, "events still open after close")
	a.Broadcast(note(t, newKeys(t), "late", 1))
	assert.Eventually(t, func() bool { return a.Subscriptions() == 0 },
		3*time.Second, 10*time.Millisecond)
	// closing a closed subscription is a no-op
	p.Unsubscribe(s.ID)
	p.Unsubscribe("never-existed")
}

func TestUnsubscribe(t *testing.T) {
	p, a, b := twoRelays(t)
	s, err := p.Subscribe(context.Bg(), &filter.T{}, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return a.Subscriptions()+b.Subscriptions() == 2
	}, 3*time.Second, 10*time.Millisecond)
	p.Unsubscribe(s.ID)
	select {
	case <-s.Done:
	default:
		t.Fatal("Done not closed after Unsubscribe returned")
	}
	assert.Eventually(t, func() bool {
		return a.Closes() == 1 && b.Closes() == 1
	}, 3*time.Second, 10*time.Millisecond)
	p.Unsubscribe(s.ID)
}

func TestSubscribeErrors(t *testing.T) {
	p := New(context.Bg())
	defer p.Close()
	_, err := p.Subscribe(context.Bg(), &filter.T{}, 0)
	assert.Equal(t, errs.SubscriptionFailed, errs.KindOf(err))
	p, _, _ = twoRelays(t)
	_, err = p.Subscribe(context.Bg(), &filter.T{IDs: []string{"zz"}}, 0)
	assert.Equal(t, errs.SubscriptionFailed, errs.KindOf(err))
	assert.True(t, errors.Is(err, errs.ErrInvalidHex))
}

func TestRemoveRelayClosesSubscriptions(t *testing.T) {
	p, a, b := twoRelays(t)
	s, err := p.Subscribe(context.Bg(), &filter.T{}, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.Subscriptions() == 1 },
		3*time.Second, 10*time.Millisecond)
	require.NoError(t, p.RemoveRelay(a.URL()))
	assert.Eventually(t, func() bool { return a.Closes() == 1 },
		3*time.Second, 10*time.Millisecond)
	// the subscription lives on through the other relay
	ev := note(t, newKeys(t), "still here", 5)
	b.Broadcast(ev)
	assert.Equal(t, ev.ID, receive(t, s).ID)
}

func TestReconnectResubscribes(t *testing.T) {
	p, a, _ := twoRelays(t,
		WithReconnectInterval(20*time.Millisecond, 50*time.Millisecond))
	s, err := p.Subscribe(context.Bg(), &filter.T{}, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.Subscriptions() == 1 },
		3*time.Second, 10*time.Millisecond)
	a.DropClients()
	require.Eventually(t, func() bool {
		st := p.RelayStatuses()
		return a.Clients() == 1 && a.Subscriptions() == 1 && st[0].Connected
	}, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, metricValue(t, p,
		"nopu_pool_reconnect_attempts_total"), float64(1))
	assert.GreaterOrEqual(t, p.RelayStatuses()[0].Stats.Successes, int64(2))
	ev := note(t, newKeys(t), "after reconnect", 7)
	a.Broadcast(ev)
	assert.Equal(t, ev.ID, receive(t, s).ID)
}

func TestRelayStatusesOrder(t *testing.T) {
	p := New(context.Bg(), WithAutoReconnect(false),
		WithTimeouts(200*time.Millisecond, 0, 0))
	defer p.Close()
	var urls []string
	for i := 1; i <= 3; i++ {
		u := fmt.Sprintf("ws://127.0.0.1:%d", i)
		urls = append(urls, u)
		assert.Error(t, p.AddRelay(context.Bg(), u))
	}
	st := p.RelayStatuses()
	require.Len(t, st, 3)
	for i := range urls {
		assert.Equal(t, urls[i], st[i].URL)
	}
}

func TestIdleSubscriberDoesNotStallRelay(t *testing.T) {
	r := relaytest.New()
	t.Cleanup(r.Close)
	p := New(context.Bg(), WithAutoReconnect(false))
	t.Cleanup(p.Close)
	require.NoError(t, p.AddRelay(context.Bg(), r.URL()))
	// never read
	s, err := p.Subscribe(context.Bg(), &filter.T{}, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.Subscriptions() == 1 },
		3*time.Second, 10*time.Millisecond)
	k := newKeys(t)
	n := subscription.QueueLimit + subscription.EventBuffer + 50
	for i := 0; i < n; i++ {
		r.Broadcast(note(t, k, fmt.Sprint("flood ", i), int64(i+1)))
	}
	require.Eventually(t, func() bool {
		return p.RelayStatuses()[0].Stats.EventsReceived == int64(n)
	}, 10*time.Second, 10*time.Millisecond)

	c, cancel := context.Timeout(context.Bg(), 2*time.Second)
	defer cancel()
	res, err := p.Publish(c, note(t, k, "still answered", int64(n+1)))
	require.NoError(t, err)
	assert.Equal(t, []string{r.URL()}, res.Accepted)

	stored := note(t, newKeys(t), "stored", 1)
	r.Store(stored)
	c2, cancel2 := context.Timeout(context.Bg(), 2*time.Second)
	defer cancel2()
	evs, err := p.Fetch(c2, &filter.T{IDs: []string{stored.ID.String()}})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, stored.ID, evs[0].ID)

	// the first events are still there, in order
	first := receive(t, s)
	assert.Equal(t, "flood 0", first.Content)
	p.Unsubscribe(s.ID)
	assert.Greater(t, metricValue(t, p, "nopu_pool_events_dropped_total"),
		float64(0))
}

func TestSubscribeEndsWithContext(t *testing.T) {
	p, a, b := twoRelays(t)
	c, cancel := context.Cancel(context.Bg())
	s, err := p.Subscribe(c, &filter.T{}, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return a.Subscriptions()+b.Subscriptions() == 2
	}, 3*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-s.Done:
	case <-time.After(3 * time.Second):
		t.Fatal("subscription outlived its context")
	}
	assert.Eventually(t, func() bool {
		return a.Closes() == 1 && b.Closes() == 1
	}, 3*time.Second, 10*time.Millisecond)
	p.Unsubscribe(s.ID)
}

func TestSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := relaytest.New()
	t.Cleanup(r.Close)
	p := New(context.Bg(), WithRegistry(reg), WithAutoReconnect(false))
	t.Cleanup(p.Close)
	assert.Same(t, reg, p.Registry)
	require.NoError(t, p.AddRelay(context.Bg(), r.URL()))
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "nopu_pool_connected_relays" {
			found = true
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found, "pool metrics not in the shared registry")
}

func TestKeepAlivePings(t *testing.T) {
	r := relaytest.New()
	t.Cleanup(r.Close)
	p := New(context.Bg(), WithAutoReconnect(false),
		WithRelayOptions(relay.WithPingInterval(20*time.Millisecond)))
	t.Cleanup(p.Close)
	require.NoError(t, p.AddRelay(context.Bg(), r.URL()))
	assert.Eventually(t, func() bool { return r.Pings() >= 3 },
		3*time.Second, 10*time.Millisecond)
	assert.True(t, p.RelayStatuses()[0].Connected)
}
