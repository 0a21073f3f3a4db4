package event_test

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/keys"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/kind"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/tag"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/tags"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/timestamp"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const TestSecHex = "1797f6f1d10593548b566ba32e81577aa4bc990eb0f16556bf884f1af4b17c25"

var TestEventContent = `This event contains { braces } and [ brackets ] that must be properly 
handled, as well as a line break, a dangling space and a 
	tab. "quotes" \ <html> & control` + "\x01\x1f\b\f\r"

func signed(t *testing.T) (*event.T, *keys.T) {
	k, err := keys.FromSecretHex(TestSecHex)
	require.NoError(t, err)
	ev := &event.T{
		CreatedAt: timestamp.T(1700000000),
		Kind:      kind.TextNote,
		Tags: tags.T{
			tag.New("t", "nostr"),
			tag.New("p", k.PublicKeyHex(), "wss://relay.example.com"),
		},
		Content: TestEventContent,
	}
	require.NoError(t, ev.SignWithSecKey(k.Secret()))
	return ev, k
}

func TestSignAndVerify(t *testing.T) {
	ev, k := signed(t)
	assert.Equal(t, k.PublicKeyHex(), ev.PubKey)
	assert.Equal(t, ev.GetID(), ev.ID)
	assert.NoError(t, ev.Validate())
	valid, err := ev.CheckSignature()
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestMutationInvalidates(t *testing.T) {
	mutations := map[string]func(ev *event.T){
		"content":    func(ev *event.T) { ev.Content += "!" },
		"kind":       func(ev *event.T) { ev.Kind = kind.Reaction },
		"created_at": func(ev *event.T) { ev.CreatedAt++ },
		"tags":       func(ev *event.T) { ev.Tags = append(ev.Tags, tag.New("t", "x")) },
		"tag value":  func(ev *event.T) { ev.Tags[0][1] = "other" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			ev, _ := signed(t)
			mutate(ev)
			valid, err := ev.CheckSignature()
			assert.NoError(t, err)
			assert.False(t, valid)
			assert.Error(t, ev.Validate())
		})
	}
	ev, _ := signed(t)
	ev.Sig = ev.Sig[:10]
	_, err := ev.CheckSignature()
	assert.Error(t, err)
	ev, _ = signed(t)
	ev.PubKey = strings.Repeat("z", 64)
	_, err = ev.CheckSignature()
	assert.Error(t, err)
}

func TestCanonicalMatchesGoNostr(t *testing.T) {
	ev, _ := signed(t)
	b, err := ev.MarshalJSON()
	require.NoError(t, err)
	var other nostr.Event
	require.NoError(t, json.Unmarshal(b, &other))
	assert.Equal(t, string(ev.ID), other.GetID())
	assert.Equal(t, string(other.Serialize()), string(ev.ToCanonical()))
	ok, err := other.CheckSignature()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	ev, _ := signed(t)
	b, err := ev.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), "<html> &")
	var back event.T
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, ev, &back)
	assert.NoError(t, back.Validate())
}

func TestUnmarshalRequiresAllFields(t *testing.T) {
	var ev event.T
	err := ev.UnmarshalJSON([]byte(`{"id":"aa","pubkey":"bb","created_at":1,` +
		`"kind":1,"tags":[],"content":"x"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sig")
	err = ev.UnmarshalJSON([]byte(`{"id":"aa","pubkey":"bb","created_at":1,` +
		`"kind":1,"tags":[["t","x"]],"content":"x","sig":"cc","extra":{"a":[1]}}`))
	require.NoError(t, err)
	assert.Equal(t, tags.T{tag.New("t", "x")}, ev.Tags)
	assert.Error(t, ev.UnmarshalJSON([]byte(`{"id":1}`)))
	assert.Error(t, ev.UnmarshalJSON([]byte(`[1,2]`)))
}

func TestDescending(t *testing.T) {
	evs := []*event.T{
		{ID: "b", CreatedAt: 10},
		{ID: "c", CreatedAt: 30},
		{ID: "a", CreatedAt: 10},
		{ID: "d", CreatedAt: 20},
	}
	sort.Sort(event.Descending(evs))
	var order []string
	for _, ev := range evs {
		order = append(order, string(ev.ID))
	}
	assert.Equal(t, []string{"c", "d", "a", "b"}, order)
	assert.Equal(t, -1, event.CompareDescending(evs[0], evs[1]))
	assert.Equal(t, 0, event.CompareDescending(evs[2], evs[2]))
}

func TestClone(t *testing.T) {
	ev, _ := signed(t)
	c := ev.Clone()
	c.Tags[0][1] = "changed"
	assert.Equal(t, "nostr", ev.Tags[0][1])
	assert.NoError(t, ev.Validate())
}
