package eventenvelope

import (
	"fmt"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/interfaces/enveloper"
	"github.com/mailru/easyjson/jwriter"
	"github.com/tidwall/gjson"
)

var _ enveloper.I = (*T)(nil)

// T is an EVENT message. SubscriptionID is empty when a client publishes and
// set when a relay delivers an event for a subscription.
type T struct {
	SubscriptionID string
	Event          *event.T
}

func New(ev *event.T) *T { return &T{Event: ev} }

func (*T) Label() string { return labels.EVENT }

func (env *T) String() string {
	b, _ := env.MarshalJSON()
	return string(b)
}

func (env *T) UnmarshalJSON(data []byte) (err error) {
	arr := gjson.ParseBytes(data).Array()
	var raw gjson.Result
	switch len(arr) {
	case 2:
		raw = arr[1]
	case 3:
		if arr[1].Type != gjson.String {
			return fmt.Errorf("event envelope subscription id is not a string")
		}
		env.SubscriptionID = arr[1].Str
		raw = arr[2]
	default:
		return fmt.Errorf("failed to decode EVENT envelope: %d elements",
			len(arr))
	}
	if !raw.IsObject() {
		return fmt.Errorf("EVENT envelope does not carry an object")
	}
	env.Event = &event.T{}
	return env.Event.UnmarshalJSON([]byte(raw.Raw))
}

func (env *T) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.RawString(`["EVENT",`)
	if env.SubscriptionID != "" {
		w.String(env.SubscriptionID)
		w.RawByte(',')
	}
	env.Event.MarshalEasyJSON(&w)
	w.RawByte(']')
	return w.BuildBytes()
}
