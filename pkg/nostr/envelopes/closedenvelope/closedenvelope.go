package closedenvelope

import (
	"fmt"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/interfaces/enveloper"
	"github.com/mailru/easyjson/jwriter"
	"github.com/tidwall/gjson"
)

var _ enveloper.I = (*T)(nil)

// T is sent by a relay that ended a subscription on its own.
type T struct {
	SubscriptionID string
	Reason         string
}

func New(id, reason string) *T { return &T{SubscriptionID: id, Reason: reason} }

func (*T) Label() string { return labels.CLOSED }

func (env *T) String() string {
	b, _ := env.MarshalJSON()
	return string(b)
}

func (env *T) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	switch len(arr) {
	case 3:
		env.Reason = arr[2].Str
		fallthrough
	case 2:
		env.SubscriptionID = arr[1].Str
		return nil
	}
	return fmt.Errorf("failed to decode CLOSED envelope")
}

func (env *T) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.RawString(`["CLOSED",`)
	w.String(env.SubscriptionID)
	w.RawByte(',')
	w.String(env.Reason)
	w.RawByte(']')
	return w.BuildBytes()
}
