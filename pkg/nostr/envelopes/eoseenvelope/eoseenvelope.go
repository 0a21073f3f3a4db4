package eoseenvelope

import (
	"fmt"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/interfaces/enveloper"
	"github.com/mailru/easyjson/jwriter"
	"github.com/tidwall/gjson"
)

var _ enveloper.I = (*T)(nil)

// T marks the end of stored events for a subscription.
type T struct {
	SubscriptionID string
}

func New(id string) *T { return &T{SubscriptionID: id} }

func (*T) Label() string { return labels.EOSE }

func (env *T) String() string {
	b, _ := env.MarshalJSON()
	return string(b)
}

func (env *T) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) != 2 {
		return fmt.Errorf("failed to decode EOSE envelope")
	}
	env.SubscriptionID = arr[1].Str
	return nil
}

func (env *T) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.RawString(`["EOSE",`)
	w.String(env.SubscriptionID)
	w.RawByte(']')
	return w.BuildBytes()
}
