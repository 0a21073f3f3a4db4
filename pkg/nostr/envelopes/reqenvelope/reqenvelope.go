package reqenvelope

import (
	"fmt"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filter"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filters"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/interfaces/enveloper"
	"github.com/mailru/easyjson/jwriter"
	"github.com/tidwall/gjson"
)

var _ enveloper.I = (*T)(nil)

// T is a REQ message opening a subscription.
type T struct {
	SubscriptionID string
	Filters        filters.T
}

func New(id string, ff filters.T) *T { return &T{SubscriptionID: id, Filters: ff} }

func (*T) Label() string { return labels.REQ }

func (env *T) String() string {
	b, _ := env.MarshalJSON()
	return string(b)
}

func (env *T) UnmarshalJSON(data []byte) (err error) {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode REQ envelope: missing filters")
	}
	env.SubscriptionID = arr[1].Str
	env.Filters = make(filters.T, 0, len(arr)-2)
	for i, raw := range arr[2:] {
		f := &filter.T{}
		if err = f.UnmarshalJSON([]byte(raw.Raw)); err != nil {
			return fmt.Errorf("%w -- on filter %d", err, i)
		}
		env.Filters = append(env.Filters, f)
	}
	return
}

func (env *T) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.RawString(`["REQ",`)
	w.String(env.SubscriptionID)
	for _, f := range env.Filters {
		w.RawByte(',')
		f.MarshalEasyJSON(&w)
	}
	w.RawByte(']')
	return w.BuildBytes()
}
