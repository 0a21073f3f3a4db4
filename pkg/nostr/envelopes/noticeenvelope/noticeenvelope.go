package noticeenvelope

import (
	"fmt"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/interfaces/enveloper"
	"github.com/mailru/easyjson/jwriter"
	"github.com/tidwall/gjson"
)

var _ enveloper.I = (*T)(nil)

// T is a human readable message from a relay.
type T struct {
	Message string
}

func New(msg string) *T { return &T{Message: msg} }

func (*T) Label() string { return labels.NOTICE }

func (env *T) String() string {
	b, _ := env.MarshalJSON()
	return string(b)
}

func (env *T) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode NOTICE envelope")
	}
	env.Message = arr[1].Str
	return nil
}

func (env *T) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.RawString(`["NOTICE",`)
	w.String(env.Message)
	w.RawByte(']')
	return w.BuildBytes()
}
