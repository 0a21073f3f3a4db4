package okenvelope

import (
	"fmt"
	"strings"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/interfaces/enveloper"
	"github.com/mailru/easyjson/jwriter"
	"github.com/tidwall/gjson"
)

var _ enveloper.I = (*T)(nil)

// T is the relay's answer to a published event.
type T struct {
	EventID string
	OK      bool
	Reason  string
}

func New(id string, ok bool, reason string) *T {
	return &T{EventID: id, OK: ok, Reason: reason}
}

func (*T) Label() string { return labels.OK }

func (env *T) String() string {
	b, _ := env.MarshalJSON()
	return string(b)
}

// Prefix returns the machine readable part of the reason, such as "blocked"
// or "duplicate", or an empty string if there is none.
func (env *T) Prefix() string {
	if i := strings.Index(env.Reason, ":"); i > 0 {
		return env.Reason[:i]
	}
	return ""
}

func (env *T) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 4 {
		return fmt.Errorf("failed to decode OK envelope: missing fields")
	}
	env.EventID = arr[1].Str
	env.OK = arr[2].Type == gjson.True
	env.Reason = arr[3].Str
	return nil
}

func (env *T) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.RawString(`["OK",`)
	w.String(env.EventID)
	w.RawByte(',')
	w.Bool(env.OK)
	w.RawByte(',')
	w.String(env.Reason)
	w.RawByte(']')
	return w.BuildBytes()
}
