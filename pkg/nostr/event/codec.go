package event

import (
	"fmt"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/kind"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/tag"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/tags"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/timestamp"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

var (
	_ easyjson.Marshaler   = (*T)(nil)
	_ easyjson.Unmarshaler = (*T)(nil)
)

const (
	hasID = 1 << iota
	hasPubKey
	hasCreatedAt
	hasKind
	hasTags
	hasContent
	hasSig
	hasAll = hasID | hasPubKey | hasCreatedAt | hasKind | hasTags |
		hasContent | hasSig
)

var fieldNames = []string{"id", "pubkey", "created_at", "kind", "tags",
	"content", "sig"}

// UnmarshalEasyJSON decodes an event object. All seven fields must be present;
// unknown fields are ignored.
func (ev *T) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	var seen int
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		switch key {
		case "id":
			ev.ID = eventid.T(in.String())
			seen |= hasID
		case "pubkey":
			ev.PubKey = in.String()
			seen |= hasPubKey
		case "created_at":
			ev.CreatedAt = timestamp.T(in.Int64())
			seen |= hasCreatedAt
		case "kind":
			ev.Kind = kind.T(in.Uint16())
			seen |= hasKind
		case "tags":
			ev.Tags = unmarshalTags(in)
			seen |= hasTags
		case "content":
			ev.Content = in.String()
			seen |= hasContent
		case "sig":
			ev.Sig = in.String()
			seen |= hasSig
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
	if seen != hasAll && in.Ok() {
		for i, name := range fieldNames {
			if seen&(1<<i) == 0 {
				in.AddError(fmt.Errorf("event is missing field %q", name))
				return
			}
		}
	}
}

func unmarshalTags(in *jlexer.Lexer) (t tags.T) {
	if in.IsNull() {
		in.Skip()
		return tags.T{}
	}
	in.Delim('[')
	t = tags.T{}
	for !in.IsDelim(']') {
		var tg tag.T
		if in.IsNull() {
			in.Skip()
		} else {
			in.Delim('[')
			tg = tag.T{}
			for !in.IsDelim(']') {
				tg = append(tg, in.String())
				in.WantComma()
			}
			in.Delim(']')
		}
		t = append(t, tg)
		in.WantComma()
	}
	in.Delim(']')
	return
}

// MarshalEasyJSON writes the event object with the keys in the conventional
// order.
func (ev *T) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"id":`)
	w.String(string(ev.ID))
	w.RawString(`,"pubkey":`)
	w.String(ev.PubKey)
	w.RawString(`,"created_at":`)
	w.Int64(ev.CreatedAt.I64())
	w.RawString(`,"kind":`)
	w.Uint16(ev.Kind.ToUint16())
	w.RawString(`,"tags":`)
	w.RawByte('[')
	for i, tg := range ev.Tags {
		if i > 0 {
			w.RawByte(',')
		}
		w.RawByte('[')
		for j, s := range tg {
			if j > 0 {
				w.RawByte(',')
			}
			w.String(s)
		}
		w.RawByte(']')
	}
	w.RawByte(']')
	w.RawString(`,"content":`)
	w.String(ev.Content)
	w.RawString(`,"sig":`)
	w.String(ev.Sig)
	w.RawByte('}')
}

func (ev *T) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	ev.MarshalEasyJSON(&w)
	return w.BuildBytes()
}

func (ev *T) UnmarshalJSON(b []byte) error {
	l := jlexer.Lexer{Data: b}
	ev.UnmarshalEasyJSON(&l)
	return l.Error()
}
