package filter

import (
	"github.com/Hubmakerlabs/nopu/pkg/nostr/kind"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/timestamp"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	_ easyjson.Marshaler   = (*T)(nil)
	_ easyjson.Unmarshaler = (*T)(nil)
)

func (f *T) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "ids":
			f.IDs = readStrings(in)
		case "kinds":
			in.Delim('[')
			f.Kinds = []kind.T{}
			for !in.IsDelim(']') {
				f.Kinds = append(f.Kinds, kind.T(in.Uint16()))
				in.WantComma()
			}
			in.Delim(']')
		case "authors":
			f.Authors = readStrings(in)
		case "since":
			f.Since = timestamp.T(in.Int64()).Ptr()
		case "until":
			f.Until = timestamp.T(in.Int64()).Ptr()
		case "limit":
			f.SetLimit(in.Int())
		case "search":
			f.Search = in.String()
		default:
			if len(key) == 2 && key[0] == '#' {
				if f.Tags == nil {
					f.Tags = make(TagMap)
				}
				f.Tags[key[1:]] = readStrings(in)
			} else {
				in.SkipRecursive()
			}
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func readStrings(in *jlexer.Lexer) (s []string) {
	in.Delim('[')
	s = []string{}
	for !in.IsDelim(']') {
		s = append(s, in.String())
		in.WantComma()
	}
	in.Delim(']')
	return
}

func writeStrings(w *jwriter.Writer, s []string) {
	w.RawByte('[')
	for i, v := range s {
		if i > 0 {
			w.RawByte(',')
		}
		w.String(v)
	}
	w.RawByte(']')
}

// MarshalEasyJSON writes the present fields. Tag sets are written as "#x"
// keys in sorted order so the output is deterministic.
func (f *T) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	first := true
	key := func(k string) {
		if !first {
			w.RawByte(',')
		}
		first = false
		w.String(k)
		w.RawByte(':')
	}
	if f.IDs != nil {
		key("ids")
		writeStrings(w, f.IDs)
	}
	if f.Kinds != nil {
		key("kinds")
		w.RawByte('[')
		for i, k := range f.Kinds {
			if i > 0 {
				w.RawByte(',')
			}
			w.Uint16(k.ToUint16())
		}
		w.RawByte(']')
	}
	if f.Authors != nil {
		key("authors")
		writeStrings(w, f.Authors)
	}
	letters := maps.Keys(f.Tags)
	slices.Sort(letters)
	for _, letter := range letters {
		key("#" + letter)
		writeStrings(w, f.Tags[letter])
	}
	if f.Since != nil {
		key("since")
		w.Int64(f.Since.I64())
	}
	if f.Until != nil {
		key("until")
		w.Int64(f.Until.I64())
	}
	if f.Limit != nil {
		key("limit")
		w.Int(*f.Limit)
	}
	if f.Search != "" {
		key("search")
		w.String(f.Search)
	}
	w.RawByte('}')
}

func (f *T) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	f.MarshalEasyJSON(&w)
	return w.BuildBytes()
}

func (f *T) UnmarshalJSON(b []byte) error {
	l := jlexer.Lexer{Data: b}
	f.UnmarshalEasyJSON(&l)
	return l.Error()
}
