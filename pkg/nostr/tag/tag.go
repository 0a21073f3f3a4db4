package tag

import (
	"strings"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/text"
)

// The tag position meanings so they are clear when reading.
const (
	Key = iota
	Value
)

// T is a list of strings with a literal ordering.
//
// Not a set, there can be repeating elements.
type T []string

// New builds a tag from its elements.
func New(elems ...string) T { return T(elems) }

// StartsWith checks a tag has the same initial set of elements.
//
// The last element is treated specially in that it is considered to match if
// the candidate has the same initial substring as its corresponding element.
func (t T) StartsWith(prefix []string) bool {
	prefixLen := len(prefix)
	if prefixLen == 0 {
		return true
	}
	if prefixLen > len(t) {
		return false
	}
	for i := 0; i < prefixLen-1; i++ {
		if prefix[i] != t[i] {
			return false
		}
	}
	return strings.HasPrefix(t[prefixLen-1], prefix[prefixLen-1])
}

// Key returns the first element of the tag.
func (t T) Key() string {
	if len(t) > Key {
		return t[Key]
	}
	return ""
}

// Value returns the second element of the tag.
func (t T) Value() string {
	if len(t) > Value {
		return t[Value]
	}
	return ""
}

// Clone returns a copy that shares no memory with t.
func (t T) Clone() T {
	if t == nil {
		return nil
	}
	c := make(T, len(t))
	copy(c, t)
	return c
}

// MarshalTo appends the tag as a JSON array of strings.
func (t T) MarshalTo(dst []byte) []byte {
	dst = append(dst, '[')
	for i, s := range t {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = text.AppendQuote(dst, s)
	}
	return append(dst, ']')
}

func (t T) String() string { return string(t.MarshalTo(nil)) }
