package tags

import (
	"github.com/Hubmakerlabs/nopu/pkg/nostr/tag"
)

// T is a list of tag.T, ordered and not unique.
type T []tag.T

// GetFirst gets the first tag in tags that matches the prefix, see
// [tag.T.StartsWith]
func (t T) GetFirst(tagPrefix ...string) tag.T {
	for _, v := range t {
		if v.StartsWith(tagPrefix) {
			return v
		}
	}
	return nil
}

// GetAll gets all the tags that match the prefix, see [tag.T.StartsWith]
func (t T) GetAll(tagPrefix ...string) T {
	result := make(T, 0, len(t))
	for _, v := range t {
		if v.StartsWith(tagPrefix) {
			result = append(result, v)
		}
	}
	return result
}

// ContainsAny reports whether any tag with the given key has one of the
// values.
func (t T) ContainsAny(key string, values []string) bool {
	for _, v := range t {
		if len(v) < 2 || v.Key() != key {
			continue
		}
		for _, candidate := range values {
			if v.Value() == candidate {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy.
func (t T) Clone() T {
	if t == nil {
		return nil
	}
	c := make(T, len(t))
	for i := range t {
		c[i] = t[i].Clone()
	}
	return c
}

// MarshalTo appends the tags as a JSON array of arrays. A nil list is written
// as an empty array.
func (t T) MarshalTo(dst []byte) []byte {
	dst = append(dst, '[')
	for i, v := range t {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = v.MarshalTo(dst)
	}
	return append(dst, ']')
}

func (t T) String() string { return string(t.MarshalTo(nil)) }
