package filter

import (
	"fmt"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/keys"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/kind"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/timestamp"
	"golang.org/x/exp/slices"
)

// T is a query where one or all elements can be filled in.
//
// A nil field is unconstrained. A non-nil but empty list matches nothing. The
// present fields are combined with AND, the values inside a list with OR.
//
// Tags are keyed by the single tag letter without the leading '#' that is
// used on the wire:
//
//	Tags: {"e": [id1, id2], "p": [pk]}
//
// encodes as
//
//	"#e": [id1, id2], "#p": [pk]
type T struct {
	IDs     []string     `json:"ids,omitempty"`
	Kinds   []kind.T     `json:"kinds,omitempty"`
	Authors []string     `json:"authors,omitempty"`
	Tags    TagMap       `json:"-"`
	Since   *timestamp.T `json:"since,omitempty"`
	Until   *timestamp.T `json:"until,omitempty"`
	Limit   *int         `json:"limit,omitempty"`
	Search  string       `json:"search,omitempty"`
}

type TagMap map[string][]string

func (t TagMap) Clone() (t1 TagMap) {
	if t == nil {
		return
	}
	t1 = make(TagMap, len(t))
	for i := range t {
		t1[i] = slices.Clone(t[i])
	}
	return
}

func (f *T) HasIDs() bool     { return f.IDs != nil }
func (f *T) HasKinds() bool   { return f.Kinds != nil }
func (f *T) HasAuthors() bool { return f.Authors != nil }
func (f *T) HasTags() bool    { return len(f.Tags) > 0 }
func (f *T) HasSince() bool   { return f.Since != nil }
func (f *T) HasUntil() bool   { return f.Until != nil }
func (f *T) HasLimit() bool   { return f.Limit != nil }
func (f *T) HasSearch() bool  { return f.Search != "" }

// GetLimit returns the limit, or 0 when there is none.
func (f *T) GetLimit() int {
	if f.Limit == nil {
		return 0
	}
	return *f.Limit
}

// SetLimit sets the limit and returns f for chaining.
func (f *T) SetLimit(n int) *T {
	f.Limit = &n
	return f
}

// AddTag adds values to the tag set for letter, which must be a single
// ASCII letter.
func (f *T) AddTag(letter string, values ...string) *T {
	if f.Tags == nil {
		f.Tags = make(TagMap)
	}
	f.Tags[letter] = append(f.Tags[letter], values...)
	return f
}

// Matches reports whether ev satisfies every present field. Limit and search
// are applied by relays and are not considered here.
func (f *T) Matches(ev *event.T) bool {
	if ev == nil {
		return false
	}
	if f.IDs != nil && !slices.Contains(f.IDs, ev.ID.String()) {
		return false
	}
	if f.Kinds != nil && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Authors != nil && !slices.Contains(f.Authors, ev.PubKey) {
		return false
	}
	for letter, values := range f.Tags {
		if values != nil && !ev.Tags.ContainsAny(letter, values) {
			return false
		}
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	return true
}

// Validate checks ids and authors are well formed and the tag keys are single
// letters.
func (f *T) Validate() (err error) {
	for _, id := range f.IDs {
		if err = eventid.T(id).Validate(); err != nil {
			return
		}
	}
	for _, pk := range f.Authors {
		if _, err = keys.ParsePublicKey(pk); err != nil {
			return
		}
	}
	for letter := range f.Tags {
		if !isTagLetter(letter) {
			return errs.F(errs.EventQueryFailed,
				"tag filter key %q is not a single letter", letter)
		}
	}
	if f.Limit != nil && *f.Limit < 0 {
		return errs.F(errs.EventQueryFailed, "negative limit %d", *f.Limit)
	}
	if f.Since != nil && f.Until != nil && *f.Since > *f.Until {
		return errs.F(errs.EventQueryFailed, "since %d is after until %d",
			*f.Since, *f.Until)
	}
	return
}

func isTagLetter(s string) bool {
	if len(s) != 1 {
		return false
	}
	c := s[0]
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// Clone returns a deep copy.
func (f *T) Clone() *T {
	c := &T{
		IDs:     slices.Clone(f.IDs),
		Kinds:   slices.Clone(f.Kinds),
		Authors: slices.Clone(f.Authors),
		Tags:    f.Tags.Clone(),
		Search:  f.Search,
	}
	if f.Since != nil {
		c.Since = f.Since.Ptr()
	}
	if f.Until != nil {
		c.Until = f.Until.Ptr()
	}
	if f.Limit != nil {
		c.SetLimit(*f.Limit)
	}
	return c
}

func pointerValuesEqual[V comparable](a *V, b *V) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Equal compares two filters field by field. List order matters.
func Equal(a, b *T) bool {
	switch {
	case !slices.Equal(a.Kinds, b.Kinds),
		!slices.Equal(a.IDs, b.IDs),
		!slices.Equal(a.Authors, b.Authors),
		len(a.Tags) != len(b.Tags),
		!pointerValuesEqual(a.Since, b.Since),
		!pointerValuesEqual(a.Until, b.Until),
		!pointerValuesEqual(a.Limit, b.Limit),
		a.Search != b.Search:
		return false
	}
	for letter, av := range a.Tags {
		if bv, ok := b.Tags[letter]; !ok || !slices.Equal(av, bv) {
			return false
		}
	}
	return true
}

func (f *T) String() string {
	b, err := f.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<filter: %v>", err)
	}
	return string(b)
}
