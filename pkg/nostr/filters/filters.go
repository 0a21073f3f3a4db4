package filters

import (
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filter"
)

// T is the list of filters carried by one REQ. An event matches the list if it
// matches any of them.
type T []*filter.T

func New(ff ...*filter.T) T { return T(ff) }

func (f T) Match(ev *event.T) bool {
	for _, ff := range f {
		if ff.Matches(ev) {
			return true
		}
	}
	return false
}

// Validate checks every filter in the list.
func (f T) Validate() (err error) {
	for _, ff := range f {
		if err = ff.Validate(); err != nil {
			return
		}
	}
	return
}

func (f T) Clone() (c T) {
	c = make(T, len(f))
	for i := range f {
		c[i] = f[i].Clone()
	}
	return
}

func (f T) String() string {
	s := "["
	for i, ff := range f {
		if i > 0 {
			s += ","
		}
		s += ff.String()
	}
	return s + "]"
}
