// Package metadata is the profile object carried in the content of kind 0
// events.
package metadata

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/kind"
)

// T holds the profile fields. Every one of them may be empty, in which case it
// is left out of the encoded object.
type T struct {
	Name        string `json:"name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	LUD16       string `json:"lud16,omitempty"`
	Website     string `json:"website,omitempty"`
}

// Validate checks the url fields. Any malformed url fails the whole profile
// with InvalidURL.
func (m *T) Validate() (err error) {
	for _, f := range []struct{ name, value string }{
		{"picture", m.Picture},
		{"banner", m.Banner},
		{"website", m.Website},
	} {
		if f.value == "" {
			continue
		}
		if err = CheckURL(f.value); err != nil {
			return errs.New(errs.InvalidURL, fmt.Errorf("%s: %w", f.name, err))
		}
	}
	return
}

// CheckURL accepts absolute http and https urls that name a host.
func CheckURL(s string) (err error) {
	var u *url.URL
	if u, err = url.Parse(s); err != nil {
		return
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return fmt.Errorf("url %q is not absolute", s)
	default:
		return fmt.Errorf("url %q is not http or https", s)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", s)
	}
	return
}

// Content validates and encodes the profile for an event content field.
func (m *T) Content() (s string, err error) {
	if err = m.Validate(); err != nil {
		return
	}
	var b []byte
	if b, err = json.Marshal(m); err != nil {
		return "", errs.New(errs.EventCreationFailed, err)
	}
	return string(b), nil
}

func (m *T) IsEmpty() bool { return *m == T{} }

// ShortName picks the best available label for the profile.
func (m *T) ShortName() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

// Parse decodes the profile from a kind 0 event.
func Parse(ev *event.T) (m *T, err error) {
	if ev.Kind != kind.ProfileMetadata {
		return nil, fmt.Errorf("event %s is kind %d, not %d", ev.ID, ev.Kind,
			kind.ProfileMetadata)
	}
	m = &T{}
	if err = json.Unmarshal([]byte(ev.Content), m); err != nil {
		return nil, fmt.Errorf("failed to parse metadata (%s) from event %s: %w",
			ev.Content, ev.ID, err)
	}
	return
}
