package normalize

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
)

// URL normalizes the url and replaces http://, https:// schemes by
// ws://, wss://. It returns an empty string if the url cannot be parsed.
func URL(u string) string {
	if u == "" {
		return ""
	}
	u = strings.TrimSpace(u)
	u = strings.ToLower(u)
	// if prefix isn't specified as http/s or websocket, assume secure
	// websocket and add wss prefix (this is the most common).
	if !(strings.HasPrefix(u, "http://") ||
		strings.HasPrefix(u, "https://") ||
		strings.HasPrefix(u, "ws://") ||
		strings.HasPrefix(u, "wss://")) {
		if strings.Contains(u, "://") {
			// some other scheme, leave it for Relay to reject
			return u
		}
		u = "wss://" + u
	}
	var e error
	var p *url.URL
	if p, e = url.Parse(u); e != nil {
		return ""
	}
	switch p.Scheme {
	case "https":
		p.Scheme = "wss"
	case "http":
		p.Scheme = "ws"
	}
	p.Path = strings.TrimRight(p.Path, "/")
	return p.String()
}

// Relay normalizes u and checks it is a usable websocket url. Failures are
// InvalidURL errors.
func Relay(u string) (n string, err error) {
	if n = URL(u); n == "" {
		return "", errs.F(errs.InvalidURL, "cannot parse relay url %q", u)
	}
	var p *url.URL
	if p, err = url.Parse(n); err != nil {
		return "", errs.New(errs.InvalidURL, err)
	}
	if p.Scheme != "ws" && p.Scheme != "wss" {
		return "", errs.New(errs.InvalidURL,
			fmt.Errorf("relay url %q must use ws or wss", u))
	}
	if p.Hostname() == "" {
		return "", errs.F(errs.InvalidURL, "relay url %q has no host", u)
	}
	if strings.ContainsAny(p.Hostname(), " \t") {
		return "", errs.F(errs.InvalidURL, "relay url %q has a bad host", u)
	}
	return
}
