package relay

import (
	"net/http"
	"time"
)

// Option configures a relay at construction.
type Option func(r *T)

// StatusHandler is told about every status change. err is the cause when the
// change was not requested by the caller, and nil otherwise.
type StatusHandler func(url string, s Status, err error)

// WithStatusHandler registers a callback for status changes. It is called
// synchronously and must not block.
func WithStatusHandler(h StatusHandler) Option {
	return func(r *T) { r.onStatus = h }
}

// WithNoticeHandler receives NOTICE messages from the relay.
func WithNoticeHandler(h func(notice string)) Option {
	return func(r *T) { r.onNotice = h }
}

// WithAssumeValid skips signature checks on incoming events.
func WithAssumeValid() Option {
	return func(r *T) { r.AssumeValid = true }
}

// WithRequestHeader sets headers sent with the websocket handshake.
func WithRequestHeader(h http.Header) Option {
	return func(r *T) { r.RequestHeader = h }
}

// WithCompression toggles offering permessage-deflate. On by default.
func WithCompression(on bool) Option {
	return func(r *T) { r.Compress = on }
}

// WithPingInterval sets the keep-alive period.
func WithPingInterval(d time.Duration) Option {
	return func(r *T) {
		if d > 0 {
			r.pingInterval = d
		}
	}
}

// SubOption configures one subscription.
type SubOption func(o *subOptions)

type subOptions struct {
	id    string
	label string
}

// WithID fixes the subscription id instead of generating one.
func WithID(id string) SubOption { return func(o *subOptions) { o.id = id } }

// WithLabel prefixes the generated subscription id.
func WithLabel(l string) SubOption {
	return func(o *subOptions) { o.label = l }
}
