// Package errs defines the error kinds reported across the client boundary.
//
// Every error leaving a public operation is a *T carrying one Kind, so a host
// can branch on KindOf(err) or errors.Is(err, ErrTimeout) without parsing
// messages. The underlying cause stays reachable through errors.Unwrap.
package errs

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Unknown Kind = iota
	InvalidHex
	InvalidPublicKey
	InvalidSecretKey
	InvalidURL
	RelayConnectionFailed
	EventCreationFailed
	SigningFailed
	EventPublishingFailed
	EventQueryFailed
	SubscriptionFailed
	UnsupportedOperation
	Timeout
)

var kindNames = map[Kind]string{
	Unknown:               "unknown error",
	InvalidHex:            "invalid hex",
	InvalidPublicKey:      "invalid public key",
	InvalidSecretKey:      "invalid secret key",
	InvalidURL:            "invalid url",
	RelayConnectionFailed: "relay connection failed",
	EventCreationFailed:   "event creation failed",
	SigningFailed:         "signing failed",
	EventPublishingFailed: "event publishing failed",
	EventQueryFailed:      "event query failed",
	SubscriptionFailed:    "subscription failed",
	UnsupportedOperation:  "unsupported operation",
	Timeout:               "timeout",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinels for use with errors.Is.
var (
	ErrInvalidHex            = &T{Kind: InvalidHex}
	ErrInvalidPublicKey      = &T{Kind: InvalidPublicKey}
	ErrInvalidSecretKey      = &T{Kind: InvalidSecretKey}
	ErrInvalidURL            = &T{Kind: InvalidURL}
	ErrRelayConnectionFailed = &T{Kind: RelayConnectionFailed}
	ErrEventCreationFailed   = &T{Kind: EventCreationFailed}
	ErrSigningFailed         = &T{Kind: SigningFailed}
	ErrEventPublishingFailed = &T{Kind: EventPublishingFailed}
	ErrEventQueryFailed      = &T{Kind: EventQueryFailed}
	ErrSubscriptionFailed    = &T{Kind: SubscriptionFailed}
	ErrUnsupportedOperation  = &T{Kind: UnsupportedOperation}
	ErrTimeout               = &T{Kind: Timeout}
)

// T is a classified error. URL is only set for relay connection failures.
type T struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *T) Error() string {
	s := e.Kind.String()
	if e.URL != "" {
		s += " (" + e.URL + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *T) Unwrap() error { return e.Err }

// Is matches any *T of the same Kind, so the package sentinels work with
// errors.Is regardless of cause or URL.
func (e *T) Is(target error) bool {
	var t *T
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New classifies err as kind k.
func New(k Kind, err error) *T { return &T{Kind: k, Err: err} }

// F builds a classified error from a format string.
func F(k Kind, format string, a ...any) *T {
	return &T{Kind: k, Err: fmt.Errorf(format, a...)}
}

// Relay reports a failure to reach or talk to the relay at url.
func Relay(url string, err error) *T {
	return &T{Kind: RelayConnectionFailed, URL: url, Err: err}
}

// KindOf returns the Kind of the outermost *T in err's chain, or Unknown.
func KindOf(err error) Kind {
	var t *T
	if errors.As(err, &t) {
		return t.Kind
	}
	return Unknown
}
