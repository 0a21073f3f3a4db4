// Package envelopes identifies and decodes protocol messages.
package envelopes

import (
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/closedenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/closeenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/eoseenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/eventenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/noticeenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/okenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/envelopes/reqenvelope"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/interfaces/enveloper"
	"github.com/tidwall/gjson"
)

// ErrMalformed is returned for a message that is not a JSON array starting
// with a string label. A peer sending one is not speaking the protocol.
var ErrMalformed = errors.New("malformed message")

// ErrUnknownLabel is returned for a well formed message with a label this
// client does not handle. Such messages can be ignored.
var ErrUnknownLabel = errors.New("unknown message label")

// Identify returns the label of a message.
func Identify(message []byte) (label string, err error) {
	if !gjson.ValidBytes(message) {
		return "", fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	r := gjson.ParseBytes(message)
	if !r.IsArray() {
		return "", fmt.Errorf("%w: not an array", ErrMalformed)
	}
	first := r.Get("0")
	if first.Type != gjson.String {
		return "", fmt.Errorf("%w: no label", ErrMalformed)
	}
	return first.Str, nil
}

// Parse decodes a message into its envelope type.
func Parse(message []byte) (env enveloper.I, err error) {
	var label string
	if label, err = Identify(message); err != nil {
		return
	}
	switch label {
	case labels.EVENT:
		env = &eventenvelope.T{}
	case labels.REQ:
		env = &reqenvelope.T{}
	case labels.CLOSE:
		env = &closeenvelope.T{}
	case labels.OK:
		env = &okenvelope.T{}
	case labels.EOSE:
		env = &eoseenvelope.T{}
	case labels.CLOSED:
		env = &closedenvelope.T{}
	case labels.NOTICE:
		env = &noticeenvelope.T{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	if err = env.UnmarshalJSON(message); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return
}
