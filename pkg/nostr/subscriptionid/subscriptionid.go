package subscriptionid

import (
	"fmt"

	"github.com/Hubmakerlabs/nopu/pkg/hex"
	"lukechampine.com/frand"
)

// T is the client chosen label that ties REQ, EVENT, EOSE, CLOSE and CLOSED
// messages to one subscription. Relays accept 1 to 64 characters.
type T string

func (si T) String() string { return string(si) }

func (si T) IsValid() bool { return len(si) >= 1 && len(si) <= 64 }

// New checks s is usable as a subscription id.
func New(s string) (si T, err error) {
	si = T(s)
	if !si.IsValid() {
		err = fmt.Errorf("subscription id must be 1-64 characters, got %d",
			len(s))
		si = ""
	}
	return
}

// NewRandom makes a random id with the given label prefix, such as
// "fetch:1f0c9a...". The label is truncated to keep the id within bounds.
func NewRandom(label string) T {
	const randLen = 16
	if len(label) > 64-randLen-1 {
		label = label[:64-randLen-1]
	}
	r := hex.Enc(frand.Bytes(randLen / 2))
	if label == "" {
		return T(r)
	}
	return T(label + ":" + r)
}
