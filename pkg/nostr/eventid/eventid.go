package eventid

import (
	"fmt"

	"github.com/Hubmakerlabs/nopu/pkg/hex"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
)

// T is the SHA256 hash in hexadecimal of the canonical form of an event.
type T string

func (ei T) String() string { return string(ei) }

// Bytes decodes the id, returning nil if it is not valid hex.
func (ei T) Bytes() (b []byte) {
	var err error
	if b, err = hex.Dec(string(ei)); err != nil {
		return nil
	}
	return
}

// Validate checks the T string is valid hex and 64 characters long.
func (ei T) Validate() (err error) {
	if len(ei) != 64 {
		return errs.F(errs.InvalidHex,
			"event ID invalid length: got %d expect 64", len(ei))
	}
	if _, err = hex.Dec(string(ei)); err != nil {
		return errs.New(errs.InvalidHex, fmt.Errorf("event ID: %w", err))
	}
	return
}
