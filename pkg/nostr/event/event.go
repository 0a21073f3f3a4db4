package event

import (
	"fmt"
	"os"

	"github.com/Hubmakerlabs/nopu/pkg/hex"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/kind"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/tags"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/text"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/nopu/pkg/slog"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/minio/sha256-simd"
)

var log, chk = slog.New(os.Stderr)

func Hash(in []byte) (out []byte) {
	h := sha256.Sum256(in)
	return h[:]
}

// T is the primary datatype of nostr. This is the form of the structure
// that defines its JSON string based format.
type T struct {

	// ID is the SHA256 hash of the canonical encoding of the event
	ID eventid.T `json:"id"`

	// PubKey is the public key of the event creator in *hexadecimal* format
	PubKey string `json:"pubkey"`

	// CreatedAt is the UNIX timestamp of the event according to the event
	// creator (never trust a timestamp!)
	CreatedAt timestamp.T `json:"created_at"`

	// Kind is the nostr protocol code for the type of event. See kind.T
	Kind kind.T `json:"kind"`

	// Tags are a list of tags, which are a list of strings usually structured
	// as a 3 layer scheme indicating specific features of an event.
	Tags tags.T `json:"tags"`

	// Content is an arbitrary string that can contain anything, but usually
	// in a format set by the Kind and the Tags.
	Content string `json:"content"`

	// Sig is the signature on the ID hash that validates as coming from the
	// Pubkey.
	Sig string `json:"sig"`
}

// Descending sorts a slice of events in reverse chronological order (newest
// first). Events with the same timestamp are ordered by id so the result is
// stable across runs.
type Descending []*T

func (e Descending) Len() int { return len(e) }
func (e Descending) Less(i, j int) bool {
	if e[i].CreatedAt != e[j].CreatedAt {
		return e[i].CreatedAt > e[j].CreatedAt
	}
	return e[i].ID < e[j].ID
}
func (e Descending) Swap(i, j int) { e[i], e[j] = e[j], e[i] }

// CompareDescending is the comparison behind Descending for use with
// slices.SortFunc.
func CompareDescending(a, b *T) int {
	switch {
	case a.CreatedAt > b.CreatedAt:
		return -1
	case a.CreatedAt < b.CreatedAt:
		return 1
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// ToCanonical returns the form hashed to make the event ID:
//
//	[0,<pubkey>,<created_at>,<kind>,<tags>,<content>]
func (ev *T) ToCanonical() (b []byte) {
	b = make([]byte, 0, 128+len(ev.Content))
	b = append(b, "[0,"...)
	b = text.AppendQuote(b, ev.PubKey)
	b = append(b, ',')
	b = fmt.Append(b, ev.CreatedAt.I64())
	b = append(b, ',')
	b = fmt.Append(b, ev.Kind.ToUint16())
	b = append(b, ',')
	b = ev.Tags.MarshalTo(b)
	b = append(b, ',')
	b = text.AppendQuote(b, ev.Content)
	return append(b, ']')
}

// GetIDBytes returns the raw SHA256 hash of the canonical form of an T.
func (ev *T) GetIDBytes() []byte { return Hash(ev.ToCanonical()) }

// GetID serializes and returns the event ID as a hexadecimal string.
func (ev *T) GetID() eventid.T { return eventid.T(hex.Enc(ev.GetIDBytes())) }

// CheckSignature checks if the signature is valid for the id (which is a hash
// of the serialized event content). returns an error if the signature itself is
// invalid.
func (ev *T) CheckSignature() (valid bool, err error) {
	var pkBytes []byte
	if pkBytes, err = hex.Dec(ev.PubKey); chk.D(err) {
		err = fmt.Errorf("event pubkey '%s' is invalid hex: %w", ev.PubKey, err)
		return
	}
	var pk *btcec.PublicKey
	if pk, err = schnorr.ParsePubKey(pkBytes); chk.D(err) {
		err = fmt.Errorf("event has invalid pubkey '%s': %w", ev.PubKey, err)
		return
	}
	var sigBytes []byte
	if sigBytes, err = hex.Dec(ev.Sig); chk.D(err) {
		err = fmt.Errorf("signature '%s' is invalid hex: %w", ev.Sig, err)
		return
	}
	var sig *schnorr.Signature
	if sig, err = schnorr.ParseSignature(sigBytes); chk.D(err) {
		err = fmt.Errorf("failed to parse signature: %w", err)
		return
	}
	valid = sig.Verify(ev.GetIDBytes(), pk)
	return
}

// Validate checks that the id is the hash of the content and that the
// signature verifies against it.
func (ev *T) Validate() (err error) {
	if id := ev.GetID(); id != ev.ID {
		return fmt.Errorf("event id %s does not match computed id %s", ev.ID, id)
	}
	var valid bool
	if valid, err = ev.CheckSignature(); err != nil {
		return
	}
	if !valid {
		return fmt.Errorf("event %s has an invalid signature", ev.ID)
	}
	return
}

// SignWithSecKey sets PubKey, ID and Sig from the given secret key.
func (ev *T) SignWithSecKey(sk *btcec.PrivateKey,
	so ...schnorr.SignOption) (err error) {

	ev.PubKey = hex.Enc(schnorr.SerializePubKey(sk.PubKey()))
	id := ev.GetIDBytes()
	var sig *schnorr.Signature
	if sig, err = schnorr.Sign(sk, id, so...); chk.D(err) {
		return err
	}
	ev.ID = eventid.T(hex.Enc(id))
	ev.Sig = hex.Enc(sig.Serialize())
	log.T.F("signed event %s", ev.ID)
	return nil
}

// Clone returns a deep copy.
func (ev *T) Clone() *T {
	c := *ev
	c.Tags = ev.Tags.Clone()
	return &c
}

func (ev *T) String() string {
	b, _ := ev.MarshalJSON()
	return string(b)
}
