// Package keys holds a nostr identity: a secp256k1 secret key and the BIP-340
// x-only public key derived from it.
package keys

import (
	"fmt"
	"strings"

	"github.com/Hubmakerlabs/nopu/pkg/hex"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"lukechampine.com/frand"
)

// T is an identity. It is immutable once constructed.
type T struct {
	sec *btcec.PrivateKey
	pub *btcec.PublicKey
	// cached hex forms
	secHex, pubHex string
}

func fromScalarBytes(b []byte) (k *T, err error) {
	var s btcec.ModNScalar
	if len(b) != 32 {
		return nil, errs.F(errs.InvalidSecretKey,
			"secret key must be 32 bytes, got %d", len(b))
	}
	if overflow := s.SetByteSlice(b); overflow {
		return nil, errs.F(errs.InvalidSecretKey,
			"secret key is not below the curve order")
	}
	if s.IsZero() {
		return nil, errs.F(errs.InvalidSecretKey, "secret key is zero")
	}
	sec, pub := btcec.PrivKeyFromBytes(b)
	k = &T{
		sec:    sec,
		pub:    pub,
		secHex: hex.Enc(b),
		pubHex: hex.Enc(schnorr.SerializePubKey(pub)),
	}
	return
}

// Generate creates a fresh random identity.
func Generate() (k *T, err error) {
	b := make([]byte, 32)
	for i := 0; i < 64; i++ {
		frand.Read(b)
		if k, err = fromScalarBytes(b); err == nil {
			return
		}
	}
	// unreachable in practice: the chance of 64 consecutive out of range
	// draws is below 2^-8000
	return nil, errs.F(errs.InvalidSecretKey, "could not draw a secret key")
}

// FromSecretHex builds an identity from 64 hex digits.
func FromSecretHex(s string) (k *T, err error) {
	s = strings.TrimSpace(s)
	if len(s) != 64 {
		return nil, errs.F(errs.InvalidSecretKey,
			"secret key must be 64 hex characters, got %d", len(s))
	}
	var b []byte
	if b, err = hex.Dec(s); err != nil {
		return nil, errs.New(errs.InvalidSecretKey, err)
	}
	return fromScalarBytes(b)
}

// FromNsec builds an identity from a bech32 nsec string.
func FromNsec(nsec string) (k *T, err error) {
	var prefix string
	var value any
	if prefix, value, err = nip19.Decode(strings.TrimSpace(nsec)); err != nil {
		return nil, errs.New(errs.InvalidSecretKey, err)
	}
	if prefix != "nsec" {
		return nil, errs.F(errs.InvalidSecretKey,
			"expected nsec prefix, got %q", prefix)
	}
	s, ok := value.(string)
	if !ok {
		return nil, errs.F(errs.InvalidSecretKey,
			"unexpected nsec payload %T", value)
	}
	return FromSecretHex(s)
}

// FromString accepts either a hex secret key or an nsec.
func FromString(s string) (*T, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "nsec1") {
		return FromNsec(s)
	}
	return FromSecretHex(s)
}

func (k *T) PublicKeyHex() string { return k.pubHex }
func (k *T) SecretKeyHex() string { return k.secHex }

// Secret returns the key for signing and key agreement.
func (k *T) Secret() *btcec.PrivateKey { return k.sec }

// Public returns the curve point of the public key.
func (k *T) Public() *btcec.PublicKey { return k.pub }

// Npub returns the bech32 public key.
func (k *T) Npub() (string, error) { return nip19.EncodePublicKey(k.pubHex) }

// Nsec returns the bech32 secret key.
func (k *T) Nsec() (string, error) { return nip19.EncodePrivateKey(k.secHex) }

func (k *T) String() string { return k.pubHex }

// ParsePublicKey decodes a hex x-only public key and checks that it is a point
// on the curve.
func ParsePublicKey(s string) (pub *btcec.PublicKey, err error) {
	if !IsValid32ByteHex(s) {
		return nil, errs.F(errs.InvalidPublicKey,
			"public key must be 64 lowercase hex characters: %q", s)
	}
	b, _ := hex.Dec(s)
	if pub, err = schnorr.ParsePubKey(b); err != nil {
		return nil, errs.New(errs.InvalidPublicKey, err)
	}
	return
}

// PublicKeyFromString accepts a hex public key or an npub and returns the hex
// form.
func PublicKeyFromString(s string) (pk string, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "npub1") {
		var prefix string
		var value any
		if prefix, value, err = nip19.Decode(s); err != nil {
			return "", errs.New(errs.InvalidPublicKey, err)
		}
		var ok bool
		if pk, ok = value.(string); !ok || prefix != "npub" {
			return "", errs.New(errs.InvalidPublicKey,
				fmt.Errorf("not an npub: %q", s))
		}
	} else {
		pk = s
	}
	if _, err = ParsePublicKey(pk); err != nil {
		return "", err
	}
	return
}

// ValidPublicKey reports whether s is a usable hex public key.
func ValidPublicKey(s string) bool {
	_, err := ParsePublicKey(s)
	return err == nil
}

// IsValid32ByteHex checks s is 64 lowercase hex digits.
func IsValid32ByteHex(s string) bool {
	if strings.ToLower(s) != s {
		return false
	}
	return hex.Is32Bytes(s)
}
