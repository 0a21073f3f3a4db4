package keys

import (
	"errors"
	"strings"
	"testing"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// BIP-340 test vector 1
	vecSec = "b7e151628aed2a6abf7158809cf4f3c762e7160f38b4da56a784d9045190cfef"
	vecPub = "dff1d77f2a671c5f36183726db2341be58feae1da2deced843240f7b502ba659"
)

func TestFromSecretHexDeterministic(t *testing.T) {
	a, err := FromSecretHex(vecSec)
	require.NoError(t, err)
	b, err := FromSecretHex(vecSec)
	require.NoError(t, err)
	assert.Equal(t, vecPub, a.PublicKeyHex())
	assert.Equal(t, a.PublicKeyHex(), b.PublicKeyHex())
	assert.Equal(t, vecSec, a.SecretKeyHex())
}

func TestGenerate(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		k, err := Generate()
		require.NoError(t, err)
		assert.True(t, IsValid32ByteHex(k.PublicKeyHex()))
		assert.False(t, seen[k.SecretKeyHex()])
		seen[k.SecretKeyHex()] = true
		pk, err := nostr.GetPublicKey(k.SecretKeyHex())
		require.NoError(t, err)
		assert.Equal(t, pk, k.PublicKeyHex())
	}
}

func TestInvalidSecretKeys(t *testing.T) {
	for _, s := range []string{
		"",
		"abc",
		strings.Repeat("g", 64),
		strings.Repeat("0", 64),
		// curve order n
		"fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141",
		strings.Repeat("ff", 32),
		strings.Repeat("01", 33),
	} {
		_, err := FromSecretHex(s)
		assert.Truef(t, errors.Is(err, errs.ErrInvalidSecretKey),
			"%q: got %v", s, err)
	}
}

func TestNip19(t *testing.T) {
	k, err := FromSecretHex(vecSec)
	require.NoError(t, err)
	nsec, err := k.Nsec()
	require.NoError(t, err)
	npub, err := k.Npub()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(nsec, "nsec1"))
	k2, err := FromString(nsec)
	require.NoError(t, err)
	assert.Equal(t, k.PublicKeyHex(), k2.PublicKeyHex())
	pk, err := PublicKeyFromString(npub)
	require.NoError(t, err)
	assert.Equal(t, vecPub, pk)
	_, err = FromNsec(npub)
	assert.True(t, errors.Is(err, errs.ErrInvalidSecretKey))
	_, err = FromNsec("nsec1garbage")
	assert.True(t, errors.Is(err, errs.ErrInvalidSecretKey))
}

func TestParsePublicKey(t *testing.T) {
	_, err := ParsePublicKey(vecPub)
	assert.NoError(t, err)
	assert.True(t, ValidPublicKey(vecPub))
	for _, s := range []string{
		"",
		strings.ToUpper(vecPub),
		vecPub[:62],
		// x coordinate not on the curve
		"eefdea4cdb677750a420fee807eacf21eb9898ae79b9768766e4faa04a2d4a34",
	} {
		_, err = ParsePublicKey(s)
		assert.Truef(t, errors.Is(err, errs.ErrInvalidPublicKey),
			"%q: got %v", s, err)
	}
}
