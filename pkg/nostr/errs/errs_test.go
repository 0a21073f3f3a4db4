package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Relay("wss://relay.example.com", cause)
	assert.True(t, errors.Is(err, ErrRelayConnectionFailed))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, RelayConnectionFailed, KindOf(err))
	assert.Contains(t, err.Error(), "wss://relay.example.com")
	wrapped := fmt.Errorf("adding relay: %w", err)
	assert.True(t, errors.Is(wrapped, ErrRelayConnectionFailed))
	assert.Equal(t, RelayConnectionFailed, KindOf(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("x")))
	assert.Equal(t, Unknown, KindOf(nil))
}

func TestNestedKindsResolveOutermost(t *testing.T) {
	inner := New(InvalidURL, errors.New("no host"))
	outer := Relay("ftp://x", inner)
	assert.Equal(t, RelayConnectionFailed, KindOf(outer))
	assert.True(t, errors.Is(outer, ErrInvalidURL))
	assert.Equal(t, "timeout: waiting", F(Timeout, "waiting").Error())
}
