package relayer

import (
	"github.com/Hubmakerlabs/nopu/pkg/nostr/subscriptionid"
)

// I is what a subscription needs from the relay it lives on.
type I interface {
	URL() string
	IsConnected() bool
	// Write queues a message and reports the outcome on the returned channel.
	Write(msg []byte) <-chan error
	// Delete forgets the subscription if it is still the one registered
	// under id.
	Delete(id subscriptionid.T, sub any)
}
