// Package nip04 encrypts direct message content between two identities with
// AES-256-CBC keyed by their ECDH shared secret.
package nip04

import (
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/keys"
	"github.com/nbd-wtf/go-nostr/nip04"
)

// SharedSecret derives the conversation key between sender and the holder of
// the hex public key peer. Both sides derive the same value.
func SharedSecret(sender *keys.T, peer string) (key []byte, err error) {
	if _, err = keys.ParsePublicKey(peer); err != nil {
		return
	}
	if key, err = nip04.ComputeSharedSecret(peer, sender.SecretKeyHex()); err != nil {
		return nil, errs.New(errs.InvalidPublicKey, err)
	}
	return
}

// Encrypt returns the content field for a message from sender to peer.
func Encrypt(sender *keys.T, peer, plaintext string) (content string,
	err error) {

	var key []byte
	if key, err = SharedSecret(sender, peer); err != nil {
		return
	}
	if content, err = nip04.Encrypt(plaintext, key); err != nil {
		return "", errs.New(errs.EventCreationFailed, err)
	}
	return
}

// Decrypt opens content sent between receiver and peer, in either direction.
func Decrypt(receiver *keys.T, peer, content string) (plaintext string,
	err error) {

	var key []byte
	if key, err = SharedSecret(receiver, peer); err != nil {
		return
	}
	return nip04.Decrypt(content, key)
}
