// Package draft builds unsigned events and signs them with an identity.
package draft

import (
	"fmt"
	"os"
	"strings"

	"github.com/Hubmakerlabs/nopu/pkg/hex"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/keys"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/kind"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/metadata"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/nip04"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/tag"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/tags"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/nopu/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// T is an event that has not been signed yet. Warnings lists the tag
// shorthands that were dropped while building it.
type T struct {
	CreatedAt timestamp.T
	Kind      kind.T
	Tags      tags.T
	Content   string
	Warnings  []string
}

// New makes a draft of any kind. The tags are copied as given.
func New(k kind.T, content string, t [][]string) *T {
	d := &T{CreatedAt: timestamp.Now(), Kind: k, Content: content}
	for _, tg := range t {
		d.Tags = append(d.Tags, tag.T(tg).Clone())
	}
	return d
}

// TextNote makes a kind 1 note. Each entry of t is a shorthand:
//
//	["t", "<hashtag>"]  hashtag, stored lower case
//	["e", "<event id>"] reference to an event, 64 hex characters
//	["p", "<pubkey>"]   reference to a user, a valid public key
//
// Anything else, including references that do not parse, is skipped and
// noted in Warnings.
func TextNote(content string, t [][]string) (d *T) {
	d = &T{CreatedAt: timestamp.Now(), Kind: kind.TextNote, Content: content}
	for i, tg := range t {
		if len(tg) < 2 {
			d.warn("tag %d %v: needs a name and a value", i, tg)
			continue
		}
		name, value := tg[0], strings.TrimSpace(tg[1])
		switch name {
		case "t":
			if value == "" {
				d.warn("tag %d: empty hashtag", i)
				continue
			}
			d.Tags = append(d.Tags, tag.New("t", strings.ToLower(value)))
		case "e":
			value = strings.ToLower(value)
			if !hex.Is32Bytes(value) {
				d.warn("tag %d: event id %q is not 64 hex characters", i, value)
				continue
			}
			d.Tags = append(d.Tags, tag.New("e", value))
		case "p":
			value = strings.ToLower(value)
			if !keys.ValidPublicKey(value) {
				d.warn("tag %d: %q is not a valid public key", i, value)
				continue
			}
			d.Tags = append(d.Tags, tag.New("p", value))
		default:
			d.warn("tag %d: unsupported shorthand %q", i, name)
		}
	}
	return
}

func (d *T) warn(format string, a ...any) {
	w := fmt.Sprintf(format, a...)
	log.D.Ln("skipping", w)
	d.Warnings = append(d.Warnings, w)
}

// Metadata makes a kind 0 profile event. A malformed url in the profile fails
// with InvalidURL and no draft is produced.
func Metadata(m *metadata.T) (d *T, err error) {
	var content string
	if content, err = m.Content(); err != nil {
		return
	}
	return &T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.ProfileMetadata,
		Content:   content,
	}, nil
}

// DirectMessage makes a kind 4 message whose content is encrypted so only
// sender and receiver can read it.
func DirectMessage(sender *keys.T, receiver, plaintext string) (d *T,
	err error) {

	receiver = strings.ToLower(strings.TrimSpace(receiver))
	if _, err = keys.ParsePublicKey(receiver); err != nil {
		return
	}
	var content string
	if content, err = nip04.Encrypt(sender, receiver, plaintext); err != nil {
		return
	}
	return &T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.EncryptedDirectMessage,
		Tags:      tags.T{tag.New("p", receiver)},
		Content:   content,
	}, nil
}

// Sign computes the id and signature and returns the finished event. The
// draft is not modified.
func (d *T) Sign(id *keys.T) (ev *event.T, err error) {
	ev = &event.T{
		CreatedAt: d.CreatedAt,
		Kind:      d.Kind,
		Tags:      d.Tags.Clone(),
		Content:   d.Content,
	}
	if ev.Tags == nil {
		ev.Tags = tags.T{}
	}
	if err = ev.SignWithSecKey(id.Secret()); err != nil {
		return nil, errs.New(errs.SigningFailed, err)
	}
	return
}
