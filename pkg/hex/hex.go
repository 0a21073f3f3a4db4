// Package hex shortens the standard library hex codec names used throughout
// the nostr packages.
package hex

import (
	"encoding/hex"
)

var (
	Enc = hex.EncodeToString
	Dec = hex.DecodeString
)

// Is32Bytes reports whether s is exactly 64 lowercase or uppercase hex digits.
func Is32Bytes(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
