package normalize

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
)

func ExampleURL() {
	fmt.Println(URL(""))
	fmt.Println(URL("wss://x.com/y"))
	fmt.Println(URL("wss://x.com/y/"))
	fmt.Println(URL("http://x.com/y"))
	fmt.Println(URL(URL("http://x.com/y")))
	fmt.Println(URL("wss://x.com"))
	fmt.Println(URL("wss://x.com/"))
	fmt.Println(URL(URL(URL("wss://x.com/"))))
	fmt.Println(URL("x.com"))
	fmt.Println(URL("x.com/"))
	fmt.Println(URL("x.com////"))
	fmt.Println(URL("x.com/?x=23"))
	fmt.Println(URL("  HTTPS://Relay.Example.COM/  "))

	// Output:
	//
	// wss://x.com/y
	// wss://x.com/y
	// ws://x.com/y
	// ws://x.com/y
	// wss://x.com
	// wss://x.com
	// wss://x.com
	// wss://x.com
	// wss://x.com
	// wss://x.com
	// wss://x.com?x=23
	// wss://relay.example.com
}

func TestRelay(t *testing.T) {
	good := map[string]string{
		"relay.damus.io":          "wss://relay.damus.io",
		"ws://127.0.0.1:7447/":    "ws://127.0.0.1:7447",
		"https://nos.lol":         "wss://nos.lol",
		"wss://relay.example/sub": "wss://relay.example/sub",
	}
	for in, want := range good {
		got, err := Relay(in)
		if err != nil || got != want {
			t.Errorf("Relay(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "ftp://x.com", "wss://", "wss://:80",
		"://", "wss://a b"} {
		if _, err := Relay(bad); !errors.Is(err, errs.ErrInvalidURL) {
			t.Errorf("Relay(%q): expected InvalidURL, got %v", bad, err)
		}
	}
}
