// Package config holds the settings of a nopu client, read from the command
// line, the environment and a JSON file in the profile directory.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/errs"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/keys"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/nopu/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

type KeygenCmd struct {
	QR bool `arg:"--qr" help:"also print the npub as a QR code"`
}

type PubKeyCmd struct{}

type PublishCmd struct {
	Text string   `arg:"positional,required" help:"content of the note"`
	Tags []string `arg:"-t,--tag,separate" help:"tag shorthand as name=value, e.g. t=nostr (can use flag repeatedly)"`
	Kind int      `arg:"-k,--kind" default:"1" help:"event kind to publish"`
}

type FetchCmd struct {
	Kinds   []int    `arg:"-k,--kind,separate" help:"kinds to match (can use flag repeatedly)"`
	Authors []string `arg:"-a,--author,separate" help:"authors to match, hex or npub (can use flag repeatedly)"`
	Hashtag []string `arg:"--hashtag,separate" help:"hashtags to match"`
	Limit   int      `arg:"-l,--limit" default:"20" help:"maximum number of events"`
	Since   int64    `arg:"--since" help:"only events after this unix time"`
}

type WatchCmd struct {
	Kinds []int         `arg:"-k,--kind,separate" help:"kinds to match (can use flag repeatedly)"`
	For   time.Duration `arg:"--for" help:"stop after this long (default: until interrupted)"`
}

type StatusCmd struct{}

type DMCmd struct {
	To   string `arg:"positional,required" help:"receiver public key, hex or npub"`
	Text string `arg:"positional,required" help:"message text"`
}

type SetMetaCmd struct {
	Name        string `arg:"--name"`
	DisplayName string `arg:"--display-name"`
	About       string `arg:"--about"`
	Picture     string `arg:"--picture"`
	Banner      string `arg:"--banner"`
	Website     string `arg:"--website"`
	NIP05       string `arg:"--nip05"`
	LUD16       string `arg:"--lud16"`
}

type InitCfg struct{}

// T is the complete configuration. Subcommands are only set from the
// command line and are never saved.
type T struct {
	InitCfgCmd *InitCfg    `arg:"subcommand:initcfg" json:"-" help:"write the configuration file for the profile"`
	KeygenCmd  *KeygenCmd  `arg:"subcommand:keygen" json:"-" help:"generate a new identity"`
	PubKeyCmd  *PubKeyCmd  `arg:"subcommand:pubkey" json:"-" help:"print the public key of the identity"`
	PublishCmd *PublishCmd `arg:"subcommand:publish" json:"-" help:"publish a note to the relays"`
	FetchCmd   *FetchCmd   `arg:"subcommand:fetch" json:"-" help:"fetch events from the relays"`
	WatchCmd   *WatchCmd   `arg:"subcommand:watch" json:"-" help:"stream new events from the relays"`
	StatusCmd  *StatusCmd  `arg:"subcommand:status" json:"-" help:"connect and show relay status"`
	DMCmd      *DMCmd      `arg:"subcommand:dm" json:"-" help:"send an encrypted direct message"`
	SetMetaCmd *SetMetaCmd `arg:"subcommand:setmeta" json:"-" help:"publish profile metadata"`

	Relays  []string `arg:"-r,--relay,separate,env:NOPU_RELAYS" json:"relays" help:"relay urls (can use flag repeatedly)"`
	SecKey  string   `arg:"-s,--seckey,env:NOPU_SECKEY" json:"seckey" help:"secret key of the identity, hex or nsec"`
	Profile string   `arg:"-p,--profile,env:NOPU_PROFILE" default:"nopu" json:"-" help:"profile name to use for storage"`

	ConnectTimeout time.Duration `arg:"--connect-timeout" json:"connect_timeout" help:"relay connection timeout"`
	PublishTimeout time.Duration `arg:"--publish-timeout" json:"publish_timeout" help:"time to wait for relays to accept an event"`
	FetchTimeout   time.Duration `arg:"--fetch-timeout" json:"fetch_timeout" help:"time to wait for relays to answer a query"`
	NoReconnect    bool          `arg:"--noreconnect" json:"no_reconnect" help:"do not reconnect relays that dropped"`
	ReconnectMin   time.Duration `arg:"--reconnect-min" json:"reconnect_min" help:"first reconnection delay"`
	ReconnectMax   time.Duration `arg:"--reconnect-max" json:"reconnect_max" help:"longest reconnection delay"`
	PingInterval   time.Duration `arg:"--ping-interval" json:"ping_interval" help:"keep-alive ping period"`
	NoCompression  bool          `arg:"--nocompression" json:"no_compression" help:"do not offer permessage-deflate to relays"`
	LogLevel       string        `arg:"--loglevel,env:NOPU_LOGLEVEL" json:"log_level" help:"set log level [off,fatal,error,warn,info,debug,trace]"`
}

// Default returns the configuration used when nothing else is given.
func Default() *T {
	return &T{
		Profile:        "nopu",
		ConnectTimeout: 7 * time.Second,
		PublishTimeout: 4 * time.Second,
		FetchTimeout:   10 * time.Second,
		ReconnectMin:   5 * time.Second,
		ReconnectMax:   5 * time.Minute,
		PingInterval:   29 * time.Second,
		LogLevel:       "info",
	}
}

func (c *T) Save(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot save nil config")
		log.E.Ln(err)
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(c, "", "    "); chk.E(err) {
		return
	}
	if err = EnsureDir(filename); chk.E(err) {
		return
	}
	if err = os.WriteFile(filename, b, 0600); chk.E(err) {
		return
	}
	return
}

func (c *T) Load(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot load into nil config")
		chk.E(err)
		return
	}
	var b []byte
	if b, err = os.ReadFile(filename); chk.D(err) {
		return
	}
	if err = json.Unmarshal(b, c); chk.E(err) {
		return
	}
	return
}

// Overlay copies the fields that are set in o over c. Relays given in o are
// added to the ones already in c.
func (c *T) Overlay(o *T) {
	for _, r := range o.Relays {
		if !c.HasRelay(r) {
			c.Relays = append(c.Relays, r)
		}
	}
	if o.SecKey != "" {
		c.SecKey = o.SecKey
	}
	if o.Profile != "" {
		c.Profile = o.Profile
	}
	if o.ConnectTimeout != 0 {
		c.ConnectTimeout = o.ConnectTimeout
	}
	if o.PublishTimeout != 0 {
		c.PublishTimeout = o.PublishTimeout
	}
	if o.FetchTimeout != 0 {
		c.FetchTimeout = o.FetchTimeout
	}
	if o.NoReconnect {
		c.NoReconnect = true
	}
	if o.ReconnectMin != 0 {
		c.ReconnectMin = o.ReconnectMin
	}
	if o.ReconnectMax != 0 {
		c.ReconnectMax = o.ReconnectMax
	}
	if o.PingInterval != 0 {
		c.PingInterval = o.PingInterval
	}
	if o.NoCompression {
		c.NoCompression = true
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
}

// HasRelay reports whether url is in the relay list after normalization.
func (c *T) HasRelay(url string) bool {
	nm := normalize.URL(url)
	for _, r := range c.Relays {
		if normalize.URL(r) == nm {
			return true
		}
	}
	return false
}

// Validate checks the secret key and relay urls.
func (c *T) Validate() (err error) {
	if c.SecKey != "" {
		if _, err = keys.FromString(c.SecKey); err != nil {
			return
		}
	}
	for _, r := range c.Relays {
		if _, err = normalize.Relay(r); err != nil {
			return
		}
	}
	if c.ReconnectMax != 0 && c.ReconnectMax < c.ReconnectMin {
		return errs.F(errs.Unknown, "reconnect-max %v is below reconnect-min %v",
			c.ReconnectMax, c.ReconnectMin)
	}
	return
}

// Dir is the profile directory under the user's home.
func (c *T) Dir() (dir string, err error) {
	var home string
	if home, err = os.UserHomeDir(); chk.E(err) {
		return
	}
	return filepath.Join(home, "."+c.Profile), nil
}

// Path is the configuration file of the profile.
func (c *T) Path() (p string, err error) {
	var dir string
	if dir, err = c.Dir(); err != nil {
		return
	}
	return filepath.Join(dir, "config.json"), nil
}

func FileExists(filePath string) bool {
	_, e := os.Stat(filePath)
	return e == nil
}

// EnsureDir creates the directory a file is to be written in.
func EnsureDir(fileName string) (err error) {
	dirName := filepath.Dir(fileName)
	if _, err = os.Stat(dirName); err == nil {
		return
	}
	return os.MkdirAll(dirName, os.ModePerm)
}
