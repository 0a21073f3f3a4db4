package main

import (
	"fmt"
	"os"

	"github.com/Hubmakerlabs/nopu/pkg/config"
	"github.com/Hubmakerlabs/nopu/pkg/interrupt"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/client"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/slog"
	"github.com/alexflint/go-arg"
)

var log, chk = slog.New(os.Stderr)

var (
	AppName = "nopu"
	Version = "v0.0.1"
)

func main() {
	var args config.T
	p := arg.MustParse(&args)
	if p.Subcommand() == nil {
		p.Fail("a subcommand is required")
	}
	if args.LogLevel != "" && !slog.SetLevelFromString(args.LogLevel) {
		p.Fail(fmt.Sprintf("unknown log level '%s'", args.LogLevel))
	}
	cfg := config.Default()
	cfg.Profile = args.Profile
	var path string
	var err error
	if path, err = cfg.Path(); chk.E(err) {
		os.Exit(1)
	}
	if config.FileExists(path) {
		log.D.F("loading configuration from '%s'", path)
		if err = cfg.Load(path); chk.E(err) {
			os.Exit(1)
		}
	}
	cfg.Overlay(&args)
	slog.SetLevelFromString(cfg.LogLevel)
	log.D.Ln(AppName, Version, "profile", cfg.Profile)
	if err = run(&args, cfg, path); err != nil {
		log.E.Ln(err)
		os.Exit(1)
	}
}

func run(args *config.T, cfg *config.T, path string) (err error) {
	switch {
	case args.InitCfgCmd != nil:
		if err = cfg.Validate(); err != nil {
			return
		}
		if err = cfg.Save(path); err != nil {
			return
		}
		fmt.Println("configuration written to", path)
		return
	case args.KeygenCmd != nil:
		return keygen(args.KeygenCmd)
	case args.PubKeyCmd != nil:
		return pubkey(cfg)
	}
	c, cancel := interrupt.Context(context.Bg())
	defer cancel()
	var cl *client.T
	if cl, err = client.NewFromConfig(c, cfg); err != nil {
		return
	}
	defer cl.Close()
	log.D.Ln(cl)
	switch {
	case args.PublishCmd != nil:
		err = publish(c, cl, args.PublishCmd)
	case args.FetchCmd != nil:
		err = fetch(c, cl, args.FetchCmd)
	case args.WatchCmd != nil:
		err = watch(c, cl, args.WatchCmd)
	case args.StatusCmd != nil:
		status(cl)
	case args.DMCmd != nil:
		err = dm(c, cl, args.DMCmd)
	case args.SetMetaCmd != nil:
		err = setmeta(c, cl, args.SetMetaCmd)
	}
	return
}
