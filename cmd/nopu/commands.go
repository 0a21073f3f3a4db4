package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Hubmakerlabs/nopu/pkg/config"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/client"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/event"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/filter"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/keys"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/kind"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/metadata"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/pool"
	"github.com/Hubmakerlabs/nopu/pkg/nostr/timestamp"
	"github.com/gookit/color"
	"github.com/mdp/qrterminal/v3"
)

func keygen(cmd *config.KeygenCmd) (err error) {
	var k *keys.T
	if k, err = keys.Generate(); err != nil {
		return
	}
	var npub, nsec string
	if npub, err = k.Npub(); err != nil {
		return
	}
	if nsec, err = k.Nsec(); err != nil {
		return
	}
	fmt.Println("seckey:", k.SecretKeyHex())
	fmt.Println("pubkey:", k.PublicKeyHex())
	fmt.Println("nsec:  ", nsec)
	fmt.Println("npub:  ", npub)
	if cmd.QR {
		qrterminal.GenerateHalfBlock(npub, qrterminal.L, os.Stdout)
	}
	return
}

func pubkey(cfg *config.T) (err error) {
	if cfg.SecKey == "" {
		return errors.New("no secret key configured, set --seckey or run initcfg")
	}
	var k *keys.T
	if k, err = keys.FromString(cfg.SecKey); err != nil {
		return
	}
	var npub string
	if npub, err = k.Npub(); err != nil {
		return
	}
	fmt.Println(k.PublicKeyHex())
	fmt.Println(npub)
	return
}

// parseTags turns name=value shorthands into tags. Commas in the value split
// it into further tag elements.
func parseTags(in []string) (out [][]string) {
	for _, s := range in {
		name, value, found := strings.Cut(s, "=")
		t := []string{name}
		if found {
			t = append(t, strings.Split(value, ",")...)
		}
		out = append(out, t)
	}
	return
}

func printResult(res *pool.PublishResult) {
	if res == nil {
		return
	}
	for _, u := range res.Accepted {
		fmt.Println(color.Green.Sprint("accepted"), u)
	}
	for u, err := range res.Failed {
		fmt.Println(color.Red.Sprint("failed  "), u, err)
	}
}

func printEvent(ev *event.T) {
	name := ev.PubKey
	if len(name) > 12 {
		name = name[:12]
	}
	fmt.Printf("%s %s %s\n%s\n\n",
		color.Gray.Sprint(ev.CreatedAt.Time().Format(time.DateTime)),
		color.Cyan.Sprint(name),
		color.Gray.Sprintf("kind %d %s", ev.Kind, ev.ID),
		ev.Content)
}

func publish(c context.T, cl *client.T, cmd *config.PublishCmd) (err error) {
	var ev *event.T
	var res *pool.PublishResult
	k := kind.T(cmd.Kind)
	if k == kind.TextNote {
		ev, res, err = cl.PublishTextNote(c, cmd.Text, parseTags(cmd.Tags))
	} else {
		ev, res, err = cl.PublishEvent(c, k, cmd.Text, parseTags(cmd.Tags))
	}
	printResult(res)
	if err != nil {
		return
	}
	fmt.Println(ev.ID)
	return
}

func fetchFilter(cmd *config.FetchCmd) (f *filter.T, err error) {
	f = &filter.T{}
	for _, k := range cmd.Kinds {
		f.Kinds = append(f.Kinds, kind.T(k))
	}
	for _, a := range cmd.Authors {
		var pk string
		if pk, err = keys.PublicKeyFromString(a); err != nil {
			return
		}
		f.Authors = append(f.Authors, pk)
	}
	for _, h := range cmd.Hashtag {
		f.AddTag("t", strings.ToLower(strings.TrimPrefix(h, "#")))
	}
	if cmd.Limit > 0 {
		f.SetLimit(cmd.Limit)
	}
	if cmd.Since > 0 {
		f.Since = timestamp.FromUnix(cmd.Since).Ptr()
	}
	return
}

func fetch(c context.T, cl *client.T, cmd *config.FetchCmd) (err error) {
	var f *filter.T
	if f, err = fetchFilter(cmd); err != nil {
		return
	}
	var evs []*event.T
	if evs, err = cl.FetchEvents(c, f); err != nil {
		return
	}
	// oldest first so the newest ends up at the bottom of the terminal
	for i := len(evs) - 1; i >= 0; i-- {
		printEvent(evs[i])
	}
	log.I.F("%d events", len(evs))
	return
}

func watch(c context.T, cl *client.T, cmd *config.WatchCmd) (err error) {
	f := &filter.T{Since: timestamp.Now().Ptr()}
	for _, k := range cmd.Kinds {
		f.Kinds = append(f.Kinds, kind.T(k))
	}
	var s *pool.Subscription
	if s, err = cl.Subscribe(c, f, cmd.For); err != nil {
		return
	}
	log.I.Ln("watching", s.ID, f)
	for {
		select {
		case ev, ok := <-s.Events:
			if !ok {
				return
			}
			printEvent(ev)
		case <-s.Done:
			return
		case <-c.Done():
			cl.Unsubscribe(s.ID)
			return
		}
	}
}

func status(cl *client.T) {
	for _, st := range cl.RelayStatuses() {
		state := color.Red.Sprint(st.Status)
		if st.Connected {
			state = color.Green.Sprint(st.Status)
		}
		fmt.Printf("%-40s %s attempts=%d sent=%d received=%d events=%d\n",
			st.URL, state, st.Stats.Attempts, st.Stats.BytesSent,
			st.Stats.BytesReceived, st.Stats.EventsReceived)
		if st.LastError != "" {
			fmt.Println("    last error:", st.LastError)
		}
	}
}

func dm(c context.T, cl *client.T, cmd *config.DMCmd) (err error) {
	var ev *event.T
	var res *pool.PublishResult
	ev, res, err = cl.SendPrivateMessage(c, cmd.To, cmd.Text)
	printResult(res)
	if err != nil {
		return
	}
	fmt.Println(ev.ID)
	return
}

func setmeta(c context.T, cl *client.T, cmd *config.SetMetaCmd) (err error) {
	m := &metadata.T{
		Name:        cmd.Name,
		DisplayName: cmd.DisplayName,
		About:       cmd.About,
		Picture:     cmd.Picture,
		Banner:      cmd.Banner,
		Website:     cmd.Website,
		NIP05:       cmd.NIP05,
		LUD16:       cmd.LUD16,
	}
	if m.IsEmpty() {
		return errors.New("no profile fields given")
	}
	var ev *event.T
	var res *pool.PublishResult
	ev, res, err = cl.SetMetadata(c, m)
	printResult(res)
	if err != nil {
		return
	}
	fmt.Println(ev.ID)
	return
}
