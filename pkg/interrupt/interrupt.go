// Package interrupt runs shutdown handlers once, on SIGINT/SIGTERM or when
// Request is called, and exposes the result as a context.
package interrupt

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

type handler struct {
	source string
	fn     func()
}

var (
	requested atomic.Bool
	once      sync.Once
	start     sync.Once

	mu       sync.Mutex
	handlers []handler

	// signals is the list of signals that cause the interrupt
	signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	ch      = make(chan os.Signal, 1)

	shutdown = make(chan struct{})

	// HandlersDone is closed after all interrupt handlers ran.
	HandlersDone = make(chan struct{})
)

func listen() {
	select {
	case sig := <-ch:
		log.D.Ln("received interrupt signal", sig)
	case <-shutdown:
		log.D.Ln("received shutdown request")
	}
	requested.Store(true)
	run()
}

// run calls the handlers in LIFO order.
func run() {
	once.Do(func() {
		mu.Lock()
		hh := handlers
		mu.Unlock()
		log.D.Ln("running interrupt callbacks", len(hh))
		for i := len(hh) - 1; i >= 0; i-- {
			log.T.Ln("running callback", i, hh[i].source)
			hh[i].fn()
		}
		close(HandlersDone)
	})
}

// AddHandler adds a handler to call on interrupt. The first call starts
// listening for signals.
func AddHandler(fn func()) {
	_, loc, line, _ := runtime.Caller(1)
	mu.Lock()
	handlers = append(handlers, handler{fmt.Sprintf("%s:%d", loc, line), fn})
	mu.Unlock()
	start.Do(func() {
		signal.Notify(ch, signals...)
		go listen()
	})
}

// Request programmatically requests a shutdown. Repeated calls do nothing.
func Request() {
	if requested.CompareAndSwap(false, true) {
		_, f, l, _ := runtime.Caller(1)
		log.D.Ln("interrupt requested", f, l)
		close(shutdown)
	}
}

// Requested returns true if an interrupt has been requested
func Requested() bool { return requested.Load() }

// Context returns a context that is canceled on interrupt.
func Context(parent context.T) (c context.T, cancel context.F) {
	c, cancel = context.Cancel(parent)
	AddHandler(cancel)
	return
}
