// Package connection is a client side websocket carrying text messages, with
// permessage-deflate when the server offers it.
package connection

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/context"
	"github.com/Hubmakerlabs/nopu/pkg/slog"
	"github.com/gobwas/httphead"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsflate"
	"github.com/gobwas/ws/wsutil"
)

var log, chk = slog.New(os.Stderr)

// MaxMessageSize is the write buffer size; larger messages are fragmented.
const MaxMessageSize = 512 * 1024

type C struct {
	Conn              net.Conn
	enableCompression bool
	controlHandler    wsutil.FrameHandlerFunc
	flateReader       *wsflate.Reader
	reader            *wsutil.Reader
	flateWriter       *wsflate.Writer
	writer            *wsutil.Writer
	readState         *wsflate.MessageState
}

// New dials url. The dial is bounded by c; once established the connection
// lives until Close.
func New(c context.T, url string, requestHeader http.Header,
	compress bool) (connection *C, err error) {

	dialer := ws.Dialer{Header: ws.HandshakeHeaderHTTP(requestHeader)}
	if compress {
		dialer.Extensions = []httphead.Option{
			wsflate.DefaultParameters.Option(),
		}
	}
	conn, br, hs, err := dialer.Dial(c, url)
	if chk.D(err) {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	var source io.Reader = conn
	if br != nil {
		// the server may have sent frames right after the handshake
		source = br
	}
	enableCompression := false
	state := ws.StateClientSide
	for _, extension := range hs.Extensions {
		if string(extension.Name) == wsflate.ExtensionName {
			enableCompression = true
			state |= ws.StateExtended
			break
		}
	}
	var readState wsflate.MessageState
	var writeState wsflate.MessageState
	var flateReader *wsflate.Reader
	var flateWriter *wsflate.Writer
	if enableCompression {
		writeState.SetCompressed(true)
		flateReader = wsflate.NewReader(nil,
			func(r io.Reader) wsflate.Decompressor {
				return flate.NewReader(r)
			})
		flateWriter = wsflate.NewWriter(nil,
			func(w io.Writer) wsflate.Compressor {
				fw, e := flate.NewWriter(w, 4)
				chk.E(e)
				return fw
			})
	}
	controlHandler := wsutil.ControlFrameHandler(conn, ws.StateClientSide)
	reader := &wsutil.Reader{
		Source:         source,
		State:          state,
		OnIntermediate: controlHandler,
		CheckUTF8:      false,
		Extensions: []wsutil.RecvExtension{
			&readState,
		},
	}
	writer := wsutil.NewWriterSize(conn, state, ws.OpText, MaxMessageSize)
	if enableCompression {
		writer.SetExtensions(&writeState)
	}
	connection = &C{
		Conn:              conn,
		enableCompression: enableCompression,
		controlHandler:    controlHandler,
		flateReader:       flateReader,
		reader:            reader,
		flateWriter:       flateWriter,
		writer:            writer,
		readState:         &readState,
	}
	log.T.F("connected to %s compression=%v", url, enableCompression)
	return
}

// Compressed reports whether permessage-deflate was negotiated.
func (c *C) Compressed() bool { return c.enableCompression }

// WriteMessage sends one text message. It must not be called concurrently.
func (c *C) WriteMessage(data []byte) (err error) {
	if c.enableCompression {
		c.flateWriter.Reset(c.writer)
		if _, err = io.Copy(c.flateWriter, bytes.NewReader(data)); chk.D(err) {
			return fmt.Errorf("failed to write message: %w", err)
		}
		if err = c.flateWriter.Close(); chk.D(err) {
			return fmt.Errorf("failed to close flate writer: %w", err)
		}
	} else {
		if _, err = io.Copy(c.writer, bytes.NewReader(data)); chk.D(err) {
			return fmt.Errorf("failed to write message: %w", err)
		}
	}
	if err = c.writer.Flush(); chk.D(err) {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

// WritePing sends a ping control frame.
func (c *C) WritePing() error {
	return wsutil.WriteClientMessage(c.Conn, ws.OpPing, nil)
}

// ReadMessage blocks until the next data message and copies it into buf.
// Control frames met on the way are answered. Closing the connection unblocks
// a pending read.
func (c *C) ReadMessage(cx context.T, buf io.Writer) (err error) {
	for {
		select {
		case <-cx.Done():
			return cx.Err()
		default:
		}
		var h ws.Header
		if h, err = c.reader.NextFrame(); err != nil {
			chk.T(c.Conn.Close())
			return fmt.Errorf("failed to advance frame: %w", err)
		}
		if h.OpCode.IsControl() {
			if err = c.controlHandler(h, c.reader); err != nil {
				return fmt.Errorf("failed to handle control frame: %w", err)
			}
		} else if h.OpCode == ws.OpBinary || h.OpCode == ws.OpText {
			break
		}
		if err = c.reader.Discard(); chk.D(err) {
			return fmt.Errorf("failed to discard: %w", err)
		}
	}
	if c.enableCompression && c.readState.IsCompressed() {
		c.flateReader.Reset(c.reader)
		if _, err = io.Copy(buf, c.flateReader); chk.D(err) {
			return fmt.Errorf("failed to read message: %w", err)
		}
	} else {
		if _, err = io.Copy(buf, c.reader); chk.D(err) {
			return fmt.Errorf("failed to read message: %w", err)
		}
	}
	return nil
}

// Close sends a normal closure frame, best effort, and closes the socket.
func (c *C) Close() (err error) {
	_ = wsutil.WriteClientMessage(c.Conn, ws.OpClose,
		ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	return c.Conn.Close()
}
