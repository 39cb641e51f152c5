// Package ws carries cometd messages over WebSocket text frames, one JSON
// document per frame.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"

	"github.com/joejackson1993/cometd"
)

const (
	defaultReadLimit        = 1024 * 1024
	defaultWriteTimeout     = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	closeGracePeriod        = time.Second
)

type options struct {
	readLimit        int64
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
}

// Option configures a WebSocket transport.
type Option func(*options)

// ReadLimitOption bounds the size of a received frame.
func ReadLimitOption(n int64) Option {
	return func(o *options) {
		o.readLimit = n
	}
}

// WriteTimeoutOption bounds a single frame write.
func WriteTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// HandshakeTimeoutOption bounds the opening handshake of Dial.
func HandshakeTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = d
	}
}

func checkOptions(o *options) {
	if o.readLimit <= 0 {
		o.readLimit = defaultReadLimit
	}
	if o.writeTimeout <= 0 {
		o.writeTimeout = defaultWriteTimeout
	}
	if o.handshakeTimeout <= 0 {
		o.handshakeTimeout = defaultHandshakeTimeout
	}
}

// Transport is a cometd.Transport over a WebSocket connection.
type Transport struct {
	conn *websocket.Conn
	opts options

	writeMu sync.Mutex
	closed  atomic.Bool
}

// New wraps an established WebSocket connection.
func New(conn *websocket.Conn, opt ...Option) *Transport {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	conn.SetReadLimit(opts.readLimit)
	return &Transport{conn: conn, opts: opts}
}

// Dial opens a WebSocket connection to url.
func Dial(ctx context.Context, url string, opt ...Option) (*Transport, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	dialer := websocket.Dialer{HandshakeTimeout: opts.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "dial %s", url)
	}
	return New(conn, opt...), nil
}

// Send implements cometd.Transport.
func (t *Transport) Send(ctx context.Context, msg *cometd.Message) error {
	if t.closed.Load() {
		return cometd.ErrConnectionClosed
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return pkgerrors.Wrap(err, "encode message")
	}

	deadline := time.Now().Add(t.opts.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err = t.conn.SetWriteDeadline(deadline); err != nil {
		return t.mapError(err)
	}
	return t.mapError(t.conn.WriteMessage(websocket.TextMessage, body))
}

// Receive implements cometd.Transport. Binary and control frames are skipped.
// It reports io.EOF once the connection is closed by either side.
func (t *Transport) Receive(ctx context.Context) (*cometd.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		kind, body, err := t.conn.ReadMessage()
		if err != nil {
			return nil, t.mapError(err)
		}
		if kind != websocket.TextMessage {
			continue
		}

		var msg cometd.Message
		if err = json.Unmarshal(body, &msg); err != nil {
			return nil, pkgerrors.Wrap(err, "decode message")
		}
		return &msg, nil
	}
}

// Close sends a close frame and closes the connection. Safe to call multiple times.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	t.writeMu.Unlock()

	return t.conn.Close()
}

// RemoteAddr returns the peer address.
func (t *Transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *Transport) mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, websocket.ErrReadLimit):
		return cometd.ErrMessageTooLarge
	case t.closed.Load(), errors.Is(err, net.ErrClosed), errors.Is(err, websocket.ErrCloseSent):
		return io.EOF
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return io.EOF
	default:
		return err
	}
}
