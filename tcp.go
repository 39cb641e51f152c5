package cometd

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Default TCP transport settings.
const (
	// defaultMaxFrameSize is the default maximum size of a single frame (1MB).
	defaultMaxFrameSize = 1024 * 1024
	// defaultWriteTimeout bounds a single frame write.
	defaultWriteTimeout = 10 * time.Second
)

// limitedReader wraps a reader and returns ErrMessageTooLarge when the limit is exceeded.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func newLimitedReader(r io.Reader, limit int64) *limitedReader {
	return &limitedReader{r: r, remaining: limit}
}

func (l *limitedReader) Read(p []byte) (n int, err error) {
	if l.remaining <= 0 {
		return 0, ErrMessageTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err = l.r.Read(p)
	l.remaining -= int64(n)
	return
}

// reset re-arms the limit for the next frame. The bufio.Reader underneath
// keeps its buffered bytes, so only the counter changes.
func (l *limitedReader) reset(limit int64) {
	l.remaining = limit
}

type tcpOptions struct {
	codec        Codec
	maxFrameSize int
	idleTimeout  time.Duration
	writeTimeout time.Duration
}

// TCPOption configures a TCP transport.
type TCPOption func(*tcpOptions)

// TCPCodecOption sets the frame codec. The default is JSONCodec.
func TCPCodecOption(codec Codec) TCPOption {
	return func(o *tcpOptions) {
		o.codec = codec
	}
}

// TCPMaxFrameSize sets the largest frame accepted from the peer.
// Frames beyond the limit end the connection with ErrMessageTooLarge, which is
// why binary payloads must be chunked below this size.
func TCPMaxFrameSize(size int) TCPOption {
	return func(o *tcpOptions) {
		o.maxFrameSize = size
	}
}

// TCPIdleTimeout sets the read deadline between two frames. Zero disables it.
func TCPIdleTimeout(d time.Duration) TCPOption {
	return func(o *tcpOptions) {
		o.idleTimeout = d
	}
}

// TCPWriteTimeout bounds a single frame write.
func TCPWriteTimeout(d time.Duration) TCPOption {
	return func(o *tcpOptions) {
		o.writeTimeout = d
	}
}

func checkTCPOptions(opts *tcpOptions) {
	if opts.maxFrameSize <= 0 {
		opts.maxFrameSize = defaultMaxFrameSize
	}
	if opts.codec == nil {
		opts.codec = JSONCodec{MaxFrameSize: opts.maxFrameSize}
	}
	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}
}

// TCPTransport is a Transport over a TCP connection using length-prefixed frames.
type TCPTransport struct {
	rawConn       *net.TCPConn
	reader        *bufio.Reader
	limitedReader *limitedReader
	opts          tcpOptions

	readMu  sync.Mutex
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewTCPTransport wraps an established TCP connection.
func NewTCPTransport(conn *net.TCPConn, opt ...TCPOption) *TCPTransport {
	var opts tcpOptions
	for _, o := range opt {
		o(&opts)
	}
	checkTCPOptions(&opts)

	reader := bufio.NewReaderSize(conn, 64*1024)
	_ = conn.SetNoDelay(true)
	return &TCPTransport{
		rawConn:       conn,
		reader:        reader,
		limitedReader: newLimitedReader(reader, int64(opts.maxFrameSize+frameHeaderSize)),
		opts:          opts,
	}
}

// DialTCP connects to a relay at addr.
func DialTCP(ctx context.Context, addr string, opt ...TCPOption) (*TCPTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return NewTCPTransport(conn.(*net.TCPConn), opt...), nil
}

// Send implements Transport.
func (t *TCPTransport) Send(ctx context.Context, msg *Message) error {
	if t.closed.Load() {
		return ErrConnectionClosed
	}

	frame, err := t.opts.codec.Encode(msg)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(t.opts.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.rawConn.SetWriteDeadline(deadline)

	if _, err := t.rawConn.Write(frame); err != nil {
		if t.closed.Load() {
			return ErrConnectionClosed
		}
		return errors.Wrap(err, "write frame")
	}
	return nil
}

// Receive implements Transport. Cancelling ctx does not interrupt a pending
// read; Close the transport for that.
func (t *TCPTransport) Receive(ctx context.Context) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.closed.Load() {
		return nil, io.EOF
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	if t.opts.idleTimeout > 0 {
		_ = t.rawConn.SetReadDeadline(time.Now().Add(t.opts.idleTimeout))
	}
	t.limitedReader.reset(int64(t.opts.maxFrameSize + frameHeaderSize))

	msg, err := t.opts.codec.Decode(t.limitedReader)
	if err != nil {
		if t.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil, io.EOF
		}
		return nil, err
	}
	return msg, nil
}

// Close implements Transport. Safe to call multiple times.
func (t *TCPTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.rawConn.Close()
}

// Addr returns the remote address of the connection.
func (t *TCPTransport) Addr() net.Addr {
	return t.rawConn.RemoteAddr()
}
