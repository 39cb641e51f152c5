// Package cometd provides a publish/subscribe messaging client built around a
// pluggable extension pipeline. Every message sent or received passes through
// an ordered chain of extensions that may rewrite, expand, buffer or drop it.
package cometd

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// defaultBufferSize is the default size of the send queue.
const defaultBufferSize = 16

// Client runs the extension pipeline over a Transport.
// Outgoing hooks run on the caller's goroutine, serialized across callers;
// incoming hooks run on the single read loop started by Run.
type Client struct {
	transport Transport
	registry  *Registry
	logger    Logger

	opts options

	// sendMu serializes the outgoing chain and keeps each logical send's
	// wire messages contiguous in the queue.
	sendMu  sync.Mutex
	sendMsg chan []*Message
	pending sync.WaitGroup

	closed atomic.Bool
	done   chan struct{}
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewClient creates a client over the given transport.
// Returns an error if the transport or the message handler is missing.
func NewClient(t Transport, opt ...Option) (*Client, error) {
	if t == nil {
		return nil, ErrInvalidTransport
	}

	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	c := &Client{
		transport: t,
		logger:    opts.logger,
		opts:      opts,
		sendMsg:   make(chan []*Message, opts.bufferSize),
		done:      make(chan struct{}),
	}
	c.registry = NewRegistry(c, opts.logger, opts.reporter, opts.failureAction)
	return c, nil
}

// checkOptions validates and sets default values for client options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.reporter == nil {
		opts.reporter = LogReporter(opts.logger)
	}

	return nil
}

// RegisterExtension attaches ext under name at the end of the chain.
func (c *Client) RegisterExtension(name string, ext Extension) error {
	return c.registry.Register(name, ext)
}

// UnregisterExtension detaches the extension registered under name.
// It reports false when the name is unknown.
func (c *Client) UnregisterExtension(name string) bool {
	return c.registry.Unregister(name)
}

// GetExtension returns the extension registered under name.
func (c *Client) GetExtension(name string) (Extension, bool) {
	return c.registry.Get(name)
}

// Logger returns the client's logger.
func (c *Client) Logger() Logger {
	return c.logger
}

// Reporter returns the client's failure sink.
func (c *Client) Reporter() Reporter {
	return c.opts.reporter
}

// Run starts the read and write loops and blocks until the context is
// canceled, the transport ends, or an unrecoverable error occurs.
// The client is closed when Run returns.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("client started", "buffer_size", c.opts.bufferSize, "extensions", c.registry.Names())

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	// Receive may block outside ctx; closing the transport unblocks it.
	group.Go(func() error {
		<-child.Done()
		_ = c.transport.Close()
		return nil
	})

	err := group.Wait()
	_ = c.Close()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		c.logger.Info("client stopped with error", "error", err)
		return err
	}
	c.logger.Info("client stopped")
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Close stops the client, detaches every extension (releasing their
// pending state) and closes the transport. Safe to call multiple times.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.registry.Close()
	return c.transport.Close()
}

// IsClosed returns true if the client has been closed.
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// Publish sends data on channel, blocking until the wire messages are queued.
func (c *Client) Publish(ctx context.Context, channel string, data any) error {
	return c.WriteBlocking(ctx, &Message{
		Channel: channel,
		ID:      uuid.NewString(),
		Data:    data,
	})
}

// Write runs msg through the outgoing chain and queues the result without
// blocking.
//
// Returns:
//   - nil: the message was queued, or an extension dropped it
//   - ErrBufferFull: the send queue is full or another writer is waiting
//     for space, nothing was queued
//   - ErrConnectionClosed: the client is closed
func (c *Client) Write(msg *Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	if !c.sendMu.TryLock() {
		return ErrBufferFull
	}
	defer c.sendMu.Unlock()
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	batch := c.outgoing(msg)
	if batch == nil {
		return nil
	}

	c.pending.Add(1)
	select {
	case c.sendMsg <- batch:
		return nil
	default:
		c.pending.Done()
		return ErrBufferFull
	}
}

// WriteBlocking runs msg through the outgoing chain and waits until the
// result is queued, the context is canceled or the client is closed.
func (c *Client) WriteBlocking(ctx context.Context, msg *Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	batch := c.outgoing(msg)
	if batch == nil {
		return nil
	}

	c.pending.Add(1)
	select {
	case c.sendMsg <- batch:
		return nil
	case <-ctx.Done():
		c.pending.Done()
		return ctx.Err()
	case <-c.done:
		c.pending.Done()
		return ErrConnectionClosed
	}
}

// WriteTimeout is WriteBlocking with a time limit; it reports ErrBufferFull
// when the queue stays full for the whole timeout.
func (c *Client) WriteTimeout(msg *Message, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := c.WriteBlocking(ctx, msg)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrBufferFull
	}
	return err
}

// Flush waits until every queued wire message has been handed to the transport.
func (c *Client) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) outgoing(msg *Message) []*Message {
	batch := c.registry.Outgoing(msg)
	if batch == nil {
		c.logger.Debug("outgoing message dropped by extension", "channel", msg.Channel, "id", msg.ID)
	}
	return batch
}

// readLoop receives wire messages, runs the incoming chain and hands the
// survivors to the message handler.
func (c *Client) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := c.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return err
			}
			c.logger.Debug("receive error", "error", err)
			if c.opts.onError(err) == Disconnect {
				return err
			}
			continue
		}

		msg = c.registry.Incoming(msg)
		if msg == nil {
			continue
		}

		if err = c.opts.onMessage(msg); err != nil {
			return err
		}
	}
}

// writeLoop hands queued wire messages to the transport in queue order.
func (c *Client) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.drain()
			return ctx.Err()
		case batch := <-c.sendMsg:
			err := c.send(ctx, batch)
			c.pending.Done()
			if err != nil {
				c.drain()
				return err
			}
		}
	}
}

func (c *Client) send(ctx context.Context, batch []*Message) error {
	for _, msg := range batch {
		if err := c.transport.Send(ctx, msg); err != nil {
			c.logger.Debug("send error", "channel", msg.Channel, "id", msg.ID, "error", err)
			if c.opts.onError(err) == Disconnect {
				return err
			}
		}
	}
	return nil
}

// drain releases Flush waiters for batches that will never be sent.
func (c *Client) drain() {
	for {
		select {
		case <-c.sendMsg:
			c.pending.Done()
		default:
			return
		}
	}
}
