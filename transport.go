package cometd

import (
	"context"
	"io"
	"sync"
)

// Transport carries wire messages for a Client.
//
// The underlying channel delivers messages in send order without
// duplication. Send must be safe for concurrent use. Receive returns io.EOF
// once the peer is gone.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

// Pipe is one end of an in-memory Transport pair created by NewPipe.
type Pipe struct {
	in   chan *Message
	peer *Pipe

	done      chan struct{}
	closeOnce *sync.Once
}

// NewPipe returns two connected in-memory transports. Closing either end
// closes both. buffer is the number of messages each direction can hold
// before Send blocks.
func NewPipe(buffer int) (*Pipe, *Pipe) {
	if buffer < 0 {
		buffer = 0
	}
	done := make(chan struct{})
	once := &sync.Once{}
	a := &Pipe{in: make(chan *Message, buffer), done: done, closeOnce: once}
	b := &Pipe{in: make(chan *Message, buffer), done: done, closeOnce: once}
	a.peer, b.peer = b, a
	return a, b
}

// Send implements Transport.
func (p *Pipe) Send(ctx context.Context, msg *Message) error {
	select {
	case <-p.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case <-p.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.peer.in <- msg:
		return nil
	}
}

// Receive implements Transport. Messages already buffered are drained
// before io.EOF is reported.
func (p *Pipe) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	default:
	}

	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Transport.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
