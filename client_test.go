package cometd

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard(*Message) error { return nil }

// runClient starts c and returns a channel receiving Run's result.
func runClient(t *testing.T, ctx context.Context, c *Client) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return done
}

// stopped reports whether err is what Run returns after Close or cancellation.
func stopped(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to return")
		return nil
	}
}

func TestNewClient(t *testing.T) {
	a, _ := NewPipe(1)

	_, err := NewClient(nil, OnMessageOption(discard))
	assert.ErrorIs(t, err, ErrInvalidTransport)

	_, err = NewClient(a)
	assert.ErrorIs(t, err, ErrInvalidOnMessage)

	c, err := NewClient(a, OnMessageOption(discard), BufferSizeOption(4), LoggerOption(&mockLogger{}))
	require.NoError(t, err)
	assert.Equal(t, 4, cap(c.sendMsg))
	assert.False(t, c.IsClosed())
	assert.NotNil(t, c.Reporter())
}

func TestClient_Exchange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	left, right := NewPipe(8)
	received := make(chan *Message, 8)

	sender, err := NewClient(left, OnMessageOption(discard))
	require.NoError(t, err)
	receiver, err := NewClient(right, OnMessageOption(func(m *Message) error {
		received <- m
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, sender.RegisterExtension("tag", ExtensionFuncs{OutgoingFunc: func(msg *Message) ([]*Message, error) {
		out := msg.Clone()
		out.GetExt(true)["tag"] = "sent"
		return []*Message{out}, nil
	}}))
	require.NoError(t, receiver.RegisterExtension("untag", ExtensionFuncs{IncomingFunc: func(msg *Message) (*Message, error) {
		if msg.Ext["tag"] != "sent" {
			return nil, nil
		}
		return msg, nil
	}}))

	senderDone := runClient(t, ctx, sender)
	receiverDone := runClient(t, ctx, receiver)

	for i := 0; i < 3; i++ {
		require.NoError(t, sender.Publish(ctx, "/chat", i))
	}
	require.NoError(t, sender.Flush(ctx))

	for i := 0; i < 3; i++ {
		select {
		case m := <-received:
			assert.Equal(t, "/chat", m.Channel)
			assert.Equal(t, i, m.Data)
			assert.NotEmpty(t, m.ID)
		case <-ctx.Done():
			t.Fatal("message not received")
		}
	}

	require.NoError(t, sender.Close())
	assert.True(t, stopped(waitDone(t, senderDone)))
	// the receiver saw its transport end
	assert.NoError(t, waitDone(t, receiverDone))
	assert.True(t, receiver.IsClosed())
}

func TestClient_ExpandedSendStaysContiguous(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	left, right := NewPipe(64)
	c, err := NewClient(left, OnMessageOption(discard))
	require.NoError(t, err)
	require.NoError(t, c.RegisterExtension("triple", ExtensionFuncs{OutgoingFunc: func(msg *Message) ([]*Message, error) {
		out := make([]*Message, 3)
		for i := range out {
			out[i] = msg.Clone()
			out[i].Data = []any{msg.Data, i}
		}
		return out, nil
	}}))

	done := runClient(t, ctx, c)
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Publish(ctx, "/x", i))
	}
	require.NoError(t, c.Flush(ctx))

	for i := 0; i < 4; i++ {
		for j := 0; j < 3; j++ {
			m, err := right.Receive(ctx)
			require.NoError(t, err)
			assert.Equal(t, []any{i, j}, m.Data)
		}
	}

	cancel()
	assert.True(t, stopped(waitDone(t, done)))
}

func TestClient_Write_BufferFull(t *testing.T) {
	a, _ := NewPipe(0)
	c, err := NewClient(a, OnMessageOption(discard), BufferSizeOption(1))
	require.NoError(t, err)
	defer c.Close()

	// nothing drains the queue before Run
	require.NoError(t, c.Write(&Message{Channel: "/a"}))
	assert.ErrorIs(t, c.Write(&Message{Channel: "/a"}), ErrBufferFull)
	assert.ErrorIs(t, c.WriteTimeout(&Message{Channel: "/a"}, 20*time.Millisecond), ErrBufferFull)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.WriteBlocking(ctx, &Message{Channel: "/a"}), context.Canceled)
}

func TestClient_Write_DoesNotWaitBehindBlockedWriter(t *testing.T) {
	a, _ := NewPipe(0)
	c, err := NewClient(a, OnMessageOption(discard), BufferSizeOption(1))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Write(&Message{Channel: "/a"}))

	blocked := make(chan error, 1)
	go func() { blocked <- c.WriteBlocking(context.Background(), &Message{Channel: "/a"}) }()
	time.Sleep(20 * time.Millisecond)

	written := make(chan error, 1)
	go func() { written <- c.Write(&Message{Channel: "/a"}) }()
	select {
	case err := <-written:
		assert.ErrorIs(t, err, ErrBufferFull)
	case <-time.After(time.Second):
		t.Fatal("Write waited behind WriteBlocking")
	}

	// closing releases the waiting writer
	require.NoError(t, c.Close())
	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("WriteBlocking did not return after Close")
	}
}

func TestClient_Write_DroppedByExtension(t *testing.T) {
	a, _ := NewPipe(0)
	c, err := NewClient(a, OnMessageOption(discard), BufferSizeOption(1))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.RegisterExtension("drop", ExtensionFuncs{OutgoingFunc: func(*Message) ([]*Message, error) {
		return nil, nil
	}}))

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Write(&Message{Channel: "/a"}))
	}
	assert.Empty(t, c.sendMsg)
}

func TestClient_Closed(t *testing.T) {
	a, b := NewPipe(1)
	c, err := NewClient(a, OnMessageOption(discard))
	require.NoError(t, err)

	unregistered := false
	require.NoError(t, c.RegisterExtension("x", ExtensionFuncs{UnregisteredFunc: func() { unregistered = true }}))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.IsClosed())
	assert.True(t, unregistered)
	assert.Empty(t, c.registry.Names())

	assert.ErrorIs(t, c.Write(&Message{}), ErrConnectionClosed)
	assert.ErrorIs(t, c.WriteBlocking(context.Background(), &Message{}), ErrConnectionClosed)

	_, err = b.Receive(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestClient_OnMessageErrorStopsRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	left, right := NewPipe(1)
	stop := errors.New("stop")
	c, err := NewClient(right, OnMessageOption(func(*Message) error { return stop }))
	require.NoError(t, err)

	done := runClient(t, ctx, c)
	require.NoError(t, left.Send(ctx, &Message{Channel: "/a"}))
	assert.ErrorIs(t, waitDone(t, done), stop)
	assert.True(t, c.IsClosed())
}

// flakyTransport fails every other Send.
type flakyTransport struct {
	*Pipe
	calls int
}

func (f *flakyTransport) Send(ctx context.Context, msg *Message) error {
	f.calls++
	if f.calls%2 == 1 {
		return errors.New("flaky")
	}
	return f.Pipe.Send(ctx, msg)
}

func TestClient_OnErrorContinue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	left, right := NewPipe(8)
	var errs []error
	c, err := NewClient(&flakyTransport{Pipe: left},
		OnMessageOption(discard),
		OnErrorOption(func(err error) ErrorAction {
			errs = append(errs, err)
			return Continue
		}),
	)
	require.NoError(t, err)

	done := runClient(t, ctx, c)
	require.NoError(t, c.Publish(ctx, "/a", 1))
	require.NoError(t, c.Publish(ctx, "/a", 2))
	require.NoError(t, c.Flush(ctx))

	m, err := right.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Data)
	assert.Len(t, errs, 1)

	require.NoError(t, c.Close())
	assert.True(t, stopped(waitDone(t, done)))
}
