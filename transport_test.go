package cometd

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipe_SendReceive(t *testing.T) {
	ctx := context.Background()
	a, b := NewPipe(2)

	require.NoError(t, a.Send(ctx, &Message{Channel: "/ab"}))
	require.NoError(t, b.Send(ctx, &Message{Channel: "/ba"}))

	m, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/ab", m.Channel)

	m, err = a.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/ba", m.Channel)
}

func TestPipe_DrainThenEOF(t *testing.T) {
	ctx := context.Background()
	a, b := NewPipe(4)

	for _, ch := range []string{"/1", "/2", "/3"} {
		require.NoError(t, a.Send(ctx, &Message{Channel: ch}))
	}
	require.NoError(t, a.Close())

	for _, ch := range []string{"/1", "/2", "/3"} {
		m, err := b.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, ch, m.Channel)
	}
	_, err := b.Receive(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPipe_SendAfterClose(t *testing.T) {
	a, b := NewPipe(1)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, a.Send(context.Background(), &Message{}), ErrConnectionClosed)
	assert.ErrorIs(t, b.Send(context.Background(), &Message{}), ErrConnectionClosed)
}

func TestPipe_ContextCanceled(t *testing.T) {
	a, _ := NewPipe(0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// unbuffered with no reader
	assert.ErrorIs(t, a.Send(ctx, &Message{}), context.DeadlineExceeded)
	_, err := a.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipe_NegativeBuffer(t *testing.T) {
	a, _ := NewPipe(-3)
	assert.Equal(t, 0, cap(a.in))
}
