package cometd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferSizeOption(t *testing.T) {
	var opts options
	BufferSizeOption(100)(&opts)
	assert.Equal(t, 100, opts.bufferSize)
}

func TestOnErrorOption(t *testing.T) {
	called := false
	var opts options
	OnErrorOption(func(err error) ErrorAction {
		called = true
		return Continue
	})(&opts)

	require.NotNil(t, opts.onError)
	assert.Equal(t, Continue, opts.onError(errors.New("boom")))
	assert.True(t, called)
}

func TestOnMessageOption(t *testing.T) {
	var got *Message
	var opts options
	OnMessageOption(func(m *Message) error {
		got = m
		return nil
	})(&opts)

	msg := &Message{Channel: "/a"}
	require.NoError(t, opts.onMessage(msg))
	assert.Same(t, msg, got)
}

func TestLoggerAndReporterOptions(t *testing.T) {
	logger := &mockLogger{}
	reporter := ReporterFunc(func(Failure) {})

	var opts options
	LoggerOption(logger)(&opts)
	ReporterOption(reporter)(&opts)
	FailureActionOption(Drop)(&opts)

	assert.Same(t, logger, opts.logger)
	assert.NotNil(t, opts.reporter)
	assert.Equal(t, Drop, opts.failureAction)
}

func TestCheckOptions_DefaultValues(t *testing.T) {
	opts := options{onMessage: func(*Message) error { return nil }}
	require.NoError(t, checkOptions(&opts))

	assert.Equal(t, defaultBufferSize, opts.bufferSize)
	assert.Equal(t, Disconnect, opts.onError(errors.New("x")))
	assert.NotNil(t, opts.logger)
	assert.NotNil(t, opts.reporter)
	assert.Equal(t, Forward, opts.failureAction)
}

func TestCheckOptions_MissingOnMessage(t *testing.T) {
	var opts options
	assert.ErrorIs(t, checkOptions(&opts), ErrInvalidOnMessage)
}

func TestErrorAction(t *testing.T) {
	assert.Equal(t, ErrorAction(0), Disconnect)
	assert.Equal(t, ErrorAction(1), Continue)
}
