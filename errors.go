package cometd

import "github.com/pkg/errors"

// Errors returned by registry operations.
var (
	// ErrDuplicateName is returned when an extension is registered under a name already in use.
	ErrDuplicateName = errors.New("extension name already registered")
	// ErrInvalidExtension is returned when a nil extension or an empty name is registered.
	ErrInvalidExtension = errors.New("invalid extension")
	// ErrExtensionFailed wraps errors and panics raised by extension hooks.
	ErrExtensionFailed = errors.New("extension failed")
)

// Errors returned by client and transport operations.
var (
	// ErrInvalidTransport is returned when no transport is provided.
	ErrInvalidTransport = errors.New("invalid transport")
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrMessageTooLarge is returned when a frame exceeds the maximum allowed size.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrConnectionClosed is returned when operating on a closed client or transport.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBufferFull is returned when the send buffer cannot accept more messages.
	// Use WriteBlocking or WriteTimeout to wait for buffer space instead.
	ErrBufferFull = errors.New("send buffer full")
)
