package cometd

// ErrorAction defines the action to take when a transport error occurs.
type ErrorAction int

const (
	// Disconnect stops the client when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and keeps processing.
	Continue
)

// options holds the configuration for a client.
type options struct {
	logger   Logger
	reporter Reporter

	onMessage func(msg *Message) error
	// onError is called when a transport error occurs.
	// Returns Disconnect to stop the client, Continue to suppress the error.
	onError func(error) ErrorAction

	failureAction FailureAction
	bufferSize    int // size of the buffered send queue, in logical sends
}

// Option is a function that configures client options.
type Option func(*options)

// BufferSizeOption sets the number of logical sends that can be queued
// before Write reports ErrBufferFull.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// OnErrorOption sets the transport error callback.
// Return Disconnect to stop the client, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption sets the application callback invoked for every message
// that survives the incoming extension chain. It is required.
func OnMessageOption(cb func(*Message) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption sets the logger. If not set, the default slog logger is used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// ReporterOption sets the observability sink for contained failures.
// If not set, failures are logged as warnings.
func ReporterOption(r Reporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}

// FailureActionOption sets what happens to a message whose extension hook fails.
func FailureActionOption(a FailureAction) Option {
	return func(o *options) {
		o.failureAction = a
	}
}
