package binary

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/joejackson1993/cometd"
)

const (
	// DefaultChunkSize bounds the encoded payload of a single wire message.
	DefaultChunkSize = 32 * 1024
	// DefaultReassemblyTimeout is the inactivity window of a partial sequence.
	DefaultReassemblyTimeout = 30 * time.Second
	// DefaultMaxPayloadSize bounds a reassembled or decompressed payload.
	DefaultMaxPayloadSize = 64 * 1024 * 1024
)

// Compression names accepted by CompressionOption.
const (
	CompressionNone   = ""
	CompressionSnappy = "snappy"
)

type options struct {
	chunkSize      int
	timeout        time.Duration
	encoding       string
	compression    string
	maxPayloadSize int

	reporter cometd.Reporter
	logger   cometd.Logger
	clock    clock.Clock
}

// Option configures an Extension.
type Option func(*options)

// ChunkSizeOption sets the encoded size above which payloads are chunked.
// It also bounds the raw bytes carried per chunk.
func ChunkSizeOption(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// ReassemblyTimeoutOption sets how long a partial sequence may stay idle.
func ReassemblyTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// EncodingOption selects the outgoing transport-safe encoding by name.
// Incoming messages are decoded with whatever encoding they declare.
func EncodingOption(name string) Option {
	return func(o *options) {
		o.encoding = name
	}
}

// CompressionOption compresses outgoing payloads before encoding.
func CompressionOption(name string) Option {
	return func(o *options) {
		o.compression = name
	}
}

// MaxPayloadSizeOption bounds reassembled and decompressed payloads.
func MaxPayloadSizeOption(n int) Option {
	return func(o *options) {
		o.maxPayloadSize = n
	}
}

// ReporterOption sets the sink for contained failures. When unset the
// reporter of the client the extension is registered on is used.
func ReporterOption(r cometd.Reporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}

// LoggerOption sets the logger. When unset the client's logger is used.
func LoggerOption(l cometd.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// ClockOption replaces the clock driving reassembly timeouts.
func ClockOption(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func checkOptions(o *options) error {
	if o.chunkSize <= 0 {
		o.chunkSize = DefaultChunkSize
	}
	if o.timeout <= 0 {
		o.timeout = DefaultReassemblyTimeout
	}
	if o.maxPayloadSize <= 0 {
		o.maxPayloadSize = DefaultMaxPayloadSize
	}
	if o.encoding == "" {
		o.encoding = EncodingZ85
	}
	if _, err := LookupEncoding(o.encoding); err != nil {
		return err
	}
	if err := checkCompression(o.compression); err != nil {
		return err
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	return nil
}
