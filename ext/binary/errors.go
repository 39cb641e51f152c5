package binary

import "github.com/pkg/errors"

// Error kinds reported through the client's Reporter. None of them is ever
// returned from Incoming or Outgoing.
var (
	// ErrMalformedChunk marks an out-of-order, duplicate or inconsistent chunk sequence.
	ErrMalformedChunk = errors.New("malformed chunk")
	// ErrReassemblyTimeout marks a reassembly abandoned after the inactivity window.
	ErrReassemblyTimeout = errors.New("reassembly timeout")
	// ErrEncodeDecode marks a chunk whose transport-safe encoding could not be reversed.
	ErrEncodeDecode = errors.New("encode/decode failed")
)

var (
	// ErrUnknownEncoding is returned for an encoding name that is not registered.
	ErrUnknownEncoding = errors.New("unknown encoding")
	// ErrUnknownCompression is returned for an unsupported compression name.
	ErrUnknownCompression = errors.New("unknown compression")
	// ErrPayloadTooLarge marks a reassembled or decompressed payload beyond MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")
)
