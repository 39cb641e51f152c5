package binary

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/joejackson1993/cometd"
)

// Wire field names in the message ext bag.
const (
	ExtBinary      = "binary"
	ExtChunked     = "chunked"
	ExtID          = "id"
	ExtSeq         = "seq"
	ExtLast        = "last"
	ExtEncoding    = "encoding"
	ExtCompression = "compression"
)

var codecKeys = []string{ExtBinary, ExtChunked, ExtID, ExtSeq, ExtLast, ExtEncoding, ExtCompression}

// header is the binary metadata carried by one wire message.
type header struct {
	chunked     bool
	id          string
	seq         int
	last        bool
	encoding    string
	compression string
}

// isBinary reports whether a wire message carries the binary marker.
func isBinary(msg *cometd.Message) bool {
	v, _ := msg.Ext[ExtBinary].(bool)
	return v
}

// parseHeader reads and validates the binary fields of a marked wire message.
func parseHeader(msg *cometd.Message) (header, error) {
	var h header
	ext := msg.Ext

	h.chunked, _ = ext[ExtChunked].(bool)
	h.encoding, _ = ext[ExtEncoding].(string)
	if h.encoding == "" {
		h.encoding = EncodingZ85
	}
	h.compression, _ = ext[ExtCompression].(string)

	if !h.chunked {
		return h, nil
	}

	id, ok := ext[ExtID].(string)
	if !ok || id == "" {
		return h, errors.Wrap(ErrMalformedChunk, "missing chunk id")
	}
	h.id = id

	seq, ok := toInt(ext[ExtSeq])
	if !ok || seq < 0 {
		return h, errors.Wrapf(ErrMalformedChunk, "invalid seq %v", ext[ExtSeq])
	}
	h.seq = seq

	last, ok := ext[ExtLast].(bool)
	if !ok {
		return h, errors.Wrapf(ErrMalformedChunk, "invalid last flag %v", ext[ExtLast])
	}
	h.last = last
	return h, nil
}

// apply writes the header into an ext bag.
func (h header) apply(ext map[string]any) {
	ext[ExtBinary] = true
	ext[ExtChunked] = h.chunked
	ext[ExtEncoding] = h.encoding
	if h.compression != "" {
		ext[ExtCompression] = h.compression
	}
	if h.chunked {
		ext[ExtID] = h.id
		ext[ExtSeq] = h.seq
		ext[ExtLast] = h.last
	}
}

// stripHeader returns a copy of ext without the codec's wire fields, or nil when nothing else remains.
func stripHeader(ext map[string]any) map[string]any {
	out := make(map[string]any, len(ext))
	for k, v := range ext {
		out[k] = v
	}
	for _, k := range codecKeys {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// toInt accepts the numeric shapes a sequence index takes after a JSON round
// trip or an in-memory hop.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint32:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := strconv.Atoi(string(n))
		return i, err == nil
	default:
		return 0, false
	}
}
