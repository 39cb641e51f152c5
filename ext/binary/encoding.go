package binary

import (
	"encoding/base64"
	"sort"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Encoding is a reversible mapping from raw bytes to text the transport
// carries without corruption.
type Encoding interface {
	// Name is the value written to the ext.encoding wire field.
	Name() string
	Encode(src []byte) string
	Decode(s string) ([]byte, error)
	// EncodedLen returns the encoded length of n bytes, or an upper bound of it.
	EncodedLen(n int) int
}

// Built-in encoding names.
const (
	EncodingZ85    = "z85"
	EncodingBase64 = "base64"
	EncodingBase58 = "base58"
)

var (
	encodingsMu sync.RWMutex
	encodings   = map[string]Encoding{
		EncodingZ85:    Z85,
		EncodingBase64: Base64,
		EncodingBase58: Base58,
	}
)

// RegisterEncoding makes enc available by name to LookupEncoding and to the
// receiving side of the extension. It replaces an encoding with the same name.
func RegisterEncoding(enc Encoding) {
	encodingsMu.Lock()
	defer encodingsMu.Unlock()
	encodings[enc.Name()] = enc
}

// LookupEncoding returns the encoding registered under name.
func LookupEncoding(name string) (Encoding, error) {
	encodingsMu.RLock()
	defer encodingsMu.RUnlock()
	enc, ok := encodings[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEncoding, "%q", name)
	}
	return enc, nil
}

// Encodings lists the registered encoding names, sorted.
func Encodings() []string {
	encodingsMu.RLock()
	defer encodingsMu.RUnlock()
	names := make([]string, 0, len(encodings))
	for name := range encodings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Base64 is standard padded base64.
var Base64 Encoding = base64Encoding{}

type base64Encoding struct{}

func (base64Encoding) Name() string { return EncodingBase64 }

func (base64Encoding) Encode(src []byte) string {
	return base64.StdEncoding.EncodeToString(src)
}

func (base64Encoding) Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "base64")
	}
	return b, nil
}

func (base64Encoding) EncodedLen(n int) int {
	return base64.StdEncoding.EncodedLen(n)
}

// Base58 uses the Bitcoin alphabet. Its cost grows quadratically with the
// input, so it only suits small chunk sizes.
var Base58 Encoding = base58Encoding{}

type base58Encoding struct{}

func (base58Encoding) Name() string { return EncodingBase58 }

func (base58Encoding) Encode(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	return base58.Encode(src)
}

func (base58Encoding) Decode(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil, errors.Wrap(err, "base58")
	}
	return b, nil
}

// EncodedLen is an upper bound: log(256)/log(58) < 1.37.
func (base58Encoding) EncodedLen(n int) int {
	if n == 0 {
		return 0
	}
	return n*137/100 + 1
}
