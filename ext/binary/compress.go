package binary

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

func checkCompression(name string) error {
	switch name {
	case CompressionNone, CompressionSnappy:
		return nil
	default:
		return errors.Wrapf(ErrUnknownCompression, "%q", name)
	}
}

func compress(name string, raw []byte) []byte {
	if name == CompressionSnappy {
		return snappy.Encode(nil, raw)
	}
	return raw
}

// decompress reverses compress, refusing output larger than limit.
func decompress(name string, data []byte, limit int) ([]byte, error) {
	switch name {
	case CompressionNone:
		return data, nil
	case CompressionSnappy:
		n, err := snappy.DecodedLen(data)
		if err != nil {
			return nil, errors.Wrap(err, "snappy")
		}
		if limit > 0 && n > limit {
			return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
		}
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, errors.Wrap(err, "snappy")
		}
		return out, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCompression, "%q", name)
	}
}
