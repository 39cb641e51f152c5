package cometd

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"maps"

	"github.com/pkg/errors"
)

// Message is the unit exchanged with the channel.
// Messages handed to an extension hook must be treated as immutable:
// a hook that needs a different message returns a new one (see Clone).
type Message struct {
	// Channel is the name of the logical stream the message belongs to.
	Channel string `json:"channel"`
	// ID is unique per logical send.
	ID string `json:"id,omitempty"`
	// Data is the opaque payload.
	Data any `json:"data,omitempty"`
	// Ext is the extension metadata bag.
	Ext map[string]any `json:"ext,omitempty"`
}

// Clone returns a copy of the message that can be modified freely.
// The Ext map is copied one level deep; Data is shared.
func (m *Message) Clone() *Message {
	c := *m
	if m.Ext != nil {
		c.Ext = maps.Clone(m.Ext)
	}
	return &c
}

// GetExt returns the extension metadata bag, allocating it when create is set.
func (m *Message) GetExt(create bool) map[string]any {
	if m.Ext == nil && create {
		m.Ext = make(map[string]any)
	}
	return m.Ext
}

// Codec is the interface for wire encoding and decoding of messages.
//
// Decode reads from an io.Reader so the codec controls how many bytes make
// up one frame; it must read exactly one frame per call.
type Codec interface {
	// Decode reads and decodes one complete message from the reader.
	Decode(r io.Reader) (*Message, error)
	// Encode encodes a message into one frame.
	Encode(*Message) ([]byte, error)
}

// frameHeaderSize is the size of the big-endian length prefix of a JSON frame.
const frameHeaderSize = 4

// JSONCodec frames each message as a 4-byte big-endian length followed by
// the JSON document.
type JSONCodec struct {
	// MaxFrameSize rejects frames whose declared body is larger. Zero disables the check.
	MaxFrameSize int
}

// Encode implements Codec.
func (c JSONCodec) Encode(msg *Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "encode message")
	}
	if c.MaxFrameSize > 0 && len(body) > c.MaxFrameSize {
		return nil, ErrMessageTooLarge
	}

	frame := make([]byte, frameHeaderSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[frameHeaderSize:], body)
	return frame, nil
}

// Decode implements Codec.
func (c JSONCodec) Decode(r io.Reader) (*Message, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if c.MaxFrameSize > 0 && int64(size) > int64(c.MaxFrameSize) {
		return nil, ErrMessageTooLarge
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, errors.Wrap(err, "decode message")
	}
	return &msg, nil
}
