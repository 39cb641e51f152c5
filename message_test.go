package cometd

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Clone(t *testing.T) {
	msg := &Message{Channel: "/a", ID: "1", Data: "x", Ext: map[string]any{"k": "v"}}
	c := msg.Clone()

	c.Channel = "/b"
	c.Ext["k"] = "changed"
	c.Ext["new"] = true

	assert.Equal(t, "/a", msg.Channel)
	assert.Equal(t, map[string]any{"k": "v"}, msg.Ext)
	assert.Equal(t, "x", c.Data)

	assert.Nil(t, (&Message{}).Clone().Ext)
}

func TestMessage_GetExt(t *testing.T) {
	msg := &Message{}
	assert.Nil(t, msg.GetExt(false))

	ext := msg.GetExt(true)
	require.NotNil(t, ext)
	ext["a"] = 1
	assert.Equal(t, 1, msg.Ext["a"])
}

func TestJSONCodec_Frame(t *testing.T) {
	codec := JSONCodec{}
	msg := &Message{Channel: "/chat", ID: "7", Data: "hello", Ext: map[string]any{"ack": true}}

	frame, err := codec.Encode(msg)
	require.NoError(t, err)

	size := binary.BigEndian.Uint32(frame[:frameHeaderSize])
	assert.Equal(t, len(frame)-frameHeaderSize, int(size))
	assert.Contains(t, string(frame[frameHeaderSize:]), `"channel":"/chat"`)

	got, err := codec.Decode(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestJSONCodec_OmitsEmptyFields(t *testing.T) {
	frame, err := JSONCodec{}.Encode(&Message{Channel: "/a"})
	require.NoError(t, err)
	assert.Equal(t, `{"channel":"/a"}`, string(frame[frameHeaderSize:]))
}

func TestJSONCodec_Consecutive(t *testing.T) {
	codec := JSONCodec{}
	var buf bytes.Buffer
	for _, ch := range []string{"/1", "/2"} {
		frame, err := codec.Encode(&Message{Channel: ch})
		require.NoError(t, err)
		buf.Write(frame)
	}

	for _, ch := range []string{"/1", "/2"} {
		m, err := codec.Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, ch, m.Channel)
	}
	_, err := codec.Decode(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestJSONCodec_TooLarge(t *testing.T) {
	small := JSONCodec{MaxFrameSize: 16}

	_, err := small.Encode(&Message{Channel: strings.Repeat("x", 32)})
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	frame, err := JSONCodec{}.Encode(&Message{Channel: strings.Repeat("x", 32)})
	require.NoError(t, err)
	_, err = small.Decode(bytes.NewReader(frame))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestJSONCodec_Truncated(t *testing.T) {
	frame, err := JSONCodec{}.Encode(&Message{Channel: "/a"})
	require.NoError(t, err)

	_, err = JSONCodec{}.Decode(bytes.NewReader(frame[:len(frame)-2]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = JSONCodec{}.Decode(bytes.NewReader(frame[:2]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestJSONCodec_InvalidBody(t *testing.T) {
	body := []byte("{not json")
	frame := make([]byte, frameHeaderSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[frameHeaderSize:], body)

	_, err := JSONCodec{}.Decode(bytes.NewReader(frame))
	assert.ErrorContains(t, err, "decode message")
}
