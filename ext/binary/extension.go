// Package binary implements the binary codec extension. Messages whose Data
// is a BinaryData are encoded into transport-safe text on the way out, split
// into ordered chunks when the encoded form exceeds the chunk size, and
// reassembled on the way in. Failures never surface through the pipeline:
// they are reported to a cometd.Reporter and the affected message is dropped.
package binary

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/joejackson1993/cometd"
)

// Name is the registry name used by Register.
const Name = "binary"

// Extension is the binary codec. It is safe for concurrent use.
type Extension struct {
	opts options
	enc  Encoding

	table *table

	mu       sync.RWMutex
	name     string
	reporter cometd.Reporter
	logger   cometd.Logger
}

// New creates a binary codec extension.
// It fails for an unknown encoding or compression name.
func New(opt ...Option) (*Extension, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	enc, _ := LookupEncoding(opts.encoding)
	e := &Extension{
		opts:     opts,
		enc:      enc,
		name:     Name,
		reporter: opts.reporter,
		logger:   opts.logger,
	}
	if e.logger == nil {
		e.logger = cometd.DefaultLogger()
	}
	if e.reporter == nil {
		e.reporter = cometd.LogReporter(e.logger)
	}
	e.table = newTable(opts.clock, opts.timeout, opts.maxPayloadSize, e.expired)
	return e, nil
}

// Registered adopts the client's logger and reporter unless options set them.
func (e *Extension) Registered(name string, c *cometd.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.name = name
	if c == nil {
		return
	}
	if e.opts.logger == nil {
		e.logger = c.Logger()
	}
	if e.opts.reporter == nil {
		e.reporter = c.Reporter()
	}
}

// Unregistered drops every partial reassembly and cancels its timer.
// No timeout is reported after it returns.
func (e *Extension) Unregistered() {
	n := e.table.clear()
	_, _, logger := e.sink()
	logger.Debug("binary extension unregistered", "dropped_reassemblies", n)
}

// Pending returns the number of partially received payloads.
func (e *Extension) Pending() int {
	return e.table.pending()
}

// Outgoing encodes a binary payload, chunking it when its encoded form
// exceeds the chunk size. Other messages pass through unchanged.
func (e *Extension) Outgoing(msg *cometd.Message) ([]*cometd.Message, error) {
	bin, ok := FromMessageData(msg.Data)
	if !ok {
		return []*cometd.Message{msg}, nil
	}

	raw := compress(e.opts.compression, bin.Data)
	h := header{encoding: e.enc.Name(), compression: e.opts.compression}

	if e.enc.EncodedLen(len(raw)) <= e.opts.chunkSize {
		out := msg.Clone()
		out.Data = wirePayload(e.enc.Encode(raw), bin.Meta)
		h.apply(out.GetExt(true))
		return []*cometd.Message{out}, nil
	}

	h.chunked = true
	h.id = msg.ID
	if h.id == "" {
		h.id = uuid.NewString()
	}

	size := e.opts.chunkSize
	count := (len(raw) + size - 1) / size
	out := make([]*cometd.Message, 0, count)
	for seq := range count {
		piece := raw[seq*size : min((seq+1)*size, len(raw))]

		var meta map[string]any
		if seq == 0 {
			meta = bin.Meta
		}

		m := msg.Clone()
		m.ID = chunkID(h.id, seq)
		m.Data = wirePayload(e.enc.Encode(piece), meta)
		h.seq = seq
		h.last = seq == count-1
		h.apply(m.GetExt(true))
		out = append(out, m)
	}
	return out, nil
}

// Incoming decodes binary messages. A chunk is consumed and nil returned
// until the chunk flagged last completes its payload, which is then
// returned as one message under the parent identifier.
func (e *Extension) Incoming(msg *cometd.Message) (*cometd.Message, error) {
	if !isBinary(msg) {
		return msg, nil
	}

	h, err := parseHeader(msg)
	if err != nil {
		id := msg.ID
		if parent, _ := msg.Ext[ExtID].(string); parent != "" {
			id = parent
			if !e.table.fail(parent) {
				e.straggler(msg.Channel, parent, h.seq)
				return nil, nil
			}
		}
		e.report(msg.Channel, id, err)
		return nil, nil
	}

	if !h.chunked {
		return e.single(msg, h), nil
	}
	return e.chunk(msg, h), nil
}

func (e *Extension) single(msg *cometd.Message, h header) *cometd.Message {
	raw, meta, err := e.decode(msg.Data, h)
	if err == nil {
		raw, err = decompress(h.compression, raw, e.opts.maxPayloadSize)
	}
	if err != nil {
		e.report(msg.Channel, msg.ID, err)
		return nil
	}

	out := msg.Clone()
	out.Data = &BinaryData{Data: raw, Meta: meta}
	out.Ext = stripHeader(msg.Ext)
	return out
}

func (e *Extension) chunk(msg *cometd.Message, h header) *cometd.Message {
	raw, meta, err := e.decode(msg.Data, h)
	if err != nil {
		if e.table.fail(h.id) {
			e.report(msg.Channel, h.id, err)
		} else {
			e.straggler(msg.Channel, h.id, h.seq)
		}
		return nil
	}

	ent, err := e.table.add(msg.Channel, msg.Ext, h, raw, meta)
	if errors.Is(err, errStraggler) {
		e.straggler(msg.Channel, h.id, h.seq)
		return nil
	}
	if err != nil {
		e.report(msg.Channel, h.id, err)
		return nil
	}
	if ent == nil {
		return nil
	}

	data, err := decompress(ent.compression, ent.payload(), e.opts.maxPayloadSize)
	if err != nil {
		e.report(ent.channel, ent.id, err)
		return nil
	}
	return &cometd.Message{
		Channel: ent.channel,
		ID:      ent.id,
		Data:    &BinaryData{Data: data, Meta: ent.meta},
		Ext:     ent.ext,
	}
}

// decode reverses the transport-safe encoding of one wire payload.
// Every error it returns wraps ErrEncodeDecode.
func (e *Extension) decode(data any, h header) ([]byte, map[string]any, error) {
	enc, err := LookupEncoding(h.encoding)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrEncodeDecode, err)
	}
	encoded, meta, ok := readWirePayload(data)
	if !ok {
		return nil, nil, errors.Wrapf(ErrEncodeDecode, "unexpected payload %T", data)
	}
	raw, err := enc.Decode(encoded)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrEncodeDecode, err)
	}
	return raw, meta, nil
}

func (e *Extension) straggler(channel, id string, seq int) {
	_, _, logger := e.sink()
	logger.Debug("dropping chunk of abandoned payload", "channel", channel, "id", id, "seq", seq)
}

func (e *Extension) expired(ent *entry) {
	idle := e.opts.clock.Since(ent.lastSeen).Truncate(time.Millisecond)
	err := errors.Wrapf(ErrReassemblyTimeout, "%d chunks received, idle for %s", ent.next, idle)
	e.report(ent.channel, ent.id, err)
}

func (e *Extension) report(channel, id string, err error) {
	name, reporter, _ := e.sink()
	reporter.Report(cometd.Failure{
		Kind:      failureKind(err),
		Extension: name,
		Channel:   channel,
		MessageID: id,
		Err:       err,
		At:        e.opts.clock.Now().UTC(),
	})
}

func (e *Extension) sink() (string, cometd.Reporter, cometd.Logger) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.name, e.reporter, e.logger
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrReassemblyTimeout):
		return cometd.KindReassemblyTimeout
	case errors.Is(err, ErrMalformedChunk), errors.Is(err, ErrPayloadTooLarge):
		return cometd.KindMalformedChunk
	default:
		return cometd.KindEncodeDecode
	}
}

func chunkID(id string, seq int) string {
	return id + "." + strconv.Itoa(seq)
}
