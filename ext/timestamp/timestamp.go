// Package timestamp stamps outgoing messages with their send time.
package timestamp

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/joejackson1993/cometd"
)

// Name is the registry name used by Register.
const Name = "timestamp"

// Key is the ext field carrying the timestamp.
const Key = "timestamp"

// Layout is RFC 3339 with millisecond precision.
const Layout = "2006-01-02T15:04:05.000Z07:00"

type options struct {
	clock clock.Clock
}

// Option configures an Extension.
type Option func(*options)

// ClockOption replaces the time source.
func ClockOption(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// Extension sets ext.timestamp on every outgoing message that has none.
type Extension struct {
	clock clock.Clock
}

// New creates a timestamp extension.
func New(opt ...Option) *Extension {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if opts.clock == nil {
		opts.clock = clock.New()
	}
	return &Extension{clock: opts.clock}
}

// Outgoing implements cometd.Extension.
func (e *Extension) Outgoing(msg *cometd.Message) ([]*cometd.Message, error) {
	if _, ok := msg.Ext[Key]; ok {
		return []*cometd.Message{msg}, nil
	}
	out := msg.Clone()
	out.GetExt(true)[Key] = e.clock.Now().UTC().Format(Layout)
	return []*cometd.Message{out}, nil
}

// Incoming implements cometd.Extension.
func (e *Extension) Incoming(msg *cometd.Message) (*cometd.Message, error) {
	return msg, nil
}

// Timestamp returns the send time carried by msg.
func Timestamp(msg *cometd.Message) (time.Time, bool) {
	s, ok := msg.Ext[Key].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Register attaches a new timestamp extension to c under Name.
func Register(c *cometd.Client, opt ...Option) (*Extension, error) {
	e := New(opt...)
	if err := c.RegisterExtension(Name, e); err != nil {
		return nil, err
	}
	return e, nil
}
