package cometd

// Extension transforms every message flowing through a client.
//
// Outgoing is called for every message about to be sent, in registration
// order. It returns the messages to hand to the next extension: usually the
// input itself, possibly a replacement, possibly several messages that must be
// sent in the returned order. An empty result drops the message from the send
// path.
//
// Incoming is called for every message just received, in reverse
// registration order. A nil result drops the message.
//
// Hooks must not block indefinitely and are never invoked concurrently for
// the same direction. A returned error is contained by the Registry, which
// reports it and applies its FailureAction.
type Extension interface {
	Outgoing(msg *Message) ([]*Message, error)
	Incoming(msg *Message) (*Message, error)
}

// Registerer is implemented by extensions that want to know when they are
// attached to a client.
type Registerer interface {
	Registered(name string, c *Client)
}

// Unregisterer is implemented by extensions holding resources. Unregistered
// is called once when the extension is detached and must release timers and
// buffered state before returning.
type Unregisterer interface {
	Unregistered()
}

// ExtensionFuncs adapts plain functions to the Extension interface.
// A nil hook passes messages through unchanged, so the zero value is a no-op extension.
type ExtensionFuncs struct {
	OutgoingFunc     func(msg *Message) ([]*Message, error)
	IncomingFunc     func(msg *Message) (*Message, error)
	RegisteredFunc   func(name string, c *Client)
	UnregisteredFunc func()
}

// Outgoing implements Extension.
func (f ExtensionFuncs) Outgoing(msg *Message) ([]*Message, error) {
	if f.OutgoingFunc == nil {
		return []*Message{msg}, nil
	}
	return f.OutgoingFunc(msg)
}

// Incoming implements Extension.
func (f ExtensionFuncs) Incoming(msg *Message) (*Message, error) {
	if f.IncomingFunc == nil {
		return msg, nil
	}
	return f.IncomingFunc(msg)
}

// Registered implements Registerer.
func (f ExtensionFuncs) Registered(name string, c *Client) {
	if f.RegisteredFunc != nil {
		f.RegisteredFunc(name, c)
	}
}

// Unregistered implements Unregisterer.
func (f ExtensionFuncs) Unregistered() {
	if f.UnregisteredFunc != nil {
		f.UnregisteredFunc()
	}
}
