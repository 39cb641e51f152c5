package cometd

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// FailureAction decides what the Registry does with a message whose
// extension hook failed.
type FailureAction int

const (
	// Forward hands the original message, unchanged, to the next extension.
	Forward FailureAction = iota
	// Drop removes the message from the pipeline.
	Drop
)

func (a FailureAction) String() string {
	switch a {
	case Forward:
		return "forward"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("FailureAction(%d)", int(a))
	}
}

// ParseFailureAction parses "forward" or "drop".
func ParseFailureAction(s string) (FailureAction, error) {
	switch s {
	case "", "forward":
		return Forward, nil
	case "drop":
		return Drop, nil
	default:
		return Forward, errors.Errorf("unknown failure action %q", s)
	}
}

type registration struct {
	name string
	ext  Extension
}

// Registry is the ordered chain of extensions attached to a client.
// Outgoing hooks run in registration order, incoming hooks in reverse order.
// Hooks are invoked outside the registry lock.
type Registry struct {
	owner    *Client
	logger   Logger
	reporter Reporter
	action   FailureAction

	mu      sync.RWMutex
	entries []registration
}

// NewRegistry creates an empty registry. owner is handed to Registered hooks
// and may be nil when the registry is used without a client.
// A nil logger uses the slog default; a nil reporter logs failures.
func NewRegistry(owner *Client, logger Logger, reporter Reporter, action FailureAction) *Registry {
	if logger == nil {
		logger = defaultLogger()
	}
	if reporter == nil {
		reporter = LogReporter(logger)
	}
	return &Registry{
		owner:    owner,
		logger:   logger,
		reporter: reporter,
		action:   action,
	}
}

// Register appends ext to the chain under name.
// A name already in use fails with ErrDuplicateName and leaves the existing extension in place.
func (r *Registry) Register(name string, ext Extension) error {
	if name == "" || ext == nil {
		return ErrInvalidExtension
	}

	r.mu.Lock()
	if slices.ContainsFunc(r.entries, func(e registration) bool { return e.name == name }) {
		r.mu.Unlock()
		r.logger.Debug("extension registration rejected", "extension", name)
		return errors.Wrapf(ErrDuplicateName, "register %q", name)
	}
	r.entries = append(r.entries, registration{name: name, ext: ext})
	r.mu.Unlock()

	if reg, ok := ext.(Registerer); ok {
		reg.Registered(name, r.owner)
	}
	r.logger.Debug("extension registered", "extension", name)
	return nil
}

// Unregister detaches the extension registered under name.
// It reports false when no such extension exists.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	idx := slices.IndexFunc(r.entries, func(e registration) bool { return e.name == name })
	if idx < 0 {
		r.mu.Unlock()
		r.logger.Debug("unregister of unknown extension", "extension", name)
		return false
	}
	ext := r.entries[idx].ext
	r.entries = slices.Delete(r.entries, idx, idx+1)
	r.mu.Unlock()

	if unreg, ok := ext.(Unregisterer); ok {
		unreg.Unregistered()
	}
	r.logger.Debug("extension unregistered", "extension", name)
	return true
}

// Get returns the extension registered under name.
func (r *Registry) Get(name string) (Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.name == name {
			return e.ext, true
		}
	}
	return nil, false
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Close unregisters every extension, most recently registered first.
func (r *Registry) Close() {
	for _, name := range slices.Backward(r.Names()) {
		r.Unregister(name)
	}
}

func (r *Registry) snapshot() []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries)
}

// Outgoing folds the outgoing hooks over msg, left to right.
// Each extension sees every message produced by the previous one, in order.
// It returns nil when the message was dropped.
func (r *Registry) Outgoing(msg *Message) []*Message {
	msgs := []*Message{msg}
	for _, e := range r.snapshot() {
		next := make([]*Message, 0, len(msgs))
		for _, m := range msgs {
			out, err := r.callOutgoing(e, m)
			if err != nil {
				if r.fail(e.name, m, err) == Drop {
					continue
				}
				out = []*Message{m}
			}
			next = append(next, out...)
		}
		if len(next) == 0 {
			return nil
		}
		msgs = next
	}
	return msgs
}

// Incoming folds the incoming hooks over msg, right to left.
// It returns nil when the message was dropped.
func (r *Registry) Incoming(msg *Message) *Message {
	for _, e := range slices.Backward(r.snapshot()) {
		out, err := r.callIncoming(e, msg)
		if err != nil {
			if r.fail(e.name, msg, err) == Drop {
				return nil
			}
			out = msg
		}
		if out == nil {
			return nil
		}
		msg = out
	}
	return msg
}

func (r *Registry) callOutgoing(e registration, msg *Message) (out []*Message, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Wrapf(ErrExtensionFailed, "outgoing hook panicked: %v", p)
		}
	}()
	out, err = e.ext.Outgoing(msg)
	if err != nil {
		err = fmt.Errorf("%w: outgoing: %w", ErrExtensionFailed, err)
	}
	return out, err
}

func (r *Registry) callIncoming(e registration, msg *Message) (out *Message, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Wrapf(ErrExtensionFailed, "incoming hook panicked: %v", p)
		}
	}()
	out, err = e.ext.Incoming(msg)
	if err != nil {
		err = fmt.Errorf("%w: incoming: %w", ErrExtensionFailed, err)
	}
	return out, err
}

func (r *Registry) fail(name string, msg *Message, err error) FailureAction {
	r.reporter.Report(stamp(Failure{
		Kind:      KindExtension,
		Extension: name,
		Channel:   msg.Channel,
		MessageID: msg.ID,
		Err:       err,
	}))
	return r.action
}
