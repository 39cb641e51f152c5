package binary

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// errStraggler marks a chunk for an identifier abandoned recently. Such
// chunks are dropped without a fresh report.
var errStraggler = errors.New("straggler chunk")

// entry is the partial state of one chunked payload.
type entry struct {
	id          string
	channel     string
	ext         map[string]any
	meta        map[string]any
	encoding    string
	compression string

	parts [][]byte
	size  int
	next  int

	created  time.Time
	lastSeen time.Time

	gen   uint64
	timer *clock.Timer
}

func (e *entry) payload() []byte {
	return bytes.Join(e.parts, nil)
}

// table tracks partially received chunk sequences, keyed by parent identifier.
// An entry leaves the table exactly once: completed, failed, expired or cleared.
type table struct {
	clock    clock.Clock
	timeout  time.Duration
	maxSize  int
	onExpire func(*entry)

	// expiring is held shared while a timeout is reported, so clear can
	// wait for reports already in flight.
	expiring sync.RWMutex

	mu        sync.Mutex
	entries   map[string]*entry
	abandoned map[string]time.Time
	gen       uint64
}

func newTable(clk clock.Clock, timeout time.Duration, maxSize int, onExpire func(*entry)) *table {
	return &table{
		clock:     clk,
		timeout:   timeout,
		maxSize:   maxSize,
		onExpire:  onExpire,
		entries:   make(map[string]*entry),
		abandoned: make(map[string]time.Time),
	}
}

// add routes one decoded chunk into its entry. It returns the entry once the
// chunk flagged last completes it. Any inconsistency abandons the entry and
// returns an error wrapping ErrMalformedChunk.
func (t *table) add(channel string, ext map[string]any, h header, raw []byte, meta map[string]any) (*entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	ent, ok := t.entries[h.id]
	if !ok {
		if h.seq != 0 {
			if t.recentlyAbandoned(h.id, now) {
				return nil, errStraggler
			}
			t.tombstone(h.id, now)
			return nil, errors.Wrapf(ErrMalformedChunk, "chunk %d without a first chunk", h.seq)
		}

		ent = &entry{
			id:          h.id,
			channel:     channel,
			ext:         stripHeader(ext),
			meta:        meta,
			encoding:    h.encoding,
			compression: h.compression,
			parts:       [][]byte{raw},
			size:        len(raw),
			next:        1,
			created:     now,
			lastSeen:    now,
		}
		if t.maxSize > 0 && ent.size > t.maxSize {
			t.abandon(ent, now)
			return nil, fmt.Errorf("%w: %w", ErrMalformedChunk, ErrPayloadTooLarge)
		}
		if h.last {
			return ent, nil
		}
		t.entries[h.id] = ent
		t.arm(ent)
		return nil, nil
	}

	switch {
	case h.seq == 0:
		t.abandon(ent, now)
		return nil, errors.Wrap(ErrMalformedChunk, "duplicate initiation")
	case h.seq != ent.next:
		t.abandon(ent, now)
		return nil, errors.Wrapf(ErrMalformedChunk, "expected seq %d, got %d", ent.next, h.seq)
	case channel != ent.channel:
		t.abandon(ent, now)
		return nil, errors.Wrapf(ErrMalformedChunk, "channel changed from %s to %s", ent.channel, channel)
	case h.encoding != ent.encoding || h.compression != ent.compression:
		t.abandon(ent, now)
		return nil, errors.Wrap(ErrMalformedChunk, "encoding changed mid-sequence")
	}

	ent.parts = append(ent.parts, raw)
	ent.size += len(raw)
	ent.next++
	ent.lastSeen = now

	if t.maxSize > 0 && ent.size > t.maxSize {
		t.abandon(ent, now)
		return nil, fmt.Errorf("%w: %w", ErrMalformedChunk, ErrPayloadTooLarge)
	}

	if h.last {
		t.release(ent)
		return ent, nil
	}
	t.arm(ent)
	return nil, nil
}

// fail abandons id after a chunk of it could not be used, whether or not
// an entry exists yet. It reports false when id was already abandoned, in
// which case the failure is a straggler and must not be reported again.
func (t *table) fail(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if ent, ok := t.entries[id]; ok {
		t.abandon(ent, now)
		return true
	}
	if t.recentlyAbandoned(id, now) {
		return false
	}
	t.tombstone(id, now)
	return true
}

// clear drops every entry and cancels every timer. Timeouts being reported
// when it is called finish before it returns; none is reported afterwards.
func (t *table) clear() int {
	t.expiring.Lock()
	defer t.expiring.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.entries)
	for _, ent := range t.entries {
		t.release(ent)
	}
	clear(t.abandoned)
	return n
}

func (t *table) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// arm (re)starts the inactivity timer of ent. Each arming gets a fresh
// generation so a timer that already fired cannot evict a newer state.
func (t *table) arm(ent *entry) {
	if ent.timer != nil {
		ent.timer.Stop()
	}
	t.gen++
	gen, id := t.gen, ent.id
	ent.gen = gen
	ent.timer = t.clock.AfterFunc(t.timeout, func() {
		t.expire(id, gen)
	})
}

func (t *table) expire(id string, gen uint64) {
	t.expiring.RLock()
	defer t.expiring.RUnlock()

	t.mu.Lock()
	ent, ok := t.entries[id]
	if !ok || ent.gen != gen {
		t.mu.Unlock()
		return
	}
	t.abandon(ent, t.clock.Now())
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(ent)
	}
}

// release removes ent and stops its timer. Callers hold t.mu.
func (t *table) release(ent *entry) {
	if ent.timer != nil {
		ent.timer.Stop()
	}
	delete(t.entries, ent.id)
}

// abandon releases ent and remembers its identifier for one timeout window.
func (t *table) abandon(ent *entry, now time.Time) {
	t.release(ent)
	ent.parts = nil
	t.tombstone(ent.id, now)
}

// tombstone remembers id as abandoned for one timeout window and prunes
// older tombstones.
func (t *table) tombstone(id string, now time.Time) {
	for old, at := range t.abandoned {
		if now.Sub(at) >= t.timeout {
			delete(t.abandoned, old)
		}
	}
	t.abandoned[id] = now
}

func (t *table) recentlyAbandoned(id string, now time.Time) bool {
	at, ok := t.abandoned[id]
	return ok && now.Sub(at) < t.timeout
}
