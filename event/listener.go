package event

import (
	"sync"
	"sync/atomic"
)

// Listener delivery-policy flags. Exactly one of Reentrant, QueueIfBusy and
// DropIfBusy is meaningful per listener; NonBlocking and Urgent combine
// orthogonally with any of them.
const (
	// ListenerBusy marks a listener currently executing its handler.
	// Managed by the bus; not meaningful at registration time.
	ListenerBusy uint16 = 0x0004

	// ListenerReentrant permits the handler to be invoked again while a
	// previous invocation is still in progress. The registrant accepts the
	// associated re-entrancy hazards.
	ListenerReentrant uint16 = 0x0008

	// ListenerQueueIfBusy queues events arriving while the handler is busy,
	// up to the listener's queue depth limit, for delivery after the current
	// invocation returns. This is the default policy.
	ListenerQueueIfBusy uint16 = 0x0010

	// ListenerDropIfBusy silently discards events arriving while the handler
	// is busy.
	ListenerDropIfBusy uint16 = 0x0020

	// ListenerNonBlocking declares the handler never blocks, permitting the
	// bus to call it directly rather than through the fork-on-block
	// machinery. Normally reserved for trusted system components.
	ListenerNonBlocking uint16 = 0x0040

	// ListenerUrgent requests delivery in the synchronous pass at raise
	// time, ahead of the deferred queue.
	ListenerUrgent uint16 = 0x0080

	// ListenerDeleting marks a listener for removal. Managed by the bus;
	// a marked listener is never invoked again and is reclaimed by bus
	// housekeeping.
	ListenerDeleting uint16 = 0x8000

	// ListenerImmediate is the combination used for scheduler wake-ups:
	// delivered synchronously at raise time, on the raiser's own context.
	ListenerImmediate = ListenerNonBlocking | ListenerUrgent

	// DefaultFlags is the policy applied when the registrant expresses no
	// preference.
	DefaultFlags = ListenerQueueIfBusy
)

// DefaultListenerQueueDepth bounds each listener's private backlog of events
// queued under the QueueIfBusy policy. Events beyond the limit are dropped.
const DefaultListenerQueueDepth = 10

// Locker serializes handler invocations for a listener when the bus runs in
// concurrent-events mode. Satisfied by the scheduler's Lock.
type Locker interface {
	Wait()
	Notify()
}

// Listener is a registered interest in events: a (source, value) filter,
// either side of which may be a wildcard, a handler, and delivery-policy
// flags. Listeners are created by the bus on Listen and owned by it until
// reclaimed.
type Listener struct {
	source  uint16
	value   uint16
	handler Handler
	flags   atomic.Uint32

	mu       sync.Mutex
	current  Event
	pending  []Event
	maxDepth int

	lock Locker
}

// NewListener returns a Listener for the given filter and handler. A zero
// flags value is replaced with DefaultFlags.
func NewListener(source, value uint16, handler Handler, flags uint16) *Listener {
	if flags&(ListenerReentrant|ListenerQueueIfBusy|ListenerDropIfBusy) == 0 {
		flags |= DefaultFlags
	}
	l := &Listener{
		source:   source,
		value:    value,
		handler:  handler,
		maxDepth: DefaultListenerQueueDepth,
	}
	l.flags.Store(uint32(flags))
	return l
}

// Source returns the listener's source ID filter.
func (l *Listener) Source() uint16 { return l.source }

// Value returns the listener's event value filter.
func (l *Listener) Value() uint16 { return l.value }

// Handler returns the registered handler.
func (l *Listener) Handler() Handler { return l.handler }

// Flags returns the listener's current flag set.
func (l *Listener) Flags() uint16 { return uint16(l.flags.Load()) }

// HasFlags reports whether every flag in mask is set.
func (l *Listener) HasFlags(mask uint16) bool {
	return uint16(l.flags.Load())&mask == mask
}

// SetFlags sets every flag in mask.
func (l *Listener) SetFlags(mask uint16) {
	for {
		old := l.flags.Load()
		if l.flags.CompareAndSwap(old, old|uint32(mask)) {
			return
		}
	}
}

// ClearFlags clears every flag in mask.
func (l *Listener) ClearFlags(mask uint16) {
	for {
		old := l.flags.Load()
		if l.flags.CompareAndSwap(old, old&^uint32(mask)) {
			return
		}
	}
}

// Matches reports whether the listener's filter accepts the given event.
// Wildcard filter fields match anything; the event's own fields are always
// literal.
func (l *Listener) Matches(evt Event) bool {
	return (l.source == IDAny || l.source == evt.Source) &&
		(l.value == ValueAny || l.value == evt.Value)
}

// SameRegistration reports whether other identifies the same registration:
// identical source and value filters (wildcards match only themselves) and
// the same handler identity.
func (l *Listener) SameRegistration(other *Listener) bool {
	return l.source == other.source &&
		l.value == other.value &&
		HandlersEqual(l.handler, other.handler)
}

// SetCurrent records the event about to be delivered to the handler.
func (l *Listener) SetCurrent(evt Event) {
	l.mu.Lock()
	l.current = evt
	l.mu.Unlock()
}

// Current returns the event most recently staged for delivery.
func (l *Listener) Current() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Enqueue appends an event to the listener's private backlog, for delivery
// once the in-progress invocation completes. It reports false if the backlog
// is at its depth limit and the event was dropped.
func (l *Listener) Enqueue(evt Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) >= l.maxDepth {
		return false
	}
	l.pending = append(l.pending, evt)
	return true
}

// DequeuePending pops the oldest backlogged event, staging it as current.
func (l *Listener) DequeuePending() (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return Event{}, false
	}
	evt := l.pending[0]
	copy(l.pending, l.pending[1:])
	l.pending = l.pending[:len(l.pending)-1]
	l.current = evt
	return evt, true
}

// QueueDepth returns the number of backlogged events.
func (l *Listener) QueueDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// SetLock attaches the serialization lock used in concurrent-events mode.
func (l *Listener) SetLock(lk Locker) { l.lock = lk }

// Lock returns the serialization lock, if any.
func (l *Listener) Lock() Locker { return l.lock }

// SetMaxQueueDepth overrides the backlog depth limit. Values < 1 are
// ignored.
func (l *Listener) SetMaxQueueDepth(n int) {
	if n < 1 {
		return
	}
	l.mu.Lock()
	l.maxDepth = n
	l.mu.Unlock()
}
