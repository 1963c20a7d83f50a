package event

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Standard errors.
var (
	// ErrInvalidParameter is returned when a caller supplies an invalid
	// argument, e.g. a nil handler.
	ErrInvalidParameter = errors.New("event: invalid parameter")

	// ErrNotSupported is returned when an operation is not available in the
	// current configuration, e.g. blocking on events without a bus.
	ErrNotSupported = errors.New("event: not supported")

	// ErrNoResources is returned when a bounded registration table is full.
	ErrNoResources = errors.New("event: no resources")
)

// Reserved source IDs and wildcard values.
const (
	// IDAny is the wildcard source ID, matching events from any component.
	// It is meaningful only on the listener (matching) side.
	IDAny uint16 = 0

	// ValueAny is the wildcard event value, matching any occurrence.
	// It is meaningful only on the listener (matching) side.
	ValueAny uint16 = 0

	// IDMessageBusListener is the channel on which the bus announces that a
	// handler for a given ID has been registered.
	IDMessageBusListener uint16 = 1021

	// IDNotifyOne is the notification channel that wakes a single waiter.
	IDNotifyOne uint16 = 1022

	// IDNotify is the notification channel, for general purpose
	// synchronisation.
	IDNotify uint16 = 1023
)

// Event represents something that happened: a (source, value) pair with a
// millisecond timestamp, optionally carrying a small inline payload.
//
// Events are immutable values. The wildcard constants IDAny and ValueAny
// have no wildcard meaning in an Event's own identity.
type Event struct {
	// Source identifies the component or channel that raised the event.
	Source uint16

	// Value identifies the specific occurrence within the source.
	Value uint16

	// Timestamp is the system time the event was raised, in milliseconds.
	// The bus stamps it on send if left zero.
	Timestamp uint64

	// Payload optionally carries inline data bytes.
	Payload []byte
}

// New returns an Event for the given source and value.
//
// The event is not sent anywhere; pass it to a Model's Send.
func New(source, value uint16) Event {
	return Event{Source: source, Value: value}
}

// String implements fmt.Stringer.
func (e Event) String() string {
	return fmt.Sprintf("event(%d,%d)", e.Source, e.Value)
}

// Model is the surface of an event bus, as required by consumers that
// register interest in events and raise them. It deliberately mirrors the
// minimal contract the fiber scheduler depends on, so the scheduler does not
// depend on a concrete bus implementation.
type Model interface {
	// Send delivers the given event to all registered listeners. Urgent
	// listeners run synchronously before Send returns; all others are
	// queued for deferred delivery. Send is best effort and never blocks
	// the caller on listener backlog.
	Send(evt Event) error

	// Listen registers a listener for events matching the given source and
	// value, either of which may be the corresponding wildcard. Registration
	// is idempotent. A nil handler reports ErrInvalidParameter.
	Listen(source, value uint16, handler Handler, flags uint16) error

	// Ignore removes a listener previously added with Listen. The source,
	// value, and handler identity must match the registration exactly; a
	// wildcard used at registration is matched only by the same wildcard.
	// Removing a registration twice is safe: the second call is a no-op
	// that reports success.
	Ignore(source, value uint16, handler Handler) error
}

var defaultBus atomic.Value // Model

// DefaultBus returns the bus used by components that raise events without an
// explicit Model reference, or nil if no bus has been constructed yet.
func DefaultBus() Model {
	m, _ := defaultBus.Load().(Model)
	return m
}

// ClaimDefaultBus installs m as the default bus if none is set yet, reporting
// whether the claim succeeded. Safe to call from concurrent constructors.
func ClaimDefaultBus(m Model) bool {
	if m == nil {
		return false
	}
	return defaultBus.CompareAndSwap(nil, m)
}
