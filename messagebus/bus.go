package messagebus

import (
	"sort"
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/lancaster-university/microbit-dal-sub002/event"
	"github.com/lancaster-university/microbit-dal-sub002/fiber"
)

// MessageBus routes events from producers to listener callbacks. It
// implements event.Model.
type MessageBus struct {
	s       *fiber.Scheduler
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	mode    ConcurrencyMode

	mu         sync.Mutex
	listeners  []*event.Listener
	queue      []event.Event
	queueDepth int
	deletionCB func(*event.Listener)

	stats stats
}

// New returns a MessageBus bound to the given scheduler, registered as one of
// its idle components. The first bus constructed claims the process-wide
// default reported by event.DefaultBus.
//
// The usual boot order is: construct the scheduler, construct the bus against
// it, then Initialize the scheduler with the bus. The bus is fully usable
// before the scheduler starts; deliveries are simply synchronous until then.
func New(s *fiber.Scheduler, opts ...Option) (*MessageBus, error) {
	if s == nil {
		return nil, event.ErrInvalidParameter
	}
	cfg, err := resolveBusOptions(opts)
	if err != nil {
		return nil, err
	}
	b := &MessageBus{
		s:          s,
		logger:     cfg.logger,
		mode:       cfg.mode,
		queueDepth: cfg.queueDepth,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 1,
			time.Minute: 10,
		}),
	}
	if err := s.AddIdleComponent(b); err != nil {
		return nil, err
	}
	event.ClaimDefaultBus(b)
	return b, nil
}

// Send delivers evt to all matching listeners. Urgent listeners run
// synchronously on the caller's context before Send returns; remaining
// matches are queued for deferred delivery during idle time. A zero
// timestamp is stamped with the current scheduler time.
//
// Send never blocks on listener backlog. If the deferred queue is full the
// event is dropped for the deferred listeners and ErrNoResources is
// reported; urgent deliveries have still happened.
func (b *MessageBus) Send(evt event.Event) error {
	if evt.Timestamp == 0 {
		evt.Timestamp = b.s.CurrentTime()
	}
	b.stats.published.Add(1)

	// Deferred events raised by the urgent pass below queue behind this
	// position, preserving causal order.
	b.mu.Lock()
	insertAt := len(b.queue)
	b.mu.Unlock()

	if b.process(evt, true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) >= b.queueDepth {
		b.stats.dropped.Add(1)
		b.warnDrop(evt, "deferred queue full")
		return event.ErrNoResources
	}
	if insertAt > len(b.queue) {
		insertAt = len(b.queue)
	}
	b.queue = append(b.queue, event.Event{})
	copy(b.queue[insertAt+1:], b.queue[insertAt:])
	b.queue[insertAt] = evt
	b.stats.deferred.Add(1)
	return nil
}

// Listen registers handler for events matching source and value, either of
// which may be the corresponding wildcard. Registration is idempotent: a
// duplicate of a live registration is discarded, and a duplicate of one
// marked for removal revives it instead. A genuinely new registration is
// announced with an event on the IDMessageBusListener channel, carrying the
// registered source as its value.
func (b *MessageBus) Listen(source, value uint16, handler event.Handler, flags uint16) error {
	if handler == nil {
		return event.ErrInvalidParameter
	}
	l := event.NewListener(source, value, handler, flags)
	if b.mode == ConcurrentEvents {
		l.SetLock(b.s.NewLock())
	}
	if !b.add(l) {
		return nil
	}
	_ = b.Send(event.New(event.IDMessageBusListener, source))
	return nil
}

// Ignore removes the registration identified by source, value and handler.
// Matching is exact: a wildcard used at registration time is matched only by
// the same wildcard. The listener is marked and never invoked again;
// reclamation happens during bus housekeeping, so removal is safe from any
// context, including a handler removing itself. Removing an absent
// registration is a no-op.
func (b *MessageBus) Ignore(source, value uint16, handler event.Handler) error {
	if handler == nil {
		return event.ErrInvalidParameter
	}
	probe := event.NewListener(source, value, handler, 0)

	var marked []*event.Listener
	b.mu.Lock()
	cb := b.deletionCB
	for _, l := range b.listeners {
		if !l.HasFlags(event.ListenerDeleting) && l.SameRegistration(probe) {
			l.SetFlags(event.ListenerDeleting)
			marked = append(marked, l)
		}
	}
	b.mu.Unlock()

	if cb != nil {
		for _, l := range marked {
			cb(l)
		}
	}
	return nil
}

// ElementAt returns the nth registered listener in (source, value) order, or
// nil when out of range. Intended for diagnostics.
func (b *MessageBus) ElementAt(n int) *event.Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 0 || n >= len(b.listeners) {
		return nil
	}
	return b.listeners[n]
}

// SetListenerDeletionCallback registers fn to be called whenever a listener
// is marked for removal, before reclamation. Pass nil to clear.
func (b *MessageBus) SetListenerDeletionCallback(fn func(*event.Listener)) {
	b.mu.Lock()
	b.deletionCB = fn
	b.mu.Unlock()
}

// Stats returns a snapshot of the bus counters.
func (b *MessageBus) Stats() Stats { return b.stats.snapshot() }

// IdleTick implements fiber.IdleComponent: it reclaims listeners marked for
// removal, then drains deferred events for as long as no fiber is runnable,
// yielding the moment real work appears.
func (b *MessageBus) IdleTick() {
	b.reclaim()
	for b.s.RunQueueEmpty() {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		evt := b.queue[0]
		b.queue = append(b.queue[:0], b.queue[1:]...)
		b.mu.Unlock()

		if b.mode == ConcurrentEvents && b.s.Running() {
			e := evt
			_ = b.s.Invoke(func() { b.process(e, false) })
		} else {
			b.process(evt, false)
		}
	}
}

// add inserts l in (source, value) order, reporting whether the registration
// is genuinely new.
func (b *MessageBus) add(l *event.Listener) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.listeners {
		if existing.SameRegistration(l) {
			// Revive a registration racing its own reclamation; a live
			// duplicate is simply discarded.
			existing.ClearFlags(event.ListenerDeleting)
			return false
		}
	}
	i := sort.Search(len(b.listeners), func(i int) bool {
		e := b.listeners[i]
		if e.Source() != l.Source() {
			return e.Source() > l.Source()
		}
		return e.Value() > l.Value()
	})
	b.listeners = append(b.listeners, nil)
	copy(b.listeners[i+1:], b.listeners[i:])
	b.listeners[i] = l
	return true
}

// process performs one delivery pass over the listeners matching evt. The
// urgent pass covers listeners flagged for immediate delivery (or all of
// them, before the scheduler runs); the deferred pass covers the rest. It
// reports whether no matching listener remains undelivered.
func (b *MessageBus) process(evt event.Event, urgent bool) bool {
	b.mu.Lock()
	snapshot := append([]*event.Listener(nil), b.listeners...)
	b.mu.Unlock()

	complete := true
	running := b.s.Running()
	for _, l := range snapshot {
		if !l.Matches(evt) || l.HasFlags(event.ListenerDeleting) {
			continue
		}
		listenerUrgent := true
		if running {
			listenerUrgent = l.HasFlags(event.ListenerImmediate)
		}
		if listenerUrgent != urgent {
			complete = false
			continue
		}
		if b.mode == ConcurrentListeners && running && !l.HasFlags(event.ListenerNonBlocking) {
			_ = b.s.Invoke(func() { b.deliver(l, evt) })
		} else {
			b.deliver(l, evt)
		}
	}
	return complete
}

// deliver runs l's handler for evt, applying the listener's busy policy, and
// drains any backlog accumulated meanwhile. The event travels by value;
// concurrent deliveries to the same listener never share staging state.
func (b *MessageBus) deliver(l *event.Listener, evt event.Event) {
	if l.HasFlags(event.ListenerBusy) {
		if l.HasFlags(event.ListenerDropIfBusy) {
			b.stats.dropped.Add(1)
			b.warnDrop(evt, "listener busy")
			return
		}
		if l.HasFlags(event.ListenerQueueIfBusy) && b.mode == ConcurrentListeners {
			if l.Enqueue(evt) {
				b.stats.backlogged.Add(1)
			} else {
				b.stats.dropped.Add(1)
				b.warnDrop(evt, "listener backlog full")
			}
			return
		}
		// Reentrant: fall through and invoke the handler again.
	}

	var lk event.Locker
	if b.mode == ConcurrentEvents {
		if lk = l.Lock(); lk != nil {
			lk.Wait()
		}
	}

	l.SetFlags(event.ListenerBusy)
	l.SetCurrent(evt)
	for {
		l.Handler().HandleEvent(evt)
		b.stats.delivered.Add(1)
		if l.HasFlags(event.ListenerQueueIfBusy) {
			if next, ok := l.DequeuePending(); ok {
				evt = next
				// Give the rest of the system a turn between backlog items.
				if b.s.Running() {
					b.s.Schedule()
				}
				continue
			}
		}
		break
	}
	l.ClearFlags(event.ListenerBusy)

	if lk != nil {
		lk.Notify()
	}
}

// reclaim frees listeners marked for removal that are not mid-delivery.
func (b *MessageBus) reclaim() {
	b.mu.Lock()
	kept := b.listeners[:0]
	for _, l := range b.listeners {
		if l.HasFlags(event.ListenerDeleting) && !l.HasFlags(event.ListenerBusy) {
			continue
		}
		kept = append(kept, l)
	}
	for i := len(kept); i < len(b.listeners); i++ {
		b.listeners[i] = nil
	}
	b.listeners = kept
	b.mu.Unlock()
}

// warnDrop logs a dropped event, rate limited per (source, value) so a
// runaway producer cannot flood the log.
func (b *MessageBus) warnDrop(evt event.Event, reason string) {
	key := uint32(evt.Source)<<16 | uint32(evt.Value)
	if _, ok := b.limiter.Allow(key); !ok {
		return
	}
	b.logger.Warning().
		Int("source", int(evt.Source)).
		Int("value", int(evt.Value)).
		Str("reason", reason).
		Log("event dropped")
}
