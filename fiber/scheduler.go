package fiber

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/lancaster-university/microbit-dal-sub002/event"
)

const (
	// DefaultPoolSize bounds the pool of recycled fiber records.
	DefaultPoolSize = 3

	// DefaultIdleComponentSlots bounds the idle component table.
	DefaultIdleComponentSlots = 6

	// DefaultTickPeriod is the nominal interval between scheduler ticks.
	DefaultTickPeriod = 6 * time.Millisecond
)

// IdleComponent receives background processing time whenever the scheduler
// has no runnable fibers. IdleTick must not block; it runs on the idle
// fiber's context (or inline on a pinned fiber's context).
type IdleComponent interface {
	IdleTick()
}

// Scheduler is a cooperative round-robin fiber scheduler. A zero Scheduler is
// not usable; construct with New and start with Initialize. All blocking
// operations must be called from fiber context, i.e. from the goroutine that
// called Initialize or from a fiber the scheduler created.
type Scheduler struct {
	logger       *logiface.Logger[logiface.Event]
	clock        Clock
	ticks        TickSource
	tickPeriod   time.Duration
	idleWaitHint time.Duration
	poolSize     int
	idleSlots    int

	running       atomic.Bool
	internalTicks atomic.Uint64

	mu         sync.Mutex
	runQueue   fiberQueue
	sleepQueue fiberQueue
	waitQueue  fiberQueue
	pool       fiberQueue
	fiberList  *Fiber
	current    *Fiber
	idleFiber  *Fiber
	mainFiber  *Fiber
	fob        *fobFrame
	idleComps  []IdleComponent

	bus         event.Model
	wakeHandler event.Handler

	// wake nudges the idle fiber out of its low-power doze when work
	// arrives from outside fiber context.
	wake chan struct{}

	stats stats
}

// New returns a Scheduler configured by the given options. The scheduler does
// nothing until Initialize is called.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveSchedulerOptions(opts)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		logger:       cfg.logger,
		clock:        cfg.clock,
		ticks:        cfg.ticks,
		tickPeriod:   cfg.tickPeriod,
		idleWaitHint: cfg.idleWaitHint,
		poolSize:     cfg.poolSize,
		idleSlots:    cfg.idleSlots,
		wake:         make(chan struct{}, 1),
	}
	s.wakeHandler = event.HandlerFunc(s.onWakeEvent)
	return s, nil
}

// Initialize starts the scheduler: the calling goroutine becomes the main
// fiber, the idle fiber is created, and (if a bus was supplied) the
// notification channels are subscribed. Calling Initialize on a running
// scheduler is a no-op.
//
// bus may be nil, in which case event-blocking operations report
// ErrNotSupported.
func (s *Scheduler) Initialize(bus event.Model) error {
	s.mu.Lock()
	if s.running.Load() {
		s.mu.Unlock()
		return nil
	}
	s.bus = bus

	main := s.getFiberContextLocked()
	s.runQueue.enqueue(main)
	s.current = main
	s.mainFiber = main

	s.idleFiber = s.getFiberContextLocked()
	s.running.Store(true)
	s.mu.Unlock()

	go s.idleLoop()

	if bus != nil {
		if err := bus.Listen(event.IDNotify, event.ValueAny, s.wakeHandler, event.ListenerImmediate); err != nil {
			return err
		}
		if err := bus.Listen(event.IDNotifyOne, event.ValueAny, s.wakeHandler, event.ListenerImmediate); err != nil {
			return err
		}
	}
	if s.ticks != nil {
		if err := s.ticks.AddTickCallback(s.Tick); err != nil {
			return err
		}
	}

	s.logger.Info().
		Int("poolSize", s.poolSize).
		Bool("bus", bus != nil).
		Log("fiber scheduler initialised")
	return nil
}

// Running reports whether Initialize has completed.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Current returns the currently executing fiber.
func (s *Scheduler) Current() *Fiber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentTime returns the scheduler's time in milliseconds: the configured
// Clock if one was supplied, otherwise an internal counter advanced by the
// tick period on each Tick.
func (s *Scheduler) CurrentTime() uint64 {
	if s.clock != nil {
		return s.clock.CurrentTime()
	}
	return s.internalTicks.Load()
}

func (s *Scheduler) now() uint32 { return uint32(s.CurrentTime()) }

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats { return s.stats.snapshot() }

// RunQueueEmpty reports whether any fiber is runnable. The bus uses this to
// decide how long to keep draining deferred events during idle time.
func (s *Scheduler) RunQueueEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runQueue.empty()
}

// AddIdleComponent registers a component for background processing whenever
// the run queue is empty. The table is bounded; ErrNoResources is reported
// when it is full.
func (s *Scheduler) AddIdleComponent(c IdleComponent) error {
	if c == nil {
		return ErrInvalidParameter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.idleComps) >= s.idleSlots {
		return ErrNoResources
	}
	s.idleComps = append(s.idleComps, c)
	return nil
}

// RemoveIdleComponent removes a previously registered idle component,
// reporting ErrInvalidParameter if it is not registered.
func (s *Scheduler) RemoveIdleComponent(c IdleComponent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.idleComps {
		if x == c {
			s.idleComps = append(s.idleComps[:i], s.idleComps[i+1:]...)
			return nil
		}
	}
	return ErrInvalidParameter
}

// Tick advances scheduler time by one period and moves expired sleepers to
// the run queue. It is the one entry point intended to be driven from outside
// fiber context (the system timer); it never dispatches.
func (s *Scheduler) Tick() {
	if s.clock == nil {
		s.internalTicks.Add(uint64(s.tickPeriod / time.Millisecond))
	}
	if !s.running.Load() {
		return
	}
	s.mu.Lock()
	now := s.now()
	for f := s.sleepQueue.head; f != nil; {
		next := f.qnext
		// Signed comparison tolerates wraparound of the 32 bit tick space.
		if int32(now-f.context) >= 0 {
			s.sleepQueue.remove(f)
			s.runQueueAddLocked(f)
		}
		f = next
	}
	s.mu.Unlock()
}

// Sleep blocks the calling fiber for at least the given duration, rounded up
// to whole milliseconds. Elapsed time is measured in scheduler ticks, so the
// fiber becomes runnable on the first tick at or after the deadline; the
// actual delay is never shorter than requested.
//
// Before Initialize, Sleep degrades to a plain blocking delay.
func (s *Scheduler) Sleep(d time.Duration) {
	if !s.running.Load() {
		if d > 0 {
			time.Sleep(d)
		}
		return
	}
	ms := uint32((d + time.Millisecond - 1) / time.Millisecond)
	s.mu.Lock()
	f := s.handleForkOnBlockLocked()
	f.context = s.now() + ms
	dequeue(f)
	s.sleepQueue.enqueue(f)
	s.scheduleLocked()
	s.mu.Unlock()
}

// WakeOnEvent arms the calling fiber to be woken by the next event matching
// the given source and value (either may be a wildcard), without blocking.
// The fiber moves to the wait queue; the caller must complete the block with
// Schedule once any critical work is done, closing the race between deciding
// to wait and actually waiting.
//
// Waiting requires a bus; without one, or before Initialize, WakeOnEvent
// reports ErrNotSupported.
func (s *Scheduler) WakeOnEvent(source, value uint16) error {
	if !s.running.Load() || s.bus == nil {
		return ErrNotSupported
	}
	s.mu.Lock()
	f := s.handleForkOnBlockLocked()
	f.context = uint32(value)<<16 | uint32(source)
	dequeue(f)
	s.waitQueue.enqueue(f)
	s.mu.Unlock()

	// The notification channels hold a permanent subscription; everything
	// else is armed one-shot here and withdrawn on wake.
	if source != event.IDNotify && source != event.IDNotifyOne {
		return s.bus.Listen(source, value, s.wakeHandler, event.ListenerImmediate)
	}
	return nil
}

// WaitForEvent blocks the calling fiber until an event matching the given
// source and value (either may be a wildcard) is raised. Equivalent to
// WakeOnEvent followed by Schedule.
func (s *Scheduler) WaitForEvent(source, value uint16) error {
	if err := s.WakeOnEvent(source, value); err != nil {
		return err
	}
	s.Schedule()
	return nil
}

// Schedule yields the calling fiber, running the dispatcher: the next
// runnable fiber (or the idle fiber) is paged in. A fiber parked on the sleep
// or wait queue by WakeOnEvent suspends here until woken.
func (s *Scheduler) Schedule() {
	if !s.running.Load() {
		return
	}
	s.mu.Lock()
	s.scheduleLocked()
	s.mu.Unlock()
}

// Create starts a new fiber executing entry, placing it at the back of the
// run queue. The entry function runs to completion and the fiber is then
// released.
func (s *Scheduler) Create(entry func()) (*Fiber, error) {
	return s.CreateWithCompletion(entry, nil)
}

// CreateWithCompletion starts a new fiber executing entry, then completion,
// before release. The completion function runs on the fiber's own context.
func (s *Scheduler) CreateWithCompletion(entry, completion func()) (*Fiber, error) {
	if entry == nil {
		return nil, ErrInvalidParameter
	}
	if !s.running.Load() {
		return nil, ErrNotSupported
	}
	s.mu.Lock()
	f := s.getFiberContextLocked()
	f.entry = entry
	f.completion = completion
	s.runQueueAddLocked(f)
	s.mu.Unlock()
	go s.trampoline(f)
	return f, nil
}

// Release retires the calling fiber: it is removed from all queues, its
// record is recycled through the pool, and control transfers to the next
// runnable fiber. Release never returns.
func (s *Scheduler) Release() {
	if !s.running.Load() {
		return
	}
	s.mu.Lock()
	f := s.current
	if f == s.idleFiber || f.released {
		s.mu.Unlock()
		return
	}
	f.released = true
	dequeue(f)
	s.removeFromFiberListLocked(f)
	s.recycleLocked(f)
	s.stats.fibersReleased.Add(1)

	next := s.pickNextLocked(f)
	s.current = next
	s.stats.contextSwitches.Add(1)
	next.ctx.signal()
	s.mu.Unlock()
	runtime.Goexit()
}

// trampoline backs a created fiber: park until first dispatch, run the entry
// and completion functions, then release.
func (s *Scheduler) trampoline(f *Fiber) {
	f.ctx.park()
	f.entry()
	if f.completion != nil {
		f.completion()
	}
	s.Release()
}

// idleLoop backs the idle fiber. It is dispatched whenever the run queue is
// empty, gives idle components background time, and dozes until work arrives.
func (s *Scheduler) idleLoop() {
	s.idleFiber.ctx.park()
	for {
		s.idleOnce()
		s.mu.Lock()
		s.scheduleLocked()
		s.mu.Unlock()
	}
}

// idleOnce runs one round of idle processing. Called without the scheduler
// mutex held; idle components are free to call back into the scheduler.
func (s *Scheduler) idleOnce() {
	s.mu.Lock()
	comps := append([]IdleComponent(nil), s.idleComps...)
	empty := s.runQueue.empty()
	s.mu.Unlock()

	for _, c := range comps {
		c.IdleTick()
	}

	if empty && s.RunQueueEmpty() {
		// Low-power doze, the analogue of waiting for interrupt. The hint
		// bounds latency against wake-ups that race the doze.
		select {
		case <-s.wake:
		case <-time.After(s.idleWaitHint):
		}
	}
}

// onWakeEvent is the scheduler's bus handler: it scans the wait queue for
// fibers whose armed match word accepts the event and moves them to the run
// queue. An event on the notify-one channel wakes only the first matching
// waiter on the notify channel. One-shot subscriptions of the woken fibers
// are withdrawn after the scan; the notification channels stay subscribed.
func (s *Scheduler) onWakeEvent(evt event.Event) {
	if !s.running.Load() {
		return
	}
	var withdrawals [][2]uint16
	notifyOneDone := false

	s.mu.Lock()
	for f := s.waitQueue.head; f != nil; {
		next := f.qnext
		src := uint16(f.context)
		val := uint16(f.context >> 16)

		woken := false
		if evt.Source == event.IDNotifyOne && src == event.IDNotify {
			if !notifyOneDone && (val == event.ValueAny || val == evt.Value) {
				woken = true
				notifyOneDone = true
			}
		} else if (src == event.IDAny || src == evt.Source) &&
			(val == event.ValueAny || val == evt.Value) {
			woken = true
		}

		if woken {
			s.waitQueue.remove(f)
			s.runQueueAddLocked(f)
			if src != event.IDNotify && src != event.IDNotifyOne {
				withdrawals = append(withdrawals, [2]uint16{src, val})
			}
		}
		f = next
	}
	s.mu.Unlock()

	for _, w := range withdrawals {
		_ = s.bus.Ignore(w[0], w[1], s.wakeHandler)
	}
}

// scheduleLocked is the dispatcher. Callers hold the scheduler mutex; the
// mutex is released around the actual suspension and held again on return.
func (s *Scheduler) scheduleLocked() {
	if !s.running.Load() {
		return
	}

	// Fork-on-block split: the calling goroutine is an Invoke trial whose
	// blocking primitive just forked a child. Release the parent to resume
	// inside Invoke, and carry on as the child once dispatched.
	if fob := s.fob; fob != nil && fob.forked && !fob.released {
		fob.released = true
		s.fob = nil
		child := fob.child
		close(fob.handoff)
		s.mu.Unlock()
		child.ctx.park()
		s.mu.Lock()
		return
	}

	old := s.current
	next := s.pickNextLocked(old)

	if next == s.idleFiber && old.hasFlags(flagDoNotPage) {
		// Pinned fiber: run idle processing inline instead of paging.
		for s.runQueue.empty() {
			s.mu.Unlock()
			s.idleOnce()
			s.mu.Lock()
		}
		next = s.runQueue.head
	}

	if next != old {
		s.swapLocked(old, next)
	}
}

// pickNextLocked implements the round robin: the fiber after old on the run
// queue, wrapping to the head, or the idle fiber when nothing is runnable.
func (s *Scheduler) pickNextLocked(old *Fiber) *Fiber {
	if s.runQueue.empty() {
		return s.idleFiber
	}
	if old.queue == &s.runQueue {
		if old.qnext != nil {
			return old.qnext
		}
		return s.runQueue.head
	}
	return s.runQueue.head
}

// swapLocked transfers control from old to next. The outgoing goroutine
// parks without the mutex and reacquires it when dispatched again.
func (s *Scheduler) swapLocked(old, next *Fiber) {
	s.current = next
	s.stats.contextSwitches.Add(1)
	next.ctx.signal()
	s.mu.Unlock()
	old.ctx.park()
	s.mu.Lock()
}

// handleForkOnBlockLocked resolves which fiber a blocking primitive should
// park. In an unforked Invoke trial it allocates the child fiber that will
// carry the blocked continuation, leaving the parent free to resume;
// otherwise it returns the current fiber.
func (s *Scheduler) handleForkOnBlockLocked() *Fiber {
	cur := s.current
	if cur.hasFlags(flagForkOnBlock) && s.fob != nil && !s.fob.forked {
		child := s.getFiberContextLocked()
		child.flags.Store(flagChild)
		child.userData = cur.userData
		cur.userData = nil
		cur.setFlags(flagParent)
		s.fob.child = child
		s.fob.forked = true
		s.stats.forks.Add(1)
		return child
	}
	return cur
}

// runQueueAddLocked enqueues f as runnable and nudges the idle doze.
func (s *Scheduler) runQueueAddLocked(f *Fiber) {
	s.runQueue.enqueue(f)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// getFiberContextLocked returns a clean fiber record, recycled from the pool
// when possible, and links it onto the live list.
func (s *Scheduler) getFiberContextLocked() *Fiber {
	var f *Fiber
	if s.pool.head != nil {
		f = s.pool.head
		s.pool.remove(f)
		s.stats.poolReuses.Add(1)
	} else {
		f = &Fiber{}
		s.stats.fibersAllocated.Add(1)
	}
	f.flags.Store(0)
	f.context = 0
	f.entry = nil
	f.completion = nil
	f.userData = nil
	f.released = false
	f.ctx = newExecContext()
	f.next = s.fiberList
	s.fiberList = f
	return f
}

// recycleLocked returns f to the pool, or abandons it to the collector when
// the pool is at capacity.
func (s *Scheduler) recycleLocked(f *Fiber) {
	if s.pool.len() >= s.poolSize {
		return
	}
	s.pool.enqueue(f)
}

func (s *Scheduler) removeFromFiberListLocked(f *Fiber) {
	var prev *Fiber
	for cur := s.fiberList; cur != nil; cur = cur.next {
		if cur == f {
			if prev == nil {
				s.fiberList = cur.next
			} else {
				prev.next = cur.next
			}
			f.next = nil
			return
		}
		prev = cur
	}
}
