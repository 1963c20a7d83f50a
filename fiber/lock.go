package fiber

// Lock is a simple fiber synchronisation primitive: Wait blocks the calling
// fiber while the lock is held, Notify wakes the oldest waiter, NotifyAll
// wakes every waiter. It satisfies event.Locker, and the bus uses one per
// listener to serialise handlers in concurrent-events mode.
//
// Lock is not a mutual exclusion lock in the preemptive sense; it relies on
// the cooperative scheduling discipline, like everything else here.
type Lock struct {
	s       *Scheduler
	locked  bool
	waiters fiberQueue
}

// NewLock returns a Lock bound to the scheduler.
func (s *Scheduler) NewLock() *Lock { return &Lock{s: s} }

// Wait acquires the lock, blocking the calling fiber while it is held by
// another. Before the scheduler is initialised, Wait is a no-op. Wait honours
// fork-on-block: blocking here inside an Invoke trial forks the trial.
func (l *Lock) Wait() {
	s := l.s
	if s == nil || !s.running.Load() {
		return
	}
	s.mu.Lock()
	if l.locked {
		f := s.handleForkOnBlockLocked()
		dequeue(f)
		l.waiters.enqueue(f)
		s.scheduleLocked()
	}
	l.locked = true
	s.mu.Unlock()
}

// Notify releases the lock and wakes the oldest waiter, if any.
func (l *Lock) Notify() {
	s := l.s
	if s == nil || !s.running.Load() {
		l.locked = false
		return
	}
	s.mu.Lock()
	if f := l.waiters.head; f != nil {
		l.waiters.remove(f)
		s.runQueueAddLocked(f)
	}
	l.locked = false
	s.mu.Unlock()
}

// NotifyAll releases the lock and wakes every waiter.
func (l *Lock) NotifyAll() {
	s := l.s
	if s == nil || !s.running.Load() {
		l.locked = false
		return
	}
	s.mu.Lock()
	for f := l.waiters.head; f != nil; f = l.waiters.head {
		l.waiters.remove(f)
		s.runQueueAddLocked(f)
	}
	l.locked = false
	s.mu.Unlock()
}

// Locked reports whether the lock is currently held.
func (l *Lock) Locked() bool {
	s := l.s
	if s == nil {
		return l.locked
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return l.locked
}
