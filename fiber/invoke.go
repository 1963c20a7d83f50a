package fiber

// fobFrame tracks one fork-on-block trial. At most one trial is in flight at
// a time, since the parent is suspended for the trial's duration; the
// scheduler field holding it is cleared the moment the trial forks or
// completes.
type fobFrame struct {
	parent *Fiber
	child  *Fiber

	// handoff is closed exactly once, releasing the parent: either when fn
	// ran to completion without blocking, or at the first blocking call,
	// after the continuation has been reparented onto child.
	handoff chan struct{}

	forked   bool
	released bool
}

// Invoke executes fn as if called directly, but with fork-on-block
// semantics: if fn completes without blocking, no fiber is created and
// Invoke returns when fn does. If fn performs a blocking call, a single
// fiber is allocated for its continuation at that point and Invoke returns
// immediately, the remainder of fn proceeding as an ordinary fiber.
//
// Invoking from a context that cannot host a trial (a fiber already in a
// trial, a forked child, or one carrying user data) degrades to Create: fn
// simply runs as a full fiber.
func (s *Scheduler) Invoke(fn func()) error {
	if fn == nil {
		return ErrInvalidParameter
	}
	if !s.running.Load() {
		return ErrNotSupported
	}

	s.mu.Lock()
	cur := s.current
	if cur.hasFlags(flagForkOnBlock|flagParent|flagChild) || cur.userData != nil {
		s.mu.Unlock()
		_, err := s.Create(fn)
		return err
	}
	cur.setFlags(flagForkOnBlock)
	fob := &fobFrame{parent: cur, handoff: make(chan struct{})}
	s.fob = fob
	s.mu.Unlock()

	go s.runTrial(fob, fn)
	<-fob.handoff

	// The close of handoff orders the trial's writes before these reads.
	if !fob.forked {
		cur.userData = nil
		s.stats.invokesInline.Add(1)
	}
	cur.clearFlags(flagForkOnBlock | flagParent)

	s.mu.Lock()
	if s.fob == fob {
		s.fob = nil
	}
	s.mu.Unlock()
	return nil
}

// runTrial executes fn on behalf of the suspended parent. If the trial
// forked, this goroutine has been running as the child fiber since the fork,
// and retires it on completion; otherwise it releases the parent and exits.
func (s *Scheduler) runTrial(fob *fobFrame, fn func()) {
	fn()
	if fob.forked {
		s.Release()
		return
	}
	close(fob.handoff)
}
