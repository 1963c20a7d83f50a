package fiber

// execContext is the execution-context switch primitive: the one piece of
// this package that stands in for the register save/restore a bare-metal port
// performs. Each fiber's goroutine parks on its own resume channel; the
// dispatcher transfers control by signalling the target's channel and parking
// the outgoing goroutine on its own.
//
// The channel is buffered so a dispatch never blocks the dispatcher, even
// when the target goroutine has not reached its park yet (a freshly created
// fiber, or a forked child racing its first park). A fiber can hold at most
// one pending resume, since it sits on at most one queue and is dispatched at
// most once per suspension.
type execContext struct {
	resume chan struct{}
}

func newExecContext() execContext {
	return execContext{resume: make(chan struct{}, 1)}
}

// signal hands control to the goroutine parked (or about to park) on this
// context. Must not be called twice without an intervening park.
func (c execContext) signal() {
	c.resume <- struct{}{}
}

// park suspends the calling goroutine until the next signal. The caller must
// not hold the scheduler mutex.
func (c execContext) park() {
	<-c.resume
}
