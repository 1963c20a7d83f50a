package fiber

import "sync/atomic"

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	// FibersAllocated counts fiber records created on the heap.
	FibersAllocated uint64
	// PoolReuses counts fiber records recycled from the pool instead of
	// allocated.
	PoolReuses uint64
	// FibersReleased counts fibers that ran to completion and were released.
	FibersReleased uint64
	// ContextSwitches counts transfers of control between fibers, including
	// switches to and from the idle fiber.
	ContextSwitches uint64
	// Forks counts Invoke trials promoted to full fibers by a blocking call.
	Forks uint64
	// InvokesInline counts Invoke trials that completed without blocking.
	InvokesInline uint64
}

type stats struct {
	fibersAllocated atomic.Uint64
	poolReuses      atomic.Uint64
	fibersReleased  atomic.Uint64
	contextSwitches atomic.Uint64
	forks           atomic.Uint64
	invokesInline   atomic.Uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		FibersAllocated: s.fibersAllocated.Load(),
		PoolReuses:      s.poolReuses.Load(),
		FibersReleased:  s.fibersReleased.Load(),
		ContextSwitches: s.contextSwitches.Load(),
		Forks:           s.forks.Load(),
		InvokesInline:   s.invokesInline.Load(),
	}
}
