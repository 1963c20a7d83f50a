package messagebus

import "sync/atomic"

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	// Published counts events accepted by Send.
	Published uint64
	// Delivered counts handler invocations.
	Delivered uint64
	// Deferred counts events placed on the central queue.
	Deferred uint64
	// Backlogged counts events queued on a busy listener's private backlog.
	Backlogged uint64
	// Dropped counts events discarded: busy listeners with the drop policy,
	// full backlogs, and central queue overflow.
	Dropped uint64
}

type stats struct {
	published  atomic.Uint64
	delivered  atomic.Uint64
	deferred   atomic.Uint64
	backlogged atomic.Uint64
	dropped    atomic.Uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		Published:  s.published.Load(),
		Delivered:  s.delivered.Load(),
		Deferred:   s.deferred.Load(),
		Backlogged: s.backlogged.Load(),
		Dropped:    s.dropped.Load(),
	}
}
