package fiber

import (
	"sync/atomic"
)

// Fiber state flags.
const (
	// flagForkOnBlock marks a fiber executing an Invoke trial: a blocking
	// call must fork a child fiber rather than suspend the caller.
	flagForkOnBlock uint32 = 0x01

	// flagParent marks a fiber whose Invoke trial has forked.
	flagParent uint32 = 0x02

	// flagChild marks a fiber created by a fork, running the remainder of an
	// invoked function.
	flagChild uint32 = 0x04

	// flagDoNotPage pins the fiber: when it blocks with an empty run queue,
	// idle processing runs inline on its context instead of switching to the
	// idle fiber.
	flagDoNotPage uint32 = 0x08
)

// Fiber is the execution record for one logical thread. Fibers are created by
// the scheduler ([Scheduler.Create], [Scheduler.Invoke]) and recycled through
// its pool; application code holds them only to tag state such as
// [Fiber.SetDoNotPage] or user data.
type Fiber struct {
	flags atomic.Uint32

	// context holds the state a blocking primitive needs to decide when to
	// wake this fiber: a wake-up time on the sleep queue, an encoded
	// (value<<16 | source) match word on the wait queue.
	context uint32

	// queue membership. A fiber is on at most one queue; queue is nil when
	// runnable-and-current or parked off-queue.
	queue *fiberQueue
	qnext *Fiber

	// next links the scheduler's list of all live fibers.
	next *Fiber

	// ctx parks and resumes the goroutine backing this fiber.
	ctx execContext

	entry      func()
	completion func()

	userData any
	released bool
}

func (f *Fiber) hasFlags(mask uint32) bool { return f.flags.Load()&mask != 0 }

func (f *Fiber) setFlags(mask uint32) {
	for {
		old := f.flags.Load()
		if f.flags.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

func (f *Fiber) clearFlags(mask uint32) {
	for {
		old := f.flags.Load()
		if f.flags.CompareAndSwap(old, old&^mask) {
			return
		}
	}
}

// SetDoNotPage pins the fiber so that idle processing runs inline on its
// context rather than paging in the idle fiber. Intended for fibers whose
// timing is sensitive to the extra context switches.
func (f *Fiber) SetDoNotPage() { f.setFlags(flagDoNotPage) }

// UserData returns the opaque value attached with SetUserData.
func (f *Fiber) UserData() any { return f.userData }

// SetUserData attaches an opaque value to the fiber. Attaching user data to
// the current fiber during an Invoke trial forces subsequent Invoke calls on
// it to create full fibers, since the trial slot is no longer clean.
func (f *Fiber) SetUserData(v any) { f.userData = v }

// fiberQueue is an intrusive singly linked queue of fibers with tail
// insertion. All mutation happens under the scheduler mutex.
type fiberQueue struct {
	head *Fiber
	tail *Fiber
}

// enqueue appends f. The fiber must not already be on a queue.
func (q *fiberQueue) enqueue(f *Fiber) {
	f.queue = q
	f.qnext = nil
	if q.tail == nil {
		q.head = f
	} else {
		q.tail.qnext = f
	}
	q.tail = f
}

// remove unlinks f from whichever queue it is on. A fiber on no queue is left
// untouched.
func (q *fiberQueue) remove(f *Fiber) {
	if f.queue != q {
		return
	}
	var prev *Fiber
	for cur := q.head; cur != nil; cur = cur.qnext {
		if cur == f {
			if prev == nil {
				q.head = cur.qnext
			} else {
				prev.qnext = cur.qnext
			}
			if q.tail == cur {
				q.tail = prev
			}
			f.queue = nil
			f.qnext = nil
			return
		}
		prev = cur
	}
}

// empty reports whether the queue holds no fibers.
func (q *fiberQueue) empty() bool { return q.head == nil }

// len counts the queued fibers.
func (q *fiberQueue) len() int {
	n := 0
	for f := q.head; f != nil; f = f.qnext {
		n++
	}
	return n
}

// dequeue removes f from its current queue, if any.
func dequeue(f *Fiber) {
	if f.queue != nil {
		f.queue.remove(f)
	}
}
