// Package fiber implements the cooperative, non-preemptive scheduler at the
// heart of the runtime.
//
// A Fiber is a logical thread of execution with its own saved execution
// context. Fibers are scheduled round robin, and suspend only at explicit
// blocking calls: [Scheduler.Sleep], [Scheduler.WaitForEvent], [Lock.Wait],
// and the dispatcher itself via [Scheduler.Schedule]. There is no preemption;
// a fiber that never blocks starves every other fiber, including the idle
// fiber.
//
// The scheduler serves two purposes:
//
//  1. It provides a clean abstraction for application code to build async
//     behaviour (callbacks that may block).
//  2. It decouples event handlers from interrupt context: interrupt-driven
//     producers raise events, and handlers run in fiber context.
//
// # Fork on block
//
// Event handlers are frequently trivial functions that complete quickly, so
// creating a fiber for every delivery wastes memory. [Scheduler.Invoke] runs
// a function optimistically on the calling fiber's schedule slot, and
// promotes it to a full fiber only if it actually performs a blocking call.
// A function that never blocks costs zero fiber allocations.
//
// # Concurrency model
//
// A single fiber executes at any instant. Producers running outside fiber
// context (the system timer tick, interrupt-style event sources) may only
// manipulate scheduler queues through the provided entry points
// ([Scheduler.Tick], the event wake path); they must never invoke the
// dispatcher. Queue state shared with those contexts is guarded by an
// internal mutex, the moral equivalent of the interrupt-disable sections the
// original hardware target uses.
package fiber
