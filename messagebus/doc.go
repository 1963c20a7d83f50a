// Package messagebus implements the asynchronous publish/subscribe event bus
// that connects event producers to listener callbacks, on top of the fiber
// scheduler.
//
// Raising an event performs a synchronous pass over urgent listeners on the
// raiser's context, then places the event on a bounded central queue for
// deferred delivery. Deferred events drain during scheduler idle time, each
// delivery running through the scheduler's fork-on-block machinery so that
// handlers may block without stalling the bus.
//
// Each listener carries a delivery policy deciding what happens when an
// event arrives while its handler is already running: queue it (the
// default), drop it, or deliver re-entrantly. See the flag constants in
// package event.
//
// The bus registers itself as a scheduler idle component; constructing it
// against an initialised scheduler is all the wiring required.
package messagebus
