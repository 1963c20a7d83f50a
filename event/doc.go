// Package event defines the event primitives shared by the runtime: the
// Event value type, the Listener record and its delivery-policy flags, the
// Handler callback abstraction, and the Model interface implemented by event
// buses.
//
// The package is a leaf: it has no dependency on the fiber scheduler, which
// allows the scheduler to block on events through the Model interface while
// the concrete bus implementation (package messagebus) builds on top of the
// scheduler.
package event
