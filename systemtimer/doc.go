// Package systemtimer provides the periodic tick that drives time-based
// behaviour: the scheduler's sleep queue, component housekeeping, and any
// callback registered against it.
//
// A Timer fans each tick out to a bounded table of components, standing in
// for the hardware timer interrupt of the original target. It can free-run
// on a real time.Ticker via Start, or be driven manually with Tick, which is
// how tests take control of time. Either way the timer's clock advances by
// exactly one period per tick, so time observed through CurrentTime is
// deterministic under manual driving.
package systemtimer
