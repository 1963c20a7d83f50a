package systemtimer

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidParameter is returned for invalid arguments, e.g. a nil
	// component or a non-positive period.
	ErrInvalidParameter = errors.New("systemtimer: invalid parameter")

	// ErrNoResources is returned when the component table is full.
	ErrNoResources = errors.New("systemtimer: no resources")

	// ErrAlreadyRunning is returned by Start on a running timer.
	ErrAlreadyRunning = errors.New("systemtimer: already running")
)

const (
	// DefaultPeriod is the default tick interval.
	DefaultPeriod = 6 * time.Millisecond

	// DefaultComponentSlots bounds the tick component table.
	DefaultComponentSlots = 10
)

// Component receives the periodic tick. SystemTick runs on the timer's
// goroutine (or the Tick caller's) and must not block.
type Component interface {
	SystemTick()
}

// Timer is a periodic tick source with a millisecond clock.
type Timer struct {
	period time.Duration
	slots  int

	ticks atomic.Uint64

	mu         sync.Mutex
	components []Component
	stop       chan struct{}
	done       chan struct{}
}

// New returns a Timer with the given period; a non-positive period selects
// DefaultPeriod. The timer does not tick until Start, or a manual Tick.
func New(period time.Duration) *Timer {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Timer{
		period: period,
		slots:  DefaultComponentSlots,
	}
}

// Period returns the tick interval.
func (t *Timer) Period() time.Duration { return t.period }

// CurrentTime returns milliseconds elapsed, as observed through ticks.
func (t *Timer) CurrentTime() uint64 { return t.ticks.Load() }

// AddComponent registers c to receive ticks. The table is bounded;
// ErrNoResources is returned when it is full.
func (t *Timer) AddComponent(c Component) error {
	if c == nil {
		return ErrInvalidParameter
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.components) >= t.slots {
		return ErrNoResources
	}
	t.components = append(t.components, c)
	return nil
}

// RemoveComponent removes a previously registered component, returning
// ErrInvalidParameter if it is not registered.
func (t *Timer) RemoveComponent(c Component) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, x := range t.components {
		if x == c {
			t.components = append(t.components[:i], t.components[i+1:]...)
			return nil
		}
	}
	return ErrInvalidParameter
}

// AddTickCallback registers fn as a tick component. The returned component
// can be passed to RemoveComponent to unregister.
func (t *Timer) AddTickCallback(fn func()) error {
	if fn == nil {
		return ErrInvalidParameter
	}
	return t.AddComponent(callback(fn))
}

type callback func()

func (f callback) SystemTick() { f() }

// Tick advances the clock by one period and fans out to every component.
// Driving Tick manually while the timer is started is not meaningful.
func (t *Timer) Tick() {
	t.ticks.Add(uint64(t.period / time.Millisecond))
	t.mu.Lock()
	comps := append([]Component(nil), t.components...)
	t.mu.Unlock()
	for _, c := range comps {
		c.SystemTick()
	}
}

// Start free-runs the timer on its own goroutine until Stop.
func (t *Timer) Start() error {
	t.mu.Lock()
	if t.stop != nil {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop = stop
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.Tick()
			case <-stop:
				return
			}
		}
	}()
	return nil
}

// Stop halts a started timer and waits for its goroutine to exit. Stopping a
// timer that is not running is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
