package systemtimer

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingComponent struct {
	ticks atomic.Int32
}

func (c *countingComponent) SystemTick() { c.ticks.Add(1) }

func TestTick_advancesClockByPeriod(t *testing.T) {
	tm := New(6 * time.Millisecond)
	if tm.CurrentTime() != 0 {
		t.Fatalf("initial time = %d, want 0", tm.CurrentTime())
	}
	tm.Tick()
	tm.Tick()
	if got := tm.CurrentTime(); got != 12 {
		t.Errorf("time after 2 ticks = %d, want 12", got)
	}
}

func TestNew_defaultPeriod(t *testing.T) {
	if got := New(0).Period(); got != DefaultPeriod {
		t.Errorf("period = %v, want %v", got, DefaultPeriod)
	}
}

func TestTick_fansOutToComponents(t *testing.T) {
	tm := New(time.Millisecond)
	var a, b countingComponent
	if err := tm.AddComponent(&a); err != nil {
		t.Fatal(err)
	}
	if err := tm.AddComponent(&b); err != nil {
		t.Fatal(err)
	}

	tm.Tick()
	tm.Tick()
	if a.ticks.Load() != 2 || b.ticks.Load() != 2 {
		t.Errorf("ticks = %d, %d, want 2, 2", a.ticks.Load(), b.ticks.Load())
	}

	if err := tm.RemoveComponent(&a); err != nil {
		t.Fatal(err)
	}
	tm.Tick()
	if a.ticks.Load() != 2 {
		t.Error("removed component still ticked")
	}
	if b.ticks.Load() != 3 {
		t.Error("remaining component missed a tick")
	}
}

func TestAddComponent_boundedTable(t *testing.T) {
	tm := New(time.Millisecond)
	for i := 0; i < DefaultComponentSlots; i++ {
		if err := tm.AddComponent(&countingComponent{}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := tm.AddComponent(&countingComponent{}); !errors.Is(err, ErrNoResources) {
		t.Errorf("err = %v, want ErrNoResources", err)
	}
}

func TestAddComponent_errors(t *testing.T) {
	tm := New(time.Millisecond)
	if err := tm.AddComponent(nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("nil component: err = %v", err)
	}
	if err := tm.RemoveComponent(&countingComponent{}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("unknown component: err = %v", err)
	}
	if err := tm.AddTickCallback(nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("nil callback: err = %v", err)
	}
}

func TestAddTickCallback(t *testing.T) {
	tm := New(time.Millisecond)
	var calls atomic.Int32
	if err := tm.AddTickCallback(func() { calls.Add(1) }); err != nil {
		t.Fatal(err)
	}
	tm.Tick()
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestStartStop(t *testing.T) {
	tm := New(time.Millisecond)
	var c countingComponent
	if err := tm.AddComponent(&c); err != nil {
		t.Fatal(err)
	}

	if err := tm.Start(); err != nil {
		t.Fatal(err)
	}
	if err := tm.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start: err = %v, want ErrAlreadyRunning", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.ticks.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.ticks.Load() == 0 {
		t.Fatal("started timer never ticked")
	}

	tm.Stop()
	n := c.ticks.Load()
	time.Sleep(10 * time.Millisecond)
	if c.ticks.Load() != n {
		t.Error("stopped timer kept ticking")
	}

	// Stop is idempotent; a stopped timer can be restarted.
	tm.Stop()
	if err := tm.Start(); err != nil {
		t.Fatal(err)
	}
	tm.Stop()
}
