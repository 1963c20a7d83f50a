package fiber

import (
	"errors"
	"testing"
	"time"
)

func TestInvoke_errors(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Invoke(func() {}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("before init: err = %v, want ErrNotSupported", err)
	}
	if err := s.Initialize(nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Invoke(nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("nil fn: err = %v, want ErrInvalidParameter", err)
	}
}

func TestInvoke_inlineCompletion(t *testing.T) {
	s := newRunning(t, nil)
	base := s.Stats()

	ran := false
	if err := s.Invoke(func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("fn must complete before Invoke returns when it never blocks")
	}

	st := s.Stats()
	if got := st.FibersAllocated - base.FibersAllocated; got != 0 {
		t.Errorf("allocated %d fiber records for a non-blocking invoke, want 0", got)
	}
	if got := st.PoolReuses - base.PoolReuses; got != 0 {
		t.Errorf("reused %d fiber records for a non-blocking invoke, want 0", got)
	}
	if got := st.Forks - base.Forks; got != 0 {
		t.Errorf("forks = %d, want 0", got)
	}
	if got := st.InvokesInline - base.InvokesInline; got != 1 {
		t.Errorf("inline invokes = %d, want 1", got)
	}
}

func TestInvoke_forkOnBlock(t *testing.T) {
	s := newRunning(t, nil)
	stop := driveTicks(s)
	defer stop()
	base := s.Stats()

	var order []string
	if err := s.Invoke(func() {
		order = append(order, "begin")
		s.Sleep(10 * time.Millisecond)
		order = append(order, "resumed")
	}); err != nil {
		t.Fatal(err)
	}
	order = append(order, "after")

	// Let the forked continuation finish.
	s.Sleep(40 * time.Millisecond)

	want := []string{"begin", "after", "resumed"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	st := s.Stats()
	if got := st.Forks - base.Forks; got != 1 {
		t.Errorf("forks = %d, want 1", got)
	}
	// Exactly one fiber record for the blocked continuation.
	if got := (st.FibersAllocated + st.PoolReuses) - (base.FibersAllocated + base.PoolReuses); got != 1 {
		t.Errorf("fiber records consumed = %d, want 1", got)
	}
}

func TestInvoke_sequentialInlineCallsShareNothing(t *testing.T) {
	s := newRunning(t, nil)
	base := s.Stats()

	n := 0
	for i := 0; i < 10; i++ {
		if err := s.Invoke(func() { n++ }); err != nil {
			t.Fatal(err)
		}
	}
	if n != 10 {
		t.Fatalf("n = %d, want 10", n)
	}
	st := s.Stats()
	if got := st.FibersAllocated - base.FibersAllocated; got != 0 {
		t.Errorf("allocated = %d, want 0", got)
	}
}

func TestInvoke_nestedTrialDegradesToFiber(t *testing.T) {
	s := newRunning(t, nil)

	inner := false
	if err := s.Invoke(func() {
		// Already in a trial: the nested invoke must become a full fiber
		// rather than a nested trial.
		if err := s.Invoke(func() { inner = true }); err != nil {
			t.Errorf("nested Invoke: %v", err)
		}
		if inner {
			t.Error("nested fn ran synchronously inside the outer trial")
		}
	}); err != nil {
		t.Fatal(err)
	}

	for !inner {
		s.Schedule()
	}
}

func TestInvoke_userDataForcesFiber(t *testing.T) {
	s := newRunning(t, nil)

	cur := s.Current()
	cur.SetUserData("tagged")
	defer cur.SetUserData(nil)

	ran := false
	if err := s.Invoke(func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("fn ran synchronously despite user data on the caller")
	}
	for !ran {
		s.Schedule()
	}
}

func TestInvoke_forkedChildRunsConcurrentlyWithParent(t *testing.T) {
	s := newRunning(t, nil)
	stop := driveTicks(s)
	defer stop()

	childDone := false
	if err := s.Invoke(func() {
		s.Sleep(5 * time.Millisecond)
		childDone = true
	}); err != nil {
		t.Fatal(err)
	}
	if childDone {
		t.Fatal("Invoke must return at the fork, before the child resumes")
	}

	s.Sleep(30 * time.Millisecond)
	if !childDone {
		t.Fatal("forked child never completed")
	}
}
