package fiber

import (
	"testing"
)

func TestLock_uncontendedFastPath(t *testing.T) {
	s := newRunning(t, nil)
	l := s.NewLock()

	l.Wait()
	if !l.Locked() {
		t.Fatal("expected lock held after Wait")
	}
	l.Notify()
	if l.Locked() {
		t.Fatal("expected lock released after Notify")
	}
}

func TestLock_beforeInitializeIsNoop(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}
	l := s.NewLock()
	l.Wait()
	l.Notify()
}

func TestLock_blocksContendingFiber(t *testing.T) {
	s := newRunning(t, nil)
	l := s.NewLock()

	var order []string
	l.Wait() // main holds the lock

	_, err := s.Create(func() {
		order = append(order, "child blocked")
		l.Wait()
		order = append(order, "child acquired")
		l.Notify()
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Schedule() // child runs up to the lock and blocks
	order = append(order, "main still holds")
	l.Notify() // wake the child
	s.Schedule()

	want := []string{"child blocked", "main still holds", "child acquired"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestLock_notifyWakesOldestFirst(t *testing.T) {
	s := newRunning(t, nil)
	l := s.NewLock()

	var order []int
	l.Wait()
	for i := 1; i <= 3; i++ {
		i := i
		if _, err := s.Create(func() {
			l.Wait()
			order = append(order, i)
			l.Notify()
		}); err != nil {
			t.Fatal(err)
		}
	}
	// Each Schedule runs the next fiber up to the lock; blocking hands
	// control straight back here.
	for i := 0; i < 3; i++ {
		s.Schedule()
	}

	l.Notify() // hand off to the first waiter; each passes it on
	for len(order) < 3 {
		s.Schedule()
	}
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("wake order = %v, want [1 2 3]", order)
		}
	}
}

func TestLock_notifyAll(t *testing.T) {
	s := newRunning(t, nil)
	l := s.NewLock()

	released := 0
	l.Wait()
	for i := 0; i < 3; i++ {
		if _, err := s.Create(func() {
			l.Wait()
			released++
		}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		s.Schedule()
	}

	l.NotifyAll()
	for released < 3 {
		s.Schedule()
	}
}

func TestLock_forkOnBlockInTrial(t *testing.T) {
	s := newRunning(t, nil)
	stop := driveTicks(s)
	defer stop()
	base := s.Stats()

	l := s.NewLock()
	l.Wait() // main holds the lock

	acquired := false
	if err := s.Invoke(func() {
		l.Wait() // blocks: the trial must fork here
		acquired = true
		l.Notify()
	}); err != nil {
		t.Fatal(err)
	}
	if acquired {
		t.Fatal("trial completed despite a held lock")
	}
	if got := s.Stats().Forks - base.Forks; got != 1 {
		t.Fatalf("forks = %d, want 1", got)
	}

	l.Notify()
	for !acquired {
		s.Schedule()
	}
}
