package event

import (
	"testing"
)

func TestNewListener_defaultPolicy(t *testing.T) {
	l := NewListener(1, 2, HandlerFunc(func(Event) {}), 0)
	if !l.HasFlags(ListenerQueueIfBusy) {
		t.Error("expected queue-if-busy by default")
	}

	l = NewListener(1, 2, HandlerFunc(func(Event) {}), ListenerDropIfBusy)
	if l.HasFlags(ListenerQueueIfBusy) {
		t.Error("explicit policy must not be overridden")
	}
	if !l.HasFlags(ListenerDropIfBusy) {
		t.Error("expected drop-if-busy")
	}
}

func TestListener_matches(t *testing.T) {
	for _, tc := range []struct {
		name          string
		source, value uint16
		evt           Event
		want          bool
	}{
		{"exact", 5, 3, New(5, 3), true},
		{"valueMismatch", 5, 3, New(5, 4), false},
		{"sourceMismatch", 5, 3, New(6, 3), false},
		{"wildcardValue", 5, ValueAny, New(5, 9), true},
		{"wildcardSource", IDAny, 3, New(9, 3), true},
		{"wildcardBoth", IDAny, ValueAny, New(1, 1), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l := NewListener(tc.source, tc.value, HandlerFunc(func(Event) {}), 0)
			if got := l.Matches(tc.evt); got != tc.want {
				t.Errorf("Matches(%v) = %v, want %v", tc.evt, got, tc.want)
			}
		})
	}
}

func TestListener_sameRegistrationExactWildcards(t *testing.T) {
	h := HandlerFunc(func(Event) {})
	wild := NewListener(5, ValueAny, h, 0)
	concrete := NewListener(5, 3, h, 0)

	if wild.SameRegistration(concrete) || concrete.SameRegistration(wild) {
		t.Error("wildcard must match only the same wildcard")
	}
	if !wild.SameRegistration(NewListener(5, ValueAny, h, 0)) {
		t.Error("identical registrations must match")
	}
}

func TestListener_backlogBounded(t *testing.T) {
	l := NewListener(1, 1, HandlerFunc(func(Event) {}), 0)
	for i := 0; i < DefaultListenerQueueDepth; i++ {
		if !l.Enqueue(New(1, uint16(i))) {
			t.Fatalf("enqueue %d unexpectedly rejected", i)
		}
	}
	if l.Enqueue(New(1, 99)) {
		t.Error("expected enqueue past depth limit to be rejected")
	}
	if l.QueueDepth() != DefaultListenerQueueDepth {
		t.Errorf("depth = %d, want %d", l.QueueDepth(), DefaultListenerQueueDepth)
	}
}

func TestListener_dequeuePendingOrder(t *testing.T) {
	l := NewListener(1, 1, HandlerFunc(func(Event) {}), 0)
	l.Enqueue(New(1, 10))
	l.Enqueue(New(1, 20))

	evt, ok := l.DequeuePending()
	if !ok || evt.Value != 10 {
		t.Fatalf("expected oldest first, got %v ok=%v", evt, ok)
	}
	if cur := l.Current(); cur.Value != 10 {
		t.Errorf("dequeued event must be staged as current, got %v", cur)
	}
	evt, _ = l.DequeuePending()
	if evt.Value != 20 {
		t.Errorf("expected 20, got %v", evt)
	}
	if _, ok := l.DequeuePending(); ok {
		t.Error("expected empty backlog")
	}
}

func TestListener_flags(t *testing.T) {
	l := NewListener(1, 1, HandlerFunc(func(Event) {}), 0)
	l.SetFlags(ListenerBusy)
	if !l.HasFlags(ListenerBusy) {
		t.Error("expected busy set")
	}
	l.ClearFlags(ListenerBusy)
	if l.HasFlags(ListenerBusy) {
		t.Error("expected busy cleared")
	}
	if !l.HasFlags(ListenerQueueIfBusy) {
		t.Error("unrelated flags must survive")
	}
}
