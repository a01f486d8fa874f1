package statemachine

import "testing"

func TestTryTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{name: "init_to_initializing", from: NotInitialized, to: Initializing, want: true},
		{name: "initializing_to_disabled", from: Initializing, to: InteractivityDisabled, want: true},
		{name: "disabled_to_pending", from: InteractivityDisabled, to: InteractivityPending, want: true},
		{name: "pending_to_enabled", from: InteractivityPending, to: InteractivityEnabled, want: true},
		{name: "pending_to_disabled", from: InteractivityPending, to: InteractivityDisabled, want: true},
		{name: "enabled_to_pending", from: InteractivityEnabled, to: InteractivityPending, want: true},
		{name: "enabled_to_disabled_direct_invalid", from: InteractivityEnabled, to: InteractivityDisabled, want: false},
		{name: "pending_to_not_initialized_always_valid", from: InteractivityPending, to: NotInitialized, want: true},
		{name: "disabled_to_enabled_skip_invalid", from: InteractivityDisabled, to: InteractivityEnabled, want: false},
		{name: "not_initialized_to_disabled_invalid", from: NotInitialized, to: InteractivityDisabled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(nil)
			m.state.Store(int32(tt.from))
			got := m.TryTransition(tt.to)
			if got != tt.want {
				t.Fatalf("TryTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
			if tt.want && m.Current() != tt.to {
				t.Fatalf("after valid transition, Current() = %s, want %s", m.Current(), tt.to)
			}
			if !tt.want && m.Current() != tt.from {
				t.Fatalf("invalid transition changed state to %s, want unchanged %s", m.Current(), tt.from)
			}
		})
	}
}

func TestOnEnterCalledOnlyOnAcceptedTransition(t *testing.T) {
	var calls int
	m := New(func(old, new State) { calls++ })

	if m.TryTransition(InteractivityDisabled) {
		t.Fatalf("expected not_initialized -> interactivity_disabled to be invalid")
	}
	if calls != 0 {
		t.Fatalf("onEnter called %d times for a rejected transition, want 0", calls)
	}

	if !m.TryTransition(Initializing) {
		t.Fatalf("expected not_initialized -> initializing to be valid")
	}
	if calls != 1 {
		t.Fatalf("onEnter called %d times, want 1", calls)
	}
}

func TestForceAlwaysSucceeds(t *testing.T) {
	m := New(nil)
	m.Force(InteractivityEnabled)
	if m.Current() != InteractivityEnabled {
		t.Fatalf("Force did not set state, got %s", m.Current())
	}
	m.Force(NotInitialized)
	if m.Current() != NotInitialized {
		t.Fatalf("Force did not reset state, got %s", m.Current())
	}
}
