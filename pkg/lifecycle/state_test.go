package lifecycle

import "testing"

func TestState_Valid(t *testing.T) {
	for _, s := range []State{StateUnknown, StateStarting, StateRunning, StateStopping, StateStopped, StateFailed} {
		if !s.Valid() {
			t.Errorf("State(%q).Valid() = false, want true", s)
		}
	}
	for _, s := range []State{"", "paused", "RUNNING"} {
		if s.Valid() {
			t.Errorf("State(%q).Valid() = true, want false", s)
		}
	}
}

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
	}{
		{StateUnknown, false},
		{StateStarting, false},
		{StateRunning, false},
		{StateStopping, false},
		{StateStopped, true},
		{StateFailed, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("State(%q).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateUnknown, StateStarting, true},
		{StateStarting, StateRunning, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateFailed, StateStopping, true},
		{StateUnknown, StateRunning, false},
		{StateRunning, StateRunning, false},
		{StateStopped, StateStarting, false},
		{StateRunning, StateStopped, false},
		{"bogus", StateStarting, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := ValidTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
