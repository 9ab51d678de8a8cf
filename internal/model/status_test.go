package model

import "testing"

func TestIsSessionTerminal(t *testing.T) {
	tests := []struct {
		status   SessionStatus
		terminal bool
	}{
		{SessionPending, false},
		{SessionRunning, false},
		{SessionCompleted, true},
		{SessionFailed, true},
		{SessionTimeout, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := IsSessionTerminal(tt.status); got != tt.terminal {
				t.Errorf("IsSessionTerminal(%q) = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestValidateSessionTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    SessionStatus
		to      SessionStatus
		wantErr bool
	}{
		{"pending to running", SessionPending, SessionRunning, false},
		{"running to completed", SessionRunning, SessionCompleted, false},
		{"running to failed", SessionRunning, SessionFailed, false},
		{"running to timeout", SessionRunning, SessionTimeout, false},
		{"pending straight to completed", SessionPending, SessionCompleted, true},
		{"completed is terminal", SessionCompleted, SessionRunning, true},
		{"failed is terminal", SessionFailed, SessionPending, true},
		{"unknown status", SessionStatus("bogus"), SessionRunning, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSessionTransition(%q, %q) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestRunStateOrDefault(t *testing.T) {
	tests := []struct {
		input string
		want  RunState
		known bool
	}{
		{"continuous", RunContinuous, true},
		{"run_once", RunOnce, true},
		{"run_cleanup", RunCleanup, true},
		{"pause", RunPause, true},
		{"terminated", RunTerminated, true},
		{"bogus", RunPause, false},
		{"", RunPause, false},
		{"CONTINUOUS", RunPause, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, known := RunStateOrDefault(tt.input)
			if got != tt.want || known != tt.known {
				t.Errorf("RunStateOrDefault(%q) = (%q, %v), want (%q, %v)", tt.input, got, known, tt.want, tt.known)
			}
		})
	}
}

func TestParseBacklogPriority(t *testing.T) {
	for _, p := range BacklogPriorityOrder {
		if got, ok := ParseBacklogPriority(string(p)); !ok || got != p {
			t.Errorf("ParseBacklogPriority(%q) = (%q, %v)", p, got, ok)
		}
	}
	if _, ok := ParseBacklogPriority("urgent"); ok {
		t.Error("expected unknown priority to be rejected")
	}
}

func TestBacklogPriorityOrder(t *testing.T) {
	want := []BacklogPriority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
	if len(BacklogPriorityOrder) != len(want) {
		t.Fatalf("priority order has %d entries, want %d", len(BacklogPriorityOrder), len(want))
	}
	for i, p := range want {
		if BacklogPriorityOrder[i] != p {
			t.Errorf("priority order[%d] = %q, want %q", i, BacklogPriorityOrder[i], p)
		}
	}
}
