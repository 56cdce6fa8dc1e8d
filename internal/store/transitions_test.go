package store

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{ActionCall, "WAITING", true},
		{ActionCall, "CALLED", false},
		{ActionStart, "WAITING", true},
		{ActionStart, "CALLED", true},
		{ActionStart, "IN_PROGRESS", false},
		{ActionStart, "COMPLETED", false},
		{ActionComplete, "IN_PROGRESS", true},
		{ActionComplete, "WAITING", false},
		{ActionCancel, "WAITING", true},
		{ActionCancel, "IN_PROGRESS", true},
		{ActionCancel, "COMPLETED", false},
		{ActionCancel, "CANCELLED", false},
		{ActionRequeue, "CALLED", true},
		{ActionRequeue, "WAITING", false},
		{"unknown", "WAITING", false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestValidCompletion(t *testing.T) {
	cases := []struct {
		from   string
		strict bool
		valid  bool
	}{
		{"IN_PROGRESS", true, true},
		{"IN_PROGRESS", false, true},
		{"WAITING", true, false},
		{"WAITING", false, true},
		{"CALLED", false, true},
		{"COMPLETED", false, false},
		{"CANCELLED", false, false},
	}

	for _, tt := range cases {
		if got := ValidCompletion(tt.from, tt.strict); got != tt.valid {
			t.Fatalf("ValidCompletion(%q, %v)=%v, want %v", tt.from, tt.strict, got, tt.valid)
		}
	}
}

func TestActionForStatus(t *testing.T) {
	for status, want := range map[string]string{
		"WAITING":     ActionRequeue,
		"CALLED":      ActionCall,
		"IN_PROGRESS": ActionStart,
		"COMPLETED":   ActionComplete,
		"CANCELLED":   ActionCancel,
	} {
		got, ok := ActionForStatus(status)
		if !ok || got != want {
			t.Fatalf("ActionForStatus(%q)=%q,%v want %q", status, got, ok, want)
		}
	}
	if _, ok := ActionForStatus("DONE"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}
