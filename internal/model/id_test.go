package model

import "testing"

func TestNewSessionID(t *testing.T) {
	for _, at := range []AgentType{AgentInitializer, AgentCoding, AgentTesting, AgentCleanup} {
		t.Run(string(at), func(t *testing.T) {
			id, err := NewSessionID(at)
			if err != nil {
				t.Fatalf("NewSessionID(%s) returned error: %v", at, err)
			}
			if !ValidateSessionID(id) {
				t.Errorf("generated id %q does not match expected format", id)
			}
			parsed, err := ParseSessionAgentType(id)
			if err != nil {
				t.Fatalf("ParseSessionAgentType(%q) returned error: %v", id, err)
			}
			if parsed != at {
				t.Errorf("parsed agent type %q, want %q", parsed, at)
			}
		})
	}
}

func TestNewSessionID_InvalidType(t *testing.T) {
	if _, err := NewSessionID("janitor"); err == nil {
		t.Error("expected error for invalid agent type")
	}
}

func TestNewSessionID_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewSessionID(AgentCoding)
		if err != nil {
			t.Fatalf("NewSessionID returned error: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate session id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValidateSessionID_Rejects(t *testing.T) {
	bad := []string{
		"",
		"coding-2026-abcd1234",
		"coding-20260831-xyz",
		"janitor-20260831-abcd1234",
		"coding_20260831_abcd1234",
	}
	for _, id := range bad {
		if ValidateSessionID(id) {
			t.Errorf("ValidateSessionID(%q) = true, want false", id)
		}
	}
}
