package models

import "testing"

func TestSessionState_Valid(t *testing.T) {
	tests := []struct {
		name  string
		state SessionState
		want  bool
	}{
		{"initializing is valid", SessionInitializing, true},
		{"active is valid", SessionActive, true},
		{"paused is valid", SessionPaused, true},
		{"ready_to_merge is valid", SessionReadyToMerge, true},
		{"merging is valid", SessionMerging, true},
		{"closed is valid", SessionClosed, true},
		{"failed is valid", SessionFailed, true},
		{"orphaned is valid", SessionOrphaned, true},
		{"empty string is invalid", SessionState(""), false},
		{"typo is invalid", SessionState("activ"), false},
		{"merge state is invalid", SessionState("queued"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Valid(); got != tt.want {
				t.Errorf("SessionState(%q).Valid() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestSessionState_Terminal(t *testing.T) {
	terminal := map[SessionState]bool{
		SessionClosed: true,
		SessionFailed: true,
	}
	for _, s := range []SessionState{
		SessionInitializing, SessionActive, SessionPaused, SessionReadyToMerge,
		SessionMerging, SessionClosed, SessionFailed, SessionOrphaned,
	} {
		if got := s.Terminal(); got != terminal[s] {
			t.Errorf("SessionState(%q).Terminal() = %v, want %v", s, got, terminal[s])
		}
	}
}

func TestSession_Persistent(t *testing.T) {
	s := Session{Name: "feature"}
	if s.Persistent() {
		t.Error("session without handle should not be persistent")
	}
	s.Handle = "claudemix-feature-1a2b3c4d"
	if !s.Persistent() {
		t.Error("session with handle should be persistent")
	}
}

func TestMergeState_Outstanding(t *testing.T) {
	tests := []struct {
		state MergeState
		want  bool
	}{
		{MergeQueued, true},
		{MergeRunning, true},
		{MergeSucceeded, false},
		{MergeFailed, false},
		{MergeWithdrawn, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if !tt.state.Valid() {
				t.Fatalf("MergeState(%q) should be valid", tt.state)
			}
			if got := tt.state.Outstanding(); got != tt.want {
				t.Errorf("MergeState(%q).Outstanding() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}
