package models

import (
	"encoding/json"
	"testing"
)

func TestSubtask_UnmarshalKnownFields(t *testing.T) {
	input := `{"title":"add logger","description":"wire a logger","persona":"backend"}`
	var s Subtask
	if err := json.Unmarshal([]byte(input), &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Title != "add logger" {
		t.Errorf("got title %q", s.Title)
	}
	if s.Persona != "backend" {
		t.Errorf("got persona %q", s.Persona)
	}
	if len(s.Extra) != 0 {
		t.Errorf("expected empty extra, got %v", s.Extra)
	}
}

func TestSubtask_ExtraKeysPreserved(t *testing.T) {
	input := `{"title":"t","persona":"qa","estimate_hours":3,"blocking":true}`
	var s Subtask
	if err := json.Unmarshal([]byte(input), &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Extra["estimate_hours"] != float64(3) {
		t.Errorf("got estimate_hours %v", s.Extra["estimate_hours"])
	}
	if s.Extra["blocking"] != true {
		t.Errorf("got blocking %v", s.Extra["blocking"])
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round Subtask
	if err := json.Unmarshal(out, &round); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if round.Title != "t" || round.Persona != "qa" || round.Extra["blocking"] != true {
		t.Errorf("round trip mismatch: %+v", round)
	}
}
