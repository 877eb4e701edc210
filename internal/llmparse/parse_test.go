package llmparse

import (
	"errors"
	"strings"
	"testing"
)

func TestExtract_SurroundingProse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"object with prose", `Sure! Here you go: {"goal":"add logging"} Hope that helps.`, `{"goal":"add logging"}`},
		{"array with prose", `The tasks are: [{"title":"a"},{"title":"b"}] as requested`, `[{"title":"a"},{"title":"b"}]`},
		{"bare object", `{"k":1}`, `{"k":1}`},
		{"array before object text", `[1,2,3] and then {ignored`, `[1,2,3] and then {ignored`},
		{"long leading prose", strings.Repeat("blah ", 500) + `{"x":true}` + strings.Repeat(" more", 500), `{"x":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract("test", tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_NoJSON(t *testing.T) {
	_, err := Extract("understanding", "I could not produce a plan, sorry.")
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Stage != "understanding" {
		t.Errorf("got stage %q", pe.Stage)
	}
	if !strings.Contains(pe.Error(), "no JSON found") {
		t.Errorf("got message %q", pe.Error())
	}
}

func TestExtract_Mismatched(t *testing.T) {
	// Closing bracket appears before any opening one.
	_, err := Extract("plan", "} nonsense {")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "mismatched JSON") {
		t.Errorf("got %q", err.Error())
	}
}

func TestDecode_MalformedInteriorFails(t *testing.T) {
	// Brace-balance repair is deliberately not attempted.
	var v map[string]any
	err := Decode("breakdown", `prefix {"a": 1,, "b": 2} suffix`, &v)
	if err == nil {
		t.Fatal("expected error for malformed interior")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Stage != "breakdown" {
		t.Errorf("got stage %q", pe.Stage)
	}
	if pe.Raw == "" {
		t.Error("expected raw response to be attached")
	}
}

func TestDecode_WellFormed(t *testing.T) {
	var v struct {
		Goal string `json:"goal"`
	}
	if err := Decode("understanding", "Sure! {\"goal\":\"add logging\"}", &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Goal != "add logging" {
		t.Errorf("got goal %q", v.Goal)
	}
}
