package prompts

import (
	"strings"
	"testing"
)

func TestUnderstandRequest(t *testing.T) {
	system, user := UnderstandRequest("add logging", map[string]any{"project_id": "p1"})
	if !strings.Contains(system, "requirements analyst") {
		t.Errorf("unexpected system prompt: %q", system)
	}
	if !strings.Contains(user, "add logging") {
		t.Errorf("user input missing from prompt: %q", user)
	}
	if !strings.Contains(user, `"project_id":"p1"`) {
		t.Errorf("context missing from prompt: %q", user)
	}
}

func TestUnderstandRequest_NoContext(t *testing.T) {
	_, user := UnderstandRequest("fix the bug", nil)
	if strings.Contains(user, "Project context") {
		t.Errorf("empty context should be omitted: %q", user)
	}
}

func TestBreakdownPlan(t *testing.T) {
	system, user := BreakdownPlan(
		map[string]any{"summary": "do things"},
		map[string]any{"goal": "the goal"},
	)
	for _, persona := range []string{"backend", "frontend", "qa", "devops", "docs"} {
		if !strings.Contains(system, persona) {
			t.Errorf("persona %q missing from system prompt", persona)
		}
	}
	if !strings.Contains(user, "do things") || !strings.Contains(user, "the goal") {
		t.Errorf("plan or understanding missing: %q", user)
	}
}

func TestAnalyzeFile(t *testing.T) {
	_, user := AnalyzeFile("internal/server/server.go", "package server")
	if !strings.Contains(user, "internal/server/server.go") {
		t.Errorf("path missing: %q", user)
	}
	if !strings.Contains(user, "package server") {
		t.Errorf("content missing: %q", user)
	}
}
