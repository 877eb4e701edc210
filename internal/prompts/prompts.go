// Package prompts builds the stage prompts for the planning pipeline. All
// builders are pure functions of their inputs.
package prompts

import (
	"encoding/json"
	"fmt"
)

const understandSystemPrompt = `You are a requirements analyst for a multi-agent software team.

Given a user request and optional project context, produce a structured understanding
of what the user wants.

Respond with valid JSON matching this schema:
{
  "goal": "string",
  "motivation": "string",
  "constraints": ["string"],
  "affected_areas": ["string"],
  "clarity": number
}`

const planSystemPrompt = `You are a technical project planner for a multi-agent software team.

Given a structured understanding of a user request, produce a strategic plan:
the ordered phases of work, the approach for each, and the risks to watch.

Respond with valid JSON matching this schema:
{
  "summary": "string",
  "steps": ["string"],
  "risks": ["string"],
  "estimated_complexity": "low" | "medium" | "high"
}`

const breakdownSystemPrompt = `You are a task dispatcher for a multi-agent software team.

Given a strategic plan and the request understanding behind it, break the plan into
ordered, independently executable sub-tasks and assign each one a persona.

Available personas:
- "backend": Server-side code, data plumbing, APIs
- "frontend": UI code and client-side state
- "qa": Tests, builds, validation
- "devops": Infrastructure, deployment, configuration
- "docs": Documentation and examples

Respond with a valid JSON array; each element matches this schema:
{
  "title": "string",
  "description": "string",
  "persona": "string"
}

Order matters: the array order is the execution order.`

const analyzeFileSystemPrompt = `You are a code analyst.

Given one source file, summarize what it does and how it fits into its repository.

Respond with valid JSON matching this schema:
{
  "purpose": "string",
  "key_symbols": ["string"],
  "dependencies": ["string"],
  "complexity": "low" | "medium" | "high"
}`

// UnderstandRequest builds the understanding-stage prompt pair. The context
// map may carry project identifiers, a description, and a folded-in
// repository analysis.
func UnderstandRequest(userInput string, context map[string]any) (system, user string) {
	user = fmt.Sprintf("User request: %s", userInput)
	if len(context) > 0 {
		ctxJSON, _ := json.Marshal(context)
		user += fmt.Sprintf("\n\nProject context: %s", string(ctxJSON))
	}
	return understandSystemPrompt, user
}

// StrategicPlan builds the planning-stage prompt pair.
func StrategicPlan(understanding map[string]any) (system, user string) {
	uJSON, _ := json.Marshal(understanding)
	return planSystemPrompt, fmt.Sprintf("Request understanding: %s", string(uJSON))
}

// BreakdownPlan builds the breakdown-stage prompt pair.
func BreakdownPlan(plan, understanding map[string]any) (system, user string) {
	pJSON, _ := json.Marshal(plan)
	uJSON, _ := json.Marshal(understanding)
	return breakdownSystemPrompt,
		fmt.Sprintf("Strategic plan: %s\n\nRequest understanding: %s", string(pJSON), string(uJSON))
}

// AnalyzeFile builds the per-file code-analysis prompt pair.
func AnalyzeFile(path, content string) (system, user string) {
	return analyzeFileSystemPrompt, fmt.Sprintf("File: %s\n\n%s", path, content)
}
