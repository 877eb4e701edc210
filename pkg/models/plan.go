package models

import "encoding/json"

// Understanding is the parsed output of the request-understanding stage.
// The core enforces no schema beyond "a JSON object"; keys are whatever the
// model produced.
type Understanding map[string]any

// StrategicPlan is the parsed output of the strategic-planning stage.
type StrategicPlan map[string]any

// Subtask is one executable unit emitted by the breakdown stage. Title,
// Description and Persona are the typed core; any other keys the model
// produced land in Extra.
type Subtask struct {
	ID          string         `json:"id,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Persona     string         `json:"persona"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// UnmarshalJSON decodes the known fields and collects unrecognized keys into
// Extra so model-specific annotations survive the round trip.
func (s *Subtask) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	take := func(key string, dst *string) {
		if v, ok := raw[key]; ok {
			if json.Unmarshal(v, dst) == nil {
				delete(raw, key)
			}
		}
	}
	take("id", &s.ID)
	take("title", &s.Title)
	take("description", &s.Description)
	take("persona", &s.Persona)
	if len(raw) > 0 {
		s.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			s.Extra[k] = val
		}
	}
	return nil
}

// MarshalJSON flattens Extra back alongside the typed fields.
func (s Subtask) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+4)
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.ID != "" {
		out["id"] = s.ID
	}
	out["title"] = s.Title
	if s.Description != "" {
		out["description"] = s.Description
	}
	out["persona"] = s.Persona
	return json.Marshal(out)
}
