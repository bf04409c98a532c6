// Package validate rejects malformed proposed actions before the
// classifier sees them.
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/agentdesk/actiongate/internal/approval"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// actionSchema constrains the proposed-action envelope. Operation is an
// open string: unknown operations are legal and classified with the
// default base score.
var actionSchema = map[string]any{
	"type":     "object",
	"required": []any{"session_id", "tool_name", "operation"},
	"properties": map[string]any{
		"session_id": map[string]any{"type": "string", "minLength": 1},
		"user_id":    map[string]any{"type": "string"},
		"tool_name":  map[string]any{"type": "string", "minLength": 1},
		"tool_input": map[string]any{"type": "object"},
		"operation":  map[string]any{"type": "string", "minLength": 1},
		"doc_type":   map[string]any{"type": "string"},
		"doc_name":   map[string]any{"type": "string"},
		"fields": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "minLength": 1},
		},
		"document_state": map[string]any{
			"enum": []any{"draft", "submitted", "cancelled", ""},
		},
		"count": map[string]any{"type": "integer", "minimum": 0},
	},
}

// ActionValidator validates actions against the envelope schema.
type ActionValidator struct {
	schema *jsonschema.Schema
}

// NewActionValidator compiles the envelope schema once.
func NewActionValidator() (*ActionValidator, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("action.json", actionSchema); err != nil {
		return nil, fmt.Errorf("add action schema: %w", err)
	}
	schema, err := c.Compile("action.json")
	if err != nil {
		return nil, fmt.Errorf("compile action schema: %w", err)
	}
	return &ActionValidator{schema: schema}, nil
}

// ValidateAction checks the action against the envelope schema. The
// returned error is wrapped into ErrInvalidAction by the gate.
func (v *ActionValidator) ValidateAction(a *approval.Action) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode action: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("action failed validation: %w", err)
	}
	return nil
}
