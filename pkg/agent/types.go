package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParamType is the JSON type of a capability parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

// Param describes one input of a capability. Params are ordered.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
}

// ToolSpec describes how the agent should present a tool to the model.
type ToolSpec struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    string           `json:"category,omitempty"`
	Params      []Param          `json:"params"`
	Examples    []map[string]any `json:"examples,omitempty"`
}

// InputSchema renders the params as a JSON schema object.
func (s ToolSpec) InputSchema() map[string]any {
	props := make(map[string]any, len(s.Params))
	required := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		props[p.Name] = map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// RequiredParams returns the names of the required params in declaration order.
func (s ToolSpec) RequiredParams() []string {
	var out []string
	for _, p := range s.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// ToolRequest captures an invocation request for a tool.
type ToolRequest struct {
	SessionID string
	Arguments map[string]any
}

// String returns the named argument as a string, or "".
func (r ToolRequest) String(name string) string {
	switch v := r.Arguments[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the named argument as an int, or def when absent or not numeric.
func (r ToolRequest) Int(name string, def int) int {
	n, ok := toInt(r.Arguments[name])
	if !ok {
		return def
	}
	return n
}

// ToolResponse represents the structured response returned by a tool.
type ToolResponse struct {
	Content  string
	Metadata map[string]string
}

// Tool exposes structured metadata and an invocation handler.
type Tool interface {
	Spec() ToolSpec
	Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error)
}

// ValidateArguments checks args against the declared params and returns a normalised copy:
// integers become int, unknown keys are dropped.
func ValidateArguments(spec ToolSpec, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(spec.Params))
	var problems []string
	for _, p := range spec.Params {
		raw, present := args[p.Name]
		if !present || raw == nil {
			if p.Required {
				problems = append(problems, fmt.Sprintf("%s is required", p.Name))
			}
			continue
		}
		val, ok := coerce(p.Type, raw)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s must be %s", p.Name, p.Type))
			continue
		}
		out[p.Name] = val
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid arguments for %s: %s", spec.Name, strings.Join(problems, "; "))
	}
	return out, nil
}

func coerce(t ParamType, raw any) (any, bool) {
	switch t {
	case ParamString:
		s, ok := raw.(string)
		return s, ok
	case ParamInteger:
		return toInt(raw)
	case ParamNumber:
		switch v := raw.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case json.Number:
			f, err := v.Float64()
			return f, err == nil
		}
		return nil, false
	case ParamBoolean:
		b, ok := raw.(bool)
		return b, ok
	}
	return raw, true
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}
