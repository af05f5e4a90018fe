package types

import "encoding/json"

// ToolInfo is the wire-facing description of a tool: what backends need
// to advertise it to a model. The executable half lives in the tool
// registry, keyed by Name.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}
