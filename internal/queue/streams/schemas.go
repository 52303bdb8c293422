package streams

import "fmt"

// Stream and event names.
const (
	StreamCaptures       = "lifeos.captures"
	EventCaptureIngested = "capture.ingested"
	CaptureIngestedV1    = "v1"
	DefaultConsumerGroup = "lifeos-workers"
)

// CaptureIngested is the payload of capture.ingested v1.
type CaptureIngested struct {
	CaptureID string `json:"capture_id"`
	UserID    string `json:"user_id"`
}

// Definition is one registered payload schema.
type Definition struct {
	EventType string
	Version   string
	Schema    []byte
}

var baseDefinitions = []Definition{
	{
		EventType: EventCaptureIngested,
		Version:   CaptureIngestedV1,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["capture_id", "user_id"],
  "properties": {
    "capture_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1}
  },
  "additionalProperties": false
}`),
	},
}

// RegisterBaseSchemas registers every built-in payload schema.
func RegisterBaseSchemas(reg *SchemaRegistry) error {
	for _, def := range baseDefinitions {
		if err := reg.Register(def.EventType, def.Version, def.Schema); err != nil {
			return fmt.Errorf("register %s %s: %w", def.EventType, def.Version, err)
		}
	}
	return nil
}

// NewBaseRegistry returns a registry with the built-in schemas.
func NewBaseRegistry() (*SchemaRegistry, error) {
	reg := NewSchemaRegistry()
	if err := RegisterBaseSchemas(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
