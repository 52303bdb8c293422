package streams

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

type schemaKey struct {
	eventType string
	version   string
}

func (k schemaKey) String() string { return k.eventType + "@" + k.version }

// SchemaRegistry holds compiled payload schemas keyed by event type and version.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[schemaKey]*jsonschema.Schema
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: map[schemaKey]*jsonschema.Schema{}}
}

// Register compiles schemaBytes for eventType/version, replacing any
// schema already registered under that pair.
func (r *SchemaRegistry) Register(eventType, version string, schemaBytes []byte) error {
	key := schemaKey{eventType, version}
	if eventType == "" || version == "" {
		return fmt.Errorf("event type and version must be provided")
	}
	if len(schemaBytes) == 0 {
		return fmt.Errorf("schema %s is empty", key)
	}
	compiler := jsonschema.NewCompiler()
	resource := key.String() + ".json"
	if err := compiler.AddResource(resource, bytes.NewReader(schemaBytes)); err != nil {
		return fmt.Errorf("add schema %s: %w", key, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", key, err)
	}

	r.mu.Lock()
	r.schemas[key] = compiled
	r.mu.Unlock()
	return nil
}

// Known lists registered schemas as "event@version", sorted.
func (r *SchemaRegistry) Known() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k.String())
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Validate checks payload against the schema registered for eventType/version.
func (r *SchemaRegistry) Validate(eventType, version string, payload []byte) error {
	key := schemaKey{eventType, version}
	r.mu.RLock()
	schema, ok := r.schemas[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no schema registered for %s", key)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%s: empty payload", key)
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("%s: decode payload: %w", key, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
