package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/maypok86/otter"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles parameter schemas once per distinct schema text.
// Remote refreshes usually republish identical schemas, so the cache keeps
// swaps cheap.
type schemaCache struct {
	cache otter.Cache[string, *jsonschema.Schema]
}

func newSchemaCache(capacity int) (*schemaCache, error) {
	c, err := otter.MustBuilder[string, *jsonschema.Schema](capacity).Build()
	if err != nil {
		return nil, err
	}
	return &schemaCache{cache: c}, nil
}

// compile returns the compiled schema for raw, or nil when raw is empty.
func (c *schemaCache) compile(raw json.RawMessage) (*jsonschema.Schema, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	key := string(trimmed)
	if s, ok := c.cache.Get(key); ok {
		return s, nil
	}
	s, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, s)
	return s, nil
}

// validateArgs checks that args is a JSON document satisfying schema.
// The returned error is suitable for feeding back to the model.
func validateArgs(schema *jsonschema.Schema, args string) error {
	var payload any
	if err := json.Unmarshal([]byte(normalizeArgs(args)), &payload); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if schema == nil {
		return nil
	}
	if err := schema.Validate(payload); err != nil {
		return err
	}
	return nil
}
