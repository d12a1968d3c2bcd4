package dylan

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

var schemaReflector = &jsonschema.Reflector{
	Anonymous:      true,
	DoNotReference: true,
	ExpandedStruct: true,
}

// SchemaFor reflects T into a JSON Schema object suitable for Tool.Parameters.
// Field names come from json tags; fields without omitempty are required.
// Descriptions are read from `jsonschema:"description=..."` tags.
func SchemaFor[T any]() (json.RawMessage, error) {
	s := schemaReflector.Reflect(new(T))
	s.Version = ""
	return json.Marshal(s)
}

// MustSchemaFor is like SchemaFor but panics on error.
func MustSchemaFor[T any]() json.RawMessage {
	raw, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return raw
}
