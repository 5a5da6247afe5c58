package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ExtractJSON pulls the outermost JSON object out of raw model text. It
// tolerates markdown code fences and prose around the object.
func ExtractJSON(text string) (string, error) {
	trimmed := stripFences(strings.TrimSpace(text))
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object found", ErrNonJSON)
	}
	candidate := trimmed[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", fmt.Errorf("%w: malformed JSON object", ErrNonJSON)
	}
	return candidate, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag such as "json" on the fence line.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		first := strings.TrimSpace(s[:nl])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Schema is a compiled JSON Schema used to validate structured responses.
// Compile once per prompt kind and reuse across calls.
type Schema struct {
	compiled *jsonschema.Schema
}

// MustSchema compiles a schema document or panics. Intended for package-level
// schema variables.
func MustSchema(doc string) *Schema {
	s, err := CompileSchema(doc)
	if err != nil {
		panic(err)
	}
	return s
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(doc string) (*Schema, error) {
	var schemaDoc any
	if err := json.Unmarshal([]byte(doc), &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// DecodeInto extracts the JSON object from raw model text, validates it
// against the schema, and unmarshals it into out.
func (s *Schema) DecodeInto(raw string, out any) error {
	objText, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal([]byte(objText), &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrNonJSON, err)
	}
	if err := s.compiled.Validate(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := json.Unmarshal([]byte(objText), out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
