package importmap

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is returned for documents that fail schema validation.
var ErrInvalidDocument = errors.New("invalid import map document")

//go:embed schema.json
var documentSchema []byte

var schemaLoader = gojsonschema.NewBytesLoader(documentSchema)

// Spec is the right-hand side of one document mapping: an ordered list of
// fallback targets, or null.
type Spec struct {
	Fallbacks []string
	Blocked   bool
}

// Document is an unresolved import map as written by its author.
type Document struct {
	Imports map[string]Spec
	Scopes  map[string]map[string]Spec
}

// ParseDocument decodes and validates a JSON import map document.
func ParseDocument(data []byte) (*Document, error) {
	var raw any

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return documentFromValue(raw)
}

// ParseYAML decodes and validates a YAML import map document.
func ParseYAML(data []byte) (*Document, error) {
	var raw any

	err := yaml.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return documentFromValue(raw)
}

func documentFromValue(raw any) (*Document, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
	}

	obj, _ := raw.(map[string]any)
	doc := &Document{
		Imports: specsFromValue(obj["imports"]),
		Scopes:  map[string]map[string]Spec{},
	}

	scopes, _ := obj["scopes"].(map[string]any)
	for scope, pkgs := range scopes {
		doc.Scopes[scope] = specsFromValue(pkgs)
	}

	return doc, nil
}

// specsFromValue converts an already validated packages object.
func specsFromValue(v any) map[string]Spec {
	obj, _ := v.(map[string]any)
	out := make(map[string]Spec, len(obj))

	for key, value := range obj {
		switch target := value.(type) {
		case nil:
			out[key] = Spec{Blocked: true}
		case string:
			out[key] = Spec{Fallbacks: []string{target}}
		case []any:
			fallbacks := make([]string, 0, len(target))
			for _, item := range target {
				if s, ok := item.(string); ok {
					fallbacks = append(fallbacks, s)
				}
			}

			out[key] = Spec{Fallbacks: fallbacks}
		}
	}

	return out
}
