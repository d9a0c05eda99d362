// Package datamodel turns raw request data into the typed model a template
// declares through its data model type name. Shapes are JSON Schemas.
package datamodel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/estatio/docrender/internal/document"
)

// Model is an instantiated data model, ready to hand to a renderer.
type Model map[string]any

const schemaBaseURL = "https://docrender.local/datamodel/"

// MismatchError reports raw data that does not satisfy a declared shape.
type MismatchError struct {
	TypeName string
	Schema   string
	Detail   string
}

func (e *MismatchError) Error() string {
	if e.Schema == "" {
		return fmt.Sprintf("%s: %s: %s", document.ErrDataModelMismatch, e.TypeName, e.Detail)
	}
	return fmt.Sprintf("%s: %s (expected shape %s): %s", document.ErrDataModelMismatch, e.TypeName, e.Schema, e.Detail)
}

func (e *MismatchError) Unwrap() error { return document.ErrDataModelMismatch }

// Registry holds one compiled schema per data model type name.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*jsonschema.Schema)}
}

// RegisterSchema compiles a JSON Schema document for typeName, replacing
// any earlier registration.
func (r *Registry) RegisterSchema(typeName, schema string) error {
	if strings.TrimSpace(typeName) == "" {
		return fmt.Errorf("%w: data model type name is required", document.ErrInvalidArgument)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := schemaURL(typeName)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return fmt.Errorf("load schema for %s: %w", typeName, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", typeName, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[typeName] = compiled
	return nil
}

// LoadFS registers every *.schema.json, *.schema.yaml and *.schema.yml file
// in the root of fsys. The type name is the file name without the suffix.
func (r *Registry) LoadFS(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	var loaded []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		typeName, isYAML, ok := schemaFileType(name)
		if !ok {
			continue
		}
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return loaded, fmt.Errorf("read %s: %w", name, err)
		}
		if isYAML {
			if raw, err = yamlToJSON(raw); err != nil {
				return loaded, fmt.Errorf("parse %s: %w", name, err)
			}
		}
		if err := r.RegisterSchema(typeName, string(raw)); err != nil {
			return loaded, err
		}
		loaded = append(loaded, typeName)
	}
	sort.Strings(loaded)
	return loaded, nil
}

// Has reports whether typeName has a registered shape.
func (r *Registry) Has(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[typeName]
	return ok
}

// Types lists the registered type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Instantiate validates raw against the shape registered for typeName and
// returns it as a Model. raw may be any JSON-encodable value; it is
// normalized through JSON first so nested structs look the same whichever
// way the caller built them. Numbers stay json.Number so templates print
// them as written. The top level must be an object.
func (r *Registry) Instantiate(typeName string, raw any) (Model, error) {
	r.mu.RLock()
	schema, ok := r.schemas[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, &MismatchError{TypeName: typeName, Detail: "no shape registered for data model type"}
	}

	v, err := normalize(raw)
	if err != nil {
		return nil, &MismatchError{TypeName: typeName, Schema: schema.Location, Detail: err.Error()}
	}
	if err := schema.Validate(v); err != nil {
		return nil, &MismatchError{TypeName: typeName, Schema: schema.Location, Detail: validationDetail(err)}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &MismatchError{TypeName: typeName, Schema: schema.Location, Detail: fmt.Sprintf("expected an object, got %T", v)}
	}
	return Model(obj), nil
}

func normalize(raw any) (any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	var b []byte
	switch t := raw.(type) {
	case json.RawMessage:
		b = t
	case []byte:
		b = t
	default:
		var err error
		if b, err = json.Marshal(raw); err != nil {
			return nil, fmt.Errorf("encode data: %w", err)
		}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode data: trailing data after value")
	}
	return v, nil
}

func validationDetail(err error) string {
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		var parts []string
		collectCauses(verr, &parts)
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return err.Error()
}

// collectCauses flattens the leaves of a validation error tree into
// "location: message" lines.
func collectCauses(e *jsonschema.ValidationError, out *[]string) {
	if len(e.Causes) == 0 {
		loc := e.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, loc+": "+e.Message)
		return
	}
	for _, c := range e.Causes {
		collectCauses(c, out)
	}
}

func schemaURL(typeName string) string {
	return schemaBaseURL + typeName + ".schema.json"
}

func schemaFileType(name string) (typeName string, isYAML, ok bool) {
	for _, suffix := range []string{".schema.json", ".schema.yaml", ".schema.yml"} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(path.Base(name), suffix), suffix != ".schema.json", true
		}
	}
	return "", false, false
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
