// Package configeditor serves the flat, user-editable configuration
// document exposed at GET/POST /config/editor (spec §4.M, §6), validated
// against a companion JSON Schema before any write is accepted.
package configeditor

import (
	"encoding/json"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/amd-agi/genforge/internal/apierrors"
)

// Editor reads, validates, and writes the config-editor document.
type Editor struct {
	documentPath string
	schemaPath   string
	schema       *jsonschema.Schema
}

// New compiles the schema at schemaPath once; every Write call afterward
// reuses the compiled schema.
func New(documentPath, schemaPath string) (*Editor, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return nil, apierrors.New().
			WithCode(apierrors.InternalError).
			WithMessagef("compile config editor schema %q", schemaPath).
			WithError(err)
	}

	return &Editor{documentPath: documentPath, schemaPath: schemaPath, schema: schema}, nil
}

// Read returns the current on-disk document, decoded generically so the
// handler can pass it through to JSON untouched.
func (e *Editor) Read() (interface{}, error) {
	data, err := os.ReadFile(e.documentPath)
	if err != nil {
		return nil, apierrors.New().
			WithCode(apierrors.InternalError).
			WithMessagef("read config editor document %q", e.documentPath).
			WithError(err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apierrors.New().
			WithCode(apierrors.InternalError).
			WithMessagef("parse config editor document %q", e.documentPath).
			WithError(err)
	}
	return doc, nil
}

// Schema returns the decoded companion JSON Schema document, for
// GET /config/editor to hand back alongside the current value.
func (e *Editor) Schema() (interface{}, error) {
	data, err := os.ReadFile(e.schemaPath)
	if err != nil {
		return nil, apierrors.New().
			WithCode(apierrors.InternalError).
			WithMessagef("read config editor schema %q", e.schemaPath).
			WithError(err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apierrors.New().
			WithCode(apierrors.InternalError).
			WithMessagef("parse config editor schema %q", e.schemaPath).
			WithError(err)
	}
	return doc, nil
}

// Write validates doc against the compiled schema and, only if it
// passes, overwrites the on-disk document. A schema violation leaves the
// existing file untouched and returns a ValidationError-class error
// (spec §7).
func (e *Editor) Write(doc interface{}) error {
	if err := e.schema.Validate(doc); err != nil {
		return apierrors.New().
			WithCode(apierrors.RequestParameterInvalid).
			WithMessagef("config editor document failed schema validation").
			WithError(err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apierrors.New().
			WithCode(apierrors.InternalError).
			WithMessage("marshal config editor document").
			WithError(err)
	}

	if err := os.WriteFile(e.documentPath, data, 0o644); err != nil {
		return apierrors.New().
			WithCode(apierrors.InternalError).
			WithMessagef("write config editor document %q", e.documentPath).
			WithError(err)
	}
	return nil
}
