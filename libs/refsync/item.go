// Package refsync keeps denormalized copies of another service's aggregates. Items
// arrive by pull (Synchronizer) or push (event consumers) and merge last-write-wins.
package refsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Item is one aggregate snapshot as published by its owning service.
type Item struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Version   int64          `json:"version"`
	IsDeleted bool           `json:"is_deleted"`
	UpdatedAt time.Time      `json:"updated_at"`
	Fields    map[string]any `json:"-"`
}

// Record is the local copy of an Item.
type Record struct {
	ID            string
	TenantID      string
	Fields        map[string]any
	SourceVersion int64
	IsDeleted     bool
	LastUpdatedAt time.Time
}

func (it Item) Record() Record {
	return Record{
		ID:            it.ID,
		TenantID:      it.TenantID,
		Fields:        it.Fields,
		SourceVersion: it.Version,
		IsDeleted:     it.IsDeleted,
		LastUpdatedAt: it.UpdatedAt.UTC(),
	}
}

// BaseItemSchema is what every snapshot item must satisfy.
const BaseItemSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "tenant_id", "version", "updated_at"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "tenant_id": {"type": "string", "minLength": 1},
    "version": {"type": "integer", "minimum": 1},
    "is_deleted": {"type": "boolean"},
    "updated_at": {"type": "string", "format": "date-time"}
  }
}`

var envelopeKeys = map[string]bool{"id": true, "tenant_id": true, "version": true, "is_deleted": true, "updated_at": true}

// Validator checks raw items against a JSON schema before decoding them.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles schema. An empty schema uses BaseItemSchema.
func NewValidator(name, schema string) (*Validator, error) {
	if strings.TrimSpace(schema) == "" {
		schema = BaseItemSchema
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	url := fmt.Sprintf("https://propertyhub.schemas.local/refsync/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("refsync schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("refsync schema compile failed: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// MustValidator is NewValidator for schemas known at compile time.
func MustValidator(name, schema string) *Validator {
	v, err := NewValidator(name, schema)
	if err != nil {
		panic(err)
	}
	return v
}

// Parse validates raw and decodes it. Keys outside the envelope land in Fields.
func (v *Validator) Parse(raw json.RawMessage) (Item, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Item{}, fmt.Errorf("decode item: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return Item{}, fmt.Errorf("invalid item: %w", err)
	}

	var it Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return Item{}, fmt.Errorf("decode item: %w", err)
	}
	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return Item{}, fmt.Errorf("decode item: %w", err)
	}
	it.Fields = map[string]any{}
	for k, val := range all {
		if !envelopeKeys[k] {
			it.Fields[k] = val
		}
	}
	it.UpdatedAt = it.UpdatedAt.UTC()
	return it, nil
}

// ItemError reports one item the synchronizer could not merge. The batch continues.
type ItemError struct {
	Index int
	ID    string
	Err   error
}

func (e *ItemError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("sync item %d (%s): %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("sync item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
