// Package schema validates candidate documents against JSON Schema and
// reports failures as field-keyed messages rather than errors, so callers can
// distinguish "invalid" from "broken".
package schema

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xeipuuv/gojsonschema"
)

// Result is the outcome of a validation. Exactly one of the two shapes holds:
// OK with Value set, or !OK with FieldErrors keyed by field path.
type Result struct {
	OK          bool
	Value       map[string]any
	FieldErrors map[string]string
}

// Validator compiles and caches JSON Schemas by their source text.
type Validator struct {
	cache *lru.Cache[string, *gojsonschema.Schema]
}

const defaultCacheSize = 128

// NewValidator creates a validator with a bounded compiled-schema cache.
func NewValidator() (*Validator, error) {
	cache, err := lru.New[string, *gojsonschema.Schema](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Validator{cache: cache}, nil
}

// Compile checks a schema without validating anything, so collections can
// reject a bad schema at registration time.
func (v *Validator) Compile(schemaJSON string) error {
	_, err := v.schema(schemaJSON)
	return err
}

// Validate checks a candidate wire document against the schema. A validation
// failure is not an error: it comes back as Result.FieldErrors. The error
// return is reserved for broken schemas and malformed candidates.
func (v *Validator) Validate(schemaJSON string, candidate map[string]any) (Result, error) {
	if schemaJSON == "" {
		return Result{OK: true, Value: candidate}, nil
	}

	compiled, err := v.schema(schemaJSON)
	if err != nil {
		return Result{}, err
	}

	res, err := compiled.Validate(gojsonschema.NewGoLoader(candidate))
	if err != nil {
		return Result{}, fmt.Errorf("schema: validation error: %w", err)
	}
	if res.Valid() {
		return Result{OK: true, Value: candidate}, nil
	}

	fieldErrors := make(map[string]string, len(res.Errors()))
	for _, desc := range res.Errors() {
		fieldErrors[desc.Field()] = desc.Description()
	}
	return Result{OK: false, FieldErrors: fieldErrors}, nil
}

func (v *Validator) schema(schemaJSON string) (*gojsonschema.Schema, error) {
	if compiled, ok := v.cache.Get(schemaJSON); ok {
		return compiled, nil
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("schema: invalid json schema: %w", err)
	}
	v.cache.Add(schemaJSON, compiled)
	return compiled, nil
}
