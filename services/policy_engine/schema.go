// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy_engine

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/EmoRobCare/services/policy_engine/enforcement"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

var policySchema = gojsonschema.NewBytesLoader(enforcement.PolicySchema)

// SchemaError lists every field that failed schema validation.
type SchemaError struct {
	Errors []FieldError
}

// FieldError is a single schema violation at a document path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (se *SchemaError) Error() string {
	var sb strings.Builder
	sb.WriteString("schema validation failed:\n")
	for i, err := range se.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// ValidatePolicyDocument checks a YAML policy document against the embedded
// JSON schema. A *SchemaError is returned when the document is well-formed
// YAML but violates the schema.
func ValidatePolicyDocument(data []byte) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	if doc == nil {
		return &SchemaError{Errors: []FieldError{{Field: "(root)", Message: "document is empty"}}}
	}

	result, err := gojsonschema.Validate(policySchema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to evaluate policy schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	se := &SchemaError{}
	for _, desc := range result.Errors() {
		se.Errors = append(se.Errors, FieldError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return se
}
