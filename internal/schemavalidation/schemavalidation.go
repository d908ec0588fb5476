// Package schemavalidation compiles and applies the JSON Schema documents
// under docs/schema against runtime instances, starting with the patch
// batch shape (§6.2).
package schemavalidation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/patch-batch-v1.schema.json
var patchBatchSchemaJSON []byte

const patchBatchSchemaID = "patch-batch-v1.schema.json"

var patchBatchSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(patchBatchSchemaID, bytes.NewReader(patchBatchSchemaJSON)); err != nil {
		panic(fmt.Sprintf("schemavalidation: embedding patch batch schema: %v", err))
	}
	schema, err := compiler.Compile(patchBatchSchemaID)
	if err != nil {
		panic(fmt.Sprintf("schemavalidation: compiling patch batch schema: %v", err))
	}
	patchBatchSchema = schema
}

// ValidatePatchBatch checks raw (a JSON array of patch operations) against
// the patch batch schema. Returns the decoded instance and a descriptive
// error naming the first violation, in the shape santhosh-tekuri/jsonschema
// produces.
func ValidatePatchBatch(raw []byte) (any, error) {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, fmt.Errorf("schemavalidation: invalid JSON: %w", err)
	}
	if err := patchBatchSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("schemavalidation: patch batch: %w", err)
	}
	return instance, nil
}
