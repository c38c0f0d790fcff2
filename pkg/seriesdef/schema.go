package seriesdef

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/opencom-org/series/pkg/api"
)

//go:embed seriesdef.schema.json
var embeddedSchema string

// Schema returns the embedded JSON schema that definition documents are
// validated against.
func Schema() string {
	return embeddedSchema
}

// validateAgainstSchema checks a JSON-encoded document against the embedded
// schema. Shape violations come back as a single api.ValidationError listing
// every failing field.
func validateAgainstSchema(jsonData []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(embeddedSchema)
	documentLoader := gojsonschema.NewBytesLoader(jsonData)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return api.NewValidationError("definition does not match schema: %s", strings.Join(details, "; "))
}
