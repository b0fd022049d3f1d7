package report

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed report.schema.json
var schemaJSON []byte

// ErrInvalidJSON is returned by [ValidateJSON] for input that is not JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Violation is one schema error of a report.
type Violation struct {
	Field       string
	Description string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Description
}

// Schema returns the JSON Schema of the report format.
func Schema() []byte {
	return schemaJSON
}

// ValidateJSON checks data against the report schema. It returns the
// violations found; an empty result means the report is valid.
func ValidateJSON(data []byte) ([]Violation, error) {
	var doc any

	err := json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	violations := make([]Violation, 0, len(result.Errors()))

	for _, verr := range result.Errors() {
		violations = append(violations, Violation{Field: verr.Field(), Description: verr.Description()})
	}

	return violations, nil
}
