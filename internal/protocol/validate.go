package protocol

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// toolFrameSchema constrains tool frames before they reach subscribers.
// Servers occasionally ship partial tool events during deploys; rejecting
// them here keeps the session transcript well-formed.
const toolFrameSchema = `{
	"type": "object",
	"properties": {
		"type":    {"const": "tool"},
		"name":    {"type": "string", "minLength": 1},
		"payload": {"type": "object"}
	},
	"required": ["type", "name"]
}`

// ToolFrameValidationError indicates a tool frame failed schema validation.
type ToolFrameValidationError struct {
	Errors []string
}

func (e *ToolFrameValidationError) Error() string {
	return fmt.Sprintf("tool frame validation failed: %s", strings.Join(e.Errors, "; "))
}

func validateToolFrame(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(toolFrameSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errorMsgs []string
		for _, err := range result.Errors() {
			errorMsgs = append(errorMsgs, err.String())
		}
		return &ToolFrameValidationError{Errors: errorMsgs}
	}

	return nil
}
