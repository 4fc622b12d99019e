package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidContext marks interaction context payloads rejected by the
// schema.
var ErrInvalidContext = errors.New("invalid interaction context")

// interactionContextSchema types the free-form context payload attached to
// tracked interactions. Dwell time is seconds; scroll depth is a fraction.
const interactionContextSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"dwell_time": {"type": "number", "minimum": 0},
		"scroll_depth": {"type": "number", "minimum": 0, "maximum": 1},
		"referrer": {"type": "string", "maxLength": 2048},
		"device": {"type": "string", "maxLength": 64}
	},
	"additionalProperties": true
}`

// ContextValidator validates interaction context payloads before strength
// computation sees them.
type ContextValidator struct {
	schema *gojsonschema.Schema
}

func NewContextValidator() (*ContextValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(interactionContextSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile interaction context schema: %w", err)
	}
	return &ContextValidator{schema: schema}, nil
}

// ValidateInteractionContext checks the context map; a nil map is valid.
func (v *ContextValidator) ValidateInteractionContext(ctx map[string]interface{}) error {
	if ctx == nil {
		return nil
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(ctx))
	if err != nil {
		return fmt.Errorf("interaction context validation failed: %w", err)
	}

	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidContext, strings.Join(problems, "; "))
	}

	return nil
}
