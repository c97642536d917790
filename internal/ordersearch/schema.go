package ordersearch

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const responseSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["orders"],
  "properties": {
    "orders": {"type": "array"},
    "totalOrders": {"type": ["integer", "null"], "minimum": 0},
    "currentPage": {"type": ["integer", "null"], "minimum": 0},
    "totalPages": {"type": ["integer", "null"], "minimum": 0},
    "continuationToken": {"type": ["string", "null"]},
    "isComplete": {"type": ["boolean", "null"]}
  }
}`

var responseSchema = mustCompileSchema(responseSchemaJSON)

func mustCompileSchema(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid order search response schema: %v", err))
	}
	return schema
}

// validateResponse checks the page envelope. Individual orders are not
// checked; their shape is the normalizer's concern.
func validateResponse(body []byte) error {
	result, err := responseSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("failed to validate response: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("response does not match contract: %s", strings.Join(problems, "; "))
}
