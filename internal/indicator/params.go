package indicator

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const periodSchema = `{
	"type": "object",
	"properties": {
		"period": {"type": "integer", "minimum": 2, "maximum": 500}
	},
	"additionalProperties": false
}`

const waveTrendSchema = `{
	"type": "object",
	"properties": {
		"channel_length": {"type": "integer", "minimum": 2, "maximum": 100},
		"average_length": {"type": "integer", "minimum": 2, "maximum": 100}
	},
	"additionalProperties": false
}`

var paramSchemas = map[string]*jsonschema.Schema{}

func init() {
	raw := map[string]string{
		IDEMA:       periodSchema,
		IDRSI:       periodSchema,
		IDATR:       periodSchema,
		IDMoneyFlow: periodSchema,
		IDWaveTrend: waveTrendSchema,
	}
	for id, schema := range raw {
		compiled, err := jsonschema.CompileString(id+".json", schema)
		if err != nil {
			panic(fmt.Sprintf("compile %s params schema: %v", id, err))
		}
		paramSchemas[id] = compiled
	}
}

// ValidateParams checks an indicator parameter map against the indicator's
// schema. Unknown ids fail; a nil map is valid (defaults apply).
func ValidateParams(id string, params map[string]any) error {
	schema, ok := paramSchemas[id]
	if !ok {
		return fmt.Errorf("unknown indicator id %q", id)
	}
	if params == nil {
		return nil
	}
	normalized := make(map[string]any, len(params))
	for k, v := range params {
		switch n := v.(type) {
		case int:
			normalized[k] = float64(n)
		case int64:
			normalized[k] = float64(n)
		default:
			normalized[k] = v
		}
	}
	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("indicator %s params invalid: %w", id, err)
	}
	return nil
}
