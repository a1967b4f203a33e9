// JSON Schema emission for the export artifacts, so consumers can validate a
// feed before trusting it.

package export

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects the JSON Schema of an artifact value.
func SchemaFor(v any) ([]byte, error) {
	r := jsonschema.Reflector{
		// Artifacts are flat documents; inline definitions read better than a
		// $defs indirection for downstream validators.
		ExpandedStruct:             true,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: false,
	}
	schema := r.Reflect(v)
	return json.MarshalIndent(schema, "", "  ")
}
