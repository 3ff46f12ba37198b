package postgres

import "encoding/json"

// marshalArgsMatch renders a JSON-subset match filter as a jsonb literal
// for the @> containment operator. A nil/empty map matches any args.
func marshalArgsMatch(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}
