package sqlite

import "encoding/json"

// argsMatchSubset reports whether every key/value in match is present
// and equal in the stored args JSON. SQLite has no jsonb containment
// operator, so the subset match is done in Go after pulling candidate
// rows by func name.
func argsMatchSubset(args []byte, match map[string]any) bool {
	if len(match) == 0 {
		return true
	}
	var stored map[string]any
	if len(args) == 0 {
		return false
	}
	if err := json.Unmarshal(args, &stored); err != nil {
		return false
	}
	for k, v := range match {
		sv, ok := stored[k]
		if !ok {
			return false
		}
		// Round-trip both sides through JSON so numeric types compare
		// consistently (e.g. int vs float64 from json.Unmarshal).
		a, _ := json.Marshal(v)
		b, _ := json.Marshal(sv)
		if string(a) != string(b) {
			return false
		}
	}
	return true
}
