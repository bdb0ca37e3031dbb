package canonical

import "encoding/json"

// EmptyVariablesKey is the key produced for nil or empty variable maps.
const EmptyVariablesKey = "{}"

// VariablesKey serializes a variables map into a canonical string key.
//
// The encoding sorts object keys at every nesting level, so two maps holding
// identical key/value pairs produce the same key regardless of insertion
// order. A nil or empty map always yields EmptyVariablesKey.
//
// Values must be JSON-representable; encoding failures are returned to the
// caller unwrapped.
func VariablesKey(vars map[string]any) (string, error) {
	if len(vars) == 0 {
		return EmptyVariablesKey, nil
	}

	b, err := json.Marshal(vars)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
