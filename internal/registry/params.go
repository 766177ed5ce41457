package registry

// StringParam reads a string parameter, falling back when the key is
// absent or holds a different type.
func StringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return fallback
}

// IntParam reads an integer parameter. JSON decoders deliver numbers
// as float64, so both forms are accepted.
func IntParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// BoolParam reads a boolean parameter, falling back when the key is
// absent or holds a different type.
func BoolParam(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}
