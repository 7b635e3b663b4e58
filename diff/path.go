package diff

import "strings"

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// getPath resolves a dot-delimited path against nested wire objects.
func getPath(m map[string]any, path string) (any, bool) {
	keys := splitPath(path)
	var current any = m
	for _, key := range keys {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// setPath writes a value at a dot-delimited path, creating intermediate
// objects as needed. A non-object in the middle of the path is overwritten.
func setPath(m map[string]any, path string, value any) {
	keys := splitPath(path)
	current := m
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[key] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
}

// deletePath removes the value at a dot-delimited path. Missing segments are
// a no-op.
func deletePath(m map[string]any, path string) {
	keys := splitPath(path)
	current := m
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, keys[len(keys)-1])
}
