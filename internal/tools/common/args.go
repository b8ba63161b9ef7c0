package common

import "strings"

// GetUserTokenIDFromArgs extracts the stored credential reference from
// request arguments. Returns "" when the argument is absent or not a
// string.
func GetUserTokenIDFromArgs(args map[string]interface{}) string {
	if v, ok := args["user_id"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// NormalizeRecipients accepts a single address string or an array of
// address strings and normalizes both forms to a []string. Entries are
// trimmed; empty entries are dropped. Returns false when the value has
// any other shape.
func NormalizeRecipients(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, true
		}
		return []string{trimmed}, true
	case []string:
		return trimEntries(v), true
	case []interface{}:
		entries := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			entries = append(entries, s)
		}
		return trimEntries(entries), true
	default:
		return nil, false
	}
}

func trimEntries(entries []string) []string {
	result := make([]string, 0, len(entries))
	for _, entry := range entries {
		trimmed := strings.TrimSpace(entry)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
