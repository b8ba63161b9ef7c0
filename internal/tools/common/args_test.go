package common

import (
	"reflect"
	"testing"
)

func TestGetUserTokenIDFromArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]interface{}
		expected string
	}{
		{
			name:     "no user_id returns empty",
			args:     map[string]interface{}{},
			expected: "",
		},
		{
			name:     "explicit user_id",
			args:     map[string]interface{}{"user_id": "token-123"},
			expected: "token-123",
		},
		{
			name:     "whitespace is trimmed",
			args:     map[string]interface{}{"user_id": "  token-123  "},
			expected: "token-123",
		},
		{
			name:     "non-string user_id returns empty",
			args:     map[string]interface{}{"user_id": 42},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetUserTokenIDFromArgs(tt.args)
			if got != tt.expected {
				t.Errorf("GetUserTokenIDFromArgs() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNormalizeRecipients(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected []string
		ok       bool
	}{
		{
			name:     "nil value",
			value:    nil,
			expected: nil,
			ok:       true,
		},
		{
			name:     "single address string",
			value:    "user@example.com",
			expected: []string{"user@example.com"},
			ok:       true,
		},
		{
			name:     "empty string",
			value:    "",
			expected: nil,
			ok:       true,
		},
		{
			name:     "string slice",
			value:    []string{"a@example.com", " b@example.com "},
			expected: []string{"a@example.com", "b@example.com"},
			ok:       true,
		},
		{
			name:     "json decoded array",
			value:    []interface{}{"a@example.com", "b@example.com"},
			expected: []string{"a@example.com", "b@example.com"},
			ok:       true,
		},
		{
			name:     "array drops empty entries",
			value:    []interface{}{"a@example.com", "  "},
			expected: []string{"a@example.com"},
			ok:       true,
		},
		{
			name:  "array with non-string entry",
			value: []interface{}{"a@example.com", 7},
			ok:    false,
		},
		{
			name:  "unsupported shape",
			value: map[string]interface{}{"to": "a@example.com"},
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeRecipients(tt.value)
			if ok != tt.ok {
				t.Fatalf("NormalizeRecipients() ok = %v, want %v", ok, tt.ok)
			}
			if !tt.ok {
				return
			}
			if len(got) == 0 && len(tt.expected) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("NormalizeRecipients() = %v, want %v", got, tt.expected)
			}
		})
	}
}
