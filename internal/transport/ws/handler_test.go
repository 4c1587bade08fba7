package ws

import (
	"encoding/json"
	"testing"
)

func TestTextField(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		keys     []string
		expected string
	}{
		{"bare string", `"Jordan Lee"`, []string{"name"}, "Jordan Lee"},
		{"object with key", `{"name": "Jordan Lee"}`, []string{"name"}, "Jordan Lee"},
		{"first non-empty key wins", `{"name": "", "email": "a@b.c"}`, []string{"name", "email"}, "a@b.c"},
		{"missing keys", `{"other": "x"}`, []string{"name"}, ""},
		{"non-string value skipped", `{"age": 42}`, []string{"age"}, ""},
		{"empty payload", ``, []string{"name"}, ""},
		{"invalid json", `{`, []string{"name"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := textField(json.RawMessage(tt.data), tt.keys...)
			if got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}
