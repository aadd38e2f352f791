package util

import (
	"strings"
	"testing"
)

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain document text",
			input: "Osmosis moves water across the membrane.",
			want:  "Osmosis moves water across the membrane.",
		},
		{
			name:  "null bytes from extraction",
			input: "Chapter 3\x00: Cell Transport\x00",
			want:  "Chapter 3: Cell Transport",
		},
		{
			name:  "invalid utf8 sequence",
			input: string([]byte{'o', 0xff, 's', 'm', 0xfe, 'o'}),
			want:  "osmo",
		},
		{
			name:  "form feeds survive",
			input: "page one\fpage two",
			want:  "page one\fpage two",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizePostgresText(tt.input)
			if got != tt.want {
				t.Fatalf("unexpected sanitized value: got %q, want %q", got, tt.want)
			}
			if strings.ContainsRune(got, 0) {
				t.Error("sanitized value still contains a null byte")
			}
		})
	}
}
