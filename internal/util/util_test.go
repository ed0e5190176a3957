package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already clean", input: "a@b.com", want: "a@b.com"},
		{name: "trims whitespace", input: "  a@b.com \n", want: "a@b.com"},
		{name: "lowercases", input: "User@Example.COM", want: "user@example.com"},
		{name: "strips zero width space", input: "a@b\u200b.com", want: "a@b.com"},
		{name: "strips zwj and bom", input: "\ufeffa\u200d@b.com", want: "a@b.com"},
		{name: "strips word joiner", input: "a\u2060@b.com", want: "a@b.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeEmail(tt.input))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "5m10s", FormatDuration(5*time.Minute+10*time.Second))
	assert.Equal(t, "1h30m", FormatDuration(90*time.Minute))
	assert.Equal(t, "60s", FormatDuration(59*time.Second+800*time.Millisecond))
}
