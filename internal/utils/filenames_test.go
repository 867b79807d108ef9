package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Ivan Petrov", "Ivan_Petrov"},
		{"  Ivan   Petrov  ", "Ivan_Petrov"},
		{"Иван Петров", "Иван_Петров"},
		{"a/b\\c:d*e?f\"g<h>i|j", "abcdefghij"},
		{"tab\tand\nnewline", "tab_and_newline"},
		{"a / b", "a_b"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFileName(tt.in), "input %q", tt.in)
	}
}

func TestGenerateSecureToken(t *testing.T) {
	a, err := GenerateSecureToken(32)
	assert.NoError(t, err)
	b, err := GenerateSecureToken(32)
	assert.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
