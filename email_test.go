package podauth_test

import (
	"testing"

	"github.com/goliatone/go-podauth"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		err      error
	}{
		{name: "lower case", input: "a@x.com", expected: "a@x.com"},
		{name: "mixed case", input: "Alice@Example.COM", expected: "alice@example.com"},
		{name: "surrounding spaces", input: "  a@x.com \n", expected: "a@x.com"},
		{name: "display name", input: "Alice <Alice@x.com>", expected: "alice@x.com"},
		{name: "empty", input: "", err: podauth.ErrMissingEmail},
		{name: "blank", input: "   ", err: podauth.ErrMissingEmail},
		{name: "not an address", input: "alice", err: podauth.ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := podauth.NormalizeEmail(tt.input)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
