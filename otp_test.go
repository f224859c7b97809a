package podauth_test

import (
	"regexp"
	"testing"

	"github.com/goliatone/go-podauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOTP(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{name: "default length", length: podauth.DefaultOTPLength},
		{name: "min length", length: 4},
		{name: "max length", length: 10},
		{name: "too short", length: 3, wantErr: true},
		{name: "too long", length: 11, wantErr: true},
		{name: "zero", length: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := podauth.GenerateOTP(tt.length)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, code)
				return
			}

			require.NoError(t, err)
			assert.Len(t, code, tt.length)
			assert.Regexp(t, regexp.MustCompile(`^[0-9]+$`), code)
		})
	}
}

func TestGenerateOTPIsNotRepeating(t *testing.T) {
	seen := make(map[string]int)
	for i := 0; i < 200; i++ {
		code, err := podauth.GenerateOTP(podauth.DefaultOTPLength)
		require.NoError(t, err)
		seen[code]++
	}

	// 200 draws out of a million values, a handful of collisions at most
	assert.Greater(t, len(seen), 190)
}
