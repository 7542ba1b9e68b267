package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsername(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		user, err := NewUsername()
		require.NoError(t, err)

		assert.Len(t, user, UsernameSecretLength+1)
		assert.True(t, strings.HasPrefix(user, "p"))
		assert.True(t, ValidUsername(user), "generated username must validate: %q", user)
		assert.False(t, seen[user], "duplicate username generated: %q", user)
		seen[user] = true
	}
}

func TestNewPassword(t *testing.T) {
	password, err := NewPassword()
	require.NoError(t, err)
	assert.Len(t, password, PasswordLength)

	for _, c := range password {
		assert.Contains(t, secretAlphabet, string(c))
	}
}

func TestValidUsername(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"generated shape", "pseetbfgv8lbt00w4", true},
		{"single letter", "a", true},
		{"empty", "", false},
		{"leading digit", "1abc", false},
		{"uppercase", "Pabc", false},
		{"path traversal", "../etc", false},
		{"ldap meta", "p)(uid=*", false},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidUsername(tt.input))
		})
	}
}
