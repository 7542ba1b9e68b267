// Package identity defines the subject of a lifecycle operation and the
// generators for server-side usernames and initial passwords.
package identity

import (
	"crypto/rand"
	"math/big"
)

// Status of a lifecycle operation.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// User is the subject of a create/delete saga. The password is returned
// to the caller exactly once and never persisted by usermgrd itself;
// the directory and the KDC are the stores of record.
type User struct {
	Username string `json:"user"`
	UID      int    `json:"uid"`
	GID      int    `json:"gid"`
	Password string `json:"password,omitempty"`
	Status   Status `json:"status"`
}

// Warning describes a non-fatal saga step failure surfaced in the
// response alongside an overall ok status.
type Warning struct {
	Step   string `json:"step"`
	Detail string `json:"detail"`
}

// secretAlphabet is the character set for generated usernames and
// passwords. Lowercase alphanumerics only, so generated names are safe
// as LDAP attribute values, Kerberos principal names, and directory
// names without escaping.
const secretAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

const (
	// UsernameSecretLength is the random part of a generated username.
	UsernameSecretLength = 16

	// PasswordLength of generated initial passwords.
	PasswordLength = 32

	// MaxUsernameLength bounds usernames accepted on the delete path.
	MaxUsernameLength = 32
)

// randomSecret draws n characters from secretAlphabet using crypto/rand.
func randomSecret(n int) (string, error) {
	max := big.NewInt(int64(len(secretAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = secretAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

// NewUsername generates a fresh username. The leading "p" guarantees
// the name starts with a letter, which some NSS consumers require.
func NewUsername() (string, error) {
	s, err := randomSecret(UsernameSecretLength)
	if err != nil {
		return "", err
	}
	return "p" + s, nil
}

// NewPassword generates an initial account password.
func NewPassword() (string, error) {
	return randomSecret(PasswordLength)
}

// ValidUsername reports whether s looks like a username this service
// could have generated. Used to reject path parameters on the delete
// endpoint before any backend round trip.
func ValidUsername(s string) bool {
	if len(s) == 0 || len(s) > MaxUsernameLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	// must start with a letter
	return s[0] >= 'a' && s[0] <= 'z'
}
