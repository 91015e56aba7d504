package auth

import (
	"crypto/rand"
	"math/big"
	"time"
)

const (
	upperChars   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerChars   = "abcdefghijkmnopqrstuvwxyz"
	digitChars   = "23456789"
	specialChars = "!@#$%&*?"

	// TemporaryPasswordLength is the generated credential length.
	TemporaryPasswordLength = 8
	// TemporaryPasswordTTL is how long a temporary credential stays valid.
	TemporaryPasswordTTL = 24 * time.Hour
)

// GenerateTemporaryPassword returns a random password with at least one upper,
// lower, digit and special character.
func GenerateTemporaryPassword() (string, error) {
	classes := []string{upperChars, lowerChars, digitChars, specialChars}
	all := upperChars + lowerChars + digitChars + specialChars

	out := make([]byte, 0, TemporaryPasswordLength)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < TemporaryPasswordLength {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	for i := len(out) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

// TemporaryCredential is a freshly generated credential and its stored form.
type TemporaryCredential struct {
	Plaintext string
	Hash      string
	ExpiresAt time.Time
}

// NewTemporaryCredential generates, hashes and stamps the expiry of a credential.
func NewTemporaryCredential(now time.Time, cost int) (*TemporaryCredential, error) {
	plain, err := GenerateTemporaryPassword()
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(plain, cost)
	if err != nil {
		return nil, err
	}
	return &TemporaryCredential{Plaintext: plain, Hash: hash, ExpiresAt: now.Add(TemporaryPasswordTTL)}, nil
}

func randomChar(alphabet string) (byte, error) {
	idx, err := randomInt(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[idx], nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
