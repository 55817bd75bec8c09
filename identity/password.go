package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	tempPasswordLength = 12

	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	digitChars   = "0123456789"
	specialChars = "!@#$%^&*()"
)

// TemporaryPassword returns a random 12-character password holding at least
// one upper-case letter, lower-case letter, digit and special character.
// It satisfies the pool's password policy for passwordless registrations and
// is never shown to anyone.
func TemporaryPassword() (string, error) {
	all := upperChars + lowerChars + digitChars + specialChars
	buf := make([]byte, 0, tempPasswordLength)

	for _, class := range []string{upperChars, lowerChars, digitChars, specialChars} {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < tempPasswordLength {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	// Fisher-Yates
	for i := len(buf) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf), nil
}

func randomChar(alphabet string) (byte, error) {
	i, err := randomIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("identity: random: %w", err)
	}
	return int(v.Int64()), nil
}
