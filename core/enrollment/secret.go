package enrollment

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/user"
)

const (
	secretUpper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	secretLower   = "abcdefghijkmnopqrstuvwxyz"
	secretDigits  = "23456789"
	secretSpecial = "!@#$%*-_=+?"
	secretAll     = secretUpper + secretLower + secretDigits + secretSpecial

	secretMaxAttempts = 10
)

// GenerateSecret returns a random temporary password of the given length, at least
// core.MinTempPasswordLength, that satisfies the account password policy.
// attrs are the account attributes the password must not resemble.
func GenerateSecret(length int, attrs ...string) (string, error) {
	if length < core.MinTempPasswordLength {
		length = core.MinTempPasswordLength
	}
	for i := 0; i < secretMaxAttempts; i++ {
		secret, err := randomSecret(length)
		if err != nil {
			return "", errors.Wrap(err, "generating temporary password")
		}
		if user.CheckPasswordPolicy(secret, attrs...) == nil {
			return secret, nil
		}
	}
	return "", errors.New("generating temporary password: policy not satisfied")
}

// randomSecret draws one character of each class, fills up with any class, then shuffles.
func randomSecret(length int) (string, error) {
	buf := make([]byte, 0, length)
	for _, set := range []string{secretUpper, secretLower, secretDigits, secretSpecial} {
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < length {
		c, err := randomChar(secretAll)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	for i := len(buf) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf), nil
}

func randomChar(set string) (byte, error) {
	i, err := randomInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randomInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
