package dataconv

import (
	"crypto/rand"
	"math/big"

	"github.com/hazyhaar/docforge/transform"
)

const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// SecretOptions selects the secret length and character classes.
type SecretOptions struct {
	Length    int
	Lowercase bool
	Uppercase bool
	Digits    bool
	Symbols   bool
}

// DefaultSecretOptions is 32 characters drawn from every class.
func DefaultSecretOptions() SecretOptions {
	return SecretOptions{Length: 32, Lowercase: true, Uppercase: true, Digits: true, Symbols: true}
}

// MaxSecretLength bounds generated secrets.
const MaxSecretLength = 512

// Secret draws a uniformly random secret from crypto/rand.
func Secret(opts SecretOptions) (string, error) {
	if opts.Length <= 0 {
		opts.Length = 32
	}
	if opts.Length > MaxSecretLength {
		return "", transform.ValidationError("secret length must not exceed 512")
	}
	var charset string
	if opts.Lowercase {
		charset += lowerChars
	}
	if opts.Uppercase {
		charset += upperChars
	}
	if opts.Digits {
		charset += digitChars
	}
	if opts.Symbols {
		charset += symbolChars
	}
	if charset == "" {
		return "", transform.ValidationError("Please select at least one character type")
	}

	max := big.NewInt(int64(len(charset)))
	out := make([]byte, opts.Length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", transform.ProcessingError("random source failed", err)
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}
