package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Charset groups the four character classes a generated password draws from.
type Charset struct {
	Upper   string
	Lower   string
	Digits  string
	Symbols string
}

const symbols = "!@#$%^&*()_+-=[]{}|;:,.<>?"

var (
	StandardCharset = Charset{
		Upper:   "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
		Lower:   "abcdefghijklmnopqrstuvwxyz",
		Digits:  "0123456789",
		Symbols: symbols,
	}

	// UnambiguousCharset drops I, O, l, o, 0 and 1.
	UnambiguousCharset = Charset{
		Upper:   "ABCDEFGHJKLMNPQRSTUVWXYZ",
		Lower:   "abcdefghijkmnpqrstuvwxyz",
		Digits:  "23456789",
		Symbols: symbols,
	}
)

const (
	TempPasswordLength  = 14
	ResetPasswordLength = 16
)

func (c Charset) classes() []string {
	return []string{c.Upper, c.Lower, c.Digits, c.Symbols}
}

func (c Charset) all() string {
	return c.Upper + c.Lower + c.Digits + c.Symbols
}

// GeneratePassword returns a random password of exactly length characters with
// at least one character of every class. The remainder is drawn uniformly from
// the union of all classes and the result is shuffled.
func GeneratePassword(length int, cs Charset) (string, error) {
	classes := cs.classes()
	if length < len(classes) {
		return "", fmt.Errorf("password length must be at least %d", len(classes))
	}

	out := make([]byte, 0, length)
	for _, class := range classes {
		ch, err := pick(class)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}

	union := cs.all()
	for len(out) < length {
		ch, err := pick(union)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}

	// Fisher-Yates
	for i := len(out) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func pick(alphabet string) (byte, error) {
	i, err := randInt(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return int(v.Int64()), nil
}
