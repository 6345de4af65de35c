package krypto

import (
	"encoding/hex"
	"errors"
	"log/slog"
)

const tokenLen = 32

var ErrInvalidToken = errors.New("invalid token")

// Token is a single-use random code that proves control over an email
// address, for example during registration or a password reset.
//
// The plaintext token is only ever exposed in the email sent to the owner.
// It is persisted as an argon2 hash and redacted from logs.
type Token [tokenLen]byte

// GenerateToken creates a new random token with 256 bits of entropy.
func GenerateToken() (Token, error) {
	b, err := genRandomBytes(tokenLen)
	if err != nil {
		return Token{}, err
	}
	return Token(b), nil
}

// ParseToken parses the hex representation of a token.
func ParseToken(raw string) (Token, error) {
	if len(raw) != tokenLen*2 {
		return Token{}, ErrInvalidToken
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return Token{}, ErrInvalidToken
	}

	return Token(b), nil
}

// String returns the hex representation of the token. Unlike passwords,
// tokens need to be embedded in emails, so this is allowed.
func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

func (t *Token) UnmarshalText(text []byte) error {
	parsed, err := ParseToken(string(text))
	if err != nil {
		return err
	}

	*t = parsed
	return nil
}

// Hash hashes the token with a random salt for storage.
func (t Token) Hash() (Argon2Hash, error) {
	return HashArgon2(t[:])
}

// Match reports whether the token matches the stored hash.
func (t Token) Match(h Argon2Hash) bool {
	return h.MatchBytes(t[:])
}

// LogValue implements the slog.LogValuer interface.
func (t Token) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}
