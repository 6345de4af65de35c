package krypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

const (
	keyLen = 32

	// SecretMarker is written in place of secret values. Grepping logs for
	// it shows where the app attempted to expose a secret.
	SecretMarker = "<!SECRET_REDACTED!>"
)

var ErrInvalidKey = errors.New("invalid key")

// Key is a 256-bit key used for encryption and blind indexes.
type Key struct {
	value []byte
}

// ParseKey parses a hex encoded key of 32 bytes (64 hex characters).
func ParseKey(raw string) (Key, error) {
	if len(raw) != hex.EncodedLen(keyLen) {
		return Key{}, ErrInvalidKey
	}

	v, err := hex.DecodeString(raw)
	if err != nil {
		return Key{}, ErrInvalidKey
	}

	return Key{value: v}, nil
}

// ParseKeys parses each of the raw keys, the order is preserved.
func ParseKeys(raw []string) ([]Key, error) {
	keys := make([]Key, 0, len(raw))
	for i, r := range raw {
		k, err := ParseKey(r)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (k Key) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(SecretMarker))
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(SecretMarker), nil
}

func (k Key) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}

// SecretValue returns the raw key. It's an escape hatch for handing the key
// to code outside of this package.
func (k Key) SecretValue() []byte {
	return k.value
}
