package krypto

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Variant = "argon2id"

	// Parameters follow the OWASP recommendation for argon2id:
	// 46 MiB of memory, 1 iteration and 1 degree of parallelism.
	argon2MemoryKiB   = 47104
	argon2Iterations  = 1
	argon2Parallelism = 1

	saltLen    = 16
	hashKeyLen = 32
)

// ErrInvalidInput indicates the data passed to one of the hash functions
// could not be hashed or parsed.
var ErrInvalidInput = errors.New("invalid input")

// Argon2Hash is an argon2id hash together with the parameters used to create it.
// Its text form is the PHC string format, e.g.:
//
//	$argon2id$v=19$m=47104,t=1,p=1$<base64 salt>$<base64 hash>
type Argon2Hash struct {
	Variant     string
	Version     int
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Hash        []byte
}

// HashArgon2 hashes data with a freshly generated random salt.
func HashArgon2(data []byte) (Argon2Hash, error) {
	salt, err := genRandomBytes(saltLen)
	if err != nil {
		return Argon2Hash{}, err
	}

	return hashWithSalt(data, salt)
}

// HashArgon2WithKey hashes data using the key as salt. The output is
// deterministic, which makes it suitable for blind indexes.
func HashArgon2WithKey(data []byte, key Key) (Argon2Hash, error) {
	if len(key.value) == 0 {
		return Argon2Hash{}, fmt.Errorf("empty key: %w", ErrInvalidInput)
	}

	return hashWithSalt(data, key.value)
}

func hashWithSalt(data, salt []byte) (Argon2Hash, error) {
	if len(data) == 0 {
		return Argon2Hash{}, fmt.Errorf("nothing to hash: %w", ErrInvalidInput)
	}

	return Argon2Hash{
		Variant:     argon2Variant,
		Version:     argon2.Version,
		MemoryKiB:   argon2MemoryKiB,
		Iterations:  argon2Iterations,
		Parallelism: argon2Parallelism,
		Salt:        salt,
		Hash:        argon2.IDKey(data, salt, argon2Iterations, argon2MemoryKiB, argon2Parallelism, hashKeyLen),
	}, nil
}

// MatchBytes reports whether data hashes to h, using the salt and
// parameters stored in h. The comparison is constant time.
func (h Argon2Hash) MatchBytes(data []byte) bool {
	if len(h.Hash) == 0 {
		return false
	}

	other := argon2.IDKey(data, h.Salt, h.Iterations, h.MemoryKiB, h.Parallelism, uint32(len(h.Hash)))
	return subtle.ConstantTimeCompare(h.Hash, other) == 1
}

// IsZero reports whether h holds no hash at all.
func (h Argon2Hash) IsZero() bool {
	return len(h.Hash) == 0
}

// ParseArgon2Hash parses a hash in the PHC string format.
func ParseArgon2Hash(s string) (Argon2Hash, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Argon2Hash{}, fmt.Errorf("expected 6 $-separated parts: %w", ErrInvalidInput)
	}

	h := Argon2Hash{Variant: parts[1]}
	if h.Variant != argon2Variant {
		return Argon2Hash{}, fmt.Errorf("unsupported variant %q: %w", h.Variant, ErrInvalidInput)
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return Argon2Hash{}, fmt.Errorf("missing version: %w", ErrInvalidInput)
	}

	var err error
	h.Version, err = strconv.Atoi(version)
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("invalid version: %w", errors.Join(ErrInvalidInput, err))
	}

	if h.Version != argon2.Version {
		return Argon2Hash{}, fmt.Errorf("unsupported version %d: %w", h.Version, ErrInvalidInput)
	}

	var memory, iterations, parallelism string
	for _, param := range strings.Split(parts[3], ",") {
		k, v, _ := strings.Cut(param, "=")
		switch k {
		case "m":
			memory = v
		case "t":
			iterations = v
		case "p":
			parallelism = v
		}
	}

	m, err := strconv.ParseUint(memory, 10, 32)
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("invalid memory: %w", errors.Join(ErrInvalidInput, err))
	}

	t, err := strconv.ParseUint(iterations, 10, 32)
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("invalid iterations: %w", errors.Join(ErrInvalidInput, err))
	}

	p, err := strconv.ParseUint(parallelism, 10, 8)
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("invalid parallelism: %w", errors.Join(ErrInvalidInput, err))
	}

	h.MemoryKiB = uint32(m)
	h.Iterations = uint32(t)
	h.Parallelism = uint8(p)

	h.Salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("invalid salt: %w", errors.Join(ErrInvalidInput, err))
	}

	h.Hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("invalid hash: %w", errors.Join(ErrInvalidInput, err))
	}

	return h, nil
}

// String returns the PHC string format of the hash.
func (h Argon2Hash) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.Variant, h.Version, h.MemoryKiB, h.Iterations, h.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.Salt),
		base64.RawStdEncoding.EncodeToString(h.Hash),
	)
}

func (h Argon2Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Argon2Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseArgon2Hash(string(text))
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

// Scan implements sql.Scanner.
func (h *Argon2Hash) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return h.UnmarshalText([]byte(v))
	case []byte:
		return h.UnmarshalText(v)
	default:
		return fmt.Errorf("can not scan %T into argon2 hash", src)
	}
}

// Value implements driver.Valuer.
func (h Argon2Hash) Value() (driver.Value, error) {
	return h.String(), nil
}

func genRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}
