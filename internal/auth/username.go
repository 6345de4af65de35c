package auth

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	minUsernameRunes = 3
	maxUsernameRunes = 32
)

var ErrInvalidUsername = errors.New("invalid username")

// Username uniquely identifies an account. A parsed Username is always
// lowercase and only contains the runes a-z, 0-9, '.', '_' and '-'.
type Username string

// ParseUsername trims and lowercases raw and checks if it is a valid username.
func ParseUsername(raw string) (Username, error) {
	name := strings.ToLower(strings.TrimSpace(raw))

	n := utf8.RuneCountInString(name)
	if n < minUsernameRunes || n > maxUsernameRunes {
		return "", ErrInvalidUsername
	}

	for _, r := range name {
		if !validUsernameRune(r) {
			return "", ErrInvalidUsername
		}
	}

	return Username(name), nil
}

func (u *Username) UnmarshalText(text []byte) error {
	parsed, err := ParseUsername(string(text))
	if err != nil {
		return err
	}

	*u = parsed
	return nil
}

func validUsernameRune(r rune) bool {
	return r == '.' || r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
