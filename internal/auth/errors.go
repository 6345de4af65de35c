package auth

import (
	"errors"

	"github.com/willemschots/accounts/internal/errorz"
)

var (
	// ErrDuplicate indicates a new account collides with an existing
	// username or email. It is wrapped in an errorz.Keyed naming the field.
	ErrDuplicate = errors.New("already in use")
	// ErrConflict indicates an edit of an existing account claims a username
	// or email of another account. It is wrapped in an errorz.Keyed naming the field.
	ErrConflict = errors.New("already in use by another account")
	// ErrAuthFailure is matched by every AuthFailure.
	ErrAuthFailure = errors.New("incorrect credentials")
)

// AuthFailureKind tells why authentication failed. It is for internal
// use (logs, tests) only, both kinds must look the same to the outside world.
type AuthFailureKind int

const (
	AuthNotFound AuthFailureKind = iota + 1
	AuthBadPassword
)

func (k AuthFailureKind) String() string {
	switch k {
	case AuthNotFound:
		return "not found"
	case AuthBadPassword:
		return "bad password"
	default:
		return "unknown"
	}
}

// AuthFailure is returned when credentials could not be verified.
type AuthFailure struct {
	Kind AuthFailureKind
}

// Error returns the same message for every kind.
func (e AuthFailure) Error() string {
	return ErrAuthFailure.Error()
}

func (e AuthFailure) Is(target error) bool {
	return target == ErrAuthFailure
}

// mapUnique replaces a unique constraint violation reported by the store
// with a Keyed sentinel error. Other errors are returned as is.
func mapUnique(err, sentinel error) error {
	if !errors.Is(err, errorz.ErrConstraintViolated) {
		return err
	}

	key, ok := errorz.KeyOf(err)
	if !ok {
		return err
	}

	return errorz.Keyed{Key: key, Err: sentinel}
}
