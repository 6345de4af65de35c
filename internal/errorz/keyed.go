package errorz

import "errors"

// Keyed attributes an error to a named field, e.g. "email".
type Keyed struct {
	Key string
	Err error
}

func (k Keyed) Error() string {
	return k.Key + ": " + k.Err.Error()
}

func (k Keyed) Unwrap() error {
	return k.Err
}

// KeyOf returns the key of the first Keyed error in err's tree.
func KeyOf(err error) (string, bool) {
	var k Keyed
	if !errors.As(err, &k) {
		return "", false
	}
	return k.Key, true
}
