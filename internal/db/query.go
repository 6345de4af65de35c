package db

import (
	"errors"
	"strings"

	"github.com/willemschots/accounts/internal/krypto"
)

// Query helps build SQL queries using bind parameters.
// Use Query to construct parts of a query and use Param to add bind parameters.
// The final query and parameters can be retrieved using the Get method.
//
// The zero value is ready to use, but can not encrypt or blind index values.
type Query struct {
	Encryptor     *krypto.Encryptor
	BlindIndexKey krypto.Key
	b             strings.Builder
	params        []any
	err           error
}

// Unsafe writes a non-parameterized part of a query.
func (q *Query) Unsafe(s string) {
	q.b.WriteString(s)
}

// Param writes a parameterized part of a query.
func (q *Query) Param(v any) {
	q.b.WriteString("?")
	q.params = append(q.params, v)
}

// ParamEncrypted writes a parameterized part of a query and encrypts the value before adding it to the query.
// A nil value is written as NULL.
func (q *Query) ParamEncrypted(d []byte) {
	if d == nil {
		q.Param(nil)
		return
	}

	if q.Encryptor == nil {
		q.err = errors.Join(q.err, errors.New("no encryptor set"))
		return
	}

	enc, err := q.Encryptor.Encrypt(d)
	if err != nil {
		q.err = errors.Join(q.err, err)
		return
	}

	q.Param(enc)
}

// ParamBlindIndex writes a parameterized part of a query and adds a blind index of the value to the query.
// Important Note: The blind indexes will need to be rebuild if the key or argon2 parameters change.
func (q *Query) ParamBlindIndex(d []byte) {
	hash, err := BlindIndex(d, q.BlindIndexKey)
	if err != nil {
		q.err = errors.Join(q.err, err)
		return
	}

	q.Param(hash)
}

// Params writes multiple parameterized parts of a query seperated by commas.
func (q *Query) Params(v ...any) {
	for i, p := range v {
		if i > 0 {
			q.b.WriteString(", ")
		}
		q.b.WriteString("?")
		q.params = append(q.params, p)
	}
}

// Get returns the constructed query and parameter values.
func (q *Query) Get() (string, []any, error) {
	return q.b.String(), q.params, q.err
}

// Decrypt decrypts a value that was encrypted by ParamEncrypted.
// A nil value is returned as nil.
func (q *Query) Decrypt(d []byte) ([]byte, error) {
	if d == nil {
		return nil, nil
	}

	if q.Encryptor == nil {
		return nil, errors.New("no encryptor set")
	}

	return q.Encryptor.Decrypt(d)
}

// BlindIndex returns the text form of a keyed hash of d.
func BlindIndex(d []byte, key krypto.Key) (string, error) {
	hash, err := krypto.HashArgon2WithKey(d, key)
	if err != nil {
		return "", err
	}

	// overwrite the salt because we don't want to store it.
	hash.Salt = nil
	return hash.String(), nil
}
