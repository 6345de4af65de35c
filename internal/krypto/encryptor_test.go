package krypto_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/willemschots/accounts/internal/krypto"
)

func Test_NewEncryptor(t *testing.T) {
	t.Run("fail, no keys", func(t *testing.T) {
		_, err := krypto.NewEncryptor(nil)
		if err == nil {
			t.Fatalf("wanted error, got <nil>")
		}
	})
}

func Test_Encryptor_EncryptAndDecrypt(t *testing.T) {
	key1 := must(krypto.ParseKey(testKey1))
	key2 := must(krypto.ParseKey(testKey2))

	okTests := map[string]struct {
		encryptKeys []krypto.Key
		decryptKeys []krypto.Key
		raw         []byte
	}{
		"ok, minimum input": {
			encryptKeys: []krypto.Key{key1},
			decryptKeys: []krypto.Key{key1},
			raw:         []byte{0},
		},
		"ok, email address": {
			encryptKeys: []krypto.Key{key1},
			decryptKeys: []krypto.Key{key1},
			raw:         []byte("alice@example.com"),
		},
		"ok, multiple keys": {
			encryptKeys: []krypto.Key{key1, key2},
			decryptKeys: []krypto.Key{key1, key2},
			raw:         []byte("alice@example.com"),
		},
		"ok, decrypt after key rotation": {
			encryptKeys: []krypto.Key{key1},
			decryptKeys: []krypto.Key{key1, key2},
			raw:         []byte("alice@example.com"),
		},
	}

	for name, tc := range okTests {
		t.Run(name, func(t *testing.T) {
			enc := must(krypto.NewEncryptor(tc.encryptKeys))
			dec := must(krypto.NewEncryptor(tc.decryptKeys))

			msg, err := enc.Encrypt(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if bytes.Contains(msg, tc.raw) && len(tc.raw) > 1 {
				t.Fatalf("ciphertext contains plaintext")
			}

			got, err := dec.Decrypt(msg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !bytes.Equal(got, tc.raw) {
				t.Fatalf("want %q, got %q", tc.raw, got)
			}
		})
	}

	t.Run("ok, same input encrypts differently", func(t *testing.T) {
		enc := must(krypto.NewEncryptor([]krypto.Key{key1}))

		a := must(enc.Encrypt([]byte("alice@example.com")))
		b := must(enc.Encrypt([]byte("alice@example.com")))
		if bytes.Equal(a, b) {
			t.Fatalf("expected random nonces to result in different ciphertexts")
		}
	})

	for name, raw := range map[string][]byte{"nil": nil, "empty slice": {}} {
		t.Run("fail encrypt, "+name, func(t *testing.T) {
			enc := must(krypto.NewEncryptor([]krypto.Key{key1}))

			_, err := enc.Encrypt(raw)
			if !errors.Is(err, krypto.ErrInvalidData) {
				t.Fatalf("wanted error %v, got %v (via errors.Is)", krypto.ErrInvalidData, err)
			}
		})
	}

	t.Run("fail, no key for this index", func(t *testing.T) {
		enc := must(krypto.NewEncryptor([]krypto.Key{key1, key2}))
		dec := must(krypto.NewEncryptor([]krypto.Key{key1}))

		_, err := dec.Decrypt(must(enc.Encrypt([]byte("alice@example.com"))))
		if !errors.Is(err, krypto.ErrUnknownKey) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", krypto.ErrUnknownKey, err)
		}
	})

	t.Run("fail, key was replaced", func(t *testing.T) {
		enc := must(krypto.NewEncryptor([]krypto.Key{key1}))
		dec := must(krypto.NewEncryptor([]krypto.Key{key2}))

		_, err := dec.Decrypt(must(enc.Encrypt([]byte("alice@example.com"))))
		if !errors.Is(err, krypto.ErrInvalidData) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", krypto.ErrInvalidData, err)
		}
	})

	invalidDecrypt := map[string][]byte{
		"nil":                  nil,
		"empty slice":          {},
		"short of index":       {0, 0, 0},
		"only index":           {0, 0, 0, 0},
		"short of nonce":       {0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		"only index and nonce": {0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		"garbage ciphertext":   {0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 2, 2, 2},
	}

	for name, msg := range invalidDecrypt {
		t.Run("fail decrypt, "+name, func(t *testing.T) {
			dec := must(krypto.NewEncryptor([]krypto.Key{key1}))

			_, err := dec.Decrypt(msg)
			if !errors.Is(err, krypto.ErrInvalidData) {
				t.Fatalf("wanted error %v, got %v (via errors.Is)", krypto.ErrInvalidData, err)
			}
		})
	}
}
