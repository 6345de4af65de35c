package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
)

var (
	// ErrUnknownKey indicates data was encrypted with a key the Encryptor does not have.
	ErrUnknownKey = errors.New("unknown key")
	// ErrInvalidData indicates the data can not be encrypted or decrypted.
	ErrInvalidData = errors.New("invalid data")
)

// keyIndexLen is the size of the key index that prefixes every ciphertext.
const keyIndexLen = 4

// Encryptor encrypts and decrypts with AES-256-GCM.
//
// It holds an append-only list of keys, the last key is used to encrypt.
// Every ciphertext is prefixed with the (non-secret) index of its key and
// the nonce, so data encrypted with older keys remains readable after a
// key rotation:
//
//	[4 byte big endian key index][nonce][sealed data]
//
// The key index is also authenticated as additional data.
type Encryptor struct {
	aeads []cipher.AEAD
}

// NewEncryptor creates an Encryptor for the provided keys.
func NewEncryptor(keys []Key) (*Encryptor, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one key is required")
	}

	aeads := make([]cipher.AEAD, 0, len(keys))
	for _, k := range keys {
		block, err := aes.NewCipher(k.value)
		if err != nil {
			return nil, err
		}

		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}

		aeads = append(aeads, gcm)
	}

	return &Encryptor{aeads: aeads}, nil
}

// Encrypt encrypts data with the latest key.
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	index := len(e.aeads) - 1
	aead := e.aeads[index]

	nonce, err := genRandomBytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}

	prefix := binary.BigEndian.AppendUint32(make([]byte, 0, keyIndexLen), uint32(index))

	out := make([]byte, 0, keyIndexLen+len(nonce)+len(data)+aead.Overhead())
	out = append(out, prefix...)
	out = append(out, nonce...)

	return aead.Seal(out, nonce, data, prefix), nil
}

// Decrypt decrypts a message created by Encrypt, using the key
// identified by the message prefix.
func (e *Encryptor) Decrypt(msg []byte) ([]byte, error) {
	if len(msg) < keyIndexLen {
		return nil, ErrInvalidData
	}

	index := binary.BigEndian.Uint32(msg[:keyIndexLen])
	if int(index) >= len(e.aeads) {
		return nil, ErrUnknownKey
	}

	aead := e.aeads[index]
	headerLen := keyIndexLen + aead.NonceSize()
	if len(msg) <= headerLen {
		return nil, ErrInvalidData
	}

	data, err := aead.Open(nil, msg[keyIndexLen:headerLen], msg[headerLen:], msg[:keyIndexLen])
	if err != nil {
		return nil, errors.Join(ErrInvalidData, err)
	}

	return data, nil
}
