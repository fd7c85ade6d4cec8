package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
)

var (
	// ErrUnknownKey indicates that the key used to encrypt the data is unknown.
	ErrUnknownKey = errors.New("unknown key")
	// ErrInvalidData indicates that the data is invalid.
	ErrInvalidData = errors.New("invalid data")
)

const indexBytes = 4

// Encryptor encrypts and decrypts data using AES-GCM. It's used to keep
// personal data that is never queried on (like phone numbers) encrypted at rest.
//
// The encryptor uses an append only list of keys. The last key in the list
// is the one used for encryption, older keys remain available for decryption.
//
// Output data is prefixed with the index of the key that was used. The index is
// also passed as additional data to GCM, so it can't be swapped without detection.
// The index itself is not considered secret.
type Encryptor struct {
	keys []Key
}

// NewEncryptor creates a new encryptor with the provided keys.
func NewEncryptor(keys []Key) (*Encryptor, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one key is required")
	}

	return &Encryptor{
		keys: keys,
	}, nil
}

// Encrypt encrypts the data using the latest available key.
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	index := uint32(len(e.keys) - 1)
	gcm, err := e.gcm(index)
	if err != nil {
		return nil, err
	}

	nonce, err := genRandomBytes(gcm.NonceSize())
	if err != nil {
		return nil, err
	}

	additional := binary.BigEndian.AppendUint32(nil, index)

	out := make([]byte, 0, indexBytes+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, additional...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, additional), nil
}

// Decrypt decrypts a message created by Encrypt.
func (e *Encryptor) Decrypt(message []byte) ([]byte, error) {
	if len(message) < indexBytes {
		return nil, ErrInvalidData
	}

	index := binary.BigEndian.Uint32(message[:indexBytes])
	if int(index) >= len(e.keys) {
		return nil, ErrUnknownKey
	}

	gcm, err := e.gcm(index)
	if err != nil {
		return nil, err
	}

	minLen := indexBytes + gcm.NonceSize()
	if len(message) <= minLen {
		return nil, ErrInvalidData
	}

	nonce := message[indexBytes:minLen]
	return gcm.Open(nil, nonce, message[minLen:], message[:indexBytes])
}

func (e *Encryptor) gcm(index uint32) (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.keys[index].value)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}
