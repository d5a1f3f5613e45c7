package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// Crypt encrypts and decrypts stored images with a user-provided key.
// A nil Crypt passes data through untouched.
type Crypt struct {
	key []byte
}

// NewCrypt creates a Crypt for the given key. Empty key is rejected.
func NewCrypt(key []byte) (*Crypt, error) {
	if len(key) == 0 {
		return nil, errors.New("empty encryption key")
	}
	return &Crypt{key: key}, nil
}

// Encrypt seals data with NaCl Secretbox. A random 16-byte salt feeds the Argon2id
// key derivation, a random 24-byte nonce feeds the box; both are prepended to the
// sealed payload so Decrypt is self-contained.
func (c *Crypt) Encrypt(data []byte) ([]byte, error) {
	if c == nil {
		return data, nil
	}
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	naclKey := new([32]byte)
	copy(naclKey[:], deriveKey(c.key, salt))

	nonce := new([24]byte)
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	out := make([]byte, 24+16)
	copy(out, nonce[:])
	copy(out[24:], salt)
	return secretbox.Seal(out, data, nonce, naclKey), nil
}

// Decrypt opens a payload produced by Encrypt.
func (c *Crypt) Decrypt(sealed []byte) ([]byte, error) {
	if c == nil {
		return sealed, nil
	}
	if len(sealed) < 24+16+secretbox.Overhead {
		return nil, errors.New("sealed data too short")
	}

	nonce := new([24]byte)
	copy(nonce[:], sealed[:24])

	salt := sealed[24:40]
	naclKey := new([32]byte)
	copy(naclKey[:], deriveKey(c.key, salt))

	decrypted, ok := secretbox.Open(nil, sealed[40:], nonce, naclKey)
	if !ok {
		return nil, fmt.Errorf("failed to decrypt, wrong key or corrupted data")
	}
	return decrypted, nil
}

// deriveKey stretches the user key with Argon2id. Parameters match the usual
// interactive profile: 1 iteration, 64MiB memory, 4 threads, 32-byte output.
func deriveKey(key, salt []byte) []byte {
	return argon2.IDKey(key, salt, 1, 64*1024, 4, 32)
}
