// Package crypto provides credential hashing for the datastore.
//
// Credentials are hashed with Argon2id and stored as "salt$hash" with both
// parts hex-encoded. Verification happens entirely inside the datastore; the
// session registry only ever sees the boolean outcome.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

var ErrMalformedHash = errors.New("crypto: malformed credential hash")

const (
	saltLen = 16
	keyLen  = 32

	// Argon2id parameters: 1 pass, 64 MiB, 4 lanes.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// HashCredential derives an Argon2id hash from a plaintext credential with a
// fresh random salt. The returned string is safe to persist.
func HashCredential(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("crypto: generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, argonTime, argonMemory, argonThreads, keyLen)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(key), nil
}

// VerifyCredential reports whether plaintext matches a stored "salt$hash"
// value. Comparison is constant-time.
func VerifyCredential(plaintext, stored string) (bool, error) {
	salt, want, err := splitStored(stored)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(plaintext), salt, argonTime, argonMemory, argonThreads, keyLen)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func splitStored(stored string) (salt, key []byte, err error) {
	for i := 0; i < len(stored); i++ {
		if stored[i] != '$' {
			continue
		}
		salt, err = hex.DecodeString(stored[:i])
		if err != nil {
			return nil, nil, ErrMalformedHash
		}
		key, err = hex.DecodeString(stored[i+1:])
		if err != nil || len(salt) == 0 || len(key) == 0 {
			return nil, nil, ErrMalformedHash
		}
		return salt, key, nil
	}
	return nil, nil, ErrMalformedHash
}

// GeneratePassword returns a random password string (16 bytes, hex-encoded),
// used when the server seeds the initial admin account.
func GeneratePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("crypto: generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}
