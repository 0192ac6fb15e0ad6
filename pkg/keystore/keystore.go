// Package keystore encrypts generated private keys with a caller supplied
// password and salt.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

const (
	version = "v1"

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

var (
	ErrEmptyPassword = errors.New("password must not be empty")
	ErrMalformed     = errors.New("malformed encrypted key")
	ErrDecrypt       = errors.New("wrong password or salt")
)

func deriveKey(password, salt string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	return scrypt.Key([]byte(password), []byte(salt), scryptN, scryptR, scryptP, keyLen)
}

// Encrypt returns "v1.<nonce>.<ciphertext>" with base64url parts.
func Encrypt(plaintext, password, salt string) (string, error) {
	key, err := deriveKey(password, salt)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", pkgerrors.Wrap(err, "read nonce")
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), []byte(salt))
	enc := base64.RawURLEncoding
	return strings.Join([]string{version, enc.EncodeToString(nonce), enc.EncodeToString(sealed)}, "."), nil
}

func Decrypt(encrypted, password, salt string) (string, error) {
	parts := strings.Split(encrypted, ".")
	if len(parts) != 3 || parts[0] != version {
		return "", ErrMalformed
	}
	enc := base64.RawURLEncoding
	nonce, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformed
	}
	sealed, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformed
	}
	key, err := deriveKey(password, salt)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", ErrMalformed
	}
	plain, err := gcm.Open(nil, nonce, sealed, []byte(salt))
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "aes")
	}
	return cipher.NewGCM(block)
}
