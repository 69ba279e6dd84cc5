package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encryptionIterations = 100000
	encryptionKeyLength  = 32
	encryptionSaltLength = 16
)

// EncryptSecret derives an AES-256-GCM key from passphrase via PBKDF2 and
// seals plaintext, returning a self-describing
// "pbkdf2$sha256$iterations$salt$nonce$ciphertext" string suitable for
// storing client secrets at rest.
func EncryptSecret(passphrase, plaintext string) (string, error) {
	salt := make([]byte, encryptionSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(passphrase), salt, encryptionIterations, encryptionKeyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s$%s",
		encryptionIterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(nonce),
		base64.RawStdEncoding.EncodeToString(ciphertext),
	), nil
}

// DecryptSecret reverses EncryptSecret.
func DecryptSecret(passphrase, encoded string) (string, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return "", errors.New("decrypt secret: invalid envelope format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return "", errors.New("decrypt secret: unsupported envelope identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return "", errors.New("decrypt secret: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return "", fmt.Errorf("decrypt secret: decode salt: %w", err)
	}
	nonce, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return "", fmt.Errorf("decrypt secret: decode nonce: %w", err)
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return "", fmt.Errorf("decrypt secret: decode ciphertext: %w", err)
	}

	key := pbkdf2.Key([]byte(passphrase), salt, iterations, encryptionKeyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt secret: %w", err)
	}
	return string(plaintext), nil
}
