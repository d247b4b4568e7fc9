package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// EncryptionKeyEnvVar is the environment variable for the client secret
	// encryption key.
	EncryptionKeyEnvVar = "A365_SECRET_ENCRYPTION_KEY"

	// Prefix marking an encrypted secret value in the dynamic layer.
	encryptedPrefix = "enc:v1:"
)

// EncryptSecret encrypts a client secret using AES-256-GCM with a key from
// the environment. Returns the value unchanged if no key is configured.
func EncryptSecret(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	key := encryptionKey()
	if key == nil {
		return secret, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(secret), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptSecret decrypts a client secret if it carries the encryption
// marker. Returns the value unchanged otherwise.
func DecryptSecret(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	key := encryptionKey()
	if key == nil {
		return "", fmt.Errorf("client secret is encrypted but %s is not set", EncryptionKeyEnvVar)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted secret: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret (wrong key?): %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted checks if a stored secret value is encrypted.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix)
}

// encryptionKey returns the 32-byte AES key from environment, or nil if not
// set. Shorter keys are zero-padded, longer ones truncated.
func encryptionKey() []byte {
	keyStr := os.Getenv(EncryptionKeyEnvVar)
	if keyStr == "" {
		return nil
	}
	key := make([]byte, 32)
	copy(key, []byte(keyStr))
	return key
}
