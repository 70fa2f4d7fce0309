package history

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"chatbridge/internal/constants"
	"chatbridge/internal/models"

	"golang.org/x/crypto/pbkdf2"
)

type encryptor struct {
	gcm cipher.AEAD
}

func NewEncryptor() (*encryptor, error) {
	// If encryption is disabled, return a nil encryptor
	if !isEncryptionEnabled() {
		return &encryptor{gcm: nil}, nil
	}

	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, models.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	// Prepend nonce to ciphertext for storage
	result := append(nonce, ciphertext...)
	return base64.StdEncoding.EncodeToString(result), nil
}

func (e *encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" || e.gcm == nil {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	if len(data) < models.NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:models.NonceSize], data[models.NonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// EncryptForLookup creates deterministic ciphertext so an encrypted
// column can still be used in a WHERE clause. The nonce is derived from
// the plaintext, so the same conversation name always encrypts to the
// same value. Weaker than random-nonce encryption (equal plaintexts are
// visible as equal rows); acceptable for the lookup column only.
func (e *encryptor) EncryptForLookup(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	hash := sha256.Sum256(append([]byte(plaintext), getEncryptionLookupSalt()...))
	nonce := hash[:models.NonceSize]

	ciphertext := e.gcm.Seal(nil, nonce, []byte(plaintext), nil) // #nosec G407 - deterministic nonce required for searchable encryption
	result := append(nonce, ciphertext...)
	return base64.StdEncoding.EncodeToString(result), nil
}

func (e *encryptor) EncryptIfEnabled(plaintext string) (string, error) {
	if !isEncryptionEnabled() {
		return plaintext, nil
	}
	return e.Encrypt(plaintext)
}

func (e *encryptor) EncryptForLookupIfEnabled(plaintext string) (string, error) {
	if !isEncryptionEnabled() {
		return plaintext, nil
	}
	return e.EncryptForLookup(plaintext)
}

func (e *encryptor) DecryptIfEnabled(ciphertext string) (string, error) {
	if !isEncryptionEnabled() {
		return ciphertext, nil
	}
	return e.Decrypt(ciphertext)
}

func deriveKey() ([]byte, error) {
	secret := os.Getenv("CHATBRIDGE_ENCRYPTION_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("CHATBRIDGE_ENCRYPTION_SECRET environment variable is required when encryption is enabled")
	}

	if len(secret) < constants.MinSecretLength {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", constants.MinSecretLength)
	}

	key := pbkdf2.Key([]byte(secret), getEncryptionSalt(), models.Iterations, models.KeySize, sha256.New)
	return key, nil
}

func getEncryptionSalt() []byte {
	if salt := os.Getenv("CHATBRIDGE_ENCRYPTION_SALT"); len(salt) >= constants.MinSaltLength {
		return []byte(salt)
	}
	return []byte(constants.EncryptionSalt)
}

func getEncryptionLookupSalt() []byte {
	if salt := os.Getenv("CHATBRIDGE_ENCRYPTION_LOOKUP_SALT"); len(salt) >= constants.MinSaltLength {
		return []byte(salt)
	}
	return []byte(constants.EncryptionLookupSalt)
}

func isEncryptionEnabled() bool {
	return os.Getenv("CHATBRIDGE_ENABLE_ENCRYPTION") == "true"
}
