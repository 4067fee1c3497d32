package crypto

import (
	"crypto/aes"
	"crypto/cipher"
)

const aesGCMPrefix = "aesgcm:"

// AESGCMBox шифрует AES-256-GCM, nonce хранится перед шифротекстом
type AESGCMBox struct {
	gcm cipher.AEAD
}

// NewAESGCMBox создаёт box с 32-байтным ключом
func NewAESGCMBox(key []byte) (*AESGCMBox, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESGCMBox{gcm: gcm}, nil
}

// Encrypt реализует SecretBox
func (b *AESGCMBox) Encrypt(secret []byte) (string, error) {
	return seal(b.gcm, aesGCMPrefix, secret)
}

// DecryptForUse реализует SecretBox
func (b *AESGCMBox) DecryptForUse(blob string) ([]byte, error) {
	return open(b.gcm, aesGCMPrefix, blob)
}
