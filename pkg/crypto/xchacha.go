package crypto

import (
	"crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"
)

const xchachaPrefix = "xchacha:"

// XChaChaBox шифрует XChaCha20-Poly1305 (24-байтный случайный nonce)
type XChaChaBox struct {
	aead cipher.AEAD
}

// NewXChaChaBox создаёт box с 32-байтным ключом
func NewXChaChaBox(key []byte) (*XChaChaBox, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &XChaChaBox{aead: a}, nil
}

// Encrypt реализует SecretBox
func (b *XChaChaBox) Encrypt(secret []byte) (string, error) {
	return seal(b.aead, xchachaPrefix, secret)
}

// DecryptForUse реализует SecretBox
func (b *XChaChaBox) DecryptForUse(blob string) ([]byte, error) {
	return open(b.aead, xchachaPrefix, blob)
}
