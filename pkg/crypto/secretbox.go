// Package crypto хранит секреты кошельков в зашифрованном виде.
// Алгоритм скрыт за SecretBox, чтобы его можно было заменить и проверить
// отдельно от логики кошельков.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// Ошибки шифрования
var (
	ErrInvalidKeyLength   = errors.New("encryption key must be exactly 32 bytes")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
	ErrUnknownAlgorithm   = errors.New("unknown secret box algorithm")
	ErrEmptySecret        = errors.New("secret is empty")
)

// KeySize - длина ключа для обоих алгоритмов
const KeySize = 32

// SecretBox - единственная точка шифрования секретного материала
type SecretBox interface {
	// Encrypt возвращает непрозрачный blob для хранения в БД
	Encrypt(secret []byte) (string, error)
	// DecryptForUse возвращает открытый секрет. Вызывающий обязан
	// затереть его через Wipe сразу после использования.
	DecryptForUse(blob string) ([]byte, error)
}

// Wipe затирает буфер с открытым секретом
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateKey генерирует случайный 32-байтный ключ
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ValidateKey проверяет длину ключа
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		return ErrInvalidKeyLength
	}
	return nil
}

// aead - общая часть AES-GCM и XChaCha20-Poly1305
type aead interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// seal: prefix + base64(nonce || ciphertext || tag)
func seal(a aead, prefix string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}

	nonce := make([]byte, a.NonceSize(), a.NonceSize()+len(secret)+a.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := a.Seal(nonce, nonce, secret, []byte(prefix))
	return prefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

func open(a aead, prefix, blob string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(blob, prefix)
	if !ok {
		return nil, ErrUnknownAlgorithm
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	nonceSize := a.NonceSize()
	if len(ciphertext) < nonceSize+a.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	nonce, data := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := a.Open(nil, nonce, data, []byte(prefix))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// algorithmOf возвращает префикс blob'а без разделителя
func algorithmOf(blob string) string {
	if i := strings.IndexByte(blob, ':'); i > 0 {
		return blob[:i]
	}
	return ""
}
