package crypto

import "fmt"

// Алгоритмы, доступные через конфигурацию
const (
	AlgorithmAESGCM  = "aesgcm"
	AlgorithmXChaCha = "xchacha"
)

// Keyring шифрует основным алгоритмом, а расшифровывает любым известным.
// Позволяет сменить алгоритм без перешифровки уже сохранённых секретов.
type Keyring struct {
	primary string
	boxes   map[string]SecretBox
}

// NewKeyring строит keyring из одного ключа для обоих алгоритмов
func NewKeyring(key []byte, primary string) (*Keyring, error) {
	aesBox, err := NewAESGCMBox(key)
	if err != nil {
		return nil, err
	}
	xBox, err := NewXChaChaBox(key)
	if err != nil {
		return nil, err
	}

	k := &Keyring{
		primary: primary,
		boxes: map[string]SecretBox{
			AlgorithmAESGCM:  aesBox,
			AlgorithmXChaCha: xBox,
		},
	}
	if _, ok := k.boxes[primary]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, primary)
	}
	return k, nil
}

// Encrypt реализует SecretBox
func (k *Keyring) Encrypt(secret []byte) (string, error) {
	return k.boxes[k.primary].Encrypt(secret)
}

// DecryptForUse реализует SecretBox
func (k *Keyring) DecryptForUse(blob string) ([]byte, error) {
	box, ok := k.boxes[algorithmOf(blob)]
	if !ok {
		return nil, ErrUnknownAlgorithm
	}
	return box.DecryptForUse(blob)
}

// Primary - алгоритм новых blob'ов
func (k *Keyring) Primary() string {
	return k.primary
}
