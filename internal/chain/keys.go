package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"liraexchange/internal/models"
)

const tronAddressVersion = 0x41

// ErrUnsupportedKeyType - для типа кошелька нет генератора ключей
var ErrUnsupportedKeyType = errors.New("unsupported wallet type")

// KeyPair - результат генерации: адрес, публичный ключ и секрет в открытом виде.
// Secret нужно зашифровать и затереть сразу после использования.
type KeyPair struct {
	Address   string
	PublicKey string
	Secret    []byte
}

// KeyGenerator выпускает ключи и адреса для поддерживаемых типов кошельков
type KeyGenerator struct {
	testnet bool
}

// NewKeyGenerator: testnet - адреса TON выпускаются с флагом testnet
func NewKeyGenerator(testnet bool) *KeyGenerator {
	return &KeyGenerator{testnet: testnet}
}

// Generate создаёт новую пару ключей
func (g *KeyGenerator) Generate(walletType models.WalletType) (*KeyPair, error) {
	switch walletType {
	case models.WalletTypeTON:
		seed := make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("generate seed: %w", err)
		}
		return g.TONFromSeed(seed)

	case models.WalletTypeUSDTERC20, models.WalletTypeUSDTTRC20:
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate secp256k1 key: %w", err)
		}
		pub := ethcrypto.FromECDSAPub(&key.PublicKey)
		pair := &KeyPair{
			PublicKey: hex.EncodeToString(pub),
			Secret:    ethcrypto.FromECDSA(key),
		}
		if walletType == models.WalletTypeUSDTERC20 {
			pair.Address = ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
		} else {
			pair.Address = tronAddress(pub)
		}
		return pair, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, walletType)
}

// TONFromSeed - кошелёк v4r2 для существующего seed (импорт мнемоники)
func (g *KeyGenerator) TONFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	addr, err := walletAddress(pub)
	if err != nil {
		return nil, fmt.Errorf("derive wallet address: %w", err)
	}

	secret := make([]byte, len(seed))
	copy(secret, seed)
	return &KeyPair{
		Address:   FormatAddress(addr, true, g.testnet),
		PublicKey: hex.EncodeToString(pub),
		Secret:    secret,
	}, nil
}

// tronAddress - base58check(0x41 || keccak256(pub[1:])[12:])
func tronAddress(uncompressedPub []byte) string {
	hash := ethcrypto.Keccak256(uncompressedPub[1:])
	return base58.CheckEncode(hash[12:], tronAddressVersion)
}

// ValidateAddress проверяет формат внешнего адреса для типа кошелька
func ValidateAddress(walletType models.WalletType, address string) error {
	switch walletType {
	case models.WalletTypeTON:
		_, err := ParseAddress(address)
		return err
	case models.WalletTypeUSDTERC20:
		if len(address) != 42 || address[:2] != "0x" {
			return fmt.Errorf("%w: erc20 address %q", ErrInvalidAddress, address)
		}
		if _, err := hex.DecodeString(address[2:]); err != nil {
			return fmt.Errorf("%w: erc20 address %q", ErrInvalidAddress, address)
		}
		return nil
	case models.WalletTypeUSDTTRC20:
		_, version, err := base58.CheckDecode(address)
		if err != nil || version != tronAddressVersion {
			return fmt.Errorf("%w: trc20 address %q", ErrInvalidAddress, address)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedKeyType, walletType)
}
