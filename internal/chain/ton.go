package chain

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

const (
	mnemonicWords = 24

	// PayGasSeparately | IgnoreErrors
	transferMode = wallet.PayGasSeparately + wallet.IgnoreErrors
)

var (
	// ErrInvalidAddress - строка не является адресом для своего типа кошелька
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidMnemonic - фраза не является мнемоникой кошелька TON без пароля
	ErrInvalidMnemonic = errors.New("invalid ton mnemonic")
)

// ParseAddress принимает user-friendly (base64 или base64url) и сырую форму "wc:hex"
func ParseAddress(s string) (*address.Address, error) {
	s = strings.TrimSpace(s)

	var (
		a   *address.Address
		err error
	)
	if strings.Contains(s, ":") {
		a, err = address.ParseRawAddr(s)
	} else {
		a, err = address.ParseAddr(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return a, nil
}

// FormatAddress - user-friendly форма с нужными флагами, исходный адрес не меняется
func FormatAddress(a *address.Address, bounceable, testnet bool) string {
	out := address.NewAddress(0, byte(a.Workchain()), a.Data())
	out.SetBounce(bounceable)
	out.SetTestnetOnly(testnet)
	return out.String()
}

// NormalizeMnemonic приводит фразу к 24 словам в нижнем регистре
func NormalizeMnemonic(phrase string) ([]string, error) {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) != mnemonicWords {
		return nil, fmt.Errorf("%w: expected %d words, got %d", ErrInvalidMnemonic, mnemonicWords, len(words))
	}
	return words, nil
}

// MnemonicToSeed восстанавливает 32-байтный seed ed25519 из мнемоники TON.
// Слова и контрольная проверка фразы без пароля выполняются tonutils.
func MnemonicToSeed(phrase string) ([]byte, error) {
	words, err := NormalizeMnemonic(phrase)
	if err != nil {
		return nil, err
	}

	w, err := wallet.FromSeed(nil, words, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	priv := w.PrivateKey()
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, priv.Seed())
	return seed, nil
}

// walletAddress - адрес wallet v4r2 для публичного ключа, subwallet по умолчанию
func walletAddress(pub ed25519.PublicKey) (*address.Address, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes", ed25519.PublicKeySize)
	}
	return wallet.AddressFromPubKey(pub, wallet.V4R2, wallet.DefaultSubwallet)
}

// transfer - параметры одного исходящего перевода
type transfer struct {
	To         *address.Address
	Amount     *big.Int // nanoton
	Seqno      uint32
	ValidUntil time.Time
}

// transferMessage собирает подписанное внешнее сообщение wallet v4r2.
// При seqno == 0 кошелёк ещё не развёрнут, и к сообщению прикладывается StateInit.
func transferMessage(priv ed25519.PrivateKey, t transfer) (*cell.Cell, error) {
	if t.To == nil {
		return nil, ErrInvalidAddress
	}
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		return nil, errors.New("transfer amount must be positive")
	}

	pub := priv.Public().(ed25519.PublicKey)
	self, err := walletAddress(pub)
	if err != nil {
		return nil, err
	}

	intMsg, err := tlb.ToCell(&tlb.InternalMessage{
		IHRDisabled: true,
		Bounce:      t.To.IsBounceable(),
		DstAddr:     t.To,
		Amount:      tlb.FromNanoTON(t.Amount),
	})
	if err != nil {
		return nil, fmt.Errorf("build internal message: %w", err)
	}

	validUntil := t.ValidUntil
	if validUntil.IsZero() {
		validUntil = time.Now().Add(transferTTL)
	}

	payload := cell.BeginCell().
		MustStoreUInt(uint64(wallet.DefaultSubwallet), 32).
		MustStoreUInt(uint64(validUntil.Unix()), 32).
		MustStoreUInt(uint64(t.Seqno), 32).
		MustStoreUInt(0, 8). // op: simple send
		MustStoreUInt(uint64(transferMode), 8).
		MustStoreRef(intMsg)

	signature := payload.EndCell().Sign(priv)
	body := cell.BeginCell().
		MustStoreSlice(signature, 512).
		MustStoreBuilder(payload).
		EndCell()

	ext := &tlb.ExternalMessage{
		DstAddr: self,
		Body:    body,
	}
	if t.Seqno == 0 {
		ext.StateInit, err = wallet.GetStateInit(pub, wallet.V4R2, wallet.DefaultSubwallet)
		if err != nil {
			return nil, fmt.Errorf("build state init: %w", err)
		}
	}

	msg, err := tlb.ToCell(ext)
	if err != nil {
		return nil, fmt.Errorf("build external message: %w", err)
	}
	return msg, nil
}
