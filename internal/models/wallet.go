package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletType - тип блокчейн-кошелька
type WalletType string

const (
	WalletTypeTON       WalletType = "TON"
	WalletTypeUSDTTRC20 WalletType = "USDT_TRC20"
	WalletTypeUSDTERC20 WalletType = "USDT_ERC20"
)

// SupportedWalletTypes - типы, для которых умеем генерировать ключи
var SupportedWalletTypes = []WalletType{WalletTypeTON, WalletTypeUSDTTRC20, WalletTypeUSDTERC20}

// IsValid проверяет тип кошелька
func (t WalletType) IsValid() bool {
	for _, s := range SupportedWalletTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Wallet - кастодиальная запись для одного адреса
type Wallet struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	OwnerUser         *uuid.UUID      `json:"owner_user,omitempty" db:"owner_user"` // nil для кошельков оператора
	WalletType        WalletType      `json:"wallet_type" db:"wallet_type"`
	Address           string          `json:"address" db:"address"`
	EncryptedSecret   string          `json:"-" db:"encrypted_secret"` // никогда не отдаётся наружу
	PublicKey         string          `json:"public_key" db:"public_key"`
	Balance           decimal.Decimal `json:"balance" db:"balance"`                 // кэш, источник истины - сеть
	CreditedAmount    decimal.Decimal `json:"credited_amount" db:"credited_amount"` // уже зачтённые депозиты
	LastBalanceUpdate *time.Time      `json:"last_balance_update,omitempty" db:"last_balance_update"`
	IsActive          bool            `json:"is_active" db:"is_active"`
	IsHot             bool            `json:"is_hot" db:"is_hot"`
	LastUsed          *time.Time      `json:"last_used,omitempty" db:"last_used"`
	Transactions      []uuid.UUID     `json:"transactions,omitempty" db:"-"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// IsOperator - кошелёк оператора (без владельца)
func (w *Wallet) IsOperator() bool {
	return w.OwnerUser == nil
}

// Available - баланс, ещё не зачтённый ни одному обмену
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.CreditedAmount)
}

// BalanceFresh - кэш баланса моложе maxAge
func (w *Wallet) BalanceFresh(now time.Time, maxAge time.Duration) bool {
	if w.LastBalanceUpdate == nil {
		return false
	}
	return now.Sub(*w.LastBalanceUpdate) < maxAge
}

// Summary возвращает представление без секретов
func (w *Wallet) Summary() WalletSummary {
	return WalletSummary{
		ID:                w.ID,
		OwnerUser:         w.OwnerUser,
		WalletType:        w.WalletType,
		Address:           w.Address,
		PublicKey:         w.PublicKey,
		Balance:           w.Balance,
		LastBalanceUpdate: w.LastBalanceUpdate,
		IsActive:          w.IsActive,
		IsHot:             w.IsHot,
		CreatedAt:         w.CreatedAt,
	}
}

// WalletSummary - то, что видит пользователь
type WalletSummary struct {
	ID                uuid.UUID       `json:"id"`
	OwnerUser         *uuid.UUID      `json:"owner_user,omitempty"`
	WalletType        WalletType      `json:"wallet_type"`
	Address           string          `json:"address"`
	PublicKey         string          `json:"public_key"`
	Balance           decimal.Decimal `json:"balance"`
	LastBalanceUpdate *time.Time      `json:"last_balance_update,omitempty"`
	IsActive          bool            `json:"is_active"`
	IsHot             bool            `json:"is_hot"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ChainTransaction - транзакция, прочитанная из сети
type ChainTransaction struct {
	Hash   string          `json:"hash"`
	Time   time.Time       `json:"time"`
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	From   string          `json:"from"`
	To     string          `json:"to"`
}
