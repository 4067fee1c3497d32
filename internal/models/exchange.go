package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExchangeStatus - состояние заявки на обмен
type ExchangeStatus string

const (
	StatusInitiated  ExchangeStatus = "initiated"
	StatusProcessing ExchangeStatus = "processing"
	StatusCompleted  ExchangeStatus = "completed"
	StatusFailed     ExchangeStatus = "failed"
	StatusRefunded   ExchangeStatus = "refunded"
)

// IsTerminal - из этого состояния изменений больше нет
func (s ExchangeStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

// TxStatus - статус транзакции-ноги обмена
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

// Страны банковских счетов
const (
	CountryRU = "RU"
	CountryTR = "TR"
)

// SourceTransaction - входящая нога
type SourceTransaction struct {
	Status  TxStatus `json:"status,omitempty" db:"source_tx_status"`
	Address string   `json:"address,omitempty" db:"source_tx_address"`
	TxID    string   `json:"tx_id,omitempty" db:"source_tx_id"`
}

// DestinationTransaction - исходящая нога
type DestinationTransaction struct {
	Status        TxStatus `json:"status,omitempty" db:"dest_tx_status"`
	Address       string   `json:"address,omitempty" db:"dest_tx_address"`
	TxID          string   `json:"tx_id,omitempty" db:"dest_tx_id"`
	BankReference string   `json:"bank_reference,omitempty" db:"dest_bank_reference"`
}

// BankAccount - снимок реквизитов на момент создания
type BankAccount struct {
	AccountID  string `json:"account_id"`
	Bank       string `json:"bank"`
	HolderName string `json:"holder_name,omitempty"`
	Country    string `json:"country"` // RU, TR
}

// PayoutDetails - реквизиты выплаты от клиента
type PayoutDetails struct {
	BankAccount   *BankAccount `json:"bank_account,omitempty"`
	CryptoAddress string       `json:"crypto_address,omitempty"`
}

// Exchange - одна заявка на расчёт
type Exchange struct {
	ID                     uuid.UUID              `json:"id" db:"id"`
	UserID                 uuid.UUID              `json:"user_id" db:"user_id"`
	FromCurrency           Currency               `json:"from_currency" db:"from_currency"`
	ToCurrency             Currency               `json:"to_currency" db:"to_currency"`
	FromAmount             decimal.Decimal        `json:"from_amount" db:"from_amount"`
	ToAmount               decimal.Decimal        `json:"to_amount" db:"to_amount"`
	ExchangeRate           decimal.Decimal        `json:"exchange_rate" db:"exchange_rate"` // зафиксирован при создании
	FeePercentage          decimal.Decimal        `json:"fee_percentage" db:"fee_percentage"`
	FeeAmount              decimal.Decimal        `json:"fee_amount" db:"fee_amount"`
	SourceTransaction      SourceTransaction      `json:"source_transaction"`
	DestinationTransaction DestinationTransaction `json:"destination_transaction"`
	CryptoWalletID         *uuid.UUID             `json:"crypto_wallet_id,omitempty" db:"crypto_wallet_id"`
	BankAccount            *BankAccount           `json:"bank_account,omitempty" db:"bank_account"`
	Status                 ExchangeStatus         `json:"status" db:"status"`
	AdminNotes             string                 `json:"admin_notes,omitempty" db:"admin_notes"`
	CreatedAt              time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time              `json:"updated_at" db:"updated_at"`
	CompletedAt            *time.Time             `json:"completed_at,omitempty" db:"completed_at"`
}

// ExchangeFilter - фильтр выборки заявок
type ExchangeFilter struct {
	UserID      *uuid.UUID
	Status      ExchangeStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// Quote - расчёт без побочных эффектов
type Quote struct {
	FromCurrency  Currency        `json:"from_currency"`
	ToCurrency    Currency        `json:"to_currency"`
	FromAmount    decimal.Decimal `json:"from_amount"`
	ToAmount      decimal.Decimal `json:"to_amount"`
	Rate          decimal.Decimal `json:"rate"`
	FeePercentage decimal.Decimal `json:"fee_percentage"`
	Fee           decimal.Decimal `json:"fee"`
	MinAmount     decimal.Decimal `json:"min_amount"`
	MaxAmount     decimal.Decimal `json:"max_amount"`
}
