// Package chain - работа с блокчейном TON: балансы, история, подписанные переводы
// из кошельков wallet v4r2 (tonutils-go), а также генерация ключей для всех типов кошельков.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"liraexchange/internal/models"
)

// Client - операции с цепочкой, нужные кастодиальному слою
type Client interface {
	// GetBalance - баланс адреса в TON
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)

	// SendTransfer подписывает и отправляет перевод. secret - 32-байтный seed ed25519,
	// вызывающий затирает его после возврата.
	SendTransfer(ctx context.Context, secret []byte, toAddress string, amount decimal.Decimal) (*TransferResult, error)

	// ListTransactions - последние транзакции адреса, новые первыми
	ListTransactions(ctx context.Context, address string, limit int) ([]models.ChainTransaction, error)
}

// TransferResult - идентификатор принятого сетью сообщения
type TransferResult struct {
	TxID string `json:"tx_id"`
}

// ErrTransferRejected - узел отклонил сообщение
var ErrTransferRejected = errors.New("transfer rejected")

// APIError - ошибка HTTP API блокчейна
type APIError struct {
	Method     string
	StatusCode int
	Code       int
	Message    string
	Original   error
}

func (e *APIError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("toncenter %s: %s: %v", e.Method, e.Message, e.Original)
	}
	return fmt.Sprintf("toncenter %s: %s (status %d)", e.Method, e.Message, e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.Original }

// Temporary - сетевые сбои, 5xx и 429 проходят при следующем опросе
func (e *APIError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// ToNano переводит TON в nanoton, дробная часть меньше нанотона отбрасывается
func ToNano(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(9).Truncate(0)
}

// FromNano переводит nanoton в TON
func FromNano(nano decimal.Decimal) decimal.Decimal {
	return nano.Shift(-9)
}
