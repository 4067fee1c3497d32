package service

import (
	"errors"
	"fmt"
)

// Классы ошибок. Каждая конкретная ошибка сервиса оборачивает свой класс,
// поэтому errors.Is работает на обоих уровнях.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateUnavailable   = errors.New("rate unavailable")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrExternalAPI       = errors.New("external api error")
	ErrEncryption        = errors.New("secret storage error")
)

type classedError struct {
	msg   string
	class error
}

func (e *classedError) Error() string { return e.msg }
func (e *classedError) Unwrap() error { return e.class }

func classed(class error, msg string) error {
	return &classedError{msg: msg, class: class}
}

// Ошибки валидации
var (
	ErrInvalidCurrency       = classed(ErrValidation, "invalid currency")
	ErrSameCurrency          = classed(ErrValidation, "source and target currency must differ")
	ErrInvalidAmount         = classed(ErrValidation, "invalid amount")
	ErrMissingPayoutDetails  = classed(ErrValidation, "missing payout details")
	ErrInvalidRate           = classed(ErrValidation, "invalid rate")
	ErrUnsupportedWalletType = classed(ErrValidation, "unsupported wallet type")
	ErrInvalidAddress        = classed(ErrValidation, "invalid address")
	ErrInvalidMnemonic       = classed(ErrValidation, "invalid mnemonic")
)

// Ошибки поиска и состояния
var (
	ErrRateNotFound     = classed(ErrRateUnavailable, "rate not found")
	ErrExchangeNotFound = classed(ErrNotFound, "exchange not found")
	ErrWalletNotFound   = classed(ErrNotFound, "wallet not found")

	ErrWalletExists        = classed(ErrConflict, "active wallet of this type already exists")
	ErrWalletAddressExists = classed(ErrConflict, "wallet address already registered")
	ErrWalletInactive      = classed(ErrConflict, "wallet is inactive")
	ErrNotCustodial        = classed(ErrConflict, "wallet secret is not held by the system")
	ErrConcurrentUpdate    = classed(ErrConflict, "exchange was modified concurrently")

	ErrNoPayoutWallet = classed(ErrInsufficientFunds, "no payout wallet with sufficient balance")
)

// externalError помечает сбой внешнего API, сохраняя исходную ошибку для errors.As
func externalError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrExternalAPI, err)
}
