// Package worker - фоновые задачи: сверка заявок с блокчейном и обновление котировок.
//
// Обе задачи - явные объекты со Start/Stop. На процесс допускается
// ровно один экземпляр каждой задачи.
package worker

import (
	"errors"
	"fmt"

	"liraexchange/internal/service"
	"liraexchange/pkg/retry"
)

// OutcomeKind - итог обработки одной заявки
type OutcomeKind int

const (
	// OutcomeOk - заявка продвинута
	OutcomeOk OutcomeKind = iota
	// OutcomeWait - ждём внешнего события (депозит, пополнение горячего кошелька)
	OutcomeWait
	// OutcomeRetryable - временный сбой, повтор на следующем проходе
	OutcomeRetryable
	// OutcomeFatal - повтор не поможет, нужен оператор
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOk:
		return "ok"
	case OutcomeWait:
		return "wait"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome - результат обработки заявки вместе с причиной
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// IsError - исход учитывается счётчиком ошибок подряд
func (o Outcome) IsError() bool {
	return o.Kind == OutcomeRetryable || o.Kind == OutcomeFatal
}

// ErrNoDestination - у выплаты нет адреса получателя
var ErrNoDestination = errors.New("payout has no destination address")

// ErrNoWallet - к заявке не привязан кошелёк депозита
var ErrNoWallet = errors.New("exchange has no deposit wallet")

// ErrExternalDeposit - кошелёк заявки не кастодиальный, поступление на него нельзя проверить
var ErrExternalDeposit = errors.New("deposit wallet is not custodial")

// Classify переводит ошибку шага в исход:
//
//	nil                                    -> Ok
//	ErrEncryption, нет адреса/кошелька     -> Fatal
//	ErrExternalDeposit                     -> Fatal
//	ErrInsufficientFunds, ErrNoPayoutWallet -> Wait
//	retry.Permanent                        -> Fatal
//	всё остальное                          -> Retryable
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Kind: OutcomeOk}
	case errors.Is(err, service.ErrEncryption),
		errors.Is(err, ErrNoDestination),
		errors.Is(err, ErrNoWallet),
		errors.Is(err, ErrExternalDeposit):
		return Outcome{Kind: OutcomeFatal, Err: err}
	case errors.Is(err, service.ErrInsufficientFunds):
		return Outcome{Kind: OutcomeWait, Err: err}
	}

	var permanent *retry.PermanentError
	if errors.As(err, &permanent) {
		return Outcome{Kind: OutcomeFatal, Err: err}
	}
	return Outcome{Kind: OutcomeRetryable, Err: err}
}
