// Package ledger - жизненный цикл заявки на обмен и арифметика суммы к выплате.
//
// Функции перехода общие для обработчика платежей и админских операций:
// они меняют заявку в памяти, а сохраняет её репозиторий условным UPDATE
// по прежнему статусу.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"liraexchange/internal/models"
)

var (
	// ErrTerminalState - заявка в конечном состоянии, статус больше не меняется
	ErrTerminalState = errors.New("exchange is in a terminal state")
	// ErrInvalidTransition - такого перехода нет в графе состояний
	ErrInvalidTransition = errors.New("invalid exchange status transition")
)

// ValidTransitions определяет допустимые переходы между состояниями.
// completed -> refunded выполняется только администратором.
var ValidTransitions = map[models.ExchangeStatus][]models.ExchangeStatus{
	models.StatusInitiated:  {models.StatusProcessing, models.StatusFailed},
	models.StatusProcessing: {models.StatusCompleted, models.StatusFailed},
	models.StatusCompleted:  {models.StatusRefunded},
	models.StatusFailed:     {},
	models.StatusRefunded:   {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to models.ExchangeStatus) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// checkTransition различает конечное состояние и просто неверный переход
func checkTransition(ex *models.Exchange, to models.ExchangeStatus) error {
	if CanTransition(ex.Status, to) {
		return nil
	}
	if ex.Status.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalState, ex.Status, to)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ex.Status, to)
}

// ConfirmSource - средства от пользователя получены, заявка переходит в processing
func ConfirmSource(ex *models.Exchange, txID string, now time.Time) error {
	if err := checkTransition(ex, models.StatusProcessing); err != nil {
		return err
	}
	ex.SourceTransaction.Status = models.TxCompleted
	ex.SourceTransaction.TxID = txID
	ex.Status = models.StatusProcessing
	ex.UpdatedAt = now
	return nil
}

// Complete - выплата отправлена, заявка завершена
func Complete(ex *models.Exchange, txID, bankRef string, now time.Time) error {
	if err := checkTransition(ex, models.StatusCompleted); err != nil {
		return err
	}
	ex.DestinationTransaction.Status = models.TxCompleted
	if txID != "" {
		ex.DestinationTransaction.TxID = txID
	}
	if bankRef != "" {
		ex.DestinationTransaction.BankReference = bankRef
	}
	ex.Status = models.StatusCompleted
	ex.UpdatedAt = now
	completed := now
	ex.CompletedAt = &completed
	return nil
}

// Fail переводит заявку в failed, незавершённые ноги помечаются failed,
// причина дописывается в заметки
func Fail(ex *models.Exchange, reason string, now time.Time) error {
	if err := checkTransition(ex, models.StatusFailed); err != nil {
		return err
	}
	if ex.SourceTransaction.Status == models.TxPending {
		ex.SourceTransaction.Status = models.TxFailed
	}
	if ex.DestinationTransaction.Status == models.TxPending {
		ex.DestinationTransaction.Status = models.TxFailed
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		ex.AdminNotes = AppendNote(ex.AdminNotes, "failed: "+reason)
	}
	ex.Status = models.StatusFailed
	ex.UpdatedAt = now
	return nil
}

// Refund - возврат по завершённой заявке
func Refund(ex *models.Exchange, now time.Time) error {
	if err := checkTransition(ex, models.StatusRefunded); err != nil {
		return err
	}
	ex.Status = models.StatusRefunded
	ex.UpdatedAt = now
	return nil
}

// AppendNote добавляет строку к заметкам
func AppendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
