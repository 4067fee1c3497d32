package repository

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Ошибки репозиториев
var (
	ErrRateNotFound        = errors.New("rate not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletAddressExists = errors.New("wallet address already exists")
	ErrWalletExists        = errors.New("active wallet of this type already exists")
	ErrExchangeNotFound    = errors.New("exchange not found")
	ErrConcurrentUpdate    = errors.New("record was modified concurrently")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// isUniqueViolation проверяет нарушение UNIQUE.
// constraint - имя ограничения, пустая строка подходит под любое.
func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation &&
			(constraint == "" || pqErr.Constraint == constraint)
	}

	// запасной вариант для обёрнутых драйверов и моков
	errStr := err.Error()
	if !strings.Contains(errStr, "duplicate key") && !strings.Contains(errStr, uniqueViolation) {
		return false
	}
	return constraint == "" || strings.Contains(errStr, constraint)
}

// isForeignKeyViolation - ссылка на несуществующую запись
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolation
}

// nullableUUID превращает nil-указатель в SQL NULL
func nullableUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func uuidPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}
