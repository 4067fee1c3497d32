// Package market - клиенты рыночных данных для обновления опорных курсов.
package market

import (
	"context"
	"errors"
	"time"
)

// PricingClient - источник котировок спотового рынка
type PricingClient interface {
	// GetTicker возвращает последнюю цену и лучшие bid/ask по символу (например USDTTRY)
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
}

// Ticker - снимок котировки.
// Цены, которые не удалось разобрать, приходят как NaN и отсекаются валидацией.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Last      float64   `json:"last"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrSymbolNotFound - площадка не знает такой символ
var ErrSymbolNotFound = errors.New("symbol not found")

// APIError - ошибка от площадки рыночных данных
type APIError struct {
	Venue      string
	Code       string
	Message    string
	StatusCode int
	Original   error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Venue + ": " + e.Message + " (code " + e.Code + ")"
	}
	return e.Venue + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *APIError) Unwrap() error {
	return e.Original
}

// Temporary - 5xx и сетевые сбои имеет смысл повторить на следующем проходе
func (e *APIError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}
