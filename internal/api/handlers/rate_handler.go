package handlers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"liraexchange/internal/models"
	"liraexchange/internal/repository"
	"liraexchange/internal/service"
)

// CachedRates - котировки из кэша фонового обновления
type CachedRates interface {
	GetCachedRates(ctx context.Context) ([]*models.Rate, error)
}

// RateHandler отвечает за котировки и расчёт обмена
//
// Endpoints:
// - GET  /api/v1/rates             - активные котировки
// - POST /api/v1/rates/quote       - расчёт суммы к выплате
// - POST /api/v1/admin/rates/seed  - начальное наполнение котировок
type RateHandler struct {
	rates     service.RateServiceInterface
	exchanges service.ExchangeServiceInterface
	cache     CachedRates // может быть nil
}

// NewRateHandler создает новый RateHandler
func NewRateHandler(rates service.RateServiceInterface, exchanges service.ExchangeServiceInterface, cache CachedRates) *RateHandler {
	return &RateHandler{rates: rates, exchanges: exchanges, cache: cache}
}

// QuoteRequest - тело запроса на расчёт
type QuoteRequest struct {
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Amount       decimal.Decimal `json:"amount"`
}

// GetRates возвращает активные котировки
// GET /api/v1/rates?source=TRY&target=RUB
//
// Без фильтров ответ берётся из кэша обновления котировок (если он подключён),
// с фильтрами - напрямую из хранилища.
func (h *RateHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	var filter repository.RateFilter
	q := r.URL.Query()
	if raw := q.Get("source"); raw != "" {
		c, ok := parseCurrencyField(w, "source", raw)
		if !ok {
			return
		}
		filter.Source = c
	}
	if raw := q.Get("target"); raw != "" {
		c, ok := parseCurrencyField(w, "target", raw)
		if !ok {
			return
		}
		filter.Target = c
	}

	var (
		rates []*models.Rate
		err   error
	)
	if h.cache != nil && filter.Source == "" && filter.Target == "" {
		rates, err = h.cache.GetCachedRates(r.Context())
	} else {
		rates, err = h.rates.ListActive(r.Context(), filter)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if rates == nil {
		rates = []*models.Rate{}
	}
	respondWithJSON(w, http.StatusOK, rates)
}

// Quote считает обмен без создания заявки
// POST /api/v1/rates/quote
//
//	{"from_currency": "TRY", "to_currency": "RUB", "amount": "1000"}
func (h *RateHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	from, ok := parseCurrencyField(w, "from_currency", req.FromCurrency)
	if !ok {
		return
	}
	to, ok := parseCurrencyField(w, "to_currency", req.ToCurrency)
	if !ok {
		return
	}

	quote, err := h.exchanges.Quote(r.Context(), from, to, req.Amount)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, quote)
}

// SeedRates записывает административный набор котировок
// POST /api/v1/admin/rates/seed
func (h *RateHandler) SeedRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.rates.SeedRates(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "rates seeded", Data: rates})
}
