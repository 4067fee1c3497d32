package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"liraexchange/internal/api/middleware"
	"liraexchange/internal/models"
	"liraexchange/internal/service"
)

// defaultListLimit и maxListLimit - размер страницы списков
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ExchangeHandler отвечает за заявки пользователя
//
// Endpoints:
// - POST /api/v1/exchanges      - создание заявки
// - GET  /api/v1/exchanges      - заявки текущего пользователя
// - GET  /api/v1/exchanges/{id} - одна заявка
type ExchangeHandler struct {
	exchanges service.ExchangeServiceInterface
}

// NewExchangeHandler создает новый ExchangeHandler
func NewExchangeHandler(exchanges service.ExchangeServiceInterface) *ExchangeHandler {
	return &ExchangeHandler{exchanges: exchanges}
}

// CreateExchangeBody - тело запроса на создание заявки
type CreateExchangeBody struct {
	FromCurrency string                `json:"from_currency"`
	ToCurrency   string                `json:"to_currency"`
	Amount       decimal.Decimal       `json:"amount"`
	Payout       *models.PayoutDetails `json:"payout,omitempty"`
}

// CreateExchange создаёт заявку по текущему курсу
// POST /api/v1/exchanges
//
//	{
//	  "from_currency": "TRY",
//	  "to_currency": "RUB",
//	  "amount": "1000",
//	  "payout": {"bank_account": {"account_id": "40817...", "bank": "Tinkoff"}}
//	}
//
// Ответы:
// - 201 Created
// - 400 Bad Request: валюты, сумма вне границ, реквизиты
// - 503 Service Unavailable: нет котировки
func (h *ExchangeHandler) CreateExchange(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	var body CreateExchangeBody
	if !decodeJSON(w, r, &body, false) {
		return
	}
	from, ok := parseCurrencyField(w, "from_currency", body.FromCurrency)
	if !ok {
		return
	}
	to, ok := parseCurrencyField(w, "to_currency", body.ToCurrency)
	if !ok {
		return
	}

	ex, err := h.exchanges.CreateExchange(r.Context(), service.CreateExchangeRequest{
		UserID: id.UserID,
		From:   from,
		To:     to,
		Amount: body.Amount,
		Payout: body.Payout,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, ex)
}

// ListExchanges возвращает заявки текущего пользователя, новые первыми
// GET /api/v1/exchanges?status=processing&limit=20&offset=0
func (h *ExchangeHandler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	filter, ok := parseExchangeFilter(w, r)
	if !ok {
		return
	}
	user := id.UserID
	filter.UserID = &user

	list, err := h.exchanges.ListExchanges(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if list == nil {
		list = []*models.Exchange{}
	}
	respondWithJSON(w, http.StatusOK, list)
}

// GetExchange возвращает заявку. Чужая заявка для пользователя не существует.
// GET /api/v1/exchanges/{id}
func (h *ExchangeHandler) GetExchange(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	exchangeID, ok := pathID(w, r)
	if !ok {
		return
	}

	ex, err := h.exchanges.GetExchange(r.Context(), exchangeID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if ex.UserID != id.UserID && !id.IsAdmin() {
		handleServiceError(w, service.ErrExchangeNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, ex)
}

// parseExchangeFilter читает status, from, to (RFC3339), limit и offset
func parseExchangeFilter(w http.ResponseWriter, r *http.Request) (models.ExchangeFilter, bool) {
	q := r.URL.Query()
	filter := models.ExchangeFilter{Status: models.ExchangeStatus(q.Get("status"))}

	limit, err := queryInt(r, "limit", defaultListLimit)
	if err == nil && limit > maxListLimit {
		limit = maxListLimit
	}
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_query", err.Error(), "")
		return filter, false
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_query", err.Error(), "")
		return filter, false
	}
	if limit == 0 {
		limit = defaultListLimit
	}
	filter.Limit, filter.Offset = limit, offset

	for name, dst := range map[string]**time.Time{"from": &filter.CreatedFrom, "to": &filter.CreatedTo} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid_query", name+" must be RFC3339", raw)
			return filter, false
		}
		*dst = &t
	}
	return filter, true
}
