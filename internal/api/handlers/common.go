package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"liraexchange/internal/ledger"
	"liraexchange/internal/models"
	"liraexchange/internal/service"
	"liraexchange/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes - предел размера тела запроса
const maxBodyBytes = 1 << 20

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			utils.L().Warn("encode response", utils.Component("api"), zap.Error(err))
		}
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// handleServiceError переводит ошибку сервиса в HTTP ответ по её классу.
// Текст внутренних ошибок клиенту не отдаётся.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondWithError(w, http.StatusBadRequest, "validation_failed", rootMessage(err), err.Error())

	case errors.Is(err, service.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not_found", rootMessage(err), "")

	case errors.Is(err, service.ErrConflict),
		errors.Is(err, ledger.ErrTerminalState),
		errors.Is(err, ledger.ErrInvalidTransition):
		respondWithError(w, http.StatusConflict, "conflict", rootMessage(err), err.Error())

	case errors.Is(err, service.ErrInsufficientFunds):
		respondWithError(w, http.StatusConflict, "insufficient_funds", "Insufficient funds", "")

	case errors.Is(err, service.ErrRateUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, "rate_unavailable", "Rate is not available", err.Error())

	case errors.Is(err, service.ErrExternalAPI):
		respondWithError(w, http.StatusBadGateway, "external_error", "Upstream service failed", "")

	default:
		utils.L().Error("request failed", utils.Component("api"), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}

// rootMessage - первая часть цепочки "sentinel: details"
func rootMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i > 0 {
		return msg[:i]
	}
	return msg
}

// decodeJSON читает тело запроса в dst. Пустое тело допустимо, если allowEmpty.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
	return false
}

// pathID разбирает {id} из пути
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid ID", "")
		return uuid.Nil, false
	}
	return id, true
}

// parseCurrencyField проверяет код валюты из тела или query
func parseCurrencyField(w http.ResponseWriter, field, raw string) (models.Currency, bool) {
	c, ok := models.ParseCurrency(raw)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid_currency", "Unsupported currency", field+": "+raw)
		return "", false
	}
	return c, true
}

// queryInt читает неотрицательное целое из query, def - если параметра нет
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}
