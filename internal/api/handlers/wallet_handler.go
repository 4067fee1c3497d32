package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"liraexchange/internal/api/middleware"
	"liraexchange/internal/models"
	"liraexchange/internal/service"
)

// maxTransactions - предел истории, запрашиваемой из сети
const maxTransactions = 100

// WalletHandler отвечает за кошельки пользователя
//
// Endpoints:
// - POST /api/v1/wallets                    - новый кастодиальный кошелёк
// - POST /api/v1/wallets/external           - внешний адрес пользователя
// - GET  /api/v1/wallets                    - кошельки пользователя
// - GET  /api/v1/wallets/{id}/transactions  - история адреса в сети
// - PUT  /api/v1/wallets/{id}/deactivate    - вывод из оборота
type WalletHandler struct {
	wallets service.WalletServiceInterface
}

// NewWalletHandler создает новый WalletHandler
func NewWalletHandler(wallets service.WalletServiceInterface) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// CreateWalletBody - тело запроса на создание кошелька
type CreateWalletBody struct {
	WalletType string `json:"wallet_type"`
}

// ExternalWalletBody - тело запроса на регистрацию внешнего адреса
type ExternalWalletBody struct {
	WalletType string `json:"wallet_type"`
	Address    string `json:"address"`
}

// CreateWallet генерирует кошелёк. Секрет в ответ не попадает.
// POST /api/v1/wallets
//
//	{"wallet_type": "TON"}
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	var body CreateWalletBody
	if !decodeJSON(w, r, &body, false) {
		return
	}
	owner := id.UserID
	summary, err := h.wallets.CreateWallet(r.Context(), &owner, walletType(body.WalletType))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, summary)
}

// RegisterExternal сохраняет адрес пользователя без секрета
// POST /api/v1/wallets/external
func (h *WalletHandler) RegisterExternal(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	var body ExternalWalletBody
	if !decodeJSON(w, r, &body, false) {
		return
	}
	summary, err := h.wallets.RegisterExternalWallet(r.Context(), id.UserID, walletType(body.WalletType), strings.TrimSpace(body.Address))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, summary)
}

// ListWallets возвращает кошельки текущего пользователя
// GET /api/v1/wallets
func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	owner := id.UserID

	list, err := h.wallets.ListWallets(r.Context(), &owner)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// ListTransactions читает историю адреса кошелька
// GET /api/v1/wallets/{id}/transactions?limit=20
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	walletID, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_query", err.Error(), "")
		return
	}
	if limit == 0 || limit > maxTransactions {
		limit = maxTransactions
	}

	txs, err := h.wallets.ListTransactions(r.Context(), walletID, ownerScope(id), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if txs == nil {
		txs = []models.ChainTransaction{}
	}
	respondWithJSON(w, http.StatusOK, txs)
}

// Deactivate выводит кошелёк из оборота
// PUT /api/v1/wallets/{id}/deactivate
func (h *WalletHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	walletID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.wallets.DeactivateWallet(r.Context(), walletID, ownerScope(id)); err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "wallet deactivated"})
}

// ownerScope - администратор видит любой кошелёк, пользователь только свои
func ownerScope(id middleware.Identity) *uuid.UUID {
	if id.IsAdmin() {
		return nil
	}
	owner := id.UserID
	return &owner
}

func walletType(raw string) models.WalletType {
	return models.WalletType(strings.ToUpper(strings.TrimSpace(raw)))
}
