package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"liraexchange/internal/models"
	"liraexchange/internal/service"
)

// AdminHandler - ручные операции оператора
//
// Endpoints (X-User-Role: admin):
// - GET /api/v1/admin/exchanges                     - все заявки
// - PUT /api/v1/admin/exchanges/{id}/confirm-source - средства получены
// - PUT /api/v1/admin/exchanges/{id}/complete       - выплата выполнена
// - PUT /api/v1/admin/exchanges/{id}/fail           - заявка не может быть исполнена
// - PUT /api/v1/admin/exchanges/{id}/refund         - возврат
// - PUT /api/v1/admin/exchanges/{id}/notes          - заметки
// - GET /api/v1/admin/wallets                       - кошельки оператора
// - POST /api/v1/admin/wallets/hot                  - новый горячий кошелёк
// - POST /api/v1/admin/wallets/hot/import           - горячий кошелёк из мнемоники
type AdminHandler struct {
	exchanges service.ExchangeServiceInterface
	wallets   service.WalletServiceInterface
}

// NewAdminHandler создает новый AdminHandler
func NewAdminHandler(exchanges service.ExchangeServiceInterface, wallets service.WalletServiceInterface) *AdminHandler {
	return &AdminHandler{exchanges: exchanges, wallets: wallets}
}

// ConfirmSourceBody - ссылка на поступление; пустая - сгенерировать MANUAL_<unix>
type ConfirmSourceBody struct {
	TxID string `json:"tx_id"`
}

// CompleteBody - txId перевода или банковская ссылка выплаты
type CompleteBody struct {
	TxID          string `json:"tx_id"`
	BankReference string `json:"bank_reference"`
}

// FailBody - причина отказа
type FailBody struct {
	Reason string `json:"reason"`
}

// NotesBody - новые заметки целиком
type NotesBody struct {
	Notes string `json:"notes"`
}

// ImportWalletBody - мнемоника TON из 24 слов
type ImportWalletBody struct {
	Mnemonic string `json:"mnemonic"`
}

// ListExchanges возвращает заявки всех пользователей
// GET /api/v1/admin/exchanges?status=&user_id=&from=&to=&limit=&offset=
func (h *AdminHandler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseExchangeFilter(w, r)
	if !ok {
		return
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		user, err := uuid.Parse(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid_query", "user_id must be a UUID", raw)
			return
		}
		filter.UserID = &user
	}

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

// ConfirmSource переводит заявку в processing
// PUT /api/v1/admin/exchanges/{id}/confirm-source
func (h *AdminHandler) ConfirmSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body ConfirmSourceBody
	if !decodeJSON(w, r, &body, true) {
		return
	}
	ex, err := h.exchanges.AdminConfirmSource(r.Context(), id, body.TxID)
	h.respondExchange(w, ex, err)
}

// Complete завершает заявку
// PUT /api/v1/admin/exchanges/{id}/complete
func (h *AdminHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body CompleteBody
	if !decodeJSON(w, r, &body, true) {
		return
	}
	ex, err := h.exchanges.AdminComplete(r.Context(), id, body.TxID, body.BankReference)
	h.respondExchange(w, ex, err)
}

// Fail переводит заявку в failed
// PUT /api/v1/admin/exchanges/{id}/fail
func (h *AdminHandler) Fail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body FailBody
	if !decodeJSON(w, r, &body, true) {
		return
	}
	ex, err := h.exchanges.AdminFail(r.Context(), id, body.Reason)
	h.respondExchange(w, ex, err)
}

// Refund оформляет возврат по завершённой заявке
// PUT /api/v1/admin/exchanges/{id}/refund
func (h *AdminHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ex, err := h.exchanges.AdminRefund(r.Context(), id)
	h.respondExchange(w, ex, err)
}

// UpdateNotes заменяет заметки администратора
// PUT /api/v1/admin/exchanges/{id}/notes
func (h *AdminHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body NotesBody
	if !decodeJSON(w, r, &body, false) {
		return
	}
	ex, err := h.exchanges.UpdateAdminNotes(r.Context(), id, body.Notes)
	h.respondExchange(w, ex, err)
}

func (h *AdminHandler) respondExchange(w http.ResponseWriter, ex *models.Exchange, err error) {
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ex)
}

// ListOperatorWallets возвращает кошельки оператора
// GET /api/v1/admin/wallets
func (h *AdminHandler) ListOperatorWallets(w http.ResponseWriter, r *http.Request) {
	list, err := h.wallets.ListWallets(r.Context(), nil)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// CreateHotWallet генерирует горячий кошелёк оператора
// POST /api/v1/admin/wallets/hot
//
//	{"wallet_type": "TON"}
func (h *AdminHandler) CreateHotWallet(w http.ResponseWriter, r *http.Request) {
	body := CreateWalletBody{WalletType: string(models.WalletTypeTON)}
	if !decodeJSON(w, r, &body, true) {
		return
	}
	summary, err := h.wallets.CreateWallet(r.Context(), nil, walletType(body.WalletType))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, summary)
}

// ImportHotWallet добавляет горячий кошелёк из мнемоники
// POST /api/v1/admin/wallets/hot/import
func (h *AdminHandler) ImportHotWallet(w http.ResponseWriter, r *http.Request) {
	var body ImportWalletBody
	if !decodeJSON(w, r, &body, false) {
		return
	}
	if strings.TrimSpace(body.Mnemonic) == "" {
		respondWithError(w, http.StatusBadRequest, "missing_mnemonic", "Mnemonic is required", "")
		return
	}
	summary, err := h.wallets.ImportHotWallet(r.Context(), body.Mnemonic)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, summary)
}
