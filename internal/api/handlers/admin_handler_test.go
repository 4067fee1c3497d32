package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"

	"liraexchange/internal/models"
)

// ============ AdminHandler Tests ============

func TestAdminHandler_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		from   models.ExchangeStatus
		action string
		body   string
		status int
		want   models.ExchangeStatus
	}{
		{"подтверждение поступления", models.StatusInitiated, "confirm-source", `{"tx_id":"MANUAL_1"}`, http.StatusOK, models.StatusProcessing},
		{"подтверждение без тела", models.StatusInitiated, "confirm-source", ``, http.StatusOK, models.StatusProcessing},
		{"завершение", models.StatusProcessing, "complete", `{"bank_reference":"SBP-42"}`, http.StatusOK, models.StatusCompleted},
		{"отказ", models.StatusInitiated, "fail", `{"reason":"payment expired"}`, http.StatusOK, models.StatusFailed},
		{"возврат", models.StatusCompleted, "refund", ``, http.StatusOK, models.StatusRefunded},
		{"завершение из initiated", models.StatusInitiated, "complete", `{}`, http.StatusConflict, models.StatusInitiated},
		{"отказ после завершения", models.StatusCompleted, "fail", `{"reason":"late"}`, http.StatusConflict, models.StatusCompleted},
		{"возврат после возврата", models.StatusRefunded, "refund", ``, http.StatusConflict, models.StatusRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewMockExchangeService()
			handler := NewAdminHandler(svc, NewMockWalletService())
			ex := svc.AddExchange(uuid.New(), tt.from)

			handlers := map[string]http.HandlerFunc{
				"confirm-source": handler.ConfirmSource,
				"complete":       handler.Complete,
				"fail":           handler.Fail,
				"refund":         handler.Refund,
			}
			target := "/admin/exchanges/" + ex.ID.String() + "/" + tt.action
			w := serve(handlers[tt.action], http.MethodPut, "/admin/exchanges/{id}/"+tt.action, target, tt.body, adminIdentity())
			expectStatus(t, w, tt.status)

			if ex.Status != tt.want {
				t.Errorf("expected status %s, got %s", tt.want, ex.Status)
			}
		})
	}
}

func TestAdminHandler_TransitionDetails(t *testing.T) {
	svc := NewMockExchangeService()
	handler := NewAdminHandler(svc, NewMockWalletService())
	ex := svc.AddExchange(uuid.New(), models.StatusProcessing)
	target := "/admin/exchanges/" + ex.ID.String() + "/complete"

	w := serve(handler.Complete, http.MethodPut, "/admin/exchanges/{id}/complete", target, `{"tx_id":"tx-1","bank_reference":"SBP-42"}`, adminIdentity())
	expectStatus(t, w, http.StatusOK)

	var got models.Exchange
	decodeBody(t, w, &got)
	if got.DestinationTransaction.TxID != "tx-1" || got.DestinationTransaction.BankReference != "SBP-42" {
		t.Errorf("destination leg not recorded: %+v", got.DestinationTransaction)
	}
}

func TestAdminHandler_UpdateNotes(t *testing.T) {
	svc := NewMockExchangeService()
	handler := NewAdminHandler(svc, NewMockWalletService())
	ex := svc.AddExchange(uuid.New(), models.StatusCompleted)
	target := "/admin/exchanges/" + ex.ID.String() + "/notes"

	w := serve(handler.UpdateNotes, http.MethodPut, "/admin/exchanges/{id}/notes", target, `{"notes":"checked by ops"}`, adminIdentity())
	expectStatus(t, w, http.StatusOK)
	if ex.AdminNotes != "checked by ops" {
		t.Errorf("notes not updated: %q", ex.AdminNotes)
	}

	missing := "/admin/exchanges/" + uuid.NewString() + "/notes"
	w = serve(handler.UpdateNotes, http.MethodPut, "/admin/exchanges/{id}/notes", missing, `{"notes":"x"}`, adminIdentity())
	expectStatus(t, w, http.StatusNotFound)
}

func TestAdminHandler_ListExchanges(t *testing.T) {
	svc := NewMockExchangeService()
	handler := NewAdminHandler(svc, NewMockWalletService())
	user := uuid.New()
	svc.AddExchange(user, models.StatusInitiated)
	svc.AddExchange(uuid.New(), models.StatusInitiated)

	w := serve(handler.ListExchanges, http.MethodGet, "/admin/exchanges", "/admin/exchanges", "", adminIdentity())
	expectStatus(t, w, http.StatusOK)
	var list []models.Exchange
	decodeBody(t, w, &list)
	if len(list) != 2 {
		t.Errorf("admin must see all exchanges, got %d", len(list))
	}

	w = serve(handler.ListExchanges, http.MethodGet, "/admin/exchanges", "/admin/exchanges?user_id="+user.String(), "", adminIdentity())
	expectStatus(t, w, http.StatusOK)
	list = nil
	decodeBody(t, w, &list)
	if len(list) != 1 || list[0].UserID != user {
		t.Errorf("user_id filter not applied: %+v", list)
	}

	w = serve(handler.ListExchanges, http.MethodGet, "/admin/exchanges", "/admin/exchanges?user_id=nope", "", adminIdentity())
	expectStatus(t, w, http.StatusBadRequest)
}

func TestAdminHandler_HotWallets(t *testing.T) {
	t.Run("creates operator wallet", func(t *testing.T) {
		wallets := NewMockWalletService()
		handler := NewAdminHandler(NewMockExchangeService(), wallets)

		w := serve(handler.CreateHotWallet, http.MethodPost, "/admin/wallets/hot", "/admin/wallets/hot", "", adminIdentity())
		expectStatus(t, w, http.StatusCreated)

		var summary models.WalletSummary
		decodeBody(t, w, &summary)
		if summary.OwnerUser != nil || !summary.IsHot || summary.WalletType != models.WalletTypeTON {
			t.Errorf("expected TON operator wallet, got %+v", summary)
		}

		w = serve(handler.ListOperatorWallets, http.MethodGet, "/admin/wallets", "/admin/wallets", "", adminIdentity())
		expectStatus(t, w, http.StatusOK)
		var list []models.WalletSummary
		decodeBody(t, w, &list)
		if len(list) != 1 {
			t.Errorf("expected one operator wallet, got %d", len(list))
		}
	})

	t.Run("imports wallet from mnemonic", func(t *testing.T) {
		wallets := NewMockWalletService()
		handler := NewAdminHandler(NewMockExchangeService(), wallets)

		w := serve(handler.ImportHotWallet, http.MethodPost, "/admin/wallets/hot/import", "/admin/wallets/hot/import",
			`{"mnemonic":"word1 word2 word3"}`, adminIdentity())
		expectStatus(t, w, http.StatusCreated)
		if len(wallets.imported) != 1 || wallets.imported[0] != "word1 word2 word3" {
			t.Errorf("mnemonic not passed through: %v", wallets.imported)
		}

		w = serve(handler.ImportHotWallet, http.MethodPost, "/admin/wallets/hot/import", "/admin/wallets/hot/import",
			`{"mnemonic":"  "}`, adminIdentity())
		expectStatus(t, w, http.StatusBadRequest)
		if len(wallets.imported) != 1 {
			t.Errorf("blank mnemonic must not reach the service")
		}
	})
}
