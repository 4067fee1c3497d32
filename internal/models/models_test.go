package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============ Rate Tests ============

func TestRate_ApplyMarkup(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		markup   string
		wantBuy  string
		wantSell string
	}{
		{"TRY/RUB базовый сценарий", "2.4", "2", "2.448", "2.352"},
		{"нулевая наценка", "31.5", "0", "31.5", "31.5"},
		{"дробная наценка", "100", "0.5", "100.5", "99.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Rate{
				BaseRate:         decimal.RequireFromString(tt.base),
				MarkupPercentage: decimal.RequireFromString(tt.markup),
			}
			r.ApplyMarkup()

			if !r.BuyRate.Equal(decimal.RequireFromString(tt.wantBuy)) {
				t.Errorf("buy rate = %s, want %s", r.BuyRate, tt.wantBuy)
			}
			if !r.SellRate.Equal(decimal.RequireFromString(tt.wantSell)) {
				t.Errorf("sell rate = %s, want %s", r.SellRate, tt.wantSell)
			}
		})
	}
}

func TestRate_RateFor(t *testing.T) {
	r := Rate{BuyRate: decimal.NewFromInt(3), SellRate: decimal.NewFromInt(2)}

	if got := r.RateFor(CurrencyTRY); !got.Equal(r.SellRate) {
		t.Errorf("fiat source should use sell rate, got %s", got)
	}
	if got := r.RateFor(CurrencyTON); !got.Equal(r.BuyRate) {
		t.Errorf("chain source should use buy rate, got %s", got)
	}
}

func TestRate_InBounds(t *testing.T) {
	r := Rate{MinAmount: decimal.NewFromInt(100), MaxAmount: decimal.NewFromInt(10000)}

	cases := map[string]bool{
		"99.99": false,
		"100":   true,
		"5000":  true,
		"10000": true,
		"10001": false,
	}
	for amount, want := range cases {
		if got := r.InBounds(decimal.RequireFromString(amount)); got != want {
			t.Errorf("InBounds(%s) = %v, want %v", amount, got, want)
		}
	}
}

// ============ Currency Tests ============

func TestParseCurrency(t *testing.T) {
	if c, ok := ParseCurrency(" try "); !ok || c != CurrencyTRY {
		t.Errorf("expected TRY, got %q ok=%v", c, ok)
	}
	if _, ok := ParseCurrency("EUR"); ok {
		t.Error("EUR must not be supported")
	}
	if !CurrencyTON.IsChainAsset() || CurrencyUSDT.IsChainAsset() {
		t.Error("only TON is the chain asset")
	}
	if !CurrencyRUB.IsFiat() || CurrencyTON.IsFiat() {
		t.Error("fiat classification is wrong")
	}
}

// ============ Wallet Tests ============

func TestWallet_JSONHidesSecret(t *testing.T) {
	owner := uuid.New()
	w := Wallet{
		ID:              uuid.New(),
		OwnerUser:       &owner,
		WalletType:      WalletTypeTON,
		Address:         "EQ-address",
		EncryptedSecret: "aesgcm:super-secret-blob",
		IsActive:        true,
		IsHot:           true,
	}

	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("ошибка сериализации: %v", err)
	}
	if strings.Contains(string(data), "super-secret-blob") {
		t.Error("зашифрованный секрет не должен попадать в JSON")
	}

	summary, err := json.Marshal(w.Summary())
	if err != nil {
		t.Fatalf("ошибка сериализации: %v", err)
	}
	if strings.Contains(string(summary), "secret") {
		t.Errorf("summary must not mention secret material: %s", summary)
	}
}

func TestWallet_BalanceFresh(t *testing.T) {
	now := time.Now()
	stale := now.Add(-time.Minute)
	fresh := now.Add(-5 * time.Second)

	w := Wallet{}
	if w.BalanceFresh(now, 30*time.Second) {
		t.Error("never-polled balance is not fresh")
	}
	w.LastBalanceUpdate = &stale
	if w.BalanceFresh(now, 30*time.Second) {
		t.Error("balance older than recheck interval is not fresh")
	}
	w.LastBalanceUpdate = &fresh
	if !w.BalanceFresh(now, 30*time.Second) {
		t.Error("recent balance should be fresh")
	}
}

func TestWallet_Available(t *testing.T) {
	w := Wallet{Balance: decimal.RequireFromString("0.3"), CreditedAmount: decimal.RequireFromString("0.1")}
	if !w.Available().Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("available = %s, want 0.2", w.Available())
	}
}

// ============ Exchange Tests ============

func TestExchangeStatus_IsTerminal(t *testing.T) {
	terminal := map[ExchangeStatus]bool{
		StatusInitiated:  false,
		StatusProcessing: false,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusRefunded:   true,
	}
	for s, want := range terminal {
		if s.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, !want, want)
		}
	}
}
