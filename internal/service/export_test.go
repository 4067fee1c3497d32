package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"liraexchange/internal/models"
	"liraexchange/pkg/retry"
)

// CustodyHarness собирает настоящие сервисы кошельков и заявок поверх
// in-memory хранилищ, чтобы гонять их вместе с обработчиком из пакета worker.
type CustodyHarness struct {
	Wallets   *WalletService
	Exchanges *ExchangeService
	// Store реализует выборки обработчика поверх тех же заявок
	Store *MockExchangeRepository

	walletRepo *MockWalletRepository
	chain      *MockChainClient
	clock      time.Time
}

func NewCustodyHarness() *CustodyHarness {
	f := newExchangeFixture()
	h := &CustodyHarness{
		Wallets:    f.wallets.svc,
		Exchanges:  f.svc,
		Store:      f.exchanges,
		walletRepo: f.wallets.repo,
		chain:      f.wallets.chain,
		clock:      fixedNow,
	}

	now := func() time.Time { return h.clock }
	f.wallets.svc.now = now
	f.svc.now = now
	f.svc.creditRetry = retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	f.exchanges.credited = h.isCredited
	return h
}

func (h *CustodyHarness) isCredited(walletID, exchangeID uuid.UUID) bool {
	for _, id := range h.walletRepo.links[walletID] {
		if id == exchangeID {
			return true
		}
	}
	return false
}

// Advance сдвигает часы сервисов, чтобы кэш баланса устарел
func (h *CustodyHarness) Advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

// SetChainBalance задаёт баланс адреса в сети
func (h *CustodyHarness) SetChainBalance(address, amount string) {
	h.chain.balances[address] = decimal.RequireFromString(amount)
}

// FailCredits заставляет n ближайших зачётов депозита вернуть err
func (h *CustodyHarness) FailCredits(n int, err error) {
	h.walletRepo.creditFailures = n
	h.walletRepo.creditErr = err
}

// Wallet - сохранённое состояние кошелька
func (h *CustodyHarness) Wallet(id uuid.UUID) *models.Wallet {
	copied := *h.walletRepo.wallets[id]
	return &copied
}

// Sent - отправленные в сеть переводы: адрес получателя и сумма
func (h *CustodyHarness) Sent() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(h.chain.sent))
	for _, tr := range h.chain.sent {
		out[tr.To] = out[tr.To].Add(tr.Amount)
	}
	return out
}

// SentCount - сколько переводов ушло в сеть
func (h *CustodyHarness) SentCount() int {
	return len(h.chain.sent)
}
