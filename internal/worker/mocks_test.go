package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"liraexchange/internal/market"
	"liraexchange/internal/models"
	"liraexchange/internal/repository"
	"liraexchange/internal/service"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ============ Хранилище заявок ============

// MockExchangeStore - заявки в памяти с проверкой ожидаемого статуса
type MockExchangeStore struct {
	mu        sync.Mutex
	exchanges map[uuid.UUID]*models.Exchange

	listErr     error
	failUpdates int // столько ближайших UpdateState вернут updateErr
	updateErr   error
	updates     int

	// credited заменяет связь wallet_transactions, nil - зачётов нет ни у кого
	credited      func(exchangeID uuid.UUID) bool
	uncreditedErr error
	// beforeUpdate позволяет смоделировать параллельного писателя
	beforeUpdate func(stored *models.Exchange)
}

func NewMockExchangeStore() *MockExchangeStore {
	return &MockExchangeStore{exchanges: make(map[uuid.UUID]*models.Exchange)}
}

func (m *MockExchangeStore) add(ex *models.Exchange) *models.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = fixedNow.Add(time.Duration(len(m.exchanges)) * time.Second)
	}
	stored := *ex
	m.exchanges[ex.ID] = &stored
	return ex
}

func (m *MockExchangeStore) get(id uuid.UUID) *models.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.exchanges[id]
	return &cp
}

func (m *MockExchangeStore) list(match func(*models.Exchange) bool, limit int) ([]*models.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []*models.Exchange
	for _, ex := range m.exchanges {
		if match(ex) {
			cp := *ex
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockExchangeStore) ListPendingDeposits(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error) {
	return m.list(func(ex *models.Exchange) bool {
		return ex.Status == models.StatusInitiated &&
			ex.SourceTransaction.Status == models.TxPending &&
			ex.FromCurrency == currency
	}, limit)
}

func (m *MockExchangeStore) ListAwaitingPayout(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error) {
	return m.list(func(ex *models.Exchange) bool {
		return ex.Status == models.StatusProcessing &&
			ex.DestinationTransaction.Status == models.TxPending &&
			ex.ToCurrency == currency
	}, limit)
}

func (m *MockExchangeStore) ListUncreditedDeposits(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error) {
	if m.uncreditedErr != nil {
		return nil, m.uncreditedErr
	}
	credited := m.credited
	return m.list(func(ex *models.Exchange) bool {
		return ex.SourceTransaction.Status == models.TxCompleted &&
			ex.FromCurrency == currency &&
			ex.CryptoWalletID != nil &&
			(credited == nil || !credited(ex.ID))
	}, limit)
}

func (m *MockExchangeStore) UpdateState(ctx context.Context, ex *models.Exchange, expected models.ExchangeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdates > 0 {
		m.failUpdates--
		return m.updateErr
	}
	stored, ok := m.exchanges[ex.ID]
	if !ok {
		return repository.ErrExchangeNotFound
	}
	if m.beforeUpdate != nil {
		m.beforeUpdate(stored)
	}
	if stored.Status != expected {
		return repository.ErrConcurrentUpdate
	}
	cp := *ex
	m.exchanges[ex.ID] = &cp
	m.updates++
	return nil
}

// ============ Кошельки ============

type sentPayout struct {
	WalletID uuid.UUID
	To       string
	Amount   decimal.Decimal
}

// MockCustody - кошельки в памяти; chain - «сетевые» балансы
type MockCustody struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet
	chain   map[uuid.UUID]decimal.Decimal

	balanceErr  error
	creditErr   error
	disburseErr error
	recordErr   error

	sent     []sentPayout
	credited map[uuid.UUID]decimal.Decimal // по заявке
	recorded map[uuid.UUID]decimal.Decimal // по заявке
}

func NewMockCustody() *MockCustody {
	return &MockCustody{
		wallets:  make(map[uuid.UUID]*models.Wallet),
		chain:    make(map[uuid.UUID]decimal.Decimal),
		credited: make(map[uuid.UUID]decimal.Decimal),
		recorded: make(map[uuid.UUID]decimal.Decimal),
	}
}

func (m *MockCustody) add(w *models.Wallet) *models.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.WalletType = models.WalletTypeTON
	w.IsActive = true
	m.wallets[w.ID] = w
	m.chain[w.ID] = w.Balance
	return w
}

func (m *MockCustody) setChainBalance(id uuid.UUID, v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chain[id] = d(v)
}

func (m *MockCustody) wallet(id uuid.UUID) *models.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.wallets[id]
	return &cp
}

func (m *MockCustody) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return nil, service.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MockCustody) GetBalance(ctx context.Context, w *models.Wallet) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balanceErr != nil {
		return decimal.Zero, m.balanceErr
	}
	b := m.chain[w.ID]
	w.Balance = b
	m.wallets[w.ID].Balance = b
	return b, nil
}

func (m *MockCustody) CreditDeposit(ctx context.Context, w *models.Wallet, exchangeID uuid.UUID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creditErr != nil {
		return m.creditErr
	}
	if _, ok := m.credited[exchangeID]; ok {
		return nil
	}
	stored := m.wallets[w.ID]
	stored.CreditedAmount = stored.CreditedAmount.Add(amount)
	w.CreditedAmount = stored.CreditedAmount
	m.credited[exchangeID] = m.credited[exchangeID].Add(amount)
	return nil
}

func (m *MockCustody) isCredited(exchangeID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.credited[exchangeID]
	return ok
}

func (m *MockCustody) FindPayoutWallet(ctx context.Context, walletType models.WalletType, amount decimal.Decimal) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Wallet
	for _, w := range m.wallets {
		if !w.IsHot || !w.IsOperator() || w.WalletType != walletType || w.Balance.LessThan(amount) {
			continue
		}
		if best == nil || w.Balance.GreaterThan(best.Balance) {
			best = w
		}
	}
	if best == nil {
		return nil, service.ErrNoPayoutWallet
	}
	cp := *best
	return &cp, nil
}

func (m *MockCustody) Disburse(ctx context.Context, w *models.Wallet, toAddress string, amount decimal.Decimal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disburseErr != nil {
		return "", m.disburseErr
	}
	if w.Balance.LessThan(amount) {
		return "", service.ErrInsufficientFunds
	}
	m.sent = append(m.sent, sentPayout{WalletID: w.ID, To: toAddress, Amount: amount})
	return fmt.Sprintf("tx-%d", len(m.sent)), nil
}

func (m *MockCustody) RecordDisbursement(ctx context.Context, w *models.Wallet, exchangeID uuid.UUID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	stored := m.wallets[w.ID]
	stored.Balance = stored.Balance.Sub(amount)
	w.Balance = stored.Balance
	m.recorded[exchangeID] = amount
	return nil
}

func (m *MockCustody) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// ============ Котировки ============

// MockRateStore - активные котировки по направлению
type MockRateStore struct {
	mu        sync.Mutex
	rates     map[string]*models.Rate
	upsertErr error
	upserts   int
}

func NewMockRateStore() *MockRateStore {
	return &MockRateStore{rates: make(map[string]*models.Rate)}
}

func rateKey(source, target models.Currency) string {
	return string(source) + "/" + string(target)
}

func (m *MockRateStore) GetActiveRate(ctx context.Context, source, target models.Currency) (*models.Rate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rates[rateKey(source, target)]
	if !ok {
		return nil, service.ErrRateNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockRateStore) UpsertRate(ctx context.Context, in service.RateInput) (*models.Rate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	markup := models.DefaultMarkupPercentage
	if in.Markup != nil {
		markup = *in.Markup
	}
	r := &models.Rate{
		ID:               uuid.New(),
		SourceCurrency:   in.Source,
		TargetCurrency:   in.Target,
		BaseRate:         in.BaseRate,
		MarkupPercentage: markup,
		MinAmount:        in.MinAmount,
		MaxAmount:        in.MaxAmount,
		Source:           in.Provenance,
		IsActive:         true,
	}
	r.ApplyMarkup()
	m.rates[rateKey(in.Source, in.Target)] = r
	m.upserts++
	cp := *r
	return &cp, nil
}

// MockPricing - тикеры по символу
type MockPricing struct {
	mu      sync.Mutex
	tickers map[string]*market.Ticker
	err     error
	calls   int
}

func NewMockPricing() *MockPricing {
	return &MockPricing{tickers: make(map[string]*market.Ticker)}
}

func (m *MockPricing) GetTicker(ctx context.Context, symbol string) (*market.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tickers[symbol]
	if !ok {
		return nil, market.ErrSymbolNotFound
	}
	cp := *t
	return &cp, nil
}
