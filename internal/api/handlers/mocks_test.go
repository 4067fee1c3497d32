package handlers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"liraexchange/internal/ledger"
	"liraexchange/internal/models"
	"liraexchange/internal/repository"
	"liraexchange/internal/service"
)

// ErrMockDatabase - ошибка "базы данных" для тестов
var ErrMockDatabase = errors.New("mock database error")

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ============ Mock Rate Service ============

// MockRateService мок для RateServiceInterface
type MockRateService struct {
	rates   []*models.Rate
	listErr error
	seedErr error
	seeded  int
	filters []repository.RateFilter
	mu      sync.Mutex
}

func NewMockRateService() *MockRateService {
	return &MockRateService{}
}

func (m *MockRateService) AddRate(source, target models.Currency, base string) *models.Rate {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &models.Rate{
		ID:               uuid.New(),
		SourceCurrency:   source,
		TargetCurrency:   target,
		BaseRate:         d(base),
		MarkupPercentage: d("2"),
		IsActive:         true,
		Source:           models.RateSourceManual,
	}
	r.ApplyMarkup()
	m.rates = append(m.rates, r)
	return r
}

func (m *MockRateService) GetActiveRate(ctx context.Context, source, target models.Currency) (*models.Rate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rates {
		if r.SourceCurrency == source && r.TargetCurrency == target {
			return r, nil
		}
	}
	return nil, service.ErrRateNotFound
}

func (m *MockRateService) UpsertRate(ctx context.Context, in service.RateInput) (*models.Rate, error) {
	return nil, errors.New("not used by handlers")
}

func (m *MockRateService) ListActive(ctx context.Context, filter repository.RateFilter) ([]*models.Rate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Rate
	for _, r := range m.rates {
		if filter.Source != "" && r.SourceCurrency != filter.Source {
			continue
		}
		if filter.Target != "" && r.TargetCurrency != filter.Target {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MockRateService) SeedRates(ctx context.Context) ([]*models.Rate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seedErr != nil {
		return nil, m.seedErr
	}
	m.seeded++
	return m.rates, nil
}

// MockCachedRates мок кэша котировок
type MockCachedRates struct {
	rates []*models.Rate
	err   error
	calls int
}

func (m *MockCachedRates) GetCachedRates(ctx context.Context) ([]*models.Rate, error) {
	m.calls++
	return m.rates, m.err
}

// ============ Mock Exchange Service ============

// MockExchangeService мок для ExchangeServiceInterface.
// Административные переходы проверяются настоящим графом internal/ledger.
type MockExchangeService struct {
	exchanges map[uuid.UUID]*models.Exchange
	createErr error
	quoteErr  error
	listErr   error
	created   []service.CreateExchangeRequest
	filters   []models.ExchangeFilter
	mu        sync.Mutex
}

func NewMockExchangeService() *MockExchangeService {
	return &MockExchangeService{exchanges: make(map[uuid.UUID]*models.Exchange)}
}

func (m *MockExchangeService) AddExchange(user uuid.UUID, status models.ExchangeStatus) *models.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex := &models.Exchange{
		ID:           uuid.New(),
		UserID:       user,
		FromCurrency: models.CurrencyTRY,
		ToCurrency:   models.CurrencyRUB,
		FromAmount:   d("1000"),
		ToAmount:     d("2400"),
		ExchangeRate: d("2.4"),
		Status:       status,
		CreatedAt:    fixedNow.Add(time.Duration(len(m.exchanges)) * time.Minute),
		UpdatedAt:    fixedNow,
	}
	m.exchanges[ex.ID] = ex
	return ex
}

func (m *MockExchangeService) Quote(ctx context.Context, from, to models.Currency, amount decimal.Decimal) (*models.Quote, error) {
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	if from == to {
		return nil, service.ErrSameCurrency
	}
	return &models.Quote{
		FromCurrency: from,
		ToCurrency:   to,
		FromAmount:   amount,
		ToAmount:     amount.Mul(d("2.4")),
		Rate:         d("2.4"),
	}, nil
}

func (m *MockExchangeService) CreateExchange(ctx context.Context, req service.CreateExchangeRequest) (*models.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, req)
	if m.createErr != nil {
		return nil, m.createErr
	}
	if !req.Amount.IsPositive() {
		return nil, service.ErrInvalidAmount
	}
	ex := &models.Exchange{
		ID:           uuid.New(),
		UserID:       req.UserID,
		FromCurrency: req.From,
		ToCurrency:   req.To,
		FromAmount:   req.Amount,
		Status:       models.StatusInitiated,
		CreatedAt:    fixedNow,
		UpdatedAt:    fixedNow,
	}
	m.exchanges[ex.ID] = ex
	return ex, nil
}

func (m *MockExchangeService) GetExchange(ctx context.Context, id uuid.UUID) (*models.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.exchanges[id]
	if !ok {
		return nil, service.ErrExchangeNotFound
	}
	return ex, nil
}

func (m *MockExchangeService) ListExchanges(ctx context.Context, filter models.ExchangeFilter) ([]*models.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Exchange
	for _, ex := range m.exchanges {
		if filter.UserID != nil && ex.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && ex.Status != filter.Status {
			continue
		}
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockExchangeService) transition(id uuid.UUID, apply func(ex *models.Exchange) error) (*models.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.exchanges[id]
	if !ok {
		return nil, service.ErrExchangeNotFound
	}
	if err := apply(ex); err != nil {
		return nil, err
	}
	return ex, nil
}

func (m *MockExchangeService) AdminConfirmSource(ctx context.Context, id uuid.UUID, txID string) (*models.Exchange, error) {
	return m.transition(id, func(ex *models.Exchange) error {
		return ledger.ConfirmSource(ex, txID, fixedNow)
	})
}

func (m *MockExchangeService) AdminComplete(ctx context.Context, id uuid.UUID, txID, bankRef string) (*models.Exchange, error) {
	return m.transition(id, func(ex *models.Exchange) error {
		return ledger.Complete(ex, txID, bankRef, fixedNow)
	})
}

func (m *MockExchangeService) AdminFail(ctx context.Context, id uuid.UUID, reason string) (*models.Exchange, error) {
	return m.transition(id, func(ex *models.Exchange) error {
		return ledger.Fail(ex, reason, fixedNow)
	})
}

func (m *MockExchangeService) AdminRefund(ctx context.Context, id uuid.UUID) (*models.Exchange, error) {
	return m.transition(id, func(ex *models.Exchange) error {
		return ledger.Refund(ex, fixedNow)
	})
}

func (m *MockExchangeService) UpdateAdminNotes(ctx context.Context, id uuid.UUID, notes string) (*models.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.exchanges[id]
	if !ok {
		return nil, service.ErrExchangeNotFound
	}
	ex.AdminNotes = notes
	return ex, nil
}

// ============ Mock Wallet Service ============

// MockWalletService мок для WalletServiceInterface
type MockWalletService struct {
	wallets   map[uuid.UUID]*models.Wallet
	txs       []models.ChainTransaction
	createErr error
	chainErr  error
	imported  []string
	limits    []int
	mu        sync.Mutex
}

func NewMockWalletService() *MockWalletService {
	return &MockWalletService{wallets: make(map[uuid.UUID]*models.Wallet)}
}

func (m *MockWalletService) AddWallet(owner *uuid.UUID, walletType models.WalletType) *models.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(owner, walletType, "")
}

func (m *MockWalletService) addLocked(owner *uuid.UUID, walletType models.WalletType, address string) *models.Wallet {
	id := uuid.New()
	if address == "" {
		address = "addr-" + id.String()[:8]
	}
	w := &models.Wallet{
		ID:              id,
		OwnerUser:       owner,
		WalletType:      walletType,
		Address:         address,
		EncryptedSecret: "v1:aesgcm:c2VjcmV0",
		IsActive:        true,
		IsHot:           owner == nil,
		CreatedAt:       fixedNow,
	}
	m.wallets[id] = w
	return w
}

// visible - кошелёк существует и доступен владельцу (owner == nil - без проверки)
func (m *MockWalletService) visible(id uuid.UUID, owner *uuid.UUID) (*models.Wallet, error) {
	w, ok := m.wallets[id]
	if !ok {
		return nil, service.ErrWalletNotFound
	}
	if owner != nil && (w.OwnerUser == nil || *w.OwnerUser != *owner) {
		return nil, service.ErrWalletNotFound
	}
	return w, nil
}

func (m *MockWalletService) CreateWallet(ctx context.Context, owner *uuid.UUID, walletType models.WalletType) (*models.WalletSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	if !walletType.IsValid() {
		return nil, service.ErrUnsupportedWalletType
	}
	summary := m.addLocked(owner, walletType, "").Summary()
	return &summary, nil
}

func (m *MockWalletService) EnsureWallet(ctx context.Context, user uuid.UUID, walletType models.WalletType) (*models.Wallet, error) {
	return nil, errors.New("not used by handlers")
}

func (m *MockWalletService) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible(id, nil)
}

func (m *MockWalletService) ListWallets(ctx context.Context, owner *uuid.UUID) ([]models.WalletSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.WalletSummary{}
	for _, w := range m.wallets {
		switch {
		case owner == nil && w.OwnerUser == nil,
			owner != nil && w.OwnerUser != nil && *w.OwnerUser == *owner:
			out = append(out, w.Summary())
		}
	}
	return out, nil
}

func (m *MockWalletService) DeactivateWallet(ctx context.Context, id uuid.UUID, owner *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, err := m.visible(id, owner)
	if err != nil {
		return err
	}
	w.IsActive = false
	return nil
}

func (m *MockWalletService) ListTransactions(ctx context.Context, id uuid.UUID, owner *uuid.UUID, limit int) ([]models.ChainTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = append(m.limits, limit)
	if _, err := m.visible(id, owner); err != nil {
		return nil, err
	}
	if m.chainErr != nil {
		return nil, m.chainErr
	}
	return m.txs, nil
}

func (m *MockWalletService) GetBalance(ctx context.Context, w *models.Wallet) (decimal.Decimal, error) {
	return w.Balance, nil
}

func (m *MockWalletService) Disburse(ctx context.Context, w *models.Wallet, toAddress string, amount decimal.Decimal) (string, error) {
	return "", errors.New("not used by handlers")
}

func (m *MockWalletService) RecordDisbursement(ctx context.Context, w *models.Wallet, exchangeID uuid.UUID, amount decimal.Decimal) error {
	return errors.New("not used by handlers")
}

func (m *MockWalletService) CreditDeposit(ctx context.Context, w *models.Wallet, exchangeID uuid.UUID, amount decimal.Decimal) error {
	return errors.New("not used by handlers")
}

func (m *MockWalletService) FindPayoutWallet(ctx context.Context, walletType models.WalletType, amount decimal.Decimal) (*models.Wallet, error) {
	return nil, service.ErrNoPayoutWallet
}

func (m *MockWalletService) ImportHotWallet(ctx context.Context, mnemonic string) (*models.WalletSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imported = append(m.imported, mnemonic)
	summary := m.addLocked(nil, models.WalletTypeTON, "").Summary()
	return &summary, nil
}

func (m *MockWalletService) RegisterExternalWallet(ctx context.Context, owner uuid.UUID, walletType models.WalletType, address string) (*models.WalletSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if address == "" {
		return nil, service.ErrInvalidAddress
	}
	w := m.addLocked(&owner, walletType, address)
	w.EncryptedSecret = ""
	summary := w.Summary()
	return &summary, nil
}

// Проверяем, что моки удовлетворяют интерфейсам
var (
	_ service.RateServiceInterface     = (*MockRateService)(nil)
	_ service.ExchangeServiceInterface = (*MockExchangeService)(nil)
	_ service.WalletServiceInterface   = (*MockWalletService)(nil)
	_ CachedRates                      = (*MockCachedRates)(nil)
)
