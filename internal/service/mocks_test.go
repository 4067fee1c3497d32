package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"liraexchange/internal/chain"
	"liraexchange/internal/models"
	"liraexchange/internal/repository"
	"liraexchange/pkg/crypto"
)

// ============ Mock RateRepository ============

type MockRateRepository struct {
	rates     map[string]*models.Rate
	upsertErr error
	getErr    error
	upserts   int
}

func NewMockRateRepository() *MockRateRepository {
	return &MockRateRepository{rates: make(map[string]*models.Rate)}
}

func rateKey(source, target models.Currency) string {
	return string(source) + "/" + string(target)
}

func (m *MockRateRepository) Upsert(ctx context.Context, rate *models.Rate) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	if rate.ID == uuid.Nil {
		rate.ID = uuid.New()
	}
	rate.IsActive = true
	copied := *rate
	m.rates[rateKey(rate.SourceCurrency, rate.TargetCurrency)] = &copied
	return nil
}

func (m *MockRateRepository) GetActive(ctx context.Context, source, target models.Currency) (*models.Rate, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	rate, ok := m.rates[rateKey(source, target)]
	if !ok || !rate.IsActive {
		return nil, repository.ErrRateNotFound
	}
	copied := *rate
	return &copied, nil
}

func (m *MockRateRepository) ListActive(ctx context.Context, filter repository.RateFilter) ([]*models.Rate, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Rate
	for _, r := range m.rates {
		if filter.Source != "" && r.SourceCurrency != filter.Source {
			continue
		}
		if filter.Target != "" && r.TargetCurrency != filter.Target {
			continue
		}
		copied := *r
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Pair() < result[j].Pair() })
	return result, nil
}

// ============ Mock WalletRepository ============

type MockWalletRepository struct {
	wallets   map[uuid.UUID]*models.Wallet
	links     map[uuid.UUID][]uuid.UUID
	createErr error
	getErr    error
	updateErr error

	creditFailures int // столько ближайших CreditDeposit вернут creditErr
	creditErr      error
	creditCalls    int
}

func NewMockWalletRepository() *MockWalletRepository {
	return &MockWalletRepository{
		wallets: make(map[uuid.UUID]*models.Wallet),
		links:   make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *MockWalletRepository) add(w *models.Wallet) *models.Wallet {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	m.wallets[w.ID] = w
	return w
}

func (m *MockWalletRepository) Create(ctx context.Context, w *models.Wallet) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.wallets {
		if existing.Address == w.Address {
			return repository.ErrWalletAddressExists
		}
		if w.OwnerUser != nil && existing.OwnerUser != nil && *existing.OwnerUser == *w.OwnerUser &&
			existing.WalletType == w.WalletType && existing.IsHot == w.IsHot && existing.IsActive && w.IsActive {
			return repository.ErrWalletExists
		}
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.CreatedAt = time.Now()
	copied := *w
	m.wallets[w.ID] = &copied
	return nil
}

// view возвращает копию без секрета, как это делает SELECT репозитория
func (m *MockWalletRepository) view(w *models.Wallet) *models.Wallet {
	copied := *w
	copied.EncryptedSecret = ""
	return &copied
}

func (m *MockWalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	w, ok := m.wallets[id]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	return m.view(w), nil
}

func (m *MockWalletRepository) GetActiveCustodial(ctx context.Context, owner uuid.UUID, walletType models.WalletType) (*models.Wallet, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, w := range m.wallets {
		if w.OwnerUser != nil && *w.OwnerUser == owner && w.WalletType == walletType && w.IsActive && w.IsHot {
			return m.view(w), nil
		}
	}
	return nil, repository.ErrWalletNotFound
}

func (m *MockWalletRepository) ListByOwner(ctx context.Context, owner *uuid.UUID) ([]*models.Wallet, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Wallet
	for _, w := range m.wallets {
		switch {
		case owner == nil && w.OwnerUser == nil:
		case owner != nil && w.OwnerUser != nil && *owner == *w.OwnerUser:
		default:
			continue
		}
		result = append(result, m.view(w))
	}
	return result, nil
}

func (m *MockWalletRepository) ListHot(ctx context.Context, walletType models.WalletType) ([]*models.Wallet, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Wallet
	for _, w := range m.wallets {
		if w.WalletType == walletType && w.IsActive && w.IsHot && w.OwnerUser == nil {
			result = append(result, m.view(w))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Balance.GreaterThan(result[j].Balance) })
	return result, nil
}

func (m *MockWalletRepository) GetSecret(ctx context.Context, id uuid.UUID) (string, error) {
	w, ok := m.wallets[id]
	if !ok {
		return "", repository.ErrWalletNotFound
	}
	return w.EncryptedSecret, nil
}

func (m *MockWalletRepository) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	w, ok := m.wallets[id]
	if !ok {
		return repository.ErrWalletNotFound
	}
	w.Balance = balance
	w.LastBalanceUpdate = &at
	return nil
}

func (m *MockWalletRepository) DecrementBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	if m.updateErr != nil {
		return decimal.Zero, m.updateErr
	}
	w, ok := m.wallets[id]
	if !ok {
		return decimal.Zero, repository.ErrWalletNotFound
	}
	w.Balance = w.Balance.Sub(amount)
	w.LastUsed = &at
	return w.Balance, nil
}

func (m *MockWalletRepository) CreditDeposit(ctx context.Context, walletID, exchangeID uuid.UUID, amount decimal.Decimal, at time.Time) (bool, error) {
	m.creditCalls++
	if m.creditFailures > 0 {
		m.creditFailures--
		return false, m.creditErr
	}
	if m.updateErr != nil {
		return false, m.updateErr
	}
	w, ok := m.wallets[walletID]
	if !ok {
		return false, repository.ErrWalletNotFound
	}
	for _, id := range m.links[walletID] {
		if id == exchangeID {
			return false, nil
		}
	}
	m.links[walletID] = append(m.links[walletID], exchangeID)
	w.CreditedAmount = w.CreditedAmount.Add(amount)
	w.LastUsed = &at
	return true, nil
}

func (m *MockWalletRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	w, ok := m.wallets[id]
	if !ok {
		return repository.ErrWalletNotFound
	}
	w.IsActive = false
	return nil
}

func (m *MockWalletRepository) LinkExchange(ctx context.Context, walletID, exchangeID uuid.UUID) error {
	for _, id := range m.links[walletID] {
		if id == exchangeID {
			return nil
		}
	}
	m.links[walletID] = append(m.links[walletID], exchangeID)
	return nil
}

func (m *MockWalletRepository) ListExchangeIDs(ctx context.Context, walletID uuid.UUID) ([]uuid.UUID, error) {
	return m.links[walletID], nil
}

// ============ Mock ExchangeRepository ============

type MockExchangeRepository struct {
	exchanges map[uuid.UUID]*models.Exchange
	createErr error
	updateErr error
	// beforeUpdate позволяет смоделировать параллельного писателя
	beforeUpdate func(stored *models.Exchange)
	// credited отвечает, есть ли запись о зачёте депозита (wallet_transactions)
	credited func(walletID, exchangeID uuid.UUID) bool
}

func NewMockExchangeRepository() *MockExchangeRepository {
	return &MockExchangeRepository{exchanges: make(map[uuid.UUID]*models.Exchange)}
}

func (m *MockExchangeRepository) add(ex *models.Exchange) *models.Exchange {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	copied := *ex
	m.exchanges[ex.ID] = &copied
	return ex
}

func (m *MockExchangeRepository) Create(ctx context.Context, ex *models.Exchange) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.add(ex)
	return nil
}

func (m *MockExchangeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Exchange, error) {
	ex, ok := m.exchanges[id]
	if !ok {
		return nil, repository.ErrExchangeNotFound
	}
	copied := *ex
	return &copied, nil
}

func (m *MockExchangeRepository) List(ctx context.Context, filter models.ExchangeFilter) ([]*models.Exchange, error) {
	var result []*models.Exchange
	for _, ex := range m.exchanges {
		if filter.UserID != nil && ex.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && ex.Status != filter.Status {
			continue
		}
		copied := *ex
		result = append(result, &copied)
	}
	return result, nil
}

func (m *MockExchangeRepository) pick(match func(*models.Exchange) bool, limit int) []*models.Exchange {
	var out []*models.Exchange
	for _, ex := range m.exchanges {
		if match(ex) {
			copied := *ex
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MockExchangeRepository) ListPendingDeposits(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error) {
	return m.pick(func(ex *models.Exchange) bool {
		return ex.Status == models.StatusInitiated &&
			ex.SourceTransaction.Status == models.TxPending &&
			ex.FromCurrency == currency
	}, limit), nil
}

func (m *MockExchangeRepository) ListAwaitingPayout(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error) {
	return m.pick(func(ex *models.Exchange) bool {
		return ex.Status == models.StatusProcessing &&
			ex.DestinationTransaction.Status == models.TxPending &&
			ex.ToCurrency == currency
	}, limit), nil
}

func (m *MockExchangeRepository) ListUncreditedDeposits(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error) {
	return m.pick(func(ex *models.Exchange) bool {
		return ex.SourceTransaction.Status == models.TxCompleted &&
			ex.FromCurrency == currency &&
			ex.CryptoWalletID != nil &&
			(m.credited == nil || !m.credited(*ex.CryptoWalletID, ex.ID))
	}, limit), nil
}

func (m *MockExchangeRepository) UpdateState(ctx context.Context, ex *models.Exchange, expected models.ExchangeStatus) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.exchanges[ex.ID]
	if !ok {
		return repository.ErrConcurrentUpdate
	}
	if m.beforeUpdate != nil {
		m.beforeUpdate(stored)
	}
	if stored.Status != expected {
		return repository.ErrConcurrentUpdate
	}
	copied := *ex
	m.exchanges[ex.ID] = &copied
	return nil
}

func (m *MockExchangeRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string, at time.Time) error {
	stored, ok := m.exchanges[id]
	if !ok {
		return repository.ErrExchangeNotFound
	}
	stored.AdminNotes = notes
	stored.UpdatedAt = at
	return nil
}

// ============ Mock KeyGenerator ============

type MockKeyGenerator struct {
	generated int
	err       error
}

func (m *MockKeyGenerator) Generate(walletType models.WalletType) (*chain.KeyPair, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !walletType.IsValid() {
		return nil, chain.ErrUnsupportedKeyType
	}
	m.generated++
	return &chain.KeyPair{
		Address:   fmt.Sprintf("%s-address-%d", walletType, m.generated),
		PublicKey: fmt.Sprintf("pub-%d", m.generated),
		Secret:    []byte(fmt.Sprintf("secret-%d", m.generated)),
	}, nil
}

func (m *MockKeyGenerator) TONFromSeed(seed []byte) (*chain.KeyPair, error) {
	secret := make([]byte, len(seed))
	copy(secret, seed)
	return &chain.KeyPair{
		Address:   fmt.Sprintf("imported-%x", seed[:4]),
		PublicKey: fmt.Sprintf("%x", seed[:8]),
		Secret:    secret,
	}, nil
}

// ============ Mock chain.Client ============

type MockChainClient struct {
	balances   map[string]decimal.Decimal
	balanceErr error
	sendErr    error
	txs        []models.ChainTransaction

	balanceCalls int
	sent         []sentTransfer
	// lastSecret - срез, переданный в SendTransfer, для проверки затирания
	lastSecret []byte
}

type sentTransfer struct {
	Secret string
	To     string
	Amount decimal.Decimal
}

func NewMockChainClient() *MockChainClient {
	return &MockChainClient{balances: make(map[string]decimal.Decimal)}
}

func (m *MockChainClient) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	m.balanceCalls++
	if m.balanceErr != nil {
		return decimal.Zero, m.balanceErr
	}
	return m.balances[address], nil
}

func (m *MockChainClient) SendTransfer(ctx context.Context, secret []byte, toAddress string, amount decimal.Decimal) (*chain.TransferResult, error) {
	m.lastSecret = secret
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, sentTransfer{Secret: string(secret), To: toAddress, Amount: amount})
	return &chain.TransferResult{TxID: fmt.Sprintf("tx-%d", len(m.sent))}, nil
}

func (m *MockChainClient) ListTransactions(ctx context.Context, address string, limit int) ([]models.ChainTransaction, error) {
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	if limit > 0 && limit < len(m.txs) {
		return m.txs[:limit], nil
	}
	return m.txs, nil
}

// ============ Helpers ============

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestBox() crypto.SecretBox {
	box, err := crypto.NewAESGCMBox(testKey)
	if err != nil {
		panic(err)
	}
	return box
}

type failingBox struct{}

func (failingBox) Encrypt(secret []byte) (string, error) {
	return "", crypto.ErrInvalidKeyLength
}

func (failingBox) DecryptForUse(blob string) ([]byte, error) {
	return nil, crypto.ErrDecryptionFailed
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
