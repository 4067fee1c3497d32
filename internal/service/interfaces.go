package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"liraexchange/internal/chain"
	"liraexchange/internal/models"
	"liraexchange/internal/repository"
)

// RateRepositoryInterface определяет интерфейс хранилища котировок
type RateRepositoryInterface interface {
	Upsert(ctx context.Context, rate *models.Rate) error
	GetActive(ctx context.Context, source, target models.Currency) (*models.Rate, error)
	ListActive(ctx context.Context, filter repository.RateFilter) ([]*models.Rate, error)
}

// WalletRepositoryInterface определяет интерфейс хранилища кошельков
type WalletRepositoryInterface interface {
	Create(ctx context.Context, w *models.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetActiveCustodial(ctx context.Context, owner uuid.UUID, walletType models.WalletType) (*models.Wallet, error)
	ListByOwner(ctx context.Context, owner *uuid.UUID) ([]*models.Wallet, error)
	ListHot(ctx context.Context, walletType models.WalletType) ([]*models.Wallet, error)
	GetSecret(ctx context.Context, id uuid.UUID) (string, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error
	DecrementBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, at time.Time) (decimal.Decimal, error)
	CreditDeposit(ctx context.Context, walletID, exchangeID uuid.UUID, amount decimal.Decimal, at time.Time) (bool, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	LinkExchange(ctx context.Context, walletID, exchangeID uuid.UUID) error
	ListExchangeIDs(ctx context.Context, walletID uuid.UUID) ([]uuid.UUID, error)
}

// ExchangeRepositoryInterface определяет интерфейс хранилища заявок
type ExchangeRepositoryInterface interface {
	Create(ctx context.Context, ex *models.Exchange) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Exchange, error)
	List(ctx context.Context, filter models.ExchangeFilter) ([]*models.Exchange, error)
	UpdateState(ctx context.Context, ex *models.Exchange, expected models.ExchangeStatus) error
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string, at time.Time) error
}

// KeyGenerator выпускает ключи кошельков
type KeyGenerator interface {
	Generate(walletType models.WalletType) (*chain.KeyPair, error)
	TONFromSeed(seed []byte) (*chain.KeyPair, error)
}

// Проверяем, что реальные реализации удовлетворяют интерфейсам
var _ RateRepositoryInterface = (*repository.RateRepository)(nil)
var _ WalletRepositoryInterface = (*repository.WalletRepository)(nil)
var _ ExchangeRepositoryInterface = (*repository.ExchangeRepository)(nil)
var _ KeyGenerator = (*chain.KeyGenerator)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// RateServiceInterface определяет интерфейс сервиса котировок
type RateServiceInterface interface {
	GetActiveRate(ctx context.Context, source, target models.Currency) (*models.Rate, error)
	UpsertRate(ctx context.Context, in RateInput) (*models.Rate, error)
	ListActive(ctx context.Context, filter repository.RateFilter) ([]*models.Rate, error)
	SeedRates(ctx context.Context) ([]*models.Rate, error)
}

// WalletServiceInterface определяет интерфейс кастодиального сервиса
type WalletServiceInterface interface {
	CreateWallet(ctx context.Context, owner *uuid.UUID, walletType models.WalletType) (*models.WalletSummary, error)
	EnsureWallet(ctx context.Context, user uuid.UUID, walletType models.WalletType) (*models.Wallet, error)
	GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	ListWallets(ctx context.Context, owner *uuid.UUID) ([]models.WalletSummary, error)
	DeactivateWallet(ctx context.Context, id uuid.UUID, owner *uuid.UUID) error
	ListTransactions(ctx context.Context, id uuid.UUID, owner *uuid.UUID, limit int) ([]models.ChainTransaction, error)
	GetBalance(ctx context.Context, w *models.Wallet) (decimal.Decimal, error)
	Disburse(ctx context.Context, w *models.Wallet, toAddress string, amount decimal.Decimal) (string, error)
	RecordDisbursement(ctx context.Context, w *models.Wallet, exchangeID uuid.UUID, amount decimal.Decimal) error
	CreditDeposit(ctx context.Context, w *models.Wallet, exchangeID uuid.UUID, amount decimal.Decimal) error
	FindPayoutWallet(ctx context.Context, walletType models.WalletType, amount decimal.Decimal) (*models.Wallet, error)
	ImportHotWallet(ctx context.Context, mnemonic string) (*models.WalletSummary, error)
	RegisterExternalWallet(ctx context.Context, owner uuid.UUID, walletType models.WalletType, address string) (*models.WalletSummary, error)
}

// ExchangeServiceInterface определяет интерфейс сервиса заявок
type ExchangeServiceInterface interface {
	Quote(ctx context.Context, from, to models.Currency, amount decimal.Decimal) (*models.Quote, error)
	CreateExchange(ctx context.Context, req CreateExchangeRequest) (*models.Exchange, error)
	GetExchange(ctx context.Context, id uuid.UUID) (*models.Exchange, error)
	ListExchanges(ctx context.Context, filter models.ExchangeFilter) ([]*models.Exchange, error)
	AdminConfirmSource(ctx context.Context, id uuid.UUID, txID string) (*models.Exchange, error)
	AdminComplete(ctx context.Context, id uuid.UUID, txID, bankRef string) (*models.Exchange, error)
	AdminFail(ctx context.Context, id uuid.UUID, reason string) (*models.Exchange, error)
	AdminRefund(ctx context.Context, id uuid.UUID) (*models.Exchange, error)
	UpdateAdminNotes(ctx context.Context, id uuid.UUID, notes string) (*models.Exchange, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ RateServiceInterface = (*RateService)(nil)
var _ WalletServiceInterface = (*WalletService)(nil)
var _ ExchangeServiceInterface = (*ExchangeService)(nil)
