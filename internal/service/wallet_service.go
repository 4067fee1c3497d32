package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liraexchange/internal/chain"
	"liraexchange/internal/models"
	"liraexchange/internal/repository"
	"liraexchange/pkg/crypto"
	"liraexchange/pkg/utils"
)

// DefaultBalanceRecheck - как долго кэш баланса считается свежим
const DefaultBalanceRecheck = 30 * time.Second

// WalletService - кастодиальное хранение ключей и операции с кошельками.
//
// Секреты расшифровываются только внутри Disburse и затираются сразу
// после отправки перевода. Наружу уходят только WalletSummary.
type WalletService struct {
	repo    WalletRepositoryInterface
	keys    KeyGenerator
	box     crypto.SecretBox
	chain   chain.Client // только для TON, может быть nil
	recheck time.Duration
	log     *utils.Logger
	now     func() time.Time
}

// NewWalletService создает новый экземпляр сервиса
func NewWalletService(
	repo WalletRepositoryInterface,
	keys KeyGenerator,
	box crypto.SecretBox,
	client chain.Client,
	recheck time.Duration,
	log *utils.Logger,
) *WalletService {
	if recheck <= 0 {
		recheck = DefaultBalanceRecheck
	}
	if log == nil {
		log = utils.L()
	}
	return &WalletService{
		repo:    repo,
		keys:    keys,
		box:     box,
		chain:   client,
		recheck: recheck,
		log:     log.WithComponent("wallets"),
		now:     time.Now,
	}
}

// CreateWallet выпускает новый кошелёк. owner == nil - горячий кошелёк оператора.
func (s *WalletService) CreateWallet(ctx context.Context, owner *uuid.UUID, walletType models.WalletType) (*models.WalletSummary, error) {
	if !walletType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedWalletType, walletType)
	}

	if owner != nil {
		_, err := s.repo.GetActiveCustodial(ctx, *owner, walletType)
		if err == nil {
			return nil, ErrWalletExists
		}
		if !errors.Is(err, repository.ErrWalletNotFound) {
			return nil, err
		}
	}

	w, err := s.create(ctx, owner, walletType)
	if err != nil {
		return nil, err
	}
	summary := w.Summary()
	return &summary, nil
}

// EnsureWallet возвращает активный кастодиальный кошелёк пользователя, при отсутствии
// создаёт его. Зарегистрированный внешний адрес для приёма депозитов не подходит.
func (s *WalletService) EnsureWallet(ctx context.Context, user uuid.UUID, walletType models.WalletType) (*models.Wallet, error) {
	w, err := s.repo.GetActiveCustodial(ctx, user, walletType)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, repository.ErrWalletNotFound) {
		return nil, err
	}

	w, err = s.create(ctx, &user, walletType)
	if errors.Is(err, ErrWalletExists) {
		// параллельный запрос успел создать кошелёк
		return s.repo.GetActiveCustodial(ctx, user, walletType)
	}
	return w, err
}

func (s *WalletService) create(ctx context.Context, owner *uuid.UUID, walletType models.WalletType) (*models.Wallet, error) {
	pair, err := s.keys.Generate(walletType)
	if err != nil {
		if errors.Is(err, chain.ErrUnsupportedKeyType) {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedWalletType, walletType)
		}
		return nil, fmt.Errorf("generate %s keys: %w", walletType, err)
	}
	defer crypto.Wipe(pair.Secret)

	return s.persist(ctx, owner, walletType, pair)
}

// persist шифрует секрет и сохраняет горячий кошелёк
func (s *WalletService) persist(ctx context.Context, owner *uuid.UUID, walletType models.WalletType, pair *chain.KeyPair) (*models.Wallet, error) {
	blob, err := s.box.Encrypt(pair.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	w := &models.Wallet{
		OwnerUser:       owner,
		WalletType:      walletType,
		Address:         pair.Address,
		EncryptedSecret: blob,
		PublicKey:       pair.PublicKey,
		Balance:         decimal.Zero,
		CreditedAmount:  decimal.Zero,
		IsActive:        true,
		IsHot:           true,
	}
	if err := s.save(ctx, w); err != nil {
		return nil, err
	}

	fields := []zap.Field{utils.WalletID(w.ID.String()), utils.Address(w.Address), zap.String("wallet_type", string(walletType))}
	if owner != nil {
		fields = append(fields, utils.UserID(owner.String()))
	}
	s.log.Info("wallet created", fields...)
	return w, nil
}

func (s *WalletService) save(ctx context.Context, w *models.Wallet) error {
	err := s.repo.Create(ctx, w)
	switch {
	case errors.Is(err, repository.ErrWalletExists):
		return ErrWalletExists
	case errors.Is(err, repository.ErrWalletAddressExists):
		return fmt.Errorf("%w: %s", ErrWalletAddressExists, w.Address)
	}
	return err
}

// GetWallet возвращает кошелёк по ID
func (s *WalletService) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	w, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrWalletNotFound) {
		return nil, ErrWalletNotFound
	}
	return w, err
}

// getOwned - кошелёк, принадлежащий owner. Чужой кошелёк неотличим от отсутствующего.
func (s *WalletService) getOwned(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (*models.Wallet, error) {
	w, err := s.GetWallet(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != nil && (w.OwnerUser == nil || *w.OwnerUser != *owner) {
		return nil, ErrWalletNotFound
	}
	return w, nil
}

// ListWallets возвращает кошельки владельца (nil - кошельки оператора)
func (s *WalletService) ListWallets(ctx context.Context, owner *uuid.UUID) ([]models.WalletSummary, error) {
	wallets, err := s.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	result := make([]models.WalletSummary, 0, len(wallets))
	for _, w := range wallets {
		result = append(result, w.Summary())
	}
	return result, nil
}

// DeactivateWallet выводит кошелёк из оборота. owner == nil - без проверки владельца.
func (s *WalletService) DeactivateWallet(ctx context.Context, id uuid.UUID, owner *uuid.UUID) error {
	w, err := s.getOwned(ctx, id, owner)
	if err != nil {
		return err
	}
	if !w.IsActive {
		return nil
	}
	if err := s.repo.Deactivate(ctx, w.ID); err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return ErrWalletNotFound
		}
		return err
	}
	s.log.Info("wallet deactivated", utils.WalletID(w.ID.String()))
	return nil
}

// ListTransactions читает историю адреса из сети
func (s *WalletService) ListTransactions(ctx context.Context, id uuid.UUID, owner *uuid.UUID, limit int) ([]models.ChainTransaction, error) {
	w, err := s.getOwned(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if !s.hasChain(w) {
		return nil, fmt.Errorf("%w: no chain client for %s", ErrUnsupportedWalletType, w.WalletType)
	}

	txs, err := s.chain.ListTransactions(ctx, w.Address, limit)
	if err != nil {
		return nil, externalError("list transactions", err)
	}
	return txs, nil
}

func (s *WalletService) hasChain(w *models.Wallet) bool {
	return s.chain != nil && w.WalletType == models.WalletTypeTON
}

// GetBalance возвращает баланс кошелька. Свежий кэш отдаётся без обращения к сети,
// иначе баланс опрашивается и сохраняется.
func (s *WalletService) GetBalance(ctx context.Context, w *models.Wallet) (decimal.Decimal, error) {
	now := s.now().UTC()
	if w.BalanceFresh(now, s.recheck) || !s.hasChain(w) {
		return w.Balance, nil
	}

	balance, err := s.chain.GetBalance(ctx, w.Address)
	if err != nil {
		return decimal.Zero, externalError("get balance", err)
	}
	if err := s.repo.UpdateBalance(ctx, w.ID, balance, now); err != nil {
		return decimal.Zero, fmt.Errorf("persist balance: %w", err)
	}

	w.Balance = balance
	w.LastBalanceUpdate = &now
	return balance, nil
}

// Disburse отправляет amount с горячего кошелька на toAddress и возвращает txId.
// Кэш баланса здесь не меняется: это делает RecordDisbursement после фиксации заявки.
func (s *WalletService) Disburse(ctx context.Context, w *models.Wallet, toAddress string, amount decimal.Decimal) (string, error) {
	if !w.IsActive {
		return "", ErrWalletInactive
	}
	if !w.IsHot {
		return "", ErrNotCustodial
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if w.Balance.LessThan(amount) {
		return "", fmt.Errorf("%w: balance %s, required %s", ErrInsufficientFunds, w.Balance, amount)
	}
	if !s.hasChain(w) {
		return "", fmt.Errorf("%w: no chain client for %s", ErrUnsupportedWalletType, w.WalletType)
	}

	blob, err := s.repo.GetSecret(ctx, w.ID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return "", ErrWalletNotFound
		}
		return "", err
	}
	if blob == "" {
		return "", fmt.Errorf("%w: wallet %s has no ciphertext", ErrEncryption, w.ID)
	}

	secret, err := s.box.DecryptForUse(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	defer crypto.Wipe(secret)

	start := time.Now()
	result, err := s.chain.SendTransfer(ctx, secret, toAddress, amount)
	if err != nil {
		if errors.Is(err, chain.ErrInvalidAddress) {
			return "", fmt.Errorf("%w: %s", ErrInvalidAddress, toAddress)
		}
		return "", externalError("send transfer", err)
	}

	s.log.Info("disbursement sent",
		utils.WalletID(w.ID.String()),
		utils.Address(toAddress),
		utils.Amount(amount),
		utils.TxID(result.TxID),
		utils.Elapsed(time.Since(start)),
	)
	return result.TxID, nil
}

// RecordDisbursement уменьшает кэш баланса ровно на amount и связывает кошелёк с заявкой
func (s *WalletService) RecordDisbursement(ctx context.Context, w *models.Wallet, exchangeID uuid.UUID, amount decimal.Decimal) error {
	now := s.now().UTC()
	balance, err := s.repo.DecrementBalance(ctx, w.ID, amount, now)
	if err != nil {
		return fmt.Errorf("decrement balance: %w", err)
	}
	w.Balance = balance
	w.LastUsed = &now

	if err := s.repo.LinkExchange(ctx, w.ID, exchangeID); err != nil {
		return fmt.Errorf("link exchange: %w", err)
	}
	return nil
}

// CreditDeposit засчитывает депозит заявке, чтобы он не учитывался повторно.
// Зачёт идемпотентен по паре (кошелёк, заявка): повтор после сбоя безопасен.
func (s *WalletService) CreditDeposit(ctx context.Context, w *models.Wallet, exchangeID uuid.UUID, amount decimal.Decimal) error {
	now := s.now().UTC()
	applied, err := s.repo.CreditDeposit(ctx, w.ID, exchangeID, amount, now)
	if err != nil {
		return fmt.Errorf("credit deposit: %w", err)
	}
	if !applied {
		s.log.Debug("deposit already credited", utils.WalletID(w.ID.String()), utils.ExchangeID(exchangeID.String()))
		return nil
	}
	w.CreditedAmount = w.CreditedAmount.Add(amount)
	w.LastUsed = &now
	return nil
}

// FindPayoutWallet выбирает горячий кошелёк оператора с наибольшим кэшированным
// балансом, покрывающим amount
func (s *WalletService) FindPayoutWallet(ctx context.Context, walletType models.WalletType, amount decimal.Decimal) (*models.Wallet, error) {
	wallets, err := s.repo.ListHot(ctx, walletType)
	if err != nil {
		return nil, err
	}

	var best *models.Wallet
	for _, w := range wallets {
		if !w.IsActive || !w.IsHot || !w.IsOperator() {
			continue
		}
		if w.Balance.LessThan(amount) {
			continue
		}
		if best == nil || w.Balance.GreaterThan(best.Balance) {
			best = w
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNoPayoutWallet, amount, walletType)
	}
	return best, nil
}

// ImportHotWallet добавляет горячий кошелёк оператора из мнемоники TON
func (s *WalletService) ImportHotWallet(ctx context.Context, mnemonic string) (*models.WalletSummary, error) {
	seed, err := chain.MnemonicToSeed(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	defer crypto.Wipe(seed)

	pair, err := s.keys.TONFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("derive wallet: %w", err)
	}
	defer crypto.Wipe(pair.Secret)

	w, err := s.persist(ctx, nil, models.WalletTypeTON, pair)
	if err != nil {
		return nil, err
	}
	summary := w.Summary()
	return &summary, nil
}

// RegisterExternalWallet сохраняет адрес пользователя без секрета.
// Такой кошелёк не участвует в выплатах.
func (s *WalletService) RegisterExternalWallet(ctx context.Context, owner uuid.UUID, walletType models.WalletType, address string) (*models.WalletSummary, error) {
	if !walletType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedWalletType, walletType)
	}
	if err := chain.ValidateAddress(walletType, address); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}

	w := &models.Wallet{
		OwnerUser:      &owner,
		WalletType:     walletType,
		Address:        address,
		Balance:        decimal.Zero,
		CreditedAmount: decimal.Zero,
		IsActive:       true,
	}
	if err := s.save(ctx, w); err != nil {
		return nil, err
	}

	s.log.Info("external wallet registered", utils.WalletID(w.ID.String()), utils.UserID(owner.String()))
	summary := w.Summary()
	return &summary, nil
}
