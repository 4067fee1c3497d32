package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liraexchange/internal/chain"
	"liraexchange/internal/ledger"
	"liraexchange/internal/models"
	"liraexchange/internal/repository"
	"liraexchange/pkg/retry"
	"liraexchange/pkg/utils"
)

// DefaultFeePercentage - комиссия сервиса, %
var DefaultFeePercentage = decimal.RequireFromString("1.5")

// Префиксы ссылок на подтверждение депозита
const (
	ManualReferencePrefix = "MANUAL_"
	AutoReferencePrefix   = "AUTO_CONFIRMED_"
)

// Reference формирует ссылку вида PREFIX_<unix>
func Reference(prefix string, now time.Time) string {
	return prefix + strconv.FormatInt(now.Unix(), 10)
}

// CreateExchangeRequest - параметры новой заявки
type CreateExchangeRequest struct {
	UserID uuid.UUID
	From   models.Currency
	To     models.Currency
	Amount decimal.Decimal
	Payout *models.PayoutDetails
}

// ExchangeService - создание заявок и административные переходы.
// Переходы состояний делегируются internal/ledger, запись идёт через
// UPDATE с проверкой ожидаемого статуса.
type ExchangeService struct {
	repo    ExchangeRepositoryInterface
	rates   RateServiceInterface
	wallets WalletServiceInterface
	fee     decimal.Decimal
	log     *utils.Logger
	now     func() time.Time

	// повтор зачёта депозита после ручного подтверждения
	creditRetry retry.Config
}

// NewExchangeService создает новый экземпляр сервиса
func NewExchangeService(
	repo ExchangeRepositoryInterface,
	rates RateServiceInterface,
	wallets WalletServiceInterface,
	fee decimal.Decimal,
	log *utils.Logger,
) *ExchangeService {
	if log == nil {
		log = utils.L()
	}
	return &ExchangeService{
		repo:    repo,
		rates:   rates,
		wallets: wallets,
		fee:     fee,
		log:     log.WithComponent("exchanges"),
		now:     time.Now,

		creditRetry: retry.DefaultConfig(),
	}
}

// Quote считает сумму к выплате без побочных эффектов
func (s *ExchangeService) Quote(ctx context.Context, from, to models.Currency, amount decimal.Decimal) (*models.Quote, error) {
	if err := validatePair(from, to, amount); err != nil {
		return nil, err
	}

	rate, err := s.rates.GetActiveRate(ctx, from, to)
	if err != nil {
		return nil, err
	}

	b := ledger.Compute(amount, rate.RateFor(from), s.fee)
	return &models.Quote{
		FromCurrency:  from,
		ToCurrency:    to,
		FromAmount:    amount,
		ToAmount:      b.ToAmount,
		Rate:          b.Rate,
		FeePercentage: s.fee,
		Fee:           b.Fee,
		MinAmount:     rate.MinAmount,
		MaxAmount:     rate.MaxAmount,
	}, nil
}

func validatePair(from, to models.Currency, amount decimal.Decimal) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("%w: %s/%s", ErrInvalidCurrency, from, to)
	}
	if from == to {
		return fmt.Errorf("%w: %s", ErrSameCurrency, from)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount)
	}
	return nil
}

// CreateExchange создаёт заявку со снимком котировки.
//
// Порядок проверок:
// 1. Валюты и сумма
// 2. Активная котировка пары
// 3. Границы суммы котировки
// 4. Реквизиты выплаты для целевой валюты
// 5. Кошелёк пользователя, если в паре есть блокчейн-актив
func (s *ExchangeService) CreateExchange(ctx context.Context, req CreateExchangeRequest) (*models.Exchange, error) {
	if err := validatePair(req.From, req.To, req.Amount); err != nil {
		return nil, err
	}

	rate, err := s.rates.GetActiveRate(ctx, req.From, req.To)
	if err != nil {
		return nil, err
	}
	if !rate.InBounds(req.Amount) {
		return nil, fmt.Errorf("%w: amount must be between %s and %s %s",
			ErrInvalidAmount, rate.MinAmount, rate.MaxAmount, req.From)
	}

	bank, cryptoAddress, err := validatePayout(req.To, req.Payout)
	if err != nil {
		return nil, err
	}

	b := ledger.Compute(req.Amount, rate.RateFor(req.From), s.fee)
	now := s.now().UTC()
	ex := &models.Exchange{
		ID:            uuid.New(),
		UserID:        req.UserID,
		FromCurrency:  req.From,
		ToCurrency:    req.To,
		FromAmount:    req.Amount,
		ToAmount:      b.ToAmount,
		ExchangeRate:  b.Rate,
		FeePercentage: s.fee,
		FeeAmount:     b.Fee,
		BankAccount:   bank,
		Status:        models.StatusInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if req.To == models.CurrencyUSDT {
		ex.DestinationTransaction = models.DestinationTransaction{
			Status:  models.TxPending,
			Address: cryptoAddress,
		}
	}

	if req.From.IsChainAsset() || req.To.IsChainAsset() {
		if err := s.attachWallet(ctx, ex, cryptoAddress); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Create(ctx, ex); err != nil {
		return nil, fmt.Errorf("create exchange: %w", err)
	}

	s.log.Info("exchange created",
		utils.ExchangeID(ex.ID.String()),
		utils.UserID(ex.UserID.String()),
		utils.Pair(string(ex.FromCurrency)+"/"+string(ex.ToCurrency)),
		utils.Amount(ex.FromAmount),
		utils.Rate(ex.ExchangeRate),
	)
	return ex, nil
}

// attachWallet привязывает кошелёк пользователя и открывает блокчейн-ноги заявки
func (s *ExchangeService) attachWallet(ctx context.Context, ex *models.Exchange, payoutAddress string) error {
	walletType := models.WalletTypeTON
	if info, ok := ex.FromCurrency.Info(); ok && info.Kind == models.KindChain {
		walletType = info.WalletType
	} else if info, ok := ex.ToCurrency.Info(); ok && info.Kind == models.KindChain {
		walletType = info.WalletType
	}

	w, err := s.wallets.EnsureWallet(ctx, ex.UserID, walletType)
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	id := w.ID
	ex.CryptoWalletID = &id

	if ex.FromCurrency.IsChainAsset() {
		ex.SourceTransaction = models.SourceTransaction{
			Status:  models.TxPending,
			Address: w.Address,
		}
	}
	if ex.ToCurrency.IsChainAsset() {
		address := payoutAddress
		if address == "" {
			address = w.Address
		}
		ex.DestinationTransaction = models.DestinationTransaction{
			Status:  models.TxPending,
			Address: address,
		}
	}
	return nil
}

// validatePayout проверяет реквизиты для целевой валюты и возвращает их нормализованными
func validatePayout(to models.Currency, payout *models.PayoutDetails) (*models.BankAccount, string, error) {
	info, _ := to.Info()

	switch info.Kind {
	case models.KindFiat:
		if payout == nil || payout.BankAccount == nil {
			return nil, "", fmt.Errorf("%w: bank account required for %s", ErrMissingPayoutDetails, to)
		}
		acc := *payout.BankAccount
		acc.AccountID = strings.TrimSpace(acc.AccountID)
		acc.Bank = strings.TrimSpace(acc.Bank)
		if acc.AccountID == "" || acc.Bank == "" {
			return nil, "", fmt.Errorf("%w: bank account id and bank name required", ErrMissingPayoutDetails)
		}
		country := strings.ToUpper(strings.TrimSpace(acc.Country))
		if country == "" {
			country = info.Country
		}
		if country != info.Country {
			return nil, "", fmt.Errorf("%w: %s payout requires a %s bank account, got %s",
				ErrMissingPayoutDetails, to, info.Country, country)
		}
		acc.Country = country
		return &acc, "", nil

	case models.KindToken:
		if payout == nil || strings.TrimSpace(payout.CryptoAddress) == "" {
			return nil, "", fmt.Errorf("%w: crypto address required for %s", ErrMissingPayoutDetails, to)
		}
		return nil, strings.TrimSpace(payout.CryptoAddress), nil

	case models.KindChain:
		if payout == nil || strings.TrimSpace(payout.CryptoAddress) == "" {
			return nil, "", nil
		}
		address := strings.TrimSpace(payout.CryptoAddress)
		if err := chain.ValidateAddress(info.WalletType, address); err != nil {
			return nil, "", fmt.Errorf("%w: %s", ErrInvalidAddress, address)
		}
		return nil, address, nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrInvalidCurrency, to)
}

// GetExchange возвращает заявку по ID
func (s *ExchangeService) GetExchange(ctx context.Context, id uuid.UUID) (*models.Exchange, error) {
	ex, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrExchangeNotFound) {
		return nil, ErrExchangeNotFound
	}
	return ex, err
}

// ListExchanges возвращает заявки по фильтру, новые первыми
func (s *ExchangeService) ListExchanges(ctx context.Context, filter models.ExchangeFilter) ([]*models.Exchange, error) {
	if filter.Status != "" && !isKnownStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	return s.repo.List(ctx, filter)
}

func isKnownStatus(status models.ExchangeStatus) bool {
	switch status {
	case models.StatusInitiated, models.StatusProcessing, models.StatusCompleted,
		models.StatusFailed, models.StatusRefunded:
		return true
	}
	return false
}

// AdminConfirmSource подтверждает получение средств вручную.
// Без txID ссылка генерируется как MANUAL_<unix>.
//
// Блокчейн-депозит засчитывается кошельку так же, как при автоматическом
// подтверждении: сначала сохраняется processing, затем зачёт. Если зачёт не
// прошёл и после повторов, его допишет следующий проход обработчика.
func (s *ExchangeService) AdminConfirmSource(ctx context.Context, id uuid.UUID, txID string) (*models.Exchange, error) {
	ex, err := s.transition(ctx, id, "confirm source", func(ex *models.Exchange, now time.Time) error {
		if txID = strings.TrimSpace(txID); txID == "" {
			txID = Reference(ManualReferencePrefix, now)
		}
		return ledger.ConfirmSource(ex, txID, now)
	})
	if err != nil {
		return nil, err
	}

	if err := s.creditSource(ctx, ex); err != nil {
		s.log.Error("deposit confirmed but not credited, processor will retry",
			utils.ExchangeID(ex.ID.String()),
			utils.Amount(ex.FromAmount),
			zap.Error(err),
		)
	}
	return ex, nil
}

// creditSource засчитывает депозит кошельку заявки, если источник - блокчейн-актив
func (s *ExchangeService) creditSource(ctx context.Context, ex *models.Exchange) error {
	if !ex.FromCurrency.IsChainAsset() || ex.CryptoWalletID == nil {
		return nil
	}

	cfg := s.creditRetry
	cfg.RetryIf = func(err error) bool {
		return !errors.Is(err, ErrWalletNotFound) && retry.IsRetryable(err)
	}
	return retry.Do(ctx, func() error {
		w, err := s.wallets.GetWallet(ctx, *ex.CryptoWalletID)
		if err != nil {
			return err
		}
		return s.wallets.CreditDeposit(ctx, w, ex.ID, ex.FromAmount)
	}, cfg)
}

// AdminComplete завершает заявку вручную (банковская выплата или внешний перевод)
func (s *ExchangeService) AdminComplete(ctx context.Context, id uuid.UUID, txID, bankRef string) (*models.Exchange, error) {
	return s.transition(ctx, id, "complete", func(ex *models.Exchange, now time.Time) error {
		return ledger.Complete(ex, strings.TrimSpace(txID), strings.TrimSpace(bankRef), now)
	})
}

// AdminFail переводит заявку в failed с указанием причины
func (s *ExchangeService) AdminFail(ctx context.Context, id uuid.UUID, reason string) (*models.Exchange, error) {
	return s.transition(ctx, id, "fail", func(ex *models.Exchange, now time.Time) error {
		return ledger.Fail(ex, reason, now)
	})
}

// AdminRefund оформляет возврат по завершённой заявке
func (s *ExchangeService) AdminRefund(ctx context.Context, id uuid.UUID) (*models.Exchange, error) {
	return s.transition(ctx, id, "refund", func(ex *models.Exchange, now time.Time) error {
		return ledger.Refund(ex, now)
	})
}

// transition загружает заявку, применяет переход и сохраняет её
// с проверкой, что статус не изменился за это время
func (s *ExchangeService) transition(ctx context.Context, id uuid.UUID, op string, apply func(*models.Exchange, time.Time) error) (*models.Exchange, error) {
	ex, err := s.GetExchange(ctx, id)
	if err != nil {
		return nil, err
	}

	expected := ex.Status
	if err := apply(ex, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, ex, expected); err != nil {
		return nil, err
	}

	s.log.Info("exchange "+op,
		utils.ExchangeID(ex.ID.String()),
		utils.State(string(ex.Status)),
		utils.Component("admin"),
	)
	return ex, nil
}

// persist сохраняет состояние заявки, если её статус всё ещё expected
func (s *ExchangeService) persist(ctx context.Context, ex *models.Exchange, expected models.ExchangeStatus) error {
	err := s.repo.UpdateState(ctx, ex, expected)
	switch {
	case errors.Is(err, repository.ErrConcurrentUpdate):
		return fmt.Errorf("%w: %s expected %s", ErrConcurrentUpdate, ex.ID, expected)
	case errors.Is(err, repository.ErrExchangeNotFound):
		return ErrExchangeNotFound
	}
	return err
}

// UpdateAdminNotes заменяет заметки. Разрешено и для завершённых заявок:
// заметки не относятся к состоянию расчёта.
func (s *ExchangeService) UpdateAdminNotes(ctx context.Context, id uuid.UUID, notes string) (*models.Exchange, error) {
	ex, err := s.GetExchange(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repo.UpdateNotes(ctx, id, notes, now); err != nil {
		if errors.Is(err, repository.ErrExchangeNotFound) {
			return nil, ErrExchangeNotFound
		}
		return nil, err
	}
	ex.AdminNotes = notes
	ex.UpdatedAt = now
	return ex, nil
}
