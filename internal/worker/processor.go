package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liraexchange/internal/ledger"
	"liraexchange/internal/models"
	"liraexchange/internal/repository"
	"liraexchange/internal/service"
	"liraexchange/pkg/utils"
)

// Названия проходов для логов и метрик
const (
	SweepDeposits = "deposits"
	SweepPayouts  = "payouts"
)

// ExchangeStore - выборки и запись заявок, нужные обработчику
type ExchangeStore interface {
	ListPendingDeposits(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error)
	ListAwaitingPayout(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error)
	ListUncreditedDeposits(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error)
	UpdateState(ctx context.Context, ex *models.Exchange, expected models.ExchangeStatus) error
}

// WalletCustody - операции с кошельками, нужные обработчику
type WalletCustody interface {
	GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetBalance(ctx context.Context, w *models.Wallet) (decimal.Decimal, error)
	CreditDeposit(ctx context.Context, w *models.Wallet, exchangeID uuid.UUID, amount decimal.Decimal) error
	FindPayoutWallet(ctx context.Context, walletType models.WalletType, amount decimal.Decimal) (*models.Wallet, error)
	Disburse(ctx context.Context, w *models.Wallet, toAddress string, amount decimal.Decimal) (string, error)
	RecordDisbursement(ctx context.Context, w *models.Wallet, exchangeID uuid.UUID, amount decimal.Decimal) error
}

var (
	_ ExchangeStore = (*repository.ExchangeRepository)(nil)
	_ WalletCustody = (*service.WalletService)(nil)
)

// ProcessorConfig - расписание и размер выборки
type ProcessorConfig struct {
	Interval  time.Duration
	BatchSize int
}

// PassStats - итог одного прохода
type PassStats struct {
	Deposits map[OutcomeKind]int
	Payouts  map[OutcomeKind]int
	Stopped  bool // проход прерван паузой или остановкой
	Duration time.Duration
}

func newPassStats() *PassStats {
	return &PassStats{
		Deposits: make(map[OutcomeKind]int),
		Payouts:  make(map[OutcomeKind]int),
	}
}

// disbursement - выплата отправлена в сеть, но заявка ещё не сохранена как completed
type disbursement struct {
	TxID     string
	WalletID uuid.UUID
	Amount   decimal.Decimal
}

// credit - депозит подтверждён, но ещё не засчитан кошельку
type credit struct {
	WalletID uuid.UUID
	Amount   decimal.Decimal
}

// Processor сверяет заявки с блокчейном: подтверждает депозиты и отправляет выплаты.
//
// Фиатные ноги не трогаются, их подтверждает администратор.
// Ошибка одной заявки не прерывает проход.
type Processor struct {
	store   ExchangeStore
	wallets WalletCustody
	gov     *Governor
	cfg     ProcessorConfig
	asset   models.Currency
	log     *utils.Logger
	now     func() time.Time

	// Незавершённые побочные эффекты прошлых проходов. Следующий проход
	// дописывает их вместо повторной отправки.
	mu        sync.Mutex
	disbursed map[uuid.UUID]disbursement
	credits   map[uuid.UUID]credit

	loop loop
}

// NewProcessor создаёт обработчик для блокчейн-актива TON
func NewProcessor(store ExchangeStore, wallets WalletCustody, gov *Governor, cfg ProcessorConfig, log *utils.Logger) *Processor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if log == nil {
		log = utils.L()
	}
	log = log.WithComponent("processor")

	return &Processor{
		store:     store,
		wallets:   wallets,
		gov:       gov,
		cfg:       cfg,
		asset:     models.CurrencyTON,
		log:       log,
		now:       time.Now,
		disbursed: make(map[uuid.UUID]disbursement),
		credits:   make(map[uuid.UUID]credit),
		loop:      loop{name: "processor", log: log},
	}
}

// Start запускает периодические проходы
func (p *Processor) Start(ctx context.Context) {
	if p.loop.start(ctx, p.cfg.Interval, p.scheduledPass) {
		p.log.Info("processor started", zap.Duration("interval", p.cfg.Interval))
	}
}

// Stop останавливает проходы и ждёт завершения текущего
func (p *Processor) Stop() {
	if p.loop.running() {
		p.loop.stop()
		p.log.Info("processor stopped")
	}
}

func (p *Processor) scheduledPass(ctx context.Context) {
	stats, err := p.RunPass(ctx)
	if err != nil {
		if errors.Is(err, ErrConcurrencyLimit) {
			p.log.Debug("pass skipped", zap.Error(err))
			return
		}
		p.log.Error("pass failed", zap.Error(err))
		return
	}
	p.log.Debug("pass completed",
		zap.Int("deposits_ok", stats.Deposits[OutcomeOk]),
		zap.Int("payouts_ok", stats.Payouts[OutcomeOk]),
		utils.Elapsed(stats.Duration),
	)
}

// RunPass выполняет один проход: сначала депозиты, затем выплаты.
// Отказ governor'а возвращается как ErrConcurrencyLimit, ErrPassTooSoon или ErrCooldown.
func (p *Processor) RunPass(ctx context.Context) (*PassStats, error) {
	release, err := p.gov.Admit()
	if err != nil {
		ProcessorPasses.WithLabelValues(skipLabel(err)).Inc()
		return nil, err
	}
	defer release()

	start := time.Now()
	stats := newPassStats()

	// без сверки зачётов свободный остаток кошельков неизвестен: депозиты ждут
	if p.flushCredits(ctx) && !p.sweepDeposits(ctx, stats) {
		stats.Stopped = true
	} else if !p.sweepPayouts(ctx, stats) {
		stats.Stopped = true
	}

	stats.Duration = time.Since(start)
	ProcessorPasses.WithLabelValues("completed").Inc()
	ProcessorPassDuration.Observe(stats.Duration.Seconds())
	return stats, nil
}

func skipLabel(err error) string {
	switch {
	case errors.Is(err, ErrCooldown):
		return "skipped_cooldown"
	case errors.Is(err, ErrPassTooSoon):
		return "skipped_too_soon"
	}
	return "skipped_busy"
}

// sweepDeposits возвращает false, если проход нужно прекратить
func (p *Processor) sweepDeposits(ctx context.Context, stats *PassStats) bool {
	items, err := p.store.ListPendingDeposits(context.WithoutCancel(ctx), p.asset, p.cfg.BatchSize)
	if err != nil {
		p.log.Error("list pending deposits", utils.Sweep(SweepDeposits), zap.Error(err))
		p.record(SweepDeposits, nil, Classify(err), stats.Deposits)
		return !p.gov.CoolingDown()
	}

	for _, ex := range items {
		if err := p.gov.WaitItem(ctx); err != nil {
			return false
		}
		p.record(SweepDeposits, ex, p.confirmDeposit(context.WithoutCancel(ctx), ex), stats.Deposits)
	}
	return ctx.Err() == nil && !p.gov.CoolingDown()
}

// confirmDeposit переводит заявку в processing, когда на кошельке есть незачтённый депозит
func (p *Processor) confirmDeposit(ctx context.Context, ex *models.Exchange) Outcome {
	if ex.CryptoWalletID == nil {
		return Classify(ErrNoWallet)
	}

	w, err := p.wallets.GetWallet(ctx, *ex.CryptoWalletID)
	if err != nil {
		return Classify(err)
	}
	// деактивированный кастодиальный кошелёк продолжает принимать уже открытые заявки
	if !w.IsHot {
		return Classify(ErrExternalDeposit)
	}
	balance, err := p.wallets.GetBalance(ctx, w)
	if err != nil {
		return Classify(err)
	}

	available := balance.Sub(w.CreditedAmount).Sub(p.uncredited(w.ID))
	if available.LessThan(ex.FromAmount) {
		p.log.Debug("deposit not yet received",
			utils.ExchangeID(ex.ID.String()),
			utils.Balance(available),
			utils.Amount(ex.FromAmount),
		)
		return Outcome{Kind: OutcomeWait}
	}

	expected := ex.Status
	now := p.now().UTC()
	if err := ledger.ConfirmSource(ex, service.Reference(service.AutoReferencePrefix, now), now); err != nil {
		return Classify(err)
	}
	if err := p.store.UpdateState(ctx, ex, expected); err != nil {
		return Classify(err)
	}

	// заявка уже processing: если зачёт не удался, его повторит следующий проход
	if err := p.wallets.CreditDeposit(ctx, w, ex.ID, ex.FromAmount); err != nil {
		p.mu.Lock()
		p.credits[ex.ID] = credit{WalletID: w.ID, Amount: ex.FromAmount}
		p.mu.Unlock()
		return Classify(err)
	}
	return Outcome{Kind: OutcomeOk}
}

// uncredited - подтверждённые, но ещё не засчитанные депозиты кошелька
func (p *Processor) uncredited(walletID uuid.UUID) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	sum := decimal.Zero
	for _, c := range p.credits {
		if c.WalletID == walletID {
			sum = sum.Add(c.Amount)
		}
	}
	return sum
}

// flushCredits дописывает зачёты депозитов, не сохранённые прошлыми проходами
// или подтверждённые вручную без зачёта. Незасчитанные остаются в p.credits,
// и их сумма вычитается из свободного остатка кошелька.
// Возвращает false, если список незасчитанных заявок получить не удалось.
func (p *Processor) flushCredits(ctx context.Context) bool {
	ioCtx := context.WithoutCancel(ctx)

	items, err := p.store.ListUncreditedDeposits(ioCtx, p.asset, p.cfg.BatchSize)
	if err != nil {
		p.log.Error("list uncredited deposits", utils.Sweep(SweepDeposits), zap.Error(err))
		return false
	}

	p.mu.Lock()
	for _, ex := range items {
		if _, ok := p.credits[ex.ID]; !ok && ex.CryptoWalletID != nil {
			p.credits[ex.ID] = credit{WalletID: *ex.CryptoWalletID, Amount: ex.FromAmount}
		}
	}
	pending := make(map[uuid.UUID]credit, len(p.credits))
	for id, c := range p.credits {
		pending[id] = c
	}
	p.mu.Unlock()

	for exchangeID, c := range pending {
		w, err := p.wallets.GetWallet(ioCtx, c.WalletID)
		if err == nil {
			err = p.wallets.CreditDeposit(ioCtx, w, exchangeID, c.Amount)
		}
		if err != nil {
			p.log.Warn("deposit credit still pending", utils.ExchangeID(exchangeID.String()), zap.Error(err))
			continue
		}
		p.mu.Lock()
		delete(p.credits, exchangeID)
		p.mu.Unlock()
	}
	return true
}

func (p *Processor) sweepPayouts(ctx context.Context, stats *PassStats) bool {
	items, err := p.store.ListAwaitingPayout(context.WithoutCancel(ctx), p.asset, p.cfg.BatchSize)
	if err != nil {
		p.log.Error("list awaiting payouts", utils.Sweep(SweepPayouts), zap.Error(err))
		p.record(SweepPayouts, nil, Classify(err), stats.Payouts)
		return !p.gov.CoolingDown()
	}

	for _, ex := range items {
		if err := p.gov.WaitItem(ctx); err != nil {
			return false
		}
		p.record(SweepPayouts, ex, p.payout(context.WithoutCancel(ctx), ex), stats.Payouts)
	}
	return ctx.Err() == nil && !p.gov.CoolingDown()
}

// payout отправляет выплату с горячего кошелька оператора и завершает заявку
func (p *Processor) payout(ctx context.Context, ex *models.Exchange) Outcome {
	address := ex.DestinationTransaction.Address
	if address == "" {
		return Classify(ErrNoDestination)
	}

	p.mu.Lock()
	sent, alreadySent := p.disbursed[ex.ID]
	p.mu.Unlock()

	if alreadySent {
		w, err := p.wallets.GetWallet(ctx, sent.WalletID)
		if err != nil {
			return Classify(err)
		}
		return p.finishPayout(ctx, ex, w, sent)
	}

	w, err := p.wallets.FindPayoutWallet(ctx, models.WalletTypeTON, ex.ToAmount)
	if err != nil {
		if errors.Is(err, service.ErrNoPayoutWallet) {
			p.log.Warn("no payout wallet with sufficient balance",
				utils.ExchangeID(ex.ID.String()),
				utils.Amount(ex.ToAmount),
			)
		}
		return Classify(err)
	}
	// выбранный кошелёк мог давно не сверяться с сетью
	if _, err := p.wallets.GetBalance(ctx, w); err != nil {
		return Classify(err)
	}

	txID, err := p.wallets.Disburse(ctx, w, address, ex.ToAmount)
	if err != nil {
		if errors.Is(err, service.ErrEncryption) {
			SecretFailures.Inc()
		}
		return Classify(err)
	}

	sent = disbursement{TxID: txID, WalletID: w.ID, Amount: ex.ToAmount}
	p.mu.Lock()
	p.disbursed[ex.ID] = sent
	p.mu.Unlock()

	return p.finishPayout(ctx, ex, w, sent)
}

// finishPayout сохраняет completed и уменьшает кэш баланса ровно на сумму выплаты.
// Пока заявка не сохранена, txId остаётся в памяти и перевод не повторяется.
//
// Если заявку успели изменить (например, администратор завершил её вручную),
// перевод всё равно уже ушёл: кэш баланса уменьшается, запись в памяти снимается,
// а возможная двойная выплата логируется для оператора.
func (p *Processor) finishPayout(ctx context.Context, ex *models.Exchange, w *models.Wallet, sent disbursement) Outcome {
	expected := ex.Status
	now := p.now().UTC()
	if err := ledger.Complete(ex, sent.TxID, "", now); err != nil {
		return Classify(err)
	}

	err := p.store.UpdateState(ctx, ex, expected)
	concurrent := errors.Is(err, repository.ErrConcurrentUpdate)
	if err != nil && !concurrent {
		p.log.Error("payout sent but exchange not persisted",
			utils.ExchangeID(ex.ID.String()),
			utils.TxID(sent.TxID),
			zap.Error(err),
		)
		return Classify(err)
	}
	if concurrent {
		p.log.Error("payout sent but exchange was changed concurrently, possible double payout",
			utils.ExchangeID(ex.ID.String()),
			utils.WalletID(w.ID.String()),
			utils.TxID(sent.TxID),
			utils.Amount(sent.Amount),
		)
	}

	p.mu.Lock()
	delete(p.disbursed, ex.ID)
	p.mu.Unlock()

	if err := p.wallets.RecordDisbursement(ctx, w, ex.ID, sent.Amount); err != nil {
		p.log.Error("record disbursement",
			utils.ExchangeID(ex.ID.String()),
			utils.WalletID(w.ID.String()),
			zap.Error(err),
		)
		return Classify(err)
	}
	if concurrent {
		return Outcome{Kind: OutcomeFatal, Err: fmt.Errorf("payout %s: %w", sent.TxID, repository.ErrConcurrentUpdate)}
	}
	return Outcome{Kind: OutcomeOk}
}

// record логирует исход, обновляет метрики и счётчик governor'а
func (p *Processor) record(sweep string, ex *models.Exchange, o Outcome, counts map[OutcomeKind]int) {
	counts[o.Kind]++
	ProcessorItems.WithLabelValues(sweep, o.Kind.String()).Inc()

	fields := []zap.Field{utils.Sweep(sweep), utils.Outcome(o.Kind.String())}
	if ex != nil {
		fields = append(fields, utils.ExchangeID(ex.ID.String()), utils.State(string(ex.Status)))
	}
	if o.Err != nil {
		fields = append(fields, zap.Error(o.Err))
	}

	switch o.Kind {
	case OutcomeOk:
		p.log.Info("exchange advanced", fields...)
	case OutcomeWait:
		p.log.Debug("exchange waiting", fields...)
	case OutcomeRetryable:
		p.log.Warn("exchange step failed", fields...)
	case OutcomeFatal:
		p.log.Error("exchange needs operator attention", fields...)
	}

	if p.gov.Record(o.Kind) {
		ProcessorCooldowns.Inc()
		p.log.Warn("processor cooling down after consecutive errors", utils.Sweep(sweep))
	}
}
