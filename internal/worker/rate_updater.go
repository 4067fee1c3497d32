package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liraexchange/internal/config"
	"liraexchange/internal/market"
	"liraexchange/internal/models"
	"liraexchange/internal/service"
	"liraexchange/pkg/utils"
)

var (
	// ErrRateRefreshFailed - хотя бы одна пара не получила рыночную цену
	ErrRateRefreshFailed = errors.New("rate refresh failed")
	// ErrInvalidTicker - тикер с нечисловыми или противоречивыми ценами
	ErrInvalidTicker = errors.New("invalid ticker")
)

// inversePlaces - точность обратного курса
const inversePlaces = 12

// bounds - границы суммы обмена по валюте источника
type bounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

var defaultBounds = map[models.Currency]bounds{
	models.CurrencyTRY:  {Min: decimal.NewFromInt(100), Max: decimal.NewFromInt(50000)},
	models.CurrencyRUB:  {Min: decimal.NewFromInt(1000), Max: decimal.NewFromInt(1000000)},
	models.CurrencyUSDT: {Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(5000)},
	models.CurrencyTON:  {Min: decimal.NewFromInt(1), Max: decimal.NewFromInt(10000)},
}

// RateStore - чтение и запись котировок
type RateStore interface {
	GetActiveRate(ctx context.Context, source, target models.Currency) (*models.Rate, error)
	UpsertRate(ctx context.Context, in service.RateInput) (*models.Rate, error)
}

var _ RateStore = (*service.RateService)(nil)

// RateUpdaterConfig - расписание, время жизни кэша и опорные пары
type RateUpdaterConfig struct {
	Interval time.Duration
	CacheTTL time.Duration
	Markup   decimal.Decimal
	Pairs    []config.ReferencePair
}

type rateCache struct {
	rates []*models.Rate
	at    time.Time
}

// RateUpdater периодически обновляет котировки по рыночным ценам.
//
// Невалидная или недоступная цена никогда не перезаписывает действующую
// котировку. Пара без котировки получает запасную с пометкой bybit-default.
type RateUpdater struct {
	store   RateStore
	pricing market.PricingClient
	cfg     RateUpdaterConfig
	log     *utils.Logger
	now     func() time.Time

	refreshMu sync.Mutex // один Refresh за раз

	mu    sync.RWMutex
	cache *rateCache

	loop loop
}

// NewRateUpdater создаёт updater
func NewRateUpdater(store RateStore, pricing market.PricingClient, cfg RateUpdaterConfig, log *utils.Logger) *RateUpdater {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if log == nil {
		log = utils.L()
	}
	log = log.WithComponent("rate_updater")

	return &RateUpdater{
		store:   store,
		pricing: pricing,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		loop:    loop{name: "rate_updater", log: log},
	}
}

// Start запускает периодическое обновление, первое - сразу
func (u *RateUpdater) Start(ctx context.Context) {
	if u.loop.start(ctx, u.cfg.Interval, u.scheduledRefresh) {
		u.log.Info("rate updater started",
			zap.Duration("interval", u.cfg.Interval),
			zap.Int("pairs", len(u.cfg.Pairs)),
		)
	}
}

// Stop останавливает обновление и ждёт текущего прохода
func (u *RateUpdater) Stop() {
	if u.loop.running() {
		u.loop.stop()
		u.log.Info("rate updater stopped")
	}
}

func (u *RateUpdater) scheduledRefresh(ctx context.Context) {
	rates, err := u.Refresh(context.WithoutCancel(ctx))
	if err != nil {
		u.log.Warn("rate refresh incomplete", zap.Int("rates", len(rates)), zap.Error(err))
		return
	}
	u.log.Debug("rates refreshed", zap.Int("rates", len(rates)))
}

// Refresh обновляет все опорные пары и возвращает их текущие котировки.
// Ошибка объединяет сбои отдельных пар; кэш обновляется только при полном успехе.
func (u *RateUpdater) Refresh(ctx context.Context) ([]*models.Rate, error) {
	u.refreshMu.Lock()
	defer u.refreshMu.Unlock()

	var (
		rates []*models.Rate
		errs  []error
	)
	for _, pair := range u.cfg.Pairs {
		pairRates, err := u.refreshPair(ctx, pair)
		rates = append(rates, pairRates...)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pair.Symbol(), err))
		}
	}

	if len(errs) > 0 {
		RateRefreshes.WithLabelValues("partial").Inc()
		return rates, fmt.Errorf("%w: %w", ErrRateRefreshFailed, errors.Join(errs...))
	}

	RateRefreshes.WithLabelValues("ok").Inc()
	u.mu.Lock()
	u.cache = &rateCache{rates: rates, at: u.now()}
	u.mu.Unlock()
	return rates, nil
}

// refreshPair обновляет BASE→QUOTE и QUOTE→BASE по одному тикеру
func (u *RateUpdater) refreshPair(ctx context.Context, pair config.ReferencePair) ([]*models.Rate, error) {
	symbol := pair.Symbol()
	log := u.log.WithPair(symbol)

	start := time.Now()
	ticker, err := u.pricing.GetTicker(ctx, symbol)
	RateFetchLatency.WithLabelValues(symbol).Observe(float64(time.Since(start).Microseconds()) / 1000)
	if err == nil {
		err = validateTicker(ticker)
	}
	if err != nil {
		RateFallbacks.WithLabelValues(symbol).Inc()
		log.Warn("market price unavailable, keeping current rates", zap.Error(err))

		rates, fbErr := u.ensureFallback(ctx, pair)
		return rates, errors.Join(err, fbErr)
	}

	last := decimal.NewFromFloat(ticker.Last)
	bid := decimal.NewFromFloat(ticker.Bid)
	ask := decimal.NewFromFloat(ticker.Ask)
	markup := effectiveMarkup(u.cfg.Markup, bid, ask, last)

	forward, err := u.store.UpsertRate(ctx, service.RateInput{
		Source:     pair.Base,
		Target:     pair.Quote,
		BaseRate:   last,
		Markup:     &markup,
		MinAmount:  defaultBounds[pair.Base].Min,
		MaxAmount:  defaultBounds[pair.Base].Max,
		Provenance: models.RateSourceBybit,
	})
	if err != nil {
		return nil, err
	}

	reverse, err := u.store.UpsertRate(ctx, service.RateInput{
		Source:     pair.Quote,
		Target:     pair.Base,
		BaseRate:   decimal.NewFromInt(1).DivRound(last, inversePlaces),
		Markup:     &markup,
		MinAmount:  defaultBounds[pair.Quote].Min,
		MaxAmount:  defaultBounds[pair.Quote].Max,
		Provenance: models.RateSourceBybit,
	})
	if err != nil {
		return []*models.Rate{forward}, err
	}

	log.Info("rates updated from market",
		utils.Rate(last),
		zap.Stringer("markup", markup),
		zap.Stringer("bid", bid),
		zap.Stringer("ask", ask),
	)
	return []*models.Rate{forward, reverse}, nil
}

// validateTicker: все цены конечны и положительны, bid не выше ask
func validateTicker(t *market.Ticker) error {
	if t == nil {
		return fmt.Errorf("%w: empty response", ErrInvalidTicker)
	}
	for name, v := range map[string]float64{"last": t.Last, "bid": t.Bid, "ask": t.Ask} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s price %v", ErrInvalidTicker, name, v)
		}
	}
	if t.Bid > t.Ask {
		return fmt.Errorf("%w: bid %v above ask %v", ErrInvalidTicker, t.Bid, t.Ask)
	}
	return nil
}

// effectiveMarkup = max(настроенная наценка, половина спреда в процентах от last).
// Спред симметричен относительно обращения курса, поэтому значение общее для обоих направлений.
func effectiveMarkup(configured, bid, ask, last decimal.Decimal) decimal.Decimal {
	halfSpread := ask.Sub(bid).Div(decimal.NewFromInt(2)).Div(last).Mul(decimal.NewFromInt(100)).Round(4)
	if halfSpread.GreaterThan(configured) {
		return halfSpread
	}
	return configured
}

// ensureFallback возвращает действующие котировки пары, а для направлений
// без котировки записывает запасную по настроенной цене
func (u *RateUpdater) ensureFallback(ctx context.Context, pair config.ReferencePair) ([]*models.Rate, error) {
	directions := []struct {
		source, target models.Currency
		base           decimal.Decimal
	}{
		{pair.Base, pair.Quote, pair.Fallback},
		{pair.Quote, pair.Base, decimal.NewFromInt(1).DivRound(pair.Fallback, inversePlaces)},
	}

	var (
		rates []*models.Rate
		errs  []error
	)
	for _, dir := range directions {
		current, err := u.store.GetActiveRate(ctx, dir.source, dir.target)
		if err == nil {
			rates = append(rates, current)
			continue
		}
		if !errors.Is(err, service.ErrRateNotFound) {
			errs = append(errs, err)
			continue
		}

		markup := u.cfg.Markup
		fallback, err := u.store.UpsertRate(ctx, service.RateInput{
			Source:     dir.source,
			Target:     dir.target,
			BaseRate:   dir.base,
			Markup:     &markup,
			MinAmount:  defaultBounds[dir.source].Min,
			MaxAmount:  defaultBounds[dir.source].Max,
			Provenance: models.RateSourceBybitDefault,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		u.log.Warn("fallback rate seeded",
			utils.Pair(fallback.Pair()),
			utils.Rate(fallback.BaseRate),
		)
		rates = append(rates, fallback)
	}
	return rates, errors.Join(errs...)
}

// GetCachedRates отдаёт кэш, пока он моложе TTL, иначе обновляет котировки.
// При неудачном обновлении возвращается последний удачный кэш, а без него -
// то, что удалось получить (включая запасные котировки).
func (u *RateUpdater) GetCachedRates(ctx context.Context) ([]*models.Rate, error) {
	u.mu.RLock()
	cache := u.cache
	u.mu.RUnlock()

	if cache != nil && u.now().Sub(cache.at) < u.cfg.CacheTTL {
		return cache.rates, nil
	}

	rates, err := u.Refresh(ctx)
	if err == nil {
		return rates, nil
	}
	if cache != nil {
		u.log.Warn("serving stale rates", zap.Duration("age", u.now().Sub(cache.at)), zap.Error(err))
		return cache.rates, nil
	}
	if len(rates) > 0 {
		return rates, nil
	}
	return nil, fmt.Errorf("%w: %w", service.ErrRateUnavailable, err)
}
