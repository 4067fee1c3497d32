package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"liraexchange/internal/models"
	"liraexchange/internal/repository"
)

var maxMarkup = decimal.NewFromInt(100)

// RateInput - данные для записи котировки. Buy/sell считаются из base и наценки.
type RateInput struct {
	Source     models.Currency
	Target     models.Currency
	BaseRate   decimal.Decimal
	Markup     *decimal.Decimal // nil - наценка по умолчанию
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
	Provenance string
}

// rateSeed - административное начальное наполнение
var rateSeed = []RateInput{
	{
		Source:     models.CurrencyTRY,
		Target:     models.CurrencyRUB,
		BaseRate:   decimal.RequireFromString("2.4"),
		MinAmount:  decimal.NewFromInt(100),
		MaxAmount:  decimal.NewFromInt(10000),
		Provenance: models.RateSourceManual,
	},
	{
		Source:     models.CurrencyRUB,
		Target:     models.CurrencyTRY,
		BaseRate:   decimal.RequireFromString("0.38"),
		MinAmount:  decimal.NewFromInt(1000),
		MaxAmount:  decimal.NewFromInt(1000000),
		Provenance: models.RateSourceManual,
	},
}

// RateService - хранилище котировок: единственное место, где считаются buy/sell
type RateService struct {
	repo RateRepositoryInterface
	now  func() time.Time
}

// NewRateService создает новый экземпляр сервиса
func NewRateService(repo RateRepositoryInterface) *RateService {
	return &RateService{repo: repo, now: time.Now}
}

// GetActiveRate возвращает активную котировку направления
func (s *RateService) GetActiveRate(ctx context.Context, source, target models.Currency) (*models.Rate, error) {
	rate, err := s.repo.GetActive(ctx, source, target)
	if errors.Is(err, repository.ErrRateNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrRateNotFound, source, target)
	}
	return rate, err
}

// UpsertRate проверяет вход, пересчитывает buy/sell и заменяет котировку пары
func (s *RateService) UpsertRate(ctx context.Context, in RateInput) (*models.Rate, error) {
	markup := models.DefaultMarkupPercentage
	if in.Markup != nil {
		markup = *in.Markup
	}
	if err := validateRateInput(in, markup); err != nil {
		return nil, err
	}

	provenance := in.Provenance
	if provenance == "" {
		provenance = models.RateSourceManual
	}

	rate := &models.Rate{
		SourceCurrency:   in.Source,
		TargetCurrency:   in.Target,
		BaseRate:         in.BaseRate,
		MarkupPercentage: markup,
		MinAmount:        in.MinAmount,
		MaxAmount:        in.MaxAmount,
		Source:           provenance,
		UpdatedAt:        s.now().UTC(),
	}
	rate.ApplyMarkup()

	if err := s.repo.Upsert(ctx, rate); err != nil {
		return nil, fmt.Errorf("upsert rate %s: %w", rate.Pair(), err)
	}
	return rate, nil
}

func validateRateInput(in RateInput, markup decimal.Decimal) error {
	if !in.Source.IsValid() || !in.Target.IsValid() {
		return fmt.Errorf("%w: %s/%s", ErrInvalidCurrency, in.Source, in.Target)
	}
	if in.Source == in.Target {
		return fmt.Errorf("%w: %s", ErrSameCurrency, in.Source)
	}
	if !in.BaseRate.IsPositive() {
		return fmt.Errorf("%w: base rate %s must be positive", ErrInvalidRate, in.BaseRate)
	}
	if markup.IsNegative() || markup.GreaterThanOrEqual(maxMarkup) {
		return fmt.Errorf("%w: markup %s must be in [0, 100)", ErrInvalidRate, markup)
	}
	if !in.MinAmount.IsPositive() || in.MinAmount.GreaterThan(in.MaxAmount) {
		return fmt.Errorf("%w: bounds %s..%s", ErrInvalidRate, in.MinAmount, in.MaxAmount)
	}
	return nil
}

// ListActive возвращает активные котировки
func (s *RateService) ListActive(ctx context.Context, filter repository.RateFilter) ([]*models.Rate, error) {
	return s.repo.ListActive(ctx, filter)
}

// SeedRates записывает административный набор котировок
func (s *RateService) SeedRates(ctx context.Context) ([]*models.Rate, error) {
	result := make([]*models.Rate, 0, len(rateSeed))
	for _, in := range rateSeed {
		rate, err := s.UpsertRate(ctx, in)
		if err != nil {
			return result, err
		}
		result = append(result, rate)
	}
	return result, nil
}
