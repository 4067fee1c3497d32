package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rate - направленная котировка валютной пары
type Rate struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	SourceCurrency   Currency        `json:"source_currency" db:"source_currency"`
	TargetCurrency   Currency        `json:"target_currency" db:"target_currency"`
	BaseRate         decimal.Decimal `json:"base_rate" db:"base_rate"`
	BuyRate          decimal.Decimal `json:"buy_rate" db:"buy_rate"`
	SellRate         decimal.Decimal `json:"sell_rate" db:"sell_rate"`
	MarkupPercentage decimal.Decimal `json:"markup_percentage" db:"markup_percentage"`
	MinAmount        decimal.Decimal `json:"min_amount" db:"min_amount"`
	MaxAmount        decimal.Decimal `json:"max_amount" db:"max_amount"`
	Source           string          `json:"source" db:"source"` // провенанс
	IsActive         bool            `json:"is_active" db:"is_active"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Источники котировок
const (
	RateSourceBybit         = "bybit"
	RateSourceBybitDefault  = "bybit-default" // запасная котировка, рынок недоступен
	RateSourceManual        = "manual"
	RateSourceCentralBank   = "central_bank"
	RateSourceCoinMarketCap = "coinmarketcap"
	RateSourceCustomAPI     = "custom_api"
)

// DefaultMarkupPercentage - наценка по умолчанию, %
var DefaultMarkupPercentage = decimal.NewFromInt(2)

var hundred = decimal.NewFromInt(100)

// ApplyMarkup пересчитывает buy/sell из base и наценки
func (r *Rate) ApplyMarkup() {
	m := r.MarkupPercentage.Div(hundred)
	r.SellRate = r.BaseRate.Mul(decimal.NewFromInt(1).Sub(m))
	r.BuyRate = r.BaseRate.Mul(decimal.NewFromInt(1).Add(m))
}

// InBounds проверяет сумму по [MinAmount, MaxAmount]
func (r *Rate) InBounds(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(r.MinAmount) && amount.LessThanOrEqual(r.MaxAmount)
}

// RateFor выбирает поле котировки для направления обмена.
// Фиатный источник идёт по sellRate, остальные по buyRate.
func (r *Rate) RateFor(from Currency) decimal.Decimal {
	if from.IsFiat() {
		return r.SellRate
	}
	return r.BuyRate
}

// Pair возвращает символ направления, например TRY/RUB
func (r *Rate) Pair() string {
	return string(r.SourceCurrency) + "/" + string(r.TargetCurrency)
}
