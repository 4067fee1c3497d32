package ledger

import (
	"github.com/shopspring/decimal"
)

// AmountPlaces - точность всех денежных сумм
const AmountPlaces = 8

// Breakdown - расчёт суммы к выплате
type Breakdown struct {
	Rate     decimal.Decimal
	Gross    decimal.Decimal
	Fee      decimal.Decimal
	ToAmount decimal.Decimal
}

// Compute считает комиссию и сумму к выплате:
//
//	fee = amount * rate * feePct / 100
//	toAmount = amount * rate - fee
//
// Округление до 8 знаков, половина от нуля.
func Compute(amount, rate, feePct decimal.Decimal) Breakdown {
	gross := amount.Mul(rate)
	fee := gross.Mul(feePct).Shift(-2).Round(AmountPlaces)
	return Breakdown{
		Rate:     rate,
		Gross:    gross.Round(AmountPlaces),
		Fee:      fee,
		ToAmount: gross.Sub(fee).Round(AmountPlaces),
	}
}
