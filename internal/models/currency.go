package models

import "strings"

// Currency - код валюты из фиксированного набора
type Currency string

// Поддерживаемые валюты
const (
	CurrencyTRY  Currency = "TRY"
	CurrencyRUB  Currency = "RUB"
	CurrencyUSDT Currency = "USDT"
	CurrencyTON  Currency = "TON"
)

// CurrencyKind определяет, где живут средства в данной валюте
type CurrencyKind string

const (
	KindFiat  CurrencyKind = "fiat"  // банковский перевод, подтверждается вручную
	KindToken CurrencyKind = "token" // вне цепочки, выплата на внешний адрес
	KindChain CurrencyKind = "chain" // блокчейн-актив, кастодиальные кошельки
)

// CurrencyInfo описывает валюту
type CurrencyInfo struct {
	Code       Currency
	Kind       CurrencyKind
	WalletType WalletType // только для KindChain
	Country    string     // только для KindFiat: страна банковского счёта
}

var currencies = map[Currency]CurrencyInfo{
	CurrencyTRY:  {Code: CurrencyTRY, Kind: KindFiat, Country: CountryTR},
	CurrencyRUB:  {Code: CurrencyRUB, Kind: KindFiat, Country: CountryRU},
	CurrencyUSDT: {Code: CurrencyUSDT, Kind: KindToken},
	CurrencyTON:  {Code: CurrencyTON, Kind: KindChain, WalletType: WalletTypeTON},
}

// SupportedCurrencies - список в порядке отображения
var SupportedCurrencies = []Currency{CurrencyTRY, CurrencyRUB, CurrencyUSDT, CurrencyTON}

// ParseCurrency нормализует код и проверяет его по набору
func ParseCurrency(s string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := currencies[c]
	return c, ok
}

// Info возвращает описание валюты
func (c Currency) Info() (CurrencyInfo, bool) {
	info, ok := currencies[c]
	return info, ok
}

// IsValid проверяет принадлежность к набору
func (c Currency) IsValid() bool {
	_, ok := currencies[c]
	return ok
}

// IsFiat - фиатная валюта
func (c Currency) IsFiat() bool {
	return currencies[c].Kind == KindFiat
}

// IsChainAsset - блокчейн-актив с кастодиальными кошельками
func (c Currency) IsChainAsset() bool {
	return currencies[c].Kind == KindChain
}

func (c Currency) String() string {
	return string(c)
}
