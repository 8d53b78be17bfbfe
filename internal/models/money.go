package models

import (
	"github.com/shopspring/decimal"
)

// currencyPrecisions хранит количество знаков после запятой для валют,
// отличающихся от стандартных двух (минорные единицы ISO 4217).
var currencyPrecisions = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0,
	"KMF": 0, "KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "UYI": 0,
	"VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// CurrencyPrecision возвращает число знаков после запятой для валюты.
func CurrencyPrecision(currency string) int32 {
	if p, ok := currencyPrecisions[currency]; ok {
		return p
	}
	return 2
}

// Money представляет денежную сумму в конкретной валюте.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney создаёт сумму из decimal.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// ZeroMoney возвращает нулевую сумму в валюте.
func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// Add складывает две суммы. Валюты должны совпадать, контроль на вызывающем.
func (m Money) Add(other Money) Money {
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

// Sub вычитает сумму.
func (m Money) Sub(other Money) Money {
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

// MulInt умножает сумму на целое (например, количество в строке заказа).
func (m Money) MulInt(n int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(n))), Currency: m.Currency}
}

// DivInt делит сумму на целое.
func (m Money) DivInt(n int) Money {
	return Money{Amount: m.Amount.Div(decimal.NewFromInt(int64(n))), Currency: m.Currency}
}

// IsNegative сообщает, отрицательна ли сумма.
func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// Quantize округляет сумму до точности валюты (банковское округление,
// как в исходных расчётах налогов).
func (m Money) Quantize() Money {
	return Money{Amount: m.Amount.RoundBank(CurrencyPrecision(m.Currency)), Currency: m.Currency}
}

// Max возвращает большую из двух сумм.
func MaxMoney(a, b Money) Money {
	if a.Amount.Cmp(b.Amount) >= 0 {
		return a
	}
	return b
}

// TaxedMoney хранит сумму без налога и с налогом.
type TaxedMoney struct {
	Net   Money `json:"net"`
	Gross Money `json:"gross"`
}

// NewTaxedMoney создаёт TaxedMoney из net/gross.
func NewTaxedMoney(net, gross Money) TaxedMoney {
	return TaxedMoney{Net: net, Gross: gross}
}

// ZeroTaxedMoney возвращает нулевую пару net/gross.
func ZeroTaxedMoney(currency string) TaxedMoney {
	return TaxedMoney{Net: ZeroMoney(currency), Gross: ZeroMoney(currency)}
}

// Add складывает обе составляющие.
func (t TaxedMoney) Add(other TaxedMoney) TaxedMoney {
	return TaxedMoney{Net: t.Net.Add(other.Net), Gross: t.Gross.Add(other.Gross)}
}

// SubAmount уменьшает обе составляющие на одну и ту же величину.
func (t TaxedMoney) SubAmount(amount decimal.Decimal) TaxedMoney {
	m := Money{Amount: amount, Currency: t.Net.Currency}
	return TaxedMoney{Net: t.Net.Sub(m), Gross: t.Gross.Sub(m)}
}

// MulInt умножает обе составляющие на целое.
func (t TaxedMoney) MulInt(n int) TaxedMoney {
	return TaxedMoney{Net: t.Net.MulInt(n), Gross: t.Gross.MulInt(n)}
}

// Quantize округляет обе составляющие до точности валюты.
func (t TaxedMoney) Quantize() TaxedMoney {
	return TaxedMoney{Net: t.Net.Quantize(), Gross: t.Gross.Quantize()}
}

// LessOrEqual сравнивает по gross, затем по net.
func (t TaxedMoney) LessOrEqual(other TaxedMoney) bool {
	if c := t.Gross.Amount.Cmp(other.Gross.Amount); c != 0 {
		return c < 0
	}
	return t.Net.Amount.Cmp(other.Net.Amount) <= 0
}
