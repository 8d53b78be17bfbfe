package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaxClass группирует товары с одинаковым налогообложением.
type TaxClass struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
}

// TaxClassCountryRate — плоская налоговая ставка (в процентах) для пары
// страна/налоговый класс. Запись без класса задаёт ставку страны по умолчанию.
type TaxClassCountryRate struct {
	TaxClassID *uuid.UUID      `json:"tax_class_id,omitempty" db:"tax_class_id"`
	Country    string          `json:"country" db:"country"`
	Rate       decimal.Decimal `json:"rate" db:"rate"`
}

// TaxRateTable — таблица ставок, по которой выполняется пересчёт заказа.
type TaxRateTable struct {
	Rates []TaxClassCountryRate `json:"rates"`
}

// DefaultRate возвращает ставку страны без привязки к налоговому классу,
// ноль — если ставка не настроена.
func (t *TaxRateTable) DefaultRate(country string) decimal.Decimal {
	for _, r := range t.Rates {
		if r.TaxClassID == nil && r.Country == country {
			return r.Rate
		}
	}
	return decimal.Zero
}

// RateForClass возвращает ставку налогового класса в стране либо nil.
func (t *TaxRateTable) RateForClass(taxClassID *uuid.UUID, country string) *decimal.Decimal {
	if taxClassID == nil {
		return nil
	}
	for _, r := range t.Rates {
		if r.TaxClassID != nil && *r.TaxClassID == *taxClassID && r.Country == country {
			rate := r.Rate
			return &rate
		}
	}
	return nil
}

// RateForClassOrDefault разрешает ставку по классу с откатом к переданной
// ставке по умолчанию.
func (t *TaxRateTable) RateForClassOrDefault(taxClassID *uuid.UUID, defaultRate decimal.Decimal, country string) decimal.Decimal {
	if rate := t.RateForClass(taxClassID, country); rate != nil {
		return *rate
	}
	return defaultRate
}
