package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus представляет статус заказа
type OrderStatus string

const (
	OrderStatusDraft       OrderStatus = "draft"
	OrderStatusUnfulfilled OrderStatus = "unfulfilled"
	OrderStatusFulfilled   OrderStatus = "fulfilled"
	OrderStatusCancelled   OrderStatus = "cancelled"
)

// OrderDiscountType описывает происхождение скидки уровня заказа.
type OrderDiscountType string

const (
	OrderDiscountTypeManual          OrderDiscountType = "manual"
	OrderDiscountTypeVoucher         OrderDiscountType = "voucher"
	OrderDiscountTypeShippingVoucher OrderDiscountType = "shipping_voucher"
)

// OrderDiscount представляет скидку, применённую к заказу целиком.
type OrderDiscount struct {
	ID      uuid.UUID         `json:"id" db:"id"`
	OrderID uuid.UUID         `json:"order_id" db:"order_id"`
	Type    OrderDiscountType `json:"type" db:"type"`
	Amount  Money             `json:"amount"`
}

// ShippingMethod описывает способ доставки заказа.
type ShippingMethod struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	TaxClassID *uuid.UUID `json:"tax_class_id,omitempty" db:"tax_class_id"`
}

// Order представляет заказ. Поля ShippingPrice, ShippingTaxRate и Total
// являются производными и перезаписываются при каждом пересчёте.
type Order struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	Currency          string          `json:"currency" db:"currency"`
	Country           string          `json:"country" db:"country"`
	Status            OrderStatus     `json:"status" db:"status"`
	ShippingMethod    *ShippingMethod `json:"shipping_method,omitempty"`
	BaseShippingPrice Money           `json:"base_shipping_price"`
	ShippingPrice     TaxedMoney      `json:"shipping_price"`
	ShippingTaxRate   decimal.Decimal `json:"shipping_tax_rate"`
	Total             TaxedMoney      `json:"total"`
	Discounts         []OrderDiscount `json:"discounts,omitempty"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// ManualDiscount возвращает первую ручную скидку заказа, если она есть.
func (o *Order) ManualDiscount() *OrderDiscount {
	for i := range o.Discounts {
		if o.Discounts[i].Type == OrderDiscountTypeManual {
			return &o.Discounts[i]
		}
	}
	return nil
}

// TotalDiscountExcludingShipping суммирует скидки заказа без доставочной
// части. Именно эта величина распределяется по строкам при пересчёте.
func (o *Order) TotalDiscountExcludingShipping() decimal.Decimal {
	total := decimal.Zero
	for _, d := range o.Discounts {
		if d.Type == OrderDiscountTypeShippingVoucher {
			continue
		}
		total = total.Add(d.Amount.Amount)
	}
	return total
}

// TotalDiscount суммирует все скидки заказа.
func (o *Order) TotalDiscount() decimal.Decimal {
	total := decimal.Zero
	for _, d := range o.Discounts {
		total = total.Add(d.Amount.Amount)
	}
	return total
}

// Product хранит ссылки на налоговые классы товара: собственный и
// унаследованный от типа товара.
type Product struct {
	ID                    uuid.UUID  `json:"id" db:"id"`
	TaxClassID            *uuid.UUID `json:"tax_class_id,omitempty" db:"tax_class_id"`
	ProductTypeTaxClassID *uuid.UUID `json:"product_type_tax_class_id,omitempty" db:"product_type_tax_class_id"`
}

// ProductVariant представляет вариант товара в строке заказа.
type ProductVariant struct {
	ID      uuid.UUID `json:"id" db:"id"`
	Product *Product  `json:"product,omitempty"`
}

// TaxClassID возвращает применимый налоговый класс варианта: собственный
// класс товара, иначе класс типа товара, иначе nil.
func (v *ProductVariant) TaxClassID() *uuid.UUID {
	if v == nil || v.Product == nil {
		return nil
	}
	if v.Product.TaxClassID != nil {
		return v.Product.TaxClassID
	}
	return v.Product.ProductTypeTaxClassID
}

// OrderLine представляет строку заказа. UnitPrice, UndiscountedUnitPrice,
// TotalPrice, UndiscountedTotalPrice и TaxRate — производные поля,
// перезаписываемые при каждом пересчёте.
type OrderLine struct {
	ID                        uuid.UUID       `json:"id" db:"id"`
	OrderID                   uuid.UUID       `json:"order_id" db:"order_id"`
	Quantity                  int             `json:"quantity" db:"quantity"`
	Variant                   *ProductVariant `json:"variant,omitempty"`
	BaseUnitPrice             Money           `json:"base_unit_price"`
	UndiscountedBaseUnitPrice Money           `json:"undiscounted_base_unit_price"`
	UnitPrice                 TaxedMoney      `json:"unit_price"`
	UndiscountedUnitPrice     TaxedMoney      `json:"undiscounted_unit_price"`
	TotalPrice                TaxedMoney      `json:"total_price"`
	UndiscountedTotalPrice    TaxedMoney      `json:"undiscounted_total_price"`
	TaxRate                   decimal.Decimal `json:"tax_rate" db:"tax_rate"`
}
