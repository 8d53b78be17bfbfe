package services

import (
	"discount-system/internal/models"

	"github.com/shopspring/decimal"
)

var (
	decimalOne     = decimal.NewFromInt(1)
	decimalHundred = decimal.NewFromInt(100)
)

// CalculateFlatRateTax применяет плоскую налоговую ставку (в процентах)
// к сумме. Если цены заведены с налогом, сумма считается gross и net
// вычисляется делением; иначе наоборот.
func CalculateFlatRateTax(base models.Money, rate decimal.Decimal, pricesEnteredWithTax bool) models.TaxedMoney {
	multiplier := decimalOne.Add(rate.Div(decimalHundred))
	if pricesEnteredWithTax {
		net := models.Money{Amount: base.Amount.Div(multiplier), Currency: base.Currency}
		return models.TaxedMoney{Net: net, Gross: base}
	}
	gross := models.Money{Amount: base.Amount.Mul(multiplier), Currency: base.Currency}
	return models.TaxedMoney{Net: base, Gross: gross}
}

// NormalizeTaxRate переводит процентную ставку в долю для хранения
// (23 -> 0.2300).
func NormalizeTaxRate(rate decimal.Decimal) decimal.Decimal {
	return rate.Div(decimalHundred).Round(4)
}

// UpdateOrderPricesWithFlatRates пересчитывает производные цены заказа и его
// строк по таблице плоских ставок: налоги строк с распределением скидки
// заказа, налог доставки и итог заказа. Заказ и строки мутируются на месте.
func UpdateOrderPricesWithFlatRates(
	order *models.Order,
	lines []*models.OrderLine,
	rates *models.TaxRateTable,
	pricesEnteredWithTax bool,
) {
	country := order.Country
	defaultTaxRate := rates.DefaultRate(country)

	// Строки заказа.
	updateTaxesForOrderLines(order, lines, rates, country, defaultTaxRate, pricesEnteredWithTax)

	// Доставка.
	shippingRate := defaultTaxRate
	if order.ShippingMethod != nil {
		shippingRate = rates.RateForClassOrDefault(order.ShippingMethod.TaxClassID, defaultTaxRate, country)
	}
	order.ShippingPrice = CalculateFlatRateTax(order.BaseShippingPrice, shippingRate, pricesEnteredWithTax).Quantize()
	order.ShippingTaxRate = NormalizeTaxRate(shippingRate)

	// Итог заказа.
	order.Total = calculateOrderTotal(order, lines)
}

// calculateOrderTotal считает итог заказа. Если базовый итог (строки плюс
// доставка за вычетом скидок, без налогов) неположителен, итог принудительно
// нулевой и дальнейшая логика не выполняется.
func calculateOrderTotal(order *models.Order, lines []*models.OrderLine) models.TaxedMoney {
	currency := order.Currency
	zero := models.ZeroTaxedMoney(currency)

	if baseOrderTotal(order, lines).Amount.Sign() <= 0 {
		return zero.Quantize()
	}

	total := zero
	undiscountedSubtotal := zero
	for _, line := range lines {
		total = total.Add(line.TotalPrice)
		undiscountedSubtotal = undiscountedSubtotal.Add(line.UndiscountedTotalPrice)
	}
	total = total.Add(order.ShippingPrice)

	// Скидка уровня заказа не распространяется на доставку при построчном
	// распределении: неучтённый остаток вычитается из итога здесь.
	if manual := order.ManualDiscount(); manual != nil {
		if manual.Amount.Amount.GreaterThan(undiscountedSubtotal.Gross.Amount) {
			remaining := manual.Amount.Amount.Sub(undiscountedSubtotal.Gross.Amount)
			total = total.SubAmount(remaining)
		}
	}

	if total.LessOrEqual(zero) {
		total = zero
	}
	return total.Quantize()
}

// baseOrderTotal возвращает базовый итог заказа: строки плюс доставка
// за вычетом всех скидок заказа, без налогов.
func baseOrderTotal(order *models.Order, lines []*models.OrderLine) models.Money {
	subtotal := models.ZeroMoney(order.Currency)
	for _, line := range lines {
		subtotal = subtotal.Add(line.BaseUnitPrice.MulInt(line.Quantity))
	}
	subtotal = subtotal.Add(order.BaseShippingPrice)
	return models.Money{
		Amount:   subtotal.Amount.Sub(order.TotalDiscount()),
		Currency: order.Currency,
	}
}

// updateTaxesForOrderLines пересчитывает налоговые цены строк заказа,
// распределяя скидку заказа пропорционально доле строки в базовом итоге.
// Остаток от округления достаётся последней строке, поэтому порядок строк
// должен быть стабилен между вызовами.
func updateTaxesForOrderLines(
	order *models.Order,
	lines []*models.OrderLine,
	rates *models.TaxRateTable,
	country string,
	defaultTaxRate decimal.Decimal,
	pricesEnteredWithTax bool,
) {
	currency := order.Currency
	precision := models.CurrencyPrecision(currency)

	totalDiscount := order.TotalDiscountExcludingShipping()
	orderTotalPrice := decimal.Zero
	for _, line := range lines {
		orderTotalPrice = orderTotalPrice.Add(line.BaseUnitPrice.Amount.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	totalLineDiscounts := decimal.Zero

	for i, line := range lines {
		if line.Variant == nil {
			continue
		}

		taxRate := rates.RateForClassOrDefault(line.Variant.TaxClassID(), defaultTaxRate, country)

		lineTotalPrice := line.BaseUnitPrice.MulInt(line.Quantity)
		priceWithDiscounts := line.BaseUnitPrice
		if !totalDiscount.IsZero() {
			var discountAmount decimal.Decimal
			switch {
			case i == len(lines)-1:
				// Последняя строка получает остаток, чтобы сумма долей
				// в точности равнялась скидке.
				discountAmount = totalDiscount.Sub(totalLineDiscounts)
			case orderTotalPrice.IsZero():
				discountAmount = decimal.Zero
			default:
				discountAmount = lineTotalPrice.Amount.
					Div(orderTotalPrice).
					Mul(totalDiscount).
					RoundBank(precision)
			}
			discounted := models.Money{
				Amount:   lineTotalPrice.Amount.Sub(discountAmount),
				Currency: currency,
			}.DivInt(line.Quantity).Quantize()
			priceWithDiscounts = models.MaxMoney(discounted, models.ZeroMoney(currency))
			totalLineDiscounts = totalLineDiscounts.Add(discountAmount)
		}

		unitPrice := CalculateFlatRateTax(priceWithDiscounts, taxRate, pricesEnteredWithTax)
		undiscountedUnitPrice := CalculateFlatRateTax(line.UndiscountedBaseUnitPrice, taxRate, pricesEnteredWithTax)

		line.UnitPrice = unitPrice.Quantize()
		line.UndiscountedUnitPrice = undiscountedUnitPrice.Quantize()
		line.TotalPrice = unitPrice.MulInt(line.Quantity).Quantize()
		line.UndiscountedTotalPrice = undiscountedUnitPrice.MulInt(line.Quantity).Quantize()
		line.TaxRate = NormalizeTaxRate(taxRate)
	}
}
