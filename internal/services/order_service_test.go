package services

import (
	"context"
	"testing"
	"time"

	"discount-system/internal/apperror"
	"discount-system/internal/config"
	"discount-system/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type mockOrderPublisher struct {
	published []*models.Order
}

func (m *mockOrderPublisher) PublishOrderPricesUpdated(order *models.Order) error {
	m.published = append(m.published, order)
	return nil
}

func newOrderService(t *testing.T) (*OrderService, sqlmock.Sqlmock, *mockOrderPublisher) {
	t.Helper()
	db, mock := newMockDB(t)
	log := testLogger()
	producer := &mockOrderPublisher{}
	taxRates := NewTaxRateService(db, nil, log, &config.TaxConfig{CacheTTLMinutes: 15})
	svc := NewOrderService(db, log, taxRates, producer, &config.TaxConfig{PricesEnteredWithTax: true})
	return svc, mock, producer
}

func orderRow(orderID uuid.UUID, baseShipping string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "currency", "country", "status", "base_shipping_price",
		"shipping_price_net", "shipping_price_gross", "shipping_tax_rate",
		"total_net", "total_gross", "created_at", "updated_at",
		"sm_id", "sm_name", "sm_tax_class_id",
	}).AddRow(
		orderID.String(), "USD", "US", "unfulfilled", baseShipping,
		"0", "0", "0",
		"0", "0", time.Now(), time.Now(),
		nil, nil, nil,
	)
}

func TestOrderService_RecalculateOrder(t *testing.T) {
	svc, mock, producer := newOrderService(t)
	orderID := uuid.New()
	lineID := uuid.New()
	variantID := uuid.New()
	productID := uuid.New()

	mock.ExpectQuery("SELECT o.id, o.currency, o.country").
		WithArgs(orderID).
		WillReturnRows(orderRow(orderID, "10"))

	mock.ExpectQuery("SELECT id, order_id, type, amount").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "type", "amount"}).
			AddRow(uuid.New().String(), orderID.String(), "manual", "10"))

	mock.ExpectQuery("SELECT l.id, l.order_id, l.quantity").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "order_id", "quantity", "base_unit_price", "undiscounted_base_unit_price",
			"variant_id", "product_id", "tax_class_id", "product_type_tax_class_id",
		}).AddRow(
			lineID.String(), orderID.String(), 2, "30", "30",
			variantID.String(), productID.String(), nil, nil,
		))

	mock.ExpectQuery("SELECT tax_class_id, country, rate").
		WillReturnRows(sqlmock.NewRows([]string{"tax_class_id", "country", "rate"}).
			AddRow(nil, "US", "25"))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE order_lines").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, lines, err := svc.RecalculateOrder(context.Background(), orderID)
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}

	// Строка: 2 x 30 со скидкой заказа 10 -> 50 gross, net по ставке 25%.
	if !lines[0].TotalPrice.Gross.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected line gross 50, got %s", lines[0].TotalPrice.Gross.Amount)
	}
	if !lines[0].TotalPrice.Net.Amount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected line net 40, got %s", lines[0].TotalPrice.Net.Amount)
	}
	if !lines[0].TaxRate.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("expected tax rate 0.25, got %s", lines[0].TaxRate)
	}

	// Итог: строка 50 + доставка 10.
	if !order.Total.Gross.Amount.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected total gross 60, got %s", order.Total.Gross.Amount)
	}
	if !order.ShippingPrice.Gross.Amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected shipping gross 10, got %s", order.ShippingPrice.Gross.Amount)
	}

	if len(producer.published) != 1 {
		t.Fatalf("expected order prices updated event")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_GetOrder_NotFound(t *testing.T) {
	svc, mock, _ := newOrderService(t)
	orderID := uuid.New()

	mock.ExpectQuery("SELECT o.id, o.currency, o.country").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.GetOrder(context.Background(), orderID)
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestOrderService_GetOrder_WithShippingMethod(t *testing.T) {
	svc, mock, _ := newOrderService(t)
	orderID := uuid.New()
	methodID := uuid.New()
	taxClassID := uuid.New()

	rows := sqlmock.NewRows([]string{
		"id", "currency", "country", "status", "base_shipping_price",
		"shipping_price_net", "shipping_price_gross", "shipping_tax_rate",
		"total_net", "total_gross", "created_at", "updated_at",
		"sm_id", "sm_name", "sm_tax_class_id",
	}).AddRow(
		orderID.String(), "USD", "US", "draft", "5",
		"0", "0", "0",
		"0", "0", time.Now(), time.Now(),
		methodID.String(), "standard", taxClassID.String(),
	)

	mock.ExpectQuery("SELECT o.id, o.currency, o.country").
		WithArgs(orderID).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT id, order_id, type, amount").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "type", "amount"}))

	order, err := svc.GetOrder(context.Background(), orderID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if order.ShippingMethod == nil || order.ShippingMethod.ID != methodID {
		t.Fatalf("expected shipping method resolved, got %+v", order.ShippingMethod)
	}
	if order.ShippingMethod.TaxClassID == nil || *order.ShippingMethod.TaxClassID != taxClassID {
		t.Fatalf("expected shipping tax class, got %+v", order.ShippingMethod.TaxClassID)
	}
	if order.BaseShippingPrice.Currency != "USD" {
		t.Fatalf("expected currency propagated, got %q", order.BaseShippingPrice.Currency)
	}
}
