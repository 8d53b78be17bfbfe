package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"discount-system/internal/apperror"
	"discount-system/internal/config"
	"discount-system/internal/database"
	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/google/uuid"
)

// OrderEventPublisher — часть продюсера событий, нужная сервису заказов.
type OrderEventPublisher interface {
	PublishOrderPricesUpdated(order *models.Order) error
}

// OrderService пересчитывает налоги и скидки заказов по таблице плоских
// ставок и сохраняет производные цены.
type OrderService struct {
	db                   *database.DB
	log                  *logger.Logger
	taxRates             *TaxRateService
	producer             OrderEventPublisher
	pricesEnteredWithTax bool
}

// NewOrderService создаёт сервис заказов.
func NewOrderService(db *database.DB, log *logger.Logger, taxRates *TaxRateService, producer OrderEventPublisher, cfg *config.TaxConfig) *OrderService {
	return &OrderService{
		db:                   db,
		log:                  log,
		taxRates:             taxRates,
		producer:             producer,
		pricesEnteredWithTax: cfg.PricesEnteredWithTax,
	}
}

// RecalculateOrder загружает заказ со строками и скидками, пересчитывает
// производные цены и сохраняет их. Возвращает пересчитанный заказ.
func (s *OrderService) RecalculateOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, []*models.OrderLine, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	lines, err := s.loadOrderLines(ctx, orderID, order.Currency)
	if err != nil {
		return nil, nil, err
	}

	rates, err := s.taxRates.LoadTable(ctx)
	if err != nil {
		return nil, nil, err
	}

	UpdateOrderPricesWithFlatRates(order, lines, rates, s.pricesEnteredWithTax)

	if err := s.persistPrices(ctx, order, lines); err != nil {
		return nil, nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"order_id":    order.ID,
		"total_gross": order.Total.Gross.Amount,
		"currency":    order.Currency,
	}).Info("Order prices recalculated")

	if s.producer != nil {
		if err := s.producer.PublishOrderPricesUpdated(order); err != nil {
			s.log.WithError(err).WithField("order_id", order.ID).Warn("Failed to publish order prices updated event")
		}
	}

	return order, lines, nil
}

// GetOrder возвращает заказ со способом доставки и скидками.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	query := `
		SELECT o.id, o.currency, o.country, o.status, o.base_shipping_price,
		       o.shipping_price_net, o.shipping_price_gross, o.shipping_tax_rate,
		       o.total_net, o.total_gross, o.created_at, o.updated_at,
		       sm.id, sm.name, sm.tax_class_id
		FROM orders o
		LEFT JOIN shipping_methods sm ON sm.id = o.shipping_method_id
		WHERE o.id = $1
	`
	order := &models.Order{}
	var (
		shippingMethodID   sql.NullString
		shippingMethodName sql.NullString
		shippingTaxClassID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID, &order.Currency, &order.Country, &order.Status,
		&order.BaseShippingPrice.Amount,
		&order.ShippingPrice.Net.Amount, &order.ShippingPrice.Gross.Amount, &order.ShippingTaxRate,
		&order.Total.Net.Amount, &order.Total.Gross.Amount,
		&order.CreatedAt, &order.UpdatedAt,
		&shippingMethodID, &shippingMethodName, &shippingTaxClassID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("order not found", err)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	setOrderCurrencies(order)

	if shippingMethodID.Valid {
		method := &models.ShippingMethod{Name: shippingMethodName.String}
		if method.ID, err = uuid.Parse(shippingMethodID.String); err != nil {
			return nil, fmt.Errorf("failed to parse shipping method id: %w", err)
		}
		if shippingTaxClassID.Valid {
			taxClassID, err := uuid.Parse(shippingTaxClassID.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse shipping tax class id: %w", err)
			}
			method.TaxClassID = &taxClassID
		}
		order.ShippingMethod = method
	}

	discounts, err := s.loadOrderDiscounts(ctx, orderID, order.Currency)
	if err != nil {
		return nil, err
	}
	order.Discounts = discounts

	return order, nil
}

func (s *OrderService) loadOrderDiscounts(ctx context.Context, orderID uuid.UUID, currency string) ([]models.OrderDiscount, error) {
	query := `
		SELECT id, order_id, type, amount
		FROM order_discounts
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order discounts: %w", err)
	}
	defer rows.Close()

	var discounts []models.OrderDiscount
	for rows.Next() {
		var d models.OrderDiscount
		if err := rows.Scan(&d.ID, &d.OrderID, &d.Type, &d.Amount.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan order discount: %w", err)
		}
		d.Amount.Currency = currency
		discounts = append(discounts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order discounts: %w", err)
	}
	return discounts, nil
}

// loadOrderLines возвращает строки заказа с налоговыми классами вариантов.
// Порядок строк фиксирован (id), от него зависит распределение остатка
// скидки при пересчёте.
func (s *OrderService) loadOrderLines(ctx context.Context, orderID uuid.UUID, currency string) ([]*models.OrderLine, error) {
	query := `
		SELECT l.id, l.order_id, l.quantity, l.base_unit_price, l.undiscounted_base_unit_price,
		       v.id, p.id, p.tax_class_id, p.product_type_tax_class_id
		FROM order_lines l
		LEFT JOIN product_variants v ON v.id = l.variant_id
		LEFT JOIN products p ON p.id = v.product_id
		WHERE l.order_id = $1
		ORDER BY l.id
	`
	rows, err := s.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	defer rows.Close()

	var lines []*models.OrderLine
	for rows.Next() {
		line := &models.OrderLine{}
		var (
			variantID             sql.NullString
			productID             sql.NullString
			taxClassID            sql.NullString
			productTypeTaxClassID sql.NullString
		)
		err := rows.Scan(
			&line.ID, &line.OrderID, &line.Quantity,
			&line.BaseUnitPrice.Amount, &line.UndiscountedBaseUnitPrice.Amount,
			&variantID, &productID, &taxClassID, &productTypeTaxClassID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		line.BaseUnitPrice.Currency = currency
		line.UndiscountedBaseUnitPrice.Currency = currency

		if variantID.Valid {
			variant := &models.ProductVariant{}
			if variant.ID, err = uuid.Parse(variantID.String); err != nil {
				return nil, fmt.Errorf("failed to parse variant id: %w", err)
			}
			if productID.Valid {
				product := &models.Product{}
				if product.ID, err = uuid.Parse(productID.String); err != nil {
					return nil, fmt.Errorf("failed to parse product id: %w", err)
				}
				if product.TaxClassID, err = parseNullUUID(taxClassID); err != nil {
					return nil, fmt.Errorf("failed to parse product tax class id: %w", err)
				}
				if product.ProductTypeTaxClassID, err = parseNullUUID(productTypeTaxClassID); err != nil {
					return nil, fmt.Errorf("failed to parse product type tax class id: %w", err)
				}
				variant.Product = product
			}
			line.Variant = variant
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order lines: %w", err)
	}
	return lines, nil
}

// persistPrices сохраняет производные цены заказа и строк в одной транзакции.
func (s *OrderService) persistPrices(ctx context.Context, order *models.Order, lines []*models.OrderLine) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order.UpdatedAt = time.Now()
	orderQuery := `
		UPDATE orders
		SET shipping_price_net = $1, shipping_price_gross = $2, shipping_tax_rate = $3,
		    total_net = $4, total_gross = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := tx.ExecContext(ctx, orderQuery,
		order.ShippingPrice.Net.Amount, order.ShippingPrice.Gross.Amount, order.ShippingTaxRate,
		order.Total.Net.Amount, order.Total.Gross.Amount, order.UpdatedAt, order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order prices: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("order not found", nil)
	}

	lineQuery := `
		UPDATE order_lines
		SET unit_price_net = $1, unit_price_gross = $2,
		    undiscounted_unit_price_net = $3, undiscounted_unit_price_gross = $4,
		    total_price_net = $5, total_price_gross = $6,
		    undiscounted_total_price_net = $7, undiscounted_total_price_gross = $8,
		    tax_rate = $9
		WHERE id = $10
	`
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, lineQuery,
			line.UnitPrice.Net.Amount, line.UnitPrice.Gross.Amount,
			line.UndiscountedUnitPrice.Net.Amount, line.UndiscountedUnitPrice.Gross.Amount,
			line.TotalPrice.Net.Amount, line.TotalPrice.Gross.Amount,
			line.UndiscountedTotalPrice.Net.Amount, line.UndiscountedTotalPrice.Gross.Amount,
			line.TaxRate, line.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update order line prices: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func setOrderCurrencies(order *models.Order) {
	order.BaseShippingPrice.Currency = order.Currency
	order.ShippingPrice.Net.Currency = order.Currency
	order.ShippingPrice.Gross.Currency = order.Currency
	order.Total.Net.Currency = order.Currency
	order.Total.Gross.Currency = order.Currency
}

func parseNullUUID(v sql.NullString) (*uuid.UUID, error) {
	if !v.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(v.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
