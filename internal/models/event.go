package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType представляет тип доменного события
type EventType string

const (
	EventTypeRuleCreated EventType = "promotion.rule.created"
	EventTypeRuleUpdated EventType = "promotion.rule.updated"
	EventTypeRuleDeleted EventType = "promotion.rule.deleted"

	// Запрос на фоновый пересчёт скидочных цен затронутых товаров.
	EventTypePriceRecalculationRequested EventType = "pricing.recalculation.requested"

	// Запрос на пересчёт налогов и скидок конкретного заказа.
	EventTypeOrderRecalculationRequested EventType = "order.recalculation.requested"

	// Заказ пересчитан, производные цены сохранены.
	EventTypeOrderPricesUpdated EventType = "order.prices.updated"
)

// Event представляет доменное событие, публикуемое в Kafka.
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
