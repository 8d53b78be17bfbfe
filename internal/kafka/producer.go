package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"discount-system/internal/config"
	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Producer публикует доменные события в Kafka.
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создаёт синхронный продюсер.
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Info("Successfully connected to Kafka producer")

	return &Producer{
		producer: producer,
		log:      log,
		topics:   &cfg.Topics,
	}, nil
}

// Close закрывает продюсер.
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// publishEvent сериализует событие и отправляет его в топик.
func (p *Producer) publishEvent(topic string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.ID.String()),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}

	p.log.WithFields(map[string]interface{}{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
		"type":      event.Type,
	}).Debug("Event published")

	return nil
}

func newEvent(eventType models.EventType, data map[string]interface{}) models.Event {
	return models.Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// PublishRuleCreated публикует событие создания правила промоакции.
func (p *Producer) PublishRuleCreated(rule *models.PromotionRule) error {
	return p.publishEvent(p.topics.Rules, newEvent(models.EventTypeRuleCreated, map[string]interface{}{
		"rule_id":      rule.ID,
		"promotion_id": rule.PromotionID,
	}))
}

// PublishRuleUpdated публикует событие обновления правила промоакции.
func (p *Producer) PublishRuleUpdated(rule *models.PromotionRule) error {
	return p.publishEvent(p.topics.Rules, newEvent(models.EventTypeRuleUpdated, map[string]interface{}{
		"rule_id":      rule.ID,
		"promotion_id": rule.PromotionID,
	}))
}

// PublishRuleDeleted публикует событие удаления правила промоакции.
func (p *Producer) PublishRuleDeleted(ruleID, promotionID uuid.UUID) error {
	return p.publishEvent(p.topics.Rules, newEvent(models.EventTypeRuleDeleted, map[string]interface{}{
		"rule_id":      ruleID,
		"promotion_id": promotionID,
	}))
}

// PublishPriceRecalculation запрашивает фоновый пересчёт скидочных цен
// затронутых товаров.
func (p *Producer) PublishPriceRecalculation(productIDs []uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	return p.publishEvent(p.topics.Recalculations, newEvent(models.EventTypePriceRecalculationRequested, map[string]interface{}{
		"product_ids": productIDs,
	}))
}

// PublishOrderPricesUpdated публикует событие завершённого пересчёта заказа.
func (p *Producer) PublishOrderPricesUpdated(order *models.Order) error {
	return p.publishEvent(p.topics.Orders, newEvent(models.EventTypeOrderPricesUpdated, map[string]interface{}{
		"order_id":    order.ID,
		"total_net":   order.Total.Net.Amount,
		"total_gross": order.Total.Gross.Amount,
		"currency":    order.Currency,
	}))
}
