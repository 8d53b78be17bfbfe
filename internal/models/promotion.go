package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PredicateType определяет вид предикатов, используемых правилами промоакции.
type PredicateType string

const (
	PredicateTypeCatalogue        PredicateType = "CATALOGUE"
	PredicateTypeCheckoutAndOrder PredicateType = "CHECKOUT_AND_ORDER"
)

// RewardValueType описывает тип значения вознаграждения.
type RewardValueType string

const (
	RewardValueTypeFixed      RewardValueType = "FIXED"
	RewardValueTypePercentage RewardValueType = "PERCENTAGE"
)

// RewardType описывает эффект вознаграждения для checkout/order правил.
type RewardType string

const (
	RewardTypeSubtotalDiscount RewardType = "SUBTOTAL_DISCOUNT"
)

// Predicate — рекурсивное дерево фильтров. Ключи AND/OR являются операторами
// и не могут соседствовать с обычными полями фильтра на одном уровне.
type Predicate map[string]interface{}

// IsEmpty сообщает, задан ли предикат.
func (p Predicate) IsEmpty() bool {
	return len(p) == 0
}

// JSON сериализует предикат (для хранения в колонке jsonb и текстового поиска).
func (p Predicate) JSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(p))
}

// Channel представляет канал продаж с валютой.
type Channel struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Slug         string    `json:"slug" db:"slug"`
	Name         string    `json:"name" db:"name"`
	CurrencyCode string    `json:"currency_code" db:"currency_code"`
}

// Promotion владеет набором правил; все правила одной промоакции
// используют один вид предикатов.
type Promotion struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	StartDate time.Time  `json:"start_date" db:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty" db:"end_date"`
	Rules     []*PromotionRule `json:"rules,omitempty"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// PredicateType возвращает вид предикатов, уже закреплённый за промоакцией
// её правилами, либо пустую строку, если правил ещё нет.
func (p *Promotion) PredicateType() PredicateType {
	for _, rule := range p.Rules {
		if !rule.CataloguePredicate.IsEmpty() {
			return PredicateTypeCatalogue
		}
		if !rule.CheckoutAndOrderPredicate.IsEmpty() {
			return PredicateTypeCheckoutAndOrder
		}
	}
	return ""
}

// CheckoutAndOrderRulesCount возвращает число правил с checkout/order предикатом.
func (p *Promotion) CheckoutAndOrderRulesCount() int {
	count := 0
	for _, rule := range p.Rules {
		if !rule.CheckoutAndOrderPredicate.IsEmpty() {
			count++
		}
	}
	return count
}

// PromotionRule представляет правило промоакции. Финализированное правило
// содержит ровно один из двух предикатов.
type PromotionRule struct {
	ID                        uuid.UUID        `json:"id" db:"id"`
	PromotionID               uuid.UUID        `json:"promotion_id" db:"promotion_id"`
	Name                      string           `json:"name" db:"name"`
	Description               *string          `json:"description,omitempty" db:"description"`
	CataloguePredicate        Predicate        `json:"catalogue_predicate,omitempty" db:"catalogue_predicate"`
	CheckoutAndOrderPredicate Predicate        `json:"checkout_and_order_predicate,omitempty" db:"checkout_and_order_predicate"`
	RewardValue               *decimal.Decimal `json:"reward_value,omitempty" db:"reward_value"`
	RewardValueType           *RewardValueType `json:"reward_value_type,omitempty" db:"reward_value_type"`
	RewardType                *RewardType      `json:"reward_type,omitempty" db:"reward_type"`
	Channels                  []Channel        `json:"channels,omitempty"`
	CreatedAt                 time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt                 time.Time        `json:"updated_at" db:"updated_at"`
}

// PredicateType возвращает вид предиката правила.
func (r *PromotionRule) PredicateType() PredicateType {
	if !r.CataloguePredicate.IsEmpty() {
		return PredicateTypeCatalogue
	}
	if !r.CheckoutAndOrderPredicate.IsEmpty() {
		return PredicateTypeCheckoutAndOrder
	}
	return ""
}

// PromotionRuleInput — входные данные создания или обновления правила.
// Поля Field сохраняют различие "ключ отсутствует" / "null" / "значение".
// Channels используется при создании, AddChannels/RemoveChannels — при
// обновлении; слайсы каналов заполняются сервисом по спискам идентификаторов.
type PromotionRuleInput struct {
	Name                      Field[string]          `json:"name"`
	Description               Field[string]          `json:"description"`
	CataloguePredicate        Field[Predicate]       `json:"cataloguePredicate"`
	CheckoutAndOrderPredicate Field[Predicate]       `json:"checkoutAndOrderPredicate"`
	RewardValue               Field[decimal.Decimal] `json:"rewardValue"`
	RewardValueType           Field[RewardValueType] `json:"rewardValueType"`
	RewardType                Field[RewardType]      `json:"rewardType"`
	ChannelIDs                []uuid.UUID            `json:"channels,omitempty"`
	AddChannelIDs             []uuid.UUID            `json:"addChannels,omitempty"`
	RemoveChannelIDs          []uuid.UUID            `json:"removeChannels,omitempty"`

	// Разрешённые сервисом каналы (id -> справочник каналов).
	Channels       []Channel `json:"-"`
	AddChannels    []Channel `json:"-"`
	RemoveChannels []Channel `json:"-"`
}

// IsUpdate сообщает, выражает ли ввод дельту членства каналов.
func (in *PromotionRuleInput) IsUpdate() bool {
	return in.AddChannelIDs != nil || in.RemoveChannelIDs != nil
}
