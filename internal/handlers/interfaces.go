package handlers

import (
	"context"

	"discount-system/internal/models"
	"discount-system/internal/validation"

	"github.com/google/uuid"
)

// ----- Promotion rules -----

type PromotionRuleService interface {
	CreateRule(ctx context.Context, promotionID uuid.UUID, input *models.PromotionRuleInput) (*models.PromotionRule, validation.ErrorMap, error)
	UpdateRule(ctx context.Context, ruleID uuid.UUID, input *models.PromotionRuleInput) (*models.PromotionRule, validation.ErrorMap, error)
	GetRule(ctx context.Context, ruleID uuid.UUID) (*models.PromotionRule, error)
	DeleteRule(ctx context.Context, ruleID uuid.UUID) error
	ListRules(ctx context.Context, promotionID uuid.UUID) ([]*models.PromotionRule, error)
}

// ----- Orders -----

type OrderService interface {
	RecalculateOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, []*models.OrderLine, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}
