package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"discount-system/internal/apperror"
	"discount-system/internal/config"
	"discount-system/internal/database"
	"discount-system/internal/logger"
	"discount-system/internal/models"
	"discount-system/internal/validation"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// RuleEventPublisher — часть продюсера событий, нужная сервису правил.
type RuleEventPublisher interface {
	PublishRuleCreated(rule *models.PromotionRule) error
	PublishRuleUpdated(rule *models.PromotionRule) error
	PublishRuleDeleted(ruleID, promotionID uuid.UUID) error
	PublishPriceRecalculation(productIDs []uuid.UUID) error
}

// PromotionRuleService управляет правилами промоакций: валидация,
// персистентность и публикация пост-сохраненческих событий.
type PromotionRuleService struct {
	db         *database.DB
	log        *logger.Logger
	channels   *ChannelDirectory
	matcher    *ProductMatcher
	producer   RuleEventPublisher
	rulesLimit int
}

// NewPromotionRuleService создаёт сервис правил промоакций.
func NewPromotionRuleService(
	db *database.DB,
	log *logger.Logger,
	channels *ChannelDirectory,
	matcher *ProductMatcher,
	producer RuleEventPublisher,
	cfg *config.PromotionConfig,
) *PromotionRuleService {
	return &PromotionRuleService{
		db:         db,
		log:        log,
		channels:   channels,
		matcher:    matcher,
		producer:   producer,
		rulesLimit: cfg.CheckoutAndOrderRulesLimit,
	}
}

// CreateRule валидирует ввод и создаёт правило промоакции. Бизнес-нарушения
// возвращаются картой ошибок по полям, инфраструктурные сбои — ошибкой.
func (s *PromotionRuleService) CreateRule(ctx context.Context, promotionID uuid.UUID, input *models.PromotionRuleInput) (*models.PromotionRule, validation.ErrorMap, error) {
	promotion, err := s.getPromotionWithRules(ctx, promotionID)
	if err != nil {
		return nil, nil, err
	}

	input.Channels, err = s.channels.ResolveChannels(ctx, input.ChannelIDs)
	if err != nil {
		return nil, nil, err
	}

	if errs := CleanPromotionRule(input, nil, promotion.PredicateType(), promotion, s.rulesLimit, nil); errs != nil {
		return nil, errs, nil
	}

	now := time.Now()
	rule := &models.PromotionRule{
		ID:          uuid.New(),
		PromotionID: promotionID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyRuleInput(rule, input)
	rule.Channels = input.Channels

	cataloguePredicate, checkoutPredicate, err := marshalPredicates(rule)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO promotion_rules (id, promotion_id, name, description, catalogue_predicate, checkout_and_order_predicate, reward_value, reward_value_type, reward_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.ExecContext(ctx, query,
		rule.ID, rule.PromotionID, rule.Name, rule.Description,
		cataloguePredicate, checkoutPredicate,
		nullDecimal(rule.RewardValue), nullString(rule.RewardValueType), nullRewardType(rule.RewardType),
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if ok := asPQError(err, &pqErr); ok && pqErr.Code == "23505" {
			return nil, nil, apperror.Conflict("promotion rule already exists", err)
		}
		return nil, nil, fmt.Errorf("failed to create promotion rule: %w", err)
	}

	if err := insertRuleChannels(ctx, tx, rule.ID, channelIDs(input.Channels)); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"rule_id":      rule.ID,
		"promotion_id": rule.PromotionID,
	}).Info("Promotion rule created")

	s.publishRuleChange(ctx, rule, nil, models.EventTypeRuleCreated)

	return rule, nil, nil
}

// UpdateRule валидирует и применяет частичное обновление правила. Дельта
// каналов применяется атомарно в одной транзакции: сперва удаления, затем
// добавления, чтобы правило не наблюдалось без каналов.
func (s *PromotionRuleService) UpdateRule(ctx context.Context, ruleID uuid.UUID, input *models.PromotionRuleInput) (*models.PromotionRule, validation.ErrorMap, error) {
	if errs := checkDuplicateChannels(input.AddChannelIDs, input.RemoveChannelIDs); errs != nil {
		return nil, errs, nil
	}

	instance, err := s.GetRule(ctx, ruleID)
	if err != nil {
		return nil, nil, err
	}

	input.AddChannels, err = s.channels.ResolveChannels(ctx, input.AddChannelIDs)
	if err != nil {
		return nil, nil, err
	}
	input.RemoveChannels, err = s.channels.ResolveChannels(ctx, input.RemoveChannelIDs)
	if err != nil {
		return nil, nil, err
	}

	// Вид предикатов промоакции определяется текущим предикатом правила.
	promotionType := models.PredicateTypeCheckoutAndOrder
	if !instance.CataloguePredicate.IsEmpty() {
		promotionType = models.PredicateTypeCatalogue
	}

	previousProducts, err := s.matcher.ProductIDsForRule(ctx, instance)
	if err != nil {
		return nil, nil, err
	}

	if errs := CleanPromotionRule(input, instance, promotionType, nil, s.rulesLimit, nil); errs != nil {
		return nil, errs, nil
	}

	applyRuleInput(instance, input)
	instance.UpdatedAt = time.Now()

	cataloguePredicate, checkoutPredicate, err := marshalPredicates(instance)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		UPDATE promotion_rules
		SET name = $1, description = $2, catalogue_predicate = $3, checkout_and_order_predicate = $4,
		    reward_value = $5, reward_value_type = $6, reward_type = $7, updated_at = $8
		WHERE id = $9
	`
	result, err := tx.ExecContext(ctx, query,
		instance.Name, instance.Description, cataloguePredicate, checkoutPredicate,
		nullDecimal(instance.RewardValue), nullString(instance.RewardValueType), nullRewardType(instance.RewardType),
		instance.UpdatedAt, instance.ID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update promotion rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, nil, apperror.NotFound("promotion rule not found", nil)
	}

	// Сначала удаления, затем добавления — в рамках одной транзакции.
	if ids := channelIDs(input.RemoveChannels); len(ids) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM promotion_rule_channels WHERE rule_id = $1 AND channel_id = ANY($2)`,
			instance.ID, pq.Array(ids),
		); err != nil {
			return nil, nil, fmt.Errorf("failed to remove rule channels: %w", err)
		}
	}
	if err := insertRuleChannels(ctx, tx, instance.ID, channelIDs(input.AddChannels)); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	instance.Channels = applyChannelDelta(instance.Channels, input.RemoveChannels, input.AddChannels)

	s.log.WithFields(map[string]interface{}{
		"rule_id":      instance.ID,
		"promotion_id": instance.PromotionID,
	}).Info("Promotion rule updated")

	s.publishRuleChange(ctx, instance, previousProducts, models.EventTypeRuleUpdated)

	return instance, nil, nil
}

// GetRule возвращает правило с его каналами.
func (s *PromotionRuleService) GetRule(ctx context.Context, ruleID uuid.UUID) (*models.PromotionRule, error) {
	query := `
		SELECT id, promotion_id, name, description, catalogue_predicate, checkout_and_order_predicate,
		       reward_value, reward_value_type, reward_type, created_at, updated_at
		FROM promotion_rules
		WHERE id = $1
	`
	rule, err := scanRule(s.db.QueryRowContext(ctx, query, ruleID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("promotion rule not found", err)
		}
		return nil, fmt.Errorf("failed to get promotion rule: %w", err)
	}

	channels, err := s.loadRuleChannels(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	rule.Channels = channels
	return rule, nil
}

// ListRules возвращает правила промоакции.
func (s *PromotionRuleService) ListRules(ctx context.Context, promotionID uuid.UUID) ([]*models.PromotionRule, error) {
	return s.loadPromotionRules(ctx, promotionID)
}

// DeleteRule удаляет правило и инициирует пересчёт затронутых товаров.
func (s *PromotionRuleService) DeleteRule(ctx context.Context, ruleID uuid.UUID) error {
	rule, err := s.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}

	previousProducts, err := s.matcher.ProductIDsForRule(ctx, rule)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM promotion_rules WHERE id = $1", ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete promotion rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("promotion rule not found", nil)
	}

	s.log.WithField("rule_id", ruleID).Info("Promotion rule deleted")

	if s.producer != nil {
		if err := s.producer.PublishRuleDeleted(rule.ID, rule.PromotionID); err != nil {
			s.log.WithError(err).Warn("Failed to publish rule deleted event")
		}
		if err := s.producer.PublishPriceRecalculation(previousProducts); err != nil {
			s.log.WithError(err).Warn("Failed to publish price recalculation request")
		}
	}
	return nil
}

// publishRuleChange публикует событие изменения правила и запрос на
// пересчёт скидочных цен товаров, подпадавших под правило до и после
// изменения. Сбои публикации не откатывают сохранение.
func (s *PromotionRuleService) publishRuleChange(ctx context.Context, rule *models.PromotionRule, previousProducts []uuid.UUID, eventType models.EventType) {
	if s.producer == nil {
		return
	}

	var err error
	if eventType == models.EventTypeRuleCreated {
		err = s.producer.PublishRuleCreated(rule)
	} else {
		err = s.producer.PublishRuleUpdated(rule)
	}
	if err != nil {
		s.log.WithError(err).WithField("rule_id", rule.ID).Warn("Failed to publish rule event")
	}

	currentProducts, err := s.matcher.ProductIDsForRule(ctx, rule)
	if err != nil {
		s.log.WithError(err).WithField("rule_id", rule.ID).Warn("Failed to resolve affected products")
		return
	}

	affected := unionProductIDs(previousProducts, currentProducts)
	if err := s.producer.PublishPriceRecalculation(affected); err != nil {
		s.log.WithError(err).WithField("rule_id", rule.ID).Warn("Failed to publish price recalculation request")
	}
}

// getPromotionWithRules загружает промоакцию вместе с её правилами.
func (s *PromotionRuleService) getPromotionWithRules(ctx context.Context, promotionID uuid.UUID) (*models.Promotion, error) {
	query := `
		SELECT id, name, start_date, end_date, created_at, updated_at
		FROM promotions
		WHERE id = $1
	`
	promotion := &models.Promotion{}
	err := s.db.QueryRowContext(ctx, query, promotionID).Scan(
		&promotion.ID, &promotion.Name, &promotion.StartDate, &promotion.EndDate,
		&promotion.CreatedAt, &promotion.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("promotion not found", err)
		}
		return nil, fmt.Errorf("failed to get promotion: %w", err)
	}

	rules, err := s.loadPromotionRules(ctx, promotionID)
	if err != nil {
		return nil, err
	}
	promotion.Rules = rules
	return promotion, nil
}

func (s *PromotionRuleService) loadPromotionRules(ctx context.Context, promotionID uuid.UUID) ([]*models.PromotionRule, error) {
	query := `
		SELECT id, promotion_id, name, description, catalogue_predicate, checkout_and_order_predicate,
		       reward_value, reward_value_type, reward_type, created_at, updated_at
		FROM promotion_rules
		WHERE promotion_id = $1
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, promotionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list promotion rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.PromotionRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promotion rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate promotion rules: %w", err)
	}
	return rules, nil
}

func (s *PromotionRuleService) loadRuleChannels(ctx context.Context, ruleID uuid.UUID) ([]models.Channel, error) {
	query := `
		SELECT c.id, c.slug, c.name, c.currency_code
		FROM promotion_rule_channels rc
		JOIN channels c ON c.id = rc.channel_id
		WHERE rc.rule_id = $1
		ORDER BY c.slug
	`
	rows, err := s.db.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule channels: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.Slug, &ch.Name, &ch.CurrencyCode); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channels: %w", err)
	}
	return channels, nil
}

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*models.PromotionRule, error) {
	var (
		rule               models.PromotionRule
		cataloguePredicate []byte
		checkoutPredicate  []byte
		rewardValue        decimal.NullDecimal
		rewardValueType    sql.NullString
		rewardType         sql.NullString
	)
	err := row.Scan(
		&rule.ID, &rule.PromotionID, &rule.Name, &rule.Description,
		&cataloguePredicate, &checkoutPredicate,
		&rewardValue, &rewardValueType, &rewardType,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(cataloguePredicate) > 0 {
		if err := json.Unmarshal(cataloguePredicate, &rule.CataloguePredicate); err != nil {
			return nil, fmt.Errorf("failed to unmarshal catalogue predicate: %w", err)
		}
	}
	if len(checkoutPredicate) > 0 {
		if err := json.Unmarshal(checkoutPredicate, &rule.CheckoutAndOrderPredicate); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkout predicate: %w", err)
		}
	}
	if rewardValue.Valid {
		rule.RewardValue = &rewardValue.Decimal
	}
	if rewardValueType.Valid {
		v := models.RewardValueType(rewardValueType.String)
		rule.RewardValueType = &v
	}
	if rewardType.Valid {
		v := models.RewardType(rewardType.String)
		rule.RewardType = &v
	}
	return &rule, nil
}

// applyRuleInput переносит присутствующие поля ввода на правило.
// Ключ со значением null очищает поле.
func applyRuleInput(rule *models.PromotionRule, input *models.PromotionRuleInput) {
	if input.Name.IsSet() {
		if name, ok := input.Name.Get(); ok {
			rule.Name = name
		} else {
			rule.Name = ""
		}
	}
	if input.Description.IsSet() {
		rule.Description = input.Description.Ptr()
	}
	if input.CataloguePredicate.IsSet() {
		rule.CataloguePredicate, _ = input.CataloguePredicate.Get()
	}
	if input.CheckoutAndOrderPredicate.IsSet() {
		rule.CheckoutAndOrderPredicate, _ = input.CheckoutAndOrderPredicate.Get()
	}
	if input.RewardValue.IsSet() {
		rule.RewardValue = input.RewardValue.Ptr()
	}
	if input.RewardValueType.IsSet() {
		rule.RewardValueType = input.RewardValueType.Ptr()
	}
	if input.RewardType.IsSet() {
		rule.RewardType = input.RewardType.Ptr()
	}
}

func marshalPredicates(rule *models.PromotionRule) ([]byte, []byte, error) {
	var (
		catalogue []byte
		checkout  []byte
		err       error
	)
	if !rule.CataloguePredicate.IsEmpty() {
		if catalogue, err = rule.CataloguePredicate.JSON(); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal catalogue predicate: %w", err)
		}
	}
	if !rule.CheckoutAndOrderPredicate.IsEmpty() {
		if checkout, err = rule.CheckoutAndOrderPredicate.JSON(); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal checkout predicate: %w", err)
		}
	}
	return catalogue, checkout, nil
}

// checkDuplicateChannels запрещает один и тот же канал в списках добавления
// и удаления одновременно.
func checkDuplicateChannels(addIDs, removeIDs []uuid.UUID) validation.ErrorMap {
	removeSet := make(map[uuid.UUID]struct{}, len(removeIDs))
	for _, id := range removeIDs {
		removeSet[id] = struct{}{}
	}
	for _, id := range addIDs {
		if _, ok := removeSet[id]; ok {
			b := validation.NewBuilder(nil)
			msg := "The same object cannot be in both lists for 'add_channels' and 'remove_channels'."
			b.Add(fieldAddChannels, msg, validation.CodeDuplicatedInputItem)
			b.Add(fieldRemoveChannels, msg, validation.CodeDuplicatedInputItem)
			return b.Build()
		}
	}
	return nil
}

func insertRuleChannels(ctx context.Context, tx *sql.Tx, ruleID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		INSERT INTO promotion_rule_channels (rule_id, channel_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, query, ruleID, id); err != nil {
			return fmt.Errorf("failed to add rule channel: %w", err)
		}
	}
	return nil
}

func channelIDs(channels []models.Channel) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.ID)
	}
	return ids
}

// applyChannelDelta применяет дельту каналов к срезу в памяти.
func applyChannelDelta(current, removed, added []models.Channel) []models.Channel {
	removedSet := make(map[uuid.UUID]struct{}, len(removed))
	for _, ch := range removed {
		removedSet[ch.ID] = struct{}{}
	}

	result := make([]models.Channel, 0, len(current)+len(added))
	seen := make(map[uuid.UUID]struct{})
	for _, ch := range current {
		if _, ok := removedSet[ch.ID]; ok {
			continue
		}
		result = append(result, ch)
		seen[ch.ID] = struct{}{}
	}
	for _, ch := range added {
		if _, ok := seen[ch.ID]; ok {
			continue
		}
		result = append(result, ch)
	}
	return result
}

func unionProductIDs(a, b []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(a)+len(b))
	var result []uuid.UUID
	for _, id := range a {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			result = append(result, id)
		}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			result = append(result, id)
		}
	}
	return result
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullString(v *models.RewardValueType) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

func nullRewardType(v *models.RewardType) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

func asPQError(err error, target **pq.Error) bool {
	e, ok := err.(*pq.Error)
	if ok {
		*target = e
	}
	return ok
}
