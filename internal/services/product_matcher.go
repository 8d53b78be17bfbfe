package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"discount-system/internal/database"
	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/diegoholiveira/jsonlogic/v3"
	"github.com/google/uuid"
)

// ProductMatcher вычисляет множество товаров, подпадающих под catalogue
// предикат правила. Нормализованное дерево предикатов транслируется в
// jsonlogic и применяется к документам товаров.
type ProductMatcher struct {
	db  *database.DB
	log *logger.Logger
}

// NewProductMatcher создаёт матчер товаров.
func NewProductMatcher(db *database.DB, log *logger.Logger) *ProductMatcher {
	return &ProductMatcher{db: db, log: log}
}

// ProductIDsForRule возвращает идентификаторы товаров, подпадающих под
// предикат правила. Для правил без catalogue предиката возвращается nil.
func (m *ProductMatcher) ProductIDsForRule(ctx context.Context, rule *models.PromotionRule) ([]uuid.UUID, error) {
	if rule == nil || rule.CataloguePredicate.IsEmpty() {
		return nil, nil
	}

	logic, err := PredicateToJSONLogic(rule.CataloguePredicate)
	if err != nil {
		return nil, fmt.Errorf("failed to convert predicate: %w", err)
	}
	ruleJSON, err := json.Marshal(logic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonlogic rule: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `SELECT id, document FROM products`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var matched []uuid.UUID
	for rows.Next() {
		var (
			id  uuid.UUID
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}

		ok, err := applyJSONLogic(ruleJSON, doc)
		if err != nil {
			m.log.WithError(err).WithField("product_id", id).Warn("Failed to match product against rule")
			continue
		}
		if ok {
			matched = append(matched, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	return matched, nil
}

// applyJSONLogic применяет правило к документу и трактует результат как bool.
func applyJSONLogic(ruleJSON, dataJSON []byte) (bool, error) {
	var result bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(ruleJSON), bytes.NewReader(dataJSON), &result); err != nil {
		return false, fmt.Errorf("jsonlogic apply failed: %w", err)
	}

	var value interface{}
	if err := json.Unmarshal(result.Bytes(), &value); err != nil {
		return false, fmt.Errorf("failed to decode jsonlogic result: %w", err)
	}
	ok, _ := value.(bool)
	return ok, nil
}

// PredicateToJSONLogic транслирует нормализованное дерево предикатов в
// jsonlogic-правило. Операторы AND/OR переходят в and/or; фильтр поля
// поддерживает формы {"eq": v}, {"oneOf": [...]}, {"range": {gte, lte}},
// скаляр (равенство) и список (вхождение).
func PredicateToJSONLogic(predicate models.Predicate) (map[string]interface{}, error) {
	return predicateNodeToLogic(map[string]interface{}(predicate))
}

func predicateNodeToLogic(node map[string]interface{}) (map[string]interface{}, error) {
	if children, ok := node["AND"]; ok {
		return operatorToLogic("and", children)
	}
	if children, ok := node["OR"]; ok {
		return operatorToLogic("or", children)
	}

	conditions := make([]interface{}, 0, len(node))
	for field, value := range node {
		cond, err := fieldFilterToLogic(field, value)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	if len(conditions) == 1 {
		return conditions[0].(map[string]interface{}), nil
	}
	return map[string]interface{}{"and": conditions}, nil
}

func operatorToLogic(op string, children interface{}) (map[string]interface{}, error) {
	items, ok := children.([]interface{})
	if !ok {
		return nil, fmt.Errorf("operator %s requires a list of predicates", op)
	}
	converted := make([]interface{}, 0, len(items))
	for _, item := range items {
		child, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("operator %s contains a non-predicate item", op)
		}
		logic, err := predicateNodeToLogic(child)
		if err != nil {
			return nil, err
		}
		converted = append(converted, logic)
	}
	return map[string]interface{}{op: converted}, nil
}

func fieldFilterToLogic(field string, value interface{}) (map[string]interface{}, error) {
	variable := map[string]interface{}{"var": field}

	switch v := value.(type) {
	case map[string]interface{}:
		if eq, ok := v["eq"]; ok {
			return map[string]interface{}{"==": []interface{}{variable, eq}}, nil
		}
		if oneOf, ok := v["oneOf"]; ok {
			return map[string]interface{}{"in": []interface{}{variable, oneOf}}, nil
		}
		if rng, ok := v["range"]; ok {
			bounds, ok := rng.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("range filter for %s must be an object", field)
			}
			var conditions []interface{}
			if gte, ok := bounds["gte"]; ok {
				conditions = append(conditions, map[string]interface{}{">=": []interface{}{variable, gte}})
			}
			if lte, ok := bounds["lte"]; ok {
				conditions = append(conditions, map[string]interface{}{"<=": []interface{}{variable, lte}})
			}
			if len(conditions) == 0 {
				return nil, fmt.Errorf("range filter for %s has no bounds", field)
			}
			if len(conditions) == 1 {
				return conditions[0].(map[string]interface{}), nil
			}
			return map[string]interface{}{"and": conditions}, nil
		}
		return nil, fmt.Errorf("unsupported filter form for field %s", field)
	case []interface{}:
		return map[string]interface{}{"in": []interface{}{variable, v}}, nil
	default:
		return map[string]interface{}{"==": []interface{}{variable, v}}, nil
	}
}
