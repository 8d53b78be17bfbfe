package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"discount-system/internal/models"
)

// predicateOperators — логические комбинаторы дерева предикатов.
var predicateOperators = []string{"AND", "OR"}

// ErrMixedOperators возвращается при смешении оператора с обычными полями
// фильтра на одном уровне дерева.
var ErrMixedOperators = fmt.Errorf("cannot mix operators with other filter inputs")

// CleanPredicate валидирует операторы и переводит snake_case ключи в
// camelCase. На каждом уровне оператор не может соседствовать с другими
// полями. Преобразование идемпотентно.
func CleanPredicate(predicate models.Predicate) (models.Predicate, error) {
	cleaned, err := cleanPredicateMap(map[string]interface{}(predicate))
	if err != nil {
		return nil, err
	}
	return models.Predicate(cleaned), nil
}

func cleanPredicateMap(node map[string]interface{}) (map[string]interface{}, error) {
	if containsOperator(node) && len(node) > 1 {
		return nil, ErrMixedOperators
	}

	result := make(map[string]interface{}, len(node))
	for key, value := range node {
		cleaned, err := cleanPredicateValue(value)
		if err != nil {
			return nil, err
		}
		result[toCamelCase(key)] = cleaned
	}
	return result, nil
}

func cleanPredicateValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		return cleanPredicateMap(v)
	case models.Predicate:
		return cleanPredicateMap(map[string]interface{}(v))
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			cleaned, err := cleanPredicateValue(item)
			if err != nil {
				return nil, err
			}
			result[i] = cleaned
		}
		return result, nil
	default:
		return value, nil
	}
}

func containsOperator(node map[string]interface{}) bool {
	for _, op := range predicateOperators {
		if _, ok := node[op]; ok {
			return true
		}
	}
	return false
}

// toCamelCase переводит snake_case в camelCase; ключи без подчёркиваний
// (включая операторы AND/OR) остаются без изменений.
func toCamelCase(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	first := true
	for _, part := range parts {
		if part == "" {
			continue
		}
		if first {
			b.WriteString(part)
			first = false
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// priceBasedPredicateFields — поля, завязанные на денежные суммы заказа.
// Правила с такими предикатами требуют единой валюты каналов.
var priceBasedPredicateFields = []string{
	"subtotal_price", "subtotalPrice", "total_price", "totalPrice",
}

// isPriceBasedPredicate сообщает, ссылается ли предикат на ценовые поля
// заказа (текстовый поиск по сериализованному дереву).
func isPriceBasedPredicate(predicate models.Predicate) bool {
	data, err := json.Marshal(predicate)
	if err != nil {
		return false
	}
	text := string(data)
	for _, field := range priceBasedPredicateFields {
		if strings.Contains(text, field) {
			return true
		}
	}
	return false
}
