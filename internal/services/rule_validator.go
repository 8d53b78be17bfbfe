package services

import (
	"fmt"

	"discount-system/internal/models"
	"discount-system/internal/validation"

	"github.com/shopspring/decimal"
)

// Логические поля ввода, к которым привязываются ошибки валидации.
const (
	fieldCataloguePredicate        = "catalogue_predicate"
	fieldCheckoutAndOrderPredicate = "checkout_and_order_predicate"
	fieldRewardType                = "reward_type"
	fieldRewardValue               = "reward_value"
	fieldRewardValueType           = "reward_value_type"
	fieldChannels                  = "channels"
	fieldAddChannels               = "add_channels"
	fieldRemoveChannels            = "remove_channels"
)

var percentageLimit = decimal.NewFromInt(100)

// CleanPromotionRule валидирует и нормализует ввод правила промоакции.
//
// Бизнес-нарушения не приводят к ошибкам исполнения: результат — карта
// ошибок по полям (пустая при успехе). Предикаты во входных данных
// заменяются нормализованными деревьями. instance передаётся при
// обновлении, promotion — при создании (для проверки лимита правил),
// promotionType — вид предикатов, уже закреплённый за промоакцией.
// index заполняется в батчевых контекстах.
func CleanPromotionRule(
	input *models.PromotionRuleInput,
	instance *models.PromotionRule,
	promotionType models.PredicateType,
	promotion *models.Promotion,
	rulesLimit int,
	index *int,
) validation.ErrorMap {
	b := validation.NewBuilder(index)

	catalogue := effectivePredicate(input.CataloguePredicate, instance, func(r *models.PromotionRule) models.Predicate {
		return r.CataloguePredicate
	})
	checkout := effectivePredicate(input.CheckoutAndOrderPredicate, instance, func(r *models.PromotionRule) models.Predicate {
		return r.CheckoutAndOrderPredicate
	})

	if invalid := cleanPredicates(input, catalogue, checkout, promotionType, instance, b); !invalid {
		currencies := channelCurrencies(input, instance)
		cleanCataloguePredicate(input, catalogue, instance, b)
		cleanCheckoutAndOrderPredicate(input, checkout, currencies, instance, promotion, rulesLimit, b)
		cleanReward(input, catalogue, checkout, currencies, instance, b)
	}

	return b.Build()
}

// effectivePredicate возвращает предикат из ввода, при его отсутствии —
// предикат существующего правила.
func effectivePredicate(field models.Field[models.Predicate], instance *models.PromotionRule, fromInstance func(*models.PromotionRule) models.Predicate) models.Predicate {
	predicate, _ := field.Get()
	if instance != nil && predicate.IsEmpty() {
		return fromInstance(instance)
	}
	return predicate
}

// cleanPredicates проверяет наличие и взаимную исключительность предикатов.
// Возвращает true, если дальнейшая валидация не имеет смысла.
//
//   - Требуется хотя бы один предикат: catalogue или checkoutAndOrder.
//   - На одном правиле может быть задан только один из них.
//   - Вид предиката правила не может конфликтовать с видом,
//     уже закреплённым за промоакцией.
func cleanPredicates(
	input *models.PromotionRuleInput,
	catalogue, checkout models.Predicate,
	promotionType models.PredicateType,
	instance *models.PromotionRule,
	b *validation.Builder,
) bool {
	if catalogue.IsEmpty() && checkout.IsEmpty() {
		msg := "At least one of predicates is required: 'cataloguePredicate' or 'checkoutAndOrderPredicate'."
		b.Add(fieldCataloguePredicate, msg, validation.CodeRequired)
		b.Add(fieldCheckoutAndOrderPredicate, msg, validation.CodeRequired)
		return true
	}

	if !catalogue.IsEmpty() && !checkout.IsEmpty() {
		msg := "Only one of predicates can be provided: 'cataloguePredicate' or 'checkoutAndOrderPredicate'."
		// При обновлении ошибка вешается только на поля, затронутые вводом.
		if instance == nil || input.CataloguePredicate.IsSet() {
			b.Add(fieldCataloguePredicate, msg, validation.CodeMixedPredicates)
		}
		if instance == nil || input.CheckoutAndOrderPredicate.IsSet() {
			b.Add(fieldCheckoutAndOrderPredicate, msg, validation.CodeMixedPredicates)
		}
		return true
	}

	if !catalogue.IsEmpty() && promotionType == models.PredicateTypeCheckoutAndOrder {
		b.Add(
			fieldCataloguePredicate,
			"Predicate types can't be mixed. Given promotion already have a rule with 'checkoutAndOrderPredicate' defined.",
			validation.CodeMixedPromotionPredicates,
		)
		return true
	}

	if !checkout.IsEmpty() && promotionType == models.PredicateTypeCatalogue {
		b.Add(
			fieldCheckoutAndOrderPredicate,
			"Predicate types can't be mixed. Given promotion already have a rule with 'cataloguePredicate' defined.",
			validation.CodeMixedPromotionPredicates,
		)
		return true
	}

	return false
}

// effectiveRewardType повторяет семантику частичного обновления: значение
// из ввода, при отсутствии ключа — значение существующего правила.
func effectiveRewardType(input *models.PromotionRuleInput, instance *models.PromotionRule) *models.RewardType {
	rewardType := input.RewardType.Ptr()
	if instance != nil && !input.RewardType.IsSet() && rewardType == nil {
		rewardType = instance.RewardType
	}
	return rewardType
}

// cleanCataloguePredicate валидирует и нормализует catalogue предикат.
//
//   - Для правила с cataloguePredicate нельзя указывать rewardType.
func cleanCataloguePredicate(
	input *models.PromotionRuleInput,
	catalogue models.Predicate,
	instance *models.PromotionRule,
	b *validation.Builder,
) {
	if catalogue.IsEmpty() {
		return
	}

	if rewardType := effectiveRewardType(input, instance); rewardType != nil {
		b.Add(
			fieldRewardType,
			"The rewardType can't be specified for rule with cataloguePredicate.",
			validation.CodeInvalid,
		)
		return
	}

	if !input.CataloguePredicate.IsSet() {
		return
	}

	cleaned, err := CleanPredicate(catalogue)
	if err != nil {
		b.Add(fieldCataloguePredicate, err.Error(), validation.CodeInvalid)
		return
	}
	input.CataloguePredicate = models.FieldValue(cleaned)
}

// cleanCheckoutAndOrderPredicate валидирует и нормализует checkout/order
// предикат.
//
//   - rewardType обязателен для правила с checkoutAndOrderPredicate.
//   - Ценовые предикаты допустимы только при единой валюте каналов.
//   - Число checkout/order правил промоакции ограничено лимитом.
func cleanCheckoutAndOrderPredicate(
	input *models.PromotionRuleInput,
	checkout models.Predicate,
	currencies map[string]struct{},
	instance *models.PromotionRule,
	promotion *models.Promotion,
	rulesLimit int,
	b *validation.Builder,
) {
	if checkout.IsEmpty() {
		return
	}

	if rewardType := effectiveRewardType(input, instance); rewardType == nil {
		b.Add(
			fieldRewardType,
			"The rewardType is required when checkoutAndOrderPredicate is provided.",
			validation.CodeRequired,
		)
		return
	}

	if len(currencies) > 1 && isPriceBasedPredicate(checkout) {
		// Ошибка адресуется полю, которое реально было частью запроса:
		// при создании это channels, при обновлении — add_channels, если
		// каналы добавлялись, иначе сам предикат.
		errorField := fieldChannels
		if instance != nil {
			if input.AddChannelIDs != nil {
				errorField = fieldAddChannels
			} else {
				errorField = fieldCheckoutAndOrderPredicate
			}
		}
		b.Add(
			errorField,
			"For price based predicates, all channels must have the same currency.",
			validation.CodeMultipleCurrenciesNotAllowed,
		)
		return
	}

	if !input.CheckoutAndOrderPredicate.IsSet() {
		return
	}

	cleaned, err := CleanPredicate(checkout)
	if err != nil {
		b.Add(fieldCheckoutAndOrderPredicate, err.Error(), validation.CodeInvalid)
		return
	}
	input.CheckoutAndOrderPredicate = models.FieldValue(cleaned)

	if promotion != nil && len(promotion.Rules) >= rulesLimit {
		b.Add(
			fieldCheckoutAndOrderPredicate,
			fmt.Sprintf("Number of rules has reached the limit of %d rules per single promotion.", rulesLimit),
			validation.CodeRulesNumberLimit,
		)
	}
}

// cleanReward валидирует значение и тип вознаграждения.
//
//   - FIXED требует каналы с единой валютой и точность суммы по валюте.
//   - PERCENTAGE не может превышать 100.
func cleanReward(
	input *models.PromotionRuleInput,
	catalogue, checkout models.Predicate,
	currencies map[string]struct{},
	instance *models.PromotionRule,
	b *validation.Builder,
) {
	// При обновлении без reward-полей во вводе проверять нечего.
	if instance != nil && !input.RewardValue.IsSet() && !input.RewardValueType.IsSet() {
		return
	}

	rewardValue := input.RewardValue.Ptr()
	rewardValueType := input.RewardValueType.Ptr()
	if instance != nil {
		if !input.RewardValue.IsSet() {
			rewardValue = instance.RewardValue
		}
		if !input.RewardValueType.IsSet() {
			rewardValueType = instance.RewardValueType
		}
	}

	hasPredicate := !catalogue.IsEmpty() || !checkout.IsEmpty()

	if rewardValueType == nil && hasPredicate {
		b.Add(
			fieldRewardValueType,
			"The rewardValueType is required when cataloguePredicate or checkoutAndOrderPredicate is provided.",
			validation.CodeRequired,
		)
	}
	if rewardValue == nil && hasPredicate {
		b.Add(
			fieldRewardValue,
			"The rewardValue is required when cataloguePredicate or checkoutAndOrderPredicate is provided.",
			validation.CodeRequired,
		)
	}

	if rewardValue != nil && rewardValueType != nil {
		cleanRewardValue(input, *rewardValue, *rewardValueType, currencies, instance, b)
	}
}

func cleanRewardValue(
	input *models.PromotionRuleInput,
	rewardValue decimal.Decimal,
	rewardValueType models.RewardValueType,
	currencies map[string]struct{},
	instance *models.PromotionRule,
	b *validation.Builder,
) {
	switch rewardValueType {
	case models.RewardValueTypeFixed:
		if b.Has(fieldChannels) {
			return
		}
		if len(currencies) == 0 {
			errorField := fieldChannels
			if instance != nil {
				if input.RewardValueType.IsSet() {
					errorField = fieldRewardValueType
				} else {
					errorField = fieldRemoveChannels
				}
			}
			b.Add(errorField, "Channels must be specified for FIXED rewardValueType.", validation.CodeMissingChannels)
			return
		}
		if len(currencies) > 1 {
			errorField := fieldRewardValueType
			if instance != nil && !input.RewardValueType.IsSet() {
				errorField = fieldAddChannels
			}
			b.Add(
				errorField,
				"For FIXED rewardValueType, all channels must have the same currency.",
				validation.CodeMultipleCurrenciesNotAllowed,
			)
			return
		}

		var currency string
		for c := range currencies {
			currency = c
		}
		if !validPricePrecision(rewardValue, currency) {
			b.Add(fieldRewardValue, "Invalid amount precision.", validation.CodeInvalidPrecision)
		}

	case models.RewardValueTypePercentage:
		if rewardValue.GreaterThan(percentageLimit) {
			b.Add(fieldRewardValue, "Invalid percentage value.", validation.CodeInvalid)
		}
	}
}

// validPricePrecision проверяет, что число знаков после запятой не превышает
// точность минорных единиц валюты. Хвостовые нули не считаются.
func validPricePrecision(value decimal.Decimal, currency string) bool {
	precision := models.CurrencyPrecision(currency)
	return value.Equal(value.RoundBank(precision))
}

// channelCurrencies возвращает множество валют, в которых будет действовать
// правило: при создании — валюты переданных каналов, при обновлении —
// валюты текущих каналов за вычетом удаляемых и с учётом добавляемых.
func channelCurrencies(input *models.PromotionRuleInput, instance *models.PromotionRule) map[string]struct{} {
	currencies := make(map[string]struct{})

	if instance == nil {
		for _, ch := range input.Channels {
			currencies[ch.CurrencyCode] = struct{}{}
		}
		return currencies
	}

	for _, ch := range instance.Channels {
		currencies[ch.CurrencyCode] = struct{}{}
	}
	for _, ch := range input.RemoveChannels {
		delete(currencies, ch.CurrencyCode)
	}
	for _, ch := range input.AddChannels {
		currencies[ch.CurrencyCode] = struct{}{}
	}
	return currencies
}
