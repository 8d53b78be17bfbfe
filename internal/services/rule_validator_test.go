package services

import (
	"testing"

	"discount-system/internal/models"
	"discount-system/internal/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func channelWithCurrency(currency string) models.Channel {
	return models.Channel{ID: uuid.New(), Slug: "ch-" + currency, Name: "Channel " + currency, CurrencyCode: currency}
}

func cataloguePredicate() models.Predicate {
	return models.Predicate{"category_id": map[string]interface{}{"eq": "c1"}}
}

func checkoutPredicate() models.Predicate {
	return models.Predicate{"discounted_object_predicate": map[string]interface{}{
		"subtotal_price": map[string]interface{}{"range": map[string]interface{}{"gte": 100}},
	}}
}

func fixedReward(value string) (models.Field[decimal.Decimal], models.Field[models.RewardValueType]) {
	v, _ := decimal.NewFromString(value)
	return models.FieldValue(v), models.FieldValue(models.RewardValueTypeFixed)
}

func expectSingleError(t *testing.T, errs validation.ErrorMap, field string, code validation.Code) {
	t.Helper()
	if errs == nil {
		t.Fatalf("expected errors on %s, got none", field)
	}
	fieldErrs, ok := errs[field]
	if !ok || len(fieldErrs) == 0 {
		t.Fatalf("expected error on %s, got %v", field, errs)
	}
	if fieldErrs[0].Code != code {
		t.Fatalf("expected code %s on %s, got %s", code, field, fieldErrs[0].Code)
	}
}

func TestCleanPromotionRule_NoPredicates(t *testing.T) {
	value, valueType := fixedReward("5")
	input := &models.PromotionRuleInput{
		RewardValue:     value,
		RewardValueType: valueType,
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	expectSingleError(t, errs, "catalogue_predicate", validation.CodeRequired)
	expectSingleError(t, errs, "checkout_and_order_predicate", validation.CodeRequired)
	if len(errs) != 2 {
		t.Fatalf("presence failure must short-circuit later stages, got %v", errs)
	}
}

func TestCleanPromotionRule_BothPredicatesOnCreate(t *testing.T) {
	input := &models.PromotionRuleInput{
		CataloguePredicate:        models.FieldValue(cataloguePredicate()),
		CheckoutAndOrderPredicate: models.FieldValue(checkoutPredicate()),
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	expectSingleError(t, errs, "catalogue_predicate", validation.CodeMixedPredicates)
	expectSingleError(t, errs, "checkout_and_order_predicate", validation.CodeMixedPredicates)
}

func TestCleanPromotionRule_BothPredicatesOnUpdate_ErrorOnTouchedFieldOnly(t *testing.T) {
	instance := &models.PromotionRule{
		ID:                        uuid.New(),
		CheckoutAndOrderPredicate: checkoutPredicate(),
	}
	input := &models.PromotionRuleInput{
		CataloguePredicate: models.FieldValue(cataloguePredicate()),
	}

	errs := CleanPromotionRule(input, instance, models.PredicateTypeCheckoutAndOrder, nil, 100, nil)

	expectSingleError(t, errs, "catalogue_predicate", validation.CodeMixedPredicates)
	if _, ok := errs["checkout_and_order_predicate"]; ok {
		t.Fatalf("untouched field must not carry the error: %v", errs)
	}
}

func TestCleanPromotionRule_PromotionTypeConflict(t *testing.T) {
	value, valueType := fixedReward("5")
	input := &models.PromotionRuleInput{
		CataloguePredicate: models.FieldValue(cataloguePredicate()),
		RewardValue:        value,
		RewardValueType:    valueType,
		Channels:           []models.Channel{channelWithCurrency("USD")},
	}

	errs := CleanPromotionRule(input, nil, models.PredicateTypeCheckoutAndOrder, nil, 100, nil)

	expectSingleError(t, errs, "catalogue_predicate", validation.CodeMixedPromotionPredicates)
}

func TestCleanPromotionRule_RewardTypeForbiddenWithCatalogue(t *testing.T) {
	value, valueType := fixedReward("5")
	input := &models.PromotionRuleInput{
		CataloguePredicate: models.FieldValue(cataloguePredicate()),
		RewardValue:        value,
		RewardValueType:    valueType,
		RewardType:         models.FieldValue(models.RewardTypeSubtotalDiscount),
		Channels:           []models.Channel{channelWithCurrency("USD")},
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	expectSingleError(t, errs, "reward_type", validation.CodeInvalid)
}

func TestCleanPromotionRule_RewardTypeRequiredWithCheckout(t *testing.T) {
	value, valueType := fixedReward("5")
	input := &models.PromotionRuleInput{
		CheckoutAndOrderPredicate: models.FieldValue(checkoutPredicate()),
		RewardValue:               value,
		RewardValueType:           valueType,
		Channels:                  []models.Channel{channelWithCurrency("USD")},
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	expectSingleError(t, errs, "reward_type", validation.CodeRequired)
}

func TestCleanPromotionRule_PriceBasedPredicateMultipleCurrencies(t *testing.T) {
	value, valueType := fixedReward("5")
	input := &models.PromotionRuleInput{
		CheckoutAndOrderPredicate: models.FieldValue(checkoutPredicate()),
		RewardValue:               value,
		RewardValueType:           valueType,
		RewardType:                models.FieldValue(models.RewardTypeSubtotalDiscount),
		Channels:                  []models.Channel{channelWithCurrency("USD"), channelWithCurrency("EUR")},
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	expectSingleError(t, errs, "channels", validation.CodeMultipleCurrenciesNotAllowed)
}

func TestCleanPromotionRule_PriceBasedPredicateMultipleCurrencies_UpdateAddChannels(t *testing.T) {
	instance := &models.PromotionRule{
		ID:                        uuid.New(),
		CheckoutAndOrderPredicate: checkoutPredicate(),
		Channels:                  []models.Channel{channelWithCurrency("USD")},
	}
	input := &models.PromotionRuleInput{
		CheckoutAndOrderPredicate: models.FieldValue(checkoutPredicate()),
		AddChannelIDs:             []uuid.UUID{uuid.New()},
		AddChannels:               []models.Channel{channelWithCurrency("EUR")},
	}
	rewardType := models.RewardTypeSubtotalDiscount
	instance.RewardType = &rewardType

	errs := CleanPromotionRule(input, instance, models.PredicateTypeCheckoutAndOrder, nil, 100, nil)

	expectSingleError(t, errs, "add_channels", validation.CodeMultipleCurrenciesNotAllowed)
}

func TestCleanPromotionRule_RulesNumberLimit(t *testing.T) {
	promotion := &models.Promotion{ID: uuid.New()}
	for i := 0; i < 2; i++ {
		promotion.Rules = append(promotion.Rules, &models.PromotionRule{
			ID:                        uuid.New(),
			CheckoutAndOrderPredicate: checkoutPredicate(),
		})
	}

	value, valueType := fixedReward("5")
	input := &models.PromotionRuleInput{
		CheckoutAndOrderPredicate: models.FieldValue(checkoutPredicate()),
		RewardValue:               value,
		RewardValueType:           valueType,
		RewardType:                models.FieldValue(models.RewardTypeSubtotalDiscount),
		Channels:                  []models.Channel{channelWithCurrency("USD")},
	}

	errs := CleanPromotionRule(input, nil, models.PredicateTypeCheckoutAndOrder, promotion, 2, nil)

	expectSingleError(t, errs, "checkout_and_order_predicate", validation.CodeRulesNumberLimit)
}

func TestCleanPromotionRule_RewardFieldsRequired(t *testing.T) {
	input := &models.PromotionRuleInput{
		CataloguePredicate: models.FieldValue(cataloguePredicate()),
		Channels:           []models.Channel{channelWithCurrency("USD")},
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	expectSingleError(t, errs, "reward_value", validation.CodeRequired)
	expectSingleError(t, errs, "reward_value_type", validation.CodeRequired)
}

func TestCleanPromotionRule_FixedRewardWithoutChannels(t *testing.T) {
	value, valueType := fixedReward("5")
	input := &models.PromotionRuleInput{
		CataloguePredicate: models.FieldValue(cataloguePredicate()),
		RewardValue:        value,
		RewardValueType:    valueType,
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	expectSingleError(t, errs, "channels", validation.CodeMissingChannels)
}

func TestCleanPromotionRule_FixedRewardRemoveChannelsLeavesNone(t *testing.T) {
	usd := channelWithCurrency("USD")
	value := decimal.NewFromInt(5)
	valueType := models.RewardValueTypeFixed
	instance := &models.PromotionRule{
		ID:                 uuid.New(),
		CataloguePredicate: cataloguePredicate(),
		RewardValue:        &value,
		RewardValueType:    &valueType,
		Channels:           []models.Channel{usd},
	}
	newValue, _ := fixedReward("7")
	input := &models.PromotionRuleInput{
		RewardValue:      newValue,
		RemoveChannelIDs: []uuid.UUID{usd.ID},
		RemoveChannels:   []models.Channel{usd},
	}

	errs := CleanPromotionRule(input, instance, models.PredicateTypeCatalogue, nil, 100, nil)

	expectSingleError(t, errs, "remove_channels", validation.CodeMissingChannels)
}

func TestCleanPromotionRule_FixedRewardMultipleCurrencies(t *testing.T) {
	value, valueType := fixedReward("5")
	input := &models.PromotionRuleInput{
		CataloguePredicate: models.FieldValue(cataloguePredicate()),
		RewardValue:        value,
		RewardValueType:    valueType,
		Channels:           []models.Channel{channelWithCurrency("USD"), channelWithCurrency("EUR")},
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	expectSingleError(t, errs, "reward_value_type", validation.CodeMultipleCurrenciesNotAllowed)
}

func TestCleanPromotionRule_FixedRewardInvalidPrecision(t *testing.T) {
	value, valueType := fixedReward("5.999")
	input := &models.PromotionRuleInput{
		CataloguePredicate: models.FieldValue(cataloguePredicate()),
		RewardValue:        value,
		RewardValueType:    valueType,
		Channels:           []models.Channel{channelWithCurrency("USD")},
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	expectSingleError(t, errs, "reward_value", validation.CodeInvalidPrecision)
}

func TestCleanPromotionRule_FixedRewardTrailingZerosAllowed(t *testing.T) {
	value, valueType := fixedReward("5.9900")
	input := &models.PromotionRuleInput{
		CataloguePredicate: models.FieldValue(cataloguePredicate()),
		RewardValue:        value,
		RewardValueType:    valueType,
		Channels:           []models.Channel{channelWithCurrency("USD")},
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	if errs != nil {
		t.Fatalf("trailing zeros must not fail precision check: %v", errs)
	}
}

func TestCleanPromotionRule_FixedRewardZeroDecimalCurrency(t *testing.T) {
	value, valueType := fixedReward("100.50")
	input := &models.PromotionRuleInput{
		CataloguePredicate: models.FieldValue(cataloguePredicate()),
		RewardValue:        value,
		RewardValueType:    valueType,
		Channels:           []models.Channel{channelWithCurrency("JPY")},
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	expectSingleError(t, errs, "reward_value", validation.CodeInvalidPrecision)
}

func TestCleanPromotionRule_PercentageOverLimit(t *testing.T) {
	value := decimal.NewFromInt(101)
	input := &models.PromotionRuleInput{
		CataloguePredicate: models.FieldValue(cataloguePredicate()),
		RewardValue:        models.FieldValue(value),
		RewardValueType:    models.FieldValue(models.RewardValueTypePercentage),
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)

	expectSingleError(t, errs, "reward_value", validation.CodeInvalid)
}

func TestCleanPromotionRule_ValidCatalogueCreate_NormalizesPredicate(t *testing.T) {
	value, valueType := fixedReward("5")
	input := &models.PromotionRuleInput{
		CataloguePredicate: models.FieldValue(models.Predicate{
			"product_type_id": map[string]interface{}{"one_of": []interface{}{"a"}},
		}),
		RewardValue:     value,
		RewardValueType: valueType,
		Channels:        []models.Channel{channelWithCurrency("USD")},
	}

	errs := CleanPromotionRule(input, nil, "", nil, 100, nil)
	if errs != nil {
		t.Fatalf("expected valid input, got %v", errs)
	}

	cleaned, _ := input.CataloguePredicate.Get()
	if _, ok := cleaned["productTypeId"]; !ok {
		t.Fatalf("expected normalized predicate written back, got %v", cleaned)
	}
}

func TestCleanPromotionRule_UpdateWithoutRewardFields_SkipsRewardStage(t *testing.T) {
	value := decimal.NewFromInt(5)
	valueType := models.RewardValueTypeFixed
	instance := &models.PromotionRule{
		ID:                 uuid.New(),
		CataloguePredicate: cataloguePredicate(),
		RewardValue:        &value,
		RewardValueType:    &valueType,
		// Каналов нет, но без reward-полей во вводе это не проверяется.
	}
	input := &models.PromotionRuleInput{
		Name: models.FieldValue("renamed"),
	}

	errs := CleanPromotionRule(input, instance, models.PredicateTypeCatalogue, nil, 100, nil)
	if errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
}
