package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/google/uuid"
)

// RuleHandler обрабатывает запросы к правилам промоакций.
type RuleHandler struct {
	ruleService PromotionRuleService
	log         *logger.Logger
}

// NewRuleHandler создаёт обработчик правил промоакций.
func NewRuleHandler(ruleService PromotionRuleService, log *logger.Logger) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
		log:         log,
	}
}

// PromotionRules обслуживает /api/promotions/{id}/rules:
// POST создаёт правило, GET возвращает правила промоакции.
func (h *RuleHandler) PromotionRules(w http.ResponseWriter, r *http.Request) {
	promotionID, err := extractUUIDFromPath(r.URL.Path, "/api/promotions/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if !strings.HasSuffix(r.URL.Path, "/rules") {
		writeErrorResponse(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.createRule(w, r, promotionID)
	case http.MethodGet:
		h.listRules(w, r, promotionID)
	default:
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *RuleHandler) createRule(w http.ResponseWriter, r *http.Request, promotionID uuid.UUID) {
	var input models.PromotionRuleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rule, validationErrs, err := h.ruleService.CreateRule(r.Context(), promotionID, &input)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create promotion rule")
		return
	}
	if validationErrs != nil {
		writeValidationErrors(w, validationErrs)
		return
	}

	writeJSONResponse(w, http.StatusCreated, rule)
}

func (h *RuleHandler) listRules(w http.ResponseWriter, r *http.Request, promotionID uuid.UUID) {
	rules, err := h.ruleService.ListRules(r.Context(), promotionID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list promotion rules")
		return
	}

	writeJSONResponse(w, http.StatusOK, rules)
}

// Rule обслуживает /api/rules/{id}: GET, PUT и DELETE.
func (h *RuleHandler) Rule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := extractUUIDFromPath(r.URL.Path, "/api/rules/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		rule, err := h.ruleService.GetRule(r.Context(), ruleID)
		if err != nil {
			writeServiceError(w, h.log, err, "Failed to get promotion rule")
			return
		}
		writeJSONResponse(w, http.StatusOK, rule)

	case http.MethodPut:
		var input models.PromotionRuleInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		rule, validationErrs, err := h.ruleService.UpdateRule(r.Context(), ruleID, &input)
		if err != nil {
			writeServiceError(w, h.log, err, "Failed to update promotion rule")
			return
		}
		if validationErrs != nil {
			writeValidationErrors(w, validationErrs)
			return
		}
		writeJSONResponse(w, http.StatusOK, rule)

	case http.MethodDelete:
		if err := h.ruleService.DeleteRule(r.Context(), ruleID); err != nil {
			writeServiceError(w, h.log, err, "Failed to delete promotion rule")
			return
		}
		writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Promotion rule deleted"})

	default:
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
