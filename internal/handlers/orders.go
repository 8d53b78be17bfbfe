package handlers

import (
	"net/http"
	"strings"

	"discount-system/internal/logger"
	"discount-system/internal/models"
)

// OrderHandler обрабатывает запросы к заказам.
type OrderHandler struct {
	orderService OrderService
	log          *logger.Logger
}

// NewOrderHandler создаёт обработчик заказов.
func NewOrderHandler(orderService OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		log:          log,
	}
}

// OrderRecalculationResponse — результат пересчёта заказа.
type OrderRecalculationResponse struct {
	Order *models.Order       `json:"order"`
	Lines []*models.OrderLine `json:"lines"`
}

// Order обслуживает /api/orders/{id} и /api/orders/{id}/recalculate.
func (h *OrderHandler) Order(w http.ResponseWriter, r *http.Request) {
	orderID, err := extractUUIDFromPath(r.URL.Path, "/api/orders/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if strings.HasSuffix(r.URL.Path, "/recalculate") {
		if r.Method != http.MethodPost {
			writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		order, lines, err := h.orderService.RecalculateOrder(r.Context(), orderID)
		if err != nil {
			writeServiceError(w, h.log, err, "Failed to recalculate order")
			return
		}
		writeJSONResponse(w, http.StatusOK, OrderRecalculationResponse{Order: order, Lines: lines})
		return
	}

	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get order")
		return
	}
	writeJSONResponse(w, http.StatusOK, order)
}
