package handler

import (
	"net/http"
	"strconv"

	"github.com/freeeve/enclaves/internal/auth"
	"github.com/freeeve/enclaves/internal/service"
	"github.com/freeeve/enclaves/pkg/conflict"
)

// OrderHandler handles pending order and preview endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// SubmitOrder handles POST /api/v1/sessions/{id}/orders
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		Source int                `json:"source"`
		To     int                `json:"to"`
		Type   conflict.OrderType `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == 0 || req.Type == "" {
		writeError(w, http.StatusBadRequest, "source and type are required")
		return
	}

	orders, err := h.orderSvc.SubmitOrder(r.Context(), sessionID, userID, req.Source, conflict.Order{To: req.To, Type: req.Type})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// CancelOrder handles DELETE /api/v1/sessions/{id}/orders/{src}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())
	src, err := strconv.Atoi(r.PathValue("src"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid territory id")
		return
	}

	orders, err := h.orderSvc.CancelOrder(r.Context(), sessionID, userID, src)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// ListOrders handles GET /api/v1/sessions/{id}/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	orders, err := h.orderSvc.ListOrders(r.Context(), sessionID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// Preview handles GET /api/v1/sessions/{id}/preview/{tid}
func (h *OrderHandler) Preview(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())
	tid, err := strconv.Atoi(r.PathValue("tid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid territory id")
		return
	}

	p, err := h.orderSvc.Preview(r.Context(), sessionID, userID, tid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
