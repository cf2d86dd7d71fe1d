package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/httpx"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/repositories"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/services"
)

const (
	defaultAdminPageSize = 50
	maxAdminPageSize     = 200
)

type updateStatusRequest struct {
	Status          string `json:"status"`
	ShippedFrom     string `json:"shippedFrom"`
	TrackingNumber  string `json:"trackingNumber"`
	ShippingCarrier string `json:"shippingCarrier"`
}

type returnDecisionRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

type replacementRequest struct {
	ProductID string `json:"productId"`
}

// AdminHandlers exposes the back-office order and return endpoints.
type AdminHandlers struct {
	orders  services.OrderService
	returns services.ReturnService
}

func NewAdminHandlers(orders services.OrderService, returns services.ReturnService) *AdminHandlers {
	return &AdminHandlers{orders: orders, returns: returns}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Put("/orders/{orderID}/status", h.updateStatus)
	r.Post("/orders/{orderID}/{productID}/refund", h.processRefund)
	r.Put("/returns/{orderID}/{productID}", h.decideReturn)
	r.Put("/returns/{orderID}/{productID}/pickup", h.confirmPickup)
	r.Post("/returns/{orderID}/replacement", h.createReplacement)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdmin(ctx, w, r); !ok {
		return
	}

	query := r.URL.Query()
	filter := repositories.OrderListFilter{
		UserID:     strings.TrimSpace(query.Get("user")),
		HasReturns: query.Get("has_returns") == "true",
		Limit:      defaultAdminPageSize,
	}
	for _, raw := range query["status"] {
		for _, value := range strings.Split(raw, ",") {
			if value = strings.TrimSpace(value); value != "" {
				filter.Status = append(filter.Status, domain.OrderStatus(value))
			}
		}
	}
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.CreatedAfter = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.CreatedBefore = &ts
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case limit <= 0:
			filter.Limit = defaultAdminPageSize
		case limit > maxAdminPageSize:
			filter.Limit = maxAdminPageSize
		default:
			filter.Limit = limit
		}
	}

	orders, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := requireAdmin(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"), adminID, true)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *AdminHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := requireAdmin(ctx, w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateStatusCommand{
		OrderID:         chi.URLParam(r, "orderID"),
		AdminID:         adminID,
		Status:          domain.OrderStatus(strings.TrimSpace(req.Status)),
		ShippedFrom:     req.ShippedFrom,
		TrackingNumber:  req.TrackingNumber,
		ShippingCarrier: req.ShippingCarrier,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *AdminHandlers) decideReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := requireAdmin(ctx, w, r)
	if !ok {
		return
	}

	var req returnDecisionRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	var approve bool
	switch strings.ToLower(strings.TrimSpace(req.Decision)) {
	case "approve", "approved":
		approve = true
	case "reject", "rejected":
		approve = false
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "decision must be approve or reject", http.StatusBadRequest))
		return
	}

	order, err := h.returns.DecideReturn(ctx, services.ReturnDecisionCommand{
		OrderID:   chi.URLParam(r, "orderID"),
		ProductID: chi.URLParam(r, "productID"),
		AdminID:   adminID,
		Approve:   approve,
		Note:      req.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *AdminHandlers) confirmPickup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := requireAdmin(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.returns.ConfirmPickup(ctx, chi.URLParam(r, "orderID"), chi.URLParam(r, "productID"), adminID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *AdminHandlers) processRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := requireAdmin(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.returns.ProcessRefund(ctx, chi.URLParam(r, "orderID"), chi.URLParam(r, "productID"), adminID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *AdminHandlers) createReplacement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := requireAdmin(ctx, w, r)
	if !ok {
		return
	}

	var req replacementRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}

	order, err := h.returns.CreateReplacement(ctx, chi.URLParam(r, "orderID"), req.ProductID, adminID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"order": order})
}
