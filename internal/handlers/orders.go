package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/httpx"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/repositories"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/services"
)

const maxOrderBodySize = 64 * 1024

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type placeOrderRequest struct {
	Products        []orderItemPayload     `json:"products"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
	DiscountCode    string                 `json:"discountCode"`
	GiftWrap        bool                   `json:"giftWrap"`
	TotalPrice      int64                  `json:"totalPrice"`
}

type verifyPaymentRequest struct {
	Order             placeOrderRequest `json:"order"`
	RazorpayOrderID   string            `json:"razorpayOrderId"`
	RazorpayPaymentID string            `json:"razorpayPaymentId"`
	RazorpaySignature string            `json:"razorpaySignature"`
}

// OrderHandlers exposes the customer-facing order endpoints.
type OrderHandlers struct {
	orders  services.OrderService
	webhook http.HandlerFunc
}

// NewOrderHandlers constructs the customer order handler set. The webhook
// handler is mounted inside the orders group so it shares the public prefix.
func NewOrderHandlers(orders services.OrderService, webhook http.HandlerFunc) *OrderHandlers {
	return &OrderHandlers{orders: orders, webhook: webhook}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.placeOrder)
	r.Post("/payment-intent", h.createPaymentIntent)
	r.Post("/verify-and-create", h.verifyAndCreate)
	r.Post("/verify", h.verify)
	if h.webhook != nil {
		r.Post("/webhook", h.webhook)
	}
	r.Get("/mine", h.listMine)
	r.Get("/track", h.listActive)
	r.Get("/{orderID}/tracking", h.tracking)
	r.Post("/{orderID}/confirm-delivery", h.confirmDelivery)
	r.Post("/{orderID}/cancel", h.cancel)
	r.Get("/{orderID}", h.getOrder)
}

func (req placeOrderRequest) toCommand(userID string, method domain.PaymentMethod) services.PlaceOrderCommand {
	items := make([]services.PlaceOrderItem, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, services.PlaceOrderItem{
			ProductID: p.ProductID,
			Color:     p.Color,
			Size:      p.Size,
			Quantity:  p.Quantity,
		})
	}
	return services.PlaceOrderCommand{
		UserID:          userID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   method,
		DiscountCode:    req.DiscountCode,
		GiftWrap:        req.GiftWrap,
		ClientTotal:     req.TotalPrice,
	}
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	order, err := h.orders.PlaceOrder(ctx, req.toCommand(userID, domain.PaymentMethodCOD))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (h *OrderHandlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	intent, err := h.orders.CreatePaymentIntent(ctx, req.toCommand(userID, domain.PaymentMethodPrepaid))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"razorpayOrderId": intent.GatewayOrderID,
		"amount":          intent.AmountMinor,
		"currency":        intent.Currency,
	})
}

func (h *OrderHandlers) verifyAndCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	order, err := h.orders.VerifyAndCreateOrder(ctx, services.VerifyPaymentCommand{
		Order:            req.Order.toCommand(userID, domain.PaymentMethodPrepaid),
		GatewayOrderID:   req.RazorpayOrderID,
		GatewayPaymentID: req.RazorpayPaymentID,
		Signature:        req.RazorpaySignature,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (h *OrderHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireUser(ctx, w, r); !ok {
		return
	}

	var req verifyPaymentRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	order, err := h.orders.MarkOrderPaid(ctx, req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *OrderHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListUserOrders(ctx, userID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// listActive returns the caller's orders that are still on their way.
func (h *OrderHandlers) listActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(ctx, repositories.OrderListFilter{
		UserID: userID,
		Status: []domain.OrderStatus{
			domain.OrderStatusPending,
			domain.OrderStatusProcessing,
			domain.OrderStatusShipped,
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"), userID, false)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *OrderHandlers) tracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}

	info, err := h.orders.TrackOrder(ctx, chi.URLParam(r, "orderID"), userID, false)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"tracking": info})
}

func (h *OrderHandlers) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.ConfirmDelivery(ctx, chi.URLParam(r, "orderID"), userID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *OrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(ctx, chi.URLParam(r, "orderID"), userID, false)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
}
