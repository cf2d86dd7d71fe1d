package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/httpx"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/services"
)

const (
	maxWebhookBodySize      = 1 << 20
	razorpaySignatureHeader = "X-Razorpay-Signature"
)

// WebhookHandlers consumes payment gateway callbacks.
type WebhookHandlers struct {
	payments services.PaymentService
}

func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// HandlePaymentWebhook reads the raw body before any parsing so the HMAC is
// computed over exactly what the gateway sent.
func (h *WebhookHandlers) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "payment webhook not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	if err := h.payments.HandleWebhook(ctx, body, r.Header.Get(razorpaySignatureHeader)); err != nil {
		if errors.Is(err, services.ErrWebhookSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
