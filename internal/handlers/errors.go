package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/courier"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/payments"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/httpx"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/services"
)

// writeServiceError translates service sentinel errors into HTTP envelopes.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrReturnInvalidInput),
		errors.Is(err, services.ErrDiscountNotFound),
		errors.Is(err, services.ErrDiscountIneligible):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentVerification):
		httpx.WriteError(ctx, w, httpx.NewError("payment_verification_failed", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrReturnLineNotFound),
		errors.Is(err, services.ErrTrackingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, domain.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState),
		errors.Is(err, services.ErrReturnInvalidState),
		errors.Is(err, services.ErrOrderConflict),
		errors.Is(err, services.ErrRefundNotEligible),
		errors.Is(err, services.ErrRefundHeadroom):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, payments.ErrGatewayUnavailable),
		errors.Is(err, payments.ErrRefundRejected),
		errors.Is(err, courier.ErrUnavailable),
		errors.Is(err, courier.ErrRejected):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_unavailable", err.Error(), http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	ctx := r.Context()
	body := http.MaxBytesReader(w, r.Body, limit)
	defer func() { _ = body.Close() }()

	if err := jsonDecode(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func jsonDecode(r io.Reader, dst any) error {
	return json.NewDecoder(r).Decode(dst)
}
