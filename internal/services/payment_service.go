package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/payments"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/events"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/repositories"
)

// ErrWebhookSignature indicates the webhook body failed HMAC verification.
var ErrWebhookSignature = errors.New("payment: invalid webhook signature")

// PaymentServiceDeps bundles collaborators for the webhook consumer.
type PaymentServiceDeps struct {
	Orders     repositories.OrderRepository
	UnitOfWork repositories.UnitOfWork
	Events     events.NotificationPublisher

	// VerifyWebhook validates the gateway signature over the raw body.
	VerifyWebhook func(body []byte, signature string) bool

	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	events     events.NotificationPublisher
	verify     func([]byte, string) bool
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.VerifyWebhook == nil {
		return nil, errors.New("payment service: webhook verifier is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	publisher := deps.Events
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	return &paymentService{
		orders:     deps.Orders,
		unitOfWork: unit,
		events:     publisher,
		verify:     deps.VerifyWebhook,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// webhookEnvelope is the subset of the gateway webhook body the service reads.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity map[string]any `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (s *paymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.verify(body, signature) {
		return ErrWebhookSignature
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("payment: decode webhook body: %w", err)
	}

	switch envelope.Event {
	case "payment.captured":
		return s.handleCaptured(ctx, envelope.Payload.Payment.Entity)
	case "payment.failed":
		s.handleFailed(ctx, envelope.Payload.Payment.Entity)
		return nil
	default:
		s.logger(ctx, "payment.webhook.ignored", map[string]any{"event": envelope.Event})
		return nil
	}
}

// handleCaptured marks the matching order paid and records the captured
// entity. Orders created through the verified checkout leg are already paid;
// the capture details are still refreshed so refund headroom tracks the
// gateway's numbers.
func (s *paymentService) handleCaptured(ctx context.Context, entity map[string]any) error {
	payment := payments.PaymentFromEntity(entity)
	if payment.ID == "" || payment.OrderID == "" {
		s.logger(ctx, "payment.webhook.malformed", map[string]any{"event": "payment.captured"})
		return nil
	}

	var updated *domain.Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByGatewayOrderID(txCtx, payment.OrderID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				// The checkout leg has not created the order yet; the
				// verification call will pick the capture up from the gateway.
				s.logger(ctx, "payment.webhook.order.missing", map[string]any{
					"gatewayOrderId": payment.OrderID,
				})
				return nil
			}
			return err
		}

		if payment.AmountMinor > 0 && payment.AmountMinor != payments.ToMinorUnits(order.TotalPrice) {
			// Captured amount disagrees with the order total; leave the order
			// untouched for manual review rather than marking it paid.
			s.logger(ctx, "payment.webhook.amount_mismatch", map[string]any{
				"orderId":        order.OrderID,
				"gatewayOrderId": payment.OrderID,
				"captured":       payment.AmountMinor,
				"expected":       payments.ToMinorUnits(order.TotalPrice),
			})
			return nil
		}

		now := s.clock()
		alreadyPaid := order.IsPaid
		order.IsPaid = true
		if order.PaidAt == nil {
			order.PaidAt = &now
		}
		order.RazorpayPaymentID = payment.ID
		order.PaymentDetails = &domain.PaymentCapture{
			PaymentID:   payment.ID,
			AmountMinor: payment.AmountMinor,
			Raw:         payment.Raw,
		}
		if payment.AmountMinor > 0 {
			// Reset headroom only while no refund has consumed any.
			if order.RefundedAmount == 0 {
				order.RefundableMinor = payment.AmountMinor
			}
		}
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		if !alreadyPaid {
			updated = &order
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("payment: apply capture %s: %w", payment.ID, err)
	}

	if updated != nil {
		if _, err := s.events.PublishNotification(ctx, events.Notification{
			Event:      events.EventOrderPaid,
			OrderID:    updated.OrderID,
			UserID:     updated.UserID,
			Status:     string(updated.Status),
			OccurredAt: s.clock(),
		}); err != nil {
			s.logger(ctx, "payment.notification.publish.failed", map[string]any{
				"orderId": updated.OrderID,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

// handleFailed is informational only; no order exists for a failed prepaid
// checkout, so the event is just logged.
func (s *paymentService) handleFailed(ctx context.Context, entity map[string]any) {
	payment := payments.PaymentFromEntity(entity)
	s.logger(ctx, "payment.webhook.failed", map[string]any{
		"gatewayOrderId":   payment.OrderID,
		"gatewayPaymentId": payment.ID,
	})
}
