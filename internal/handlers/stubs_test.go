package handlers

import (
	"context"
	"errors"
	"io"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/courier"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/repositories"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/services"
)

var errStubNotConfigured = errors.New("stub not configured")

type stubOrderService struct {
	placeOrderFn      func(ctx context.Context, cmd services.PlaceOrderCommand) (domain.Order, error)
	paymentIntentFn   func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PaymentIntent, error)
	verifyAndCreateFn func(ctx context.Context, cmd services.VerifyPaymentCommand) (domain.Order, error)
	markPaidFn        func(ctx context.Context, orderID, paymentID, signature string) (domain.Order, error)
	getOrderFn        func(ctx context.Context, orderID, requesterID string, isAdmin bool) (domain.Order, error)
	listUserOrdersFn  func(ctx context.Context, userID string) ([]domain.Order, error)
	listOrdersFn      func(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error)
	trackOrderFn      func(ctx context.Context, orderID, requesterID string, isAdmin bool) (courier.TrackingInfo, error)
	confirmDeliveryFn func(ctx context.Context, orderID, userID string) (domain.Order, error)
	cancelOrderFn     func(ctx context.Context, orderID, actorID string, isAdmin bool) (domain.Order, error)
	updateStatusFn    func(ctx context.Context, cmd services.UpdateStatusCommand) (domain.Order, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (domain.Order, error) {
	if s.placeOrderFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.placeOrderFn(ctx, cmd)
}

func (s *stubOrderService) CreatePaymentIntent(ctx context.Context, cmd services.PlaceOrderCommand) (services.PaymentIntent, error) {
	if s.paymentIntentFn == nil {
		return services.PaymentIntent{}, errStubNotConfigured
	}
	return s.paymentIntentFn(ctx, cmd)
}

func (s *stubOrderService) VerifyAndCreateOrder(ctx context.Context, cmd services.VerifyPaymentCommand) (domain.Order, error) {
	if s.verifyAndCreateFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.verifyAndCreateFn(ctx, cmd)
}

func (s *stubOrderService) MarkOrderPaid(ctx context.Context, orderID, paymentID, signature string) (domain.Order, error) {
	if s.markPaidFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.markPaidFn(ctx, orderID, paymentID, signature)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID, requesterID string, isAdmin bool) (domain.Order, error) {
	if s.getOrderFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.getOrderFn(ctx, orderID, requesterID, isAdmin)
}

func (s *stubOrderService) ListUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	if s.listUserOrdersFn == nil {
		return nil, errStubNotConfigured
	}
	return s.listUserOrdersFn(ctx, userID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if s.listOrdersFn == nil {
		return nil, errStubNotConfigured
	}
	return s.listOrdersFn(ctx, filter)
}

func (s *stubOrderService) TrackOrder(ctx context.Context, orderID, requesterID string, isAdmin bool) (courier.TrackingInfo, error) {
	if s.trackOrderFn == nil {
		return courier.TrackingInfo{}, errStubNotConfigured
	}
	return s.trackOrderFn(ctx, orderID, requesterID, isAdmin)
}

func (s *stubOrderService) ConfirmDelivery(ctx context.Context, orderID, userID string) (domain.Order, error) {
	if s.confirmDeliveryFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.confirmDeliveryFn(ctx, orderID, userID)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, orderID, actorID string, isAdmin bool) (domain.Order, error) {
	if s.cancelOrderFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.cancelOrderFn(ctx, orderID, actorID, isAdmin)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateStatusCommand) (domain.Order, error) {
	if s.updateStatusFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.updateStatusFn(ctx, cmd)
}

type stubReturnService struct {
	requestReturnFn     func(ctx context.Context, cmd services.ReturnRequestCommand) (domain.Order, error)
	cancelReturnFn      func(ctx context.Context, orderID, userID, productID string) (domain.Order, error)
	decideReturnFn      func(ctx context.Context, cmd services.ReturnDecisionCommand) (domain.Order, error)
	confirmPickupFn     func(ctx context.Context, orderID, productID, adminID string) (domain.Order, error)
	processRefundFn     func(ctx context.Context, orderID, productID, adminID string) (domain.Order, error)
	createReplacementFn func(ctx context.Context, orderID, productID, adminID string) (domain.Order, error)
	refundStatusFn      func(ctx context.Context, orderID, userID string) (services.RefundStatusView, error)
}

func (s *stubReturnService) RequestReturn(ctx context.Context, cmd services.ReturnRequestCommand) (domain.Order, error) {
	if s.requestReturnFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.requestReturnFn(ctx, cmd)
}

func (s *stubReturnService) CancelReturn(ctx context.Context, orderID, userID, productID string) (domain.Order, error) {
	if s.cancelReturnFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.cancelReturnFn(ctx, orderID, userID, productID)
}

func (s *stubReturnService) DecideReturn(ctx context.Context, cmd services.ReturnDecisionCommand) (domain.Order, error) {
	if s.decideReturnFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.decideReturnFn(ctx, cmd)
}

func (s *stubReturnService) ConfirmPickup(ctx context.Context, orderID, productID, adminID string) (domain.Order, error) {
	if s.confirmPickupFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.confirmPickupFn(ctx, orderID, productID, adminID)
}

func (s *stubReturnService) ProcessRefund(ctx context.Context, orderID, productID, adminID string) (domain.Order, error) {
	if s.processRefundFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.processRefundFn(ctx, orderID, productID, adminID)
}

func (s *stubReturnService) CreateReplacement(ctx context.Context, orderID, productID, adminID string) (domain.Order, error) {
	if s.createReplacementFn == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.createReplacementFn(ctx, orderID, productID, adminID)
}

func (s *stubReturnService) RefundStatus(ctx context.Context, orderID, userID string) (services.RefundStatusView, error) {
	if s.refundStatusFn == nil {
		return services.RefundStatusView{}, errStubNotConfigured
	}
	return s.refundStatusFn(ctx, orderID, userID)
}

type stubPaymentService struct {
	handleWebhookFn func(ctx context.Context, body []byte, signature string) error
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if s.handleWebhookFn == nil {
		return errStubNotConfigured
	}
	return s.handleWebhookFn(ctx, body, signature)
}

type stubUploader struct {
	err     error
	objects []string
}

func (u *stubUploader) Upload(_ context.Context, object, _ string, r io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	_, _ = io.Copy(io.Discard, r)
	u.objects = append(u.objects, object)
	return "gs://test-bucket/" + object, nil
}
