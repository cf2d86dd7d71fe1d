package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
)

func newTestPaymentService(t *testing.T, orders *stubOrderRepo, published *capturePublisher) PaymentService {
	t.Helper()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: orders,
		Events: published,
		VerifyWebhook: func(body []byte, signature string) bool {
			return signature == "valid"
		},
		Clock: fixedClock(testNow),
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	return svc
}

func capturedBody(gatewayOrderID, paymentID string, amountMinor int64) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": %q, "order_id": %q, "amount": %d, "status": "captured", "method": "upi"
		}}}
	}`, paymentID, gatewayOrderID, amountMinor))
}

func TestHandleWebhookCaptured(t *testing.T) {
	orders := newStubOrderRepo(domain.Order{
		ID:              "o1",
		OrderID:         "ORD-20250314-AAAA1111",
		UserID:          "u1",
		PaymentMethod:   domain.PaymentMethodPrepaid,
		RazorpayOrderID: "order_rzp1",
		Status:          domain.OrderStatusPending,
		TotalPrice:      2049,
	})
	published := &capturePublisher{}
	svc := newTestPaymentService(t, orders, published)

	err := svc.HandleWebhook(context.Background(), capturedBody("order_rzp1", "pay_9", 204900), "valid")
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	stored := orders.get("o1")
	if !stored.IsPaid || stored.PaidAt == nil {
		t.Error("order must be marked paid")
	}
	if stored.RazorpayPaymentID != "pay_9" {
		t.Errorf("payment id = %q, want pay_9", stored.RazorpayPaymentID)
	}
	if stored.PaymentDetails == nil || stored.PaymentDetails.AmountMinor != 204900 {
		t.Errorf("capture = %+v, want amount 204900", stored.PaymentDetails)
	}
	if stored.RefundableMinor != 204900 {
		t.Errorf("refundable = %d, want 204900", stored.RefundableMinor)
	}
	if len(published.notifications) != 1 || published.notifications[0].Event != "order.paid" {
		t.Errorf("notifications = %+v, want one order.paid", published.notifications)
	}

	// Redelivery refreshes the capture but does not notify again.
	if err := svc.HandleWebhook(context.Background(), capturedBody("order_rzp1", "pay_9", 204900), "valid"); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(published.notifications) != 1 {
		t.Errorf("redelivery produced %d notifications, want 1", len(published.notifications))
	}
}

func TestHandleWebhookCapturedKeepsConsumedHeadroom(t *testing.T) {
	orders := newStubOrderRepo(domain.Order{
		ID:              "o1",
		UserID:          "u1",
		PaymentMethod:   domain.PaymentMethodPrepaid,
		RazorpayOrderID: "order_rzp1",
		IsPaid:          true,
		TotalPrice:      2049,
		RefundedAmount:  50000,
		RefundableMinor: 154900,
	})
	svc := newTestPaymentService(t, orders, &capturePublisher{})

	if err := svc.HandleWebhook(context.Background(), capturedBody("order_rzp1", "pay_9", 204900), "valid"); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if stored := orders.get("o1"); stored.RefundableMinor != 154900 {
		t.Errorf("refundable = %d, want 154900 after partial refund", stored.RefundableMinor)
	}
}

func TestHandleWebhookCapturedAmountMismatch(t *testing.T) {
	orders := newStubOrderRepo(domain.Order{
		ID:              "o1",
		UserID:          "u1",
		PaymentMethod:   domain.PaymentMethodPrepaid,
		RazorpayOrderID: "order_rzp1",
		Status:          domain.OrderStatusPending,
		TotalPrice:      2049,
	})
	published := &capturePublisher{}
	svc := newTestPaymentService(t, orders, published)

	// Captured 100.00 against a 2049.00 order: the order must stay unpaid.
	if err := svc.HandleWebhook(context.Background(), capturedBody("order_rzp1", "pay_9", 10000), "valid"); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if stored := orders.get("o1"); stored.IsPaid {
		t.Error("mismatched capture must not mark the order paid")
	}
	if len(published.notifications) != 0 {
		t.Errorf("notifications = %+v, want none", published.notifications)
	}
}

func TestHandleWebhookSignature(t *testing.T) {
	svc := newTestPaymentService(t, newStubOrderRepo(), &capturePublisher{})
	err := svc.HandleWebhook(context.Background(), capturedBody("order_rzp1", "pay_9", 100), "forged")
	if !errors.Is(err, ErrWebhookSignature) {
		t.Fatalf("err = %v, want ErrWebhookSignature", err)
	}
}

func TestHandleWebhookUnknownOrderTolerated(t *testing.T) {
	svc := newTestPaymentService(t, newStubOrderRepo(), &capturePublisher{})
	if err := svc.HandleWebhook(context.Background(), capturedBody("order_ghost", "pay_9", 100), "valid"); err != nil {
		t.Fatalf("missing order must not fail the webhook: %v", err)
	}
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	svc := newTestPaymentService(t, newStubOrderRepo(), &capturePublisher{})

	for _, body := range []string{
		`{"event": "refund.processed", "payload": {}}`,
		`{"event": "payment.failed", "payload": {"payment": {"entity": {"id": "pay_1"}}}}`,
	} {
		if err := svc.HandleWebhook(context.Background(), []byte(body), "valid"); err != nil {
			t.Errorf("event body %s: %v", body, err)
		}
	}

	if err := svc.HandleWebhook(context.Background(), []byte("{not json"), "valid"); err == nil {
		t.Error("malformed body must fail")
	}
}
