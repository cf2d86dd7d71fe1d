package payments

import (
	"context"
	"errors"
)

// Domain amounts are whole currency units; the gateway speaks minor units
// (paise). Conversion happens only at this boundary.

// ToMinorUnits converts a whole-unit amount to gateway minor units.
func ToMinorUnits(amount int64) int64 {
	return amount * 100
}

// ErrGatewayUnavailable wraps transport-level gateway failures.
var ErrGatewayUnavailable = errors.New("payments: gateway unavailable")

// ErrRefundRejected indicates the gateway refused the refund request.
var ErrRefundRejected = errors.New("payments: refund rejected")

// GatewayOrder is the payment intent created before the customer pays.
type GatewayOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
}

// Payment is the gateway's view of a captured payment.
type Payment struct {
	ID          string
	OrderID     string
	AmountMinor int64
	Status      string
	Method      string
	Raw         map[string]any
}

// Refund is the gateway's record of a processed refund.
type Refund struct {
	ID          string
	PaymentID   string
	AmountMinor int64
	Status      string
}

// CreateOrderRequest carries the parameters for a new gateway order.
type CreateOrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Gateway abstracts the payment service provider used for prepaid orders and
// refunds.
type Gateway interface {
	// CreateOrder registers a payment intent with the gateway and returns its
	// identifier for client-side checkout.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
	// FetchPayment retrieves a captured payment by gateway payment id.
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)
	// Refund issues a partial or full refund against a captured payment.
	Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (Refund, error)
}
