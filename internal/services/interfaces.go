package services

import (
	"context"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/courier"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/repositories"
)

// PlaceOrderItem is one requested line in an order submission.
type PlaceOrderItem struct {
	ProductID string
	Color     string
	Size      string
	Quantity  int
}

// PlaceOrderCommand carries a complete order submission. The same command
// shape feeds both the COD path and the prepaid intent/verify pair.
type PlaceOrderCommand struct {
	UserID          string
	Items           []PlaceOrderItem
	ShippingAddress domain.ShippingAddress
	PaymentMethod   domain.PaymentMethod
	DiscountCode    string
	GiftWrap        bool
	// ClientTotal is the total the client computed for the cart. Pricing is
	// always recomputed from the catalog; a mismatch is recorded as a
	// data-integrity signal, never trusted.
	ClientTotal int64
}

// PaymentIntent is returned from the prepaid first leg for client-side checkout.
type PaymentIntent struct {
	GatewayOrderID string
	AmountMinor    int64
	Currency       string
}

// VerifyPaymentCommand closes the prepaid loop: the original submission plus
// the gateway identifiers and client signature produced by checkout.
type VerifyPaymentCommand struct {
	Order            PlaceOrderCommand
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// UpdateStatusCommand is the admin-side order status transition request.
type UpdateStatusCommand struct {
	OrderID string
	AdminID string
	Status  domain.OrderStatus

	// Shipping fields; all three are required together when Status is Shipped.
	ShippedFrom     string
	TrackingNumber  string
	ShippingCarrier string
}

// OrderService orchestrates the order lifecycle from submission to delivery.
type OrderService interface {
	// PlaceOrder creates a cash-on-delivery order transactionally.
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error)
	// CreatePaymentIntent prices a prepaid submission and registers a gateway
	// order. No database order exists until the payment is verified.
	CreatePaymentIntent(ctx context.Context, cmd PlaceOrderCommand) (PaymentIntent, error)
	// VerifyAndCreateOrder validates the checkout signature and creates the
	// paid order transactionally.
	VerifyAndCreateOrder(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error)
	// MarkOrderPaid validates the checkout signature and flips an already
	// persisted order to paid.
	MarkOrderPaid(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (domain.Order, error)

	GetOrder(ctx context.Context, orderID, requesterID string, isAdmin bool) (domain.Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]domain.Order, error)
	ListOrders(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error)
	TrackOrder(ctx context.Context, orderID, requesterID string, isAdmin bool) (courier.TrackingInfo, error)

	// ConfirmDelivery lets the customer acknowledge receipt of a shipped order.
	ConfirmDelivery(ctx context.Context, orderID, userID string) (domain.Order, error)
	// CancelOrder cancels an order that has not been delivered yet and
	// restores variant stock.
	CancelOrder(ctx context.Context, orderID, actorID string, isAdmin bool) (domain.Order, error)
	// UpdateStatus applies an admin-driven status transition.
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error)
}

// PaymentService consumes asynchronous gateway notifications.
type PaymentService interface {
	// HandleWebhook verifies the webhook signature over the raw body and
	// applies the event. Unknown events are ignored.
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

// ReturnRequestCommand opens a return for a single delivered line item.
type ReturnRequestCommand struct {
	OrderID    string
	UserID     string
	ProductID  string
	IssueType  string
	IssueDesc  string
	Resolution domain.ResolutionType
	Images     []string

	// Requested exchange variant; only meaningful for replacement returns.
	ExchangeToColor string
	ExchangeToSize  string
}

// ReturnDecisionCommand records the admin verdict on a requested return.
type ReturnDecisionCommand struct {
	OrderID   string
	ProductID string
	AdminID   string
	Approve   bool
	Note      string
}

// LineRefundView is the customer-facing refund state of one line item.
type LineRefundView struct {
	ProductID    string                `json:"productId"`
	ProductName  string                `json:"productName"`
	Status       domain.LineItemStatus `json:"status"`
	PickupStatus domain.PickupStatus   `json:"pickupStatus"`
	RefundAmount int64                 `json:"refundAmount,omitempty"`
	RefundTxnID  string                `json:"refundTransactionId,omitempty"`
}

// RefundStatusView summarises refund progress for an order.
type RefundStatusView struct {
	OrderID        string              `json:"orderId"`
	RefundStatus   domain.RefundStatus `json:"refundStatus"`
	RefundedAmount int64               `json:"refundedAmount"`
	Lines          []LineRefundView    `json:"lines"`
}

// ReturnService drives the per-line return, refund, and replacement workflow.
type ReturnService interface {
	RequestReturn(ctx context.Context, cmd ReturnRequestCommand) (domain.Order, error)
	CancelReturn(ctx context.Context, orderID, userID, productID string) (domain.Order, error)
	DecideReturn(ctx context.Context, cmd ReturnDecisionCommand) (domain.Order, error)
	ConfirmPickup(ctx context.Context, orderID, productID, adminID string) (domain.Order, error)
	// ProcessRefund issues the gateway refund for an approved, picked-up line.
	ProcessRefund(ctx context.Context, orderID, productID, adminID string) (domain.Order, error)
	// CreateReplacement creates the zero-priced replacement order for an
	// approved, picked-up replacement return.
	CreateReplacement(ctx context.Context, orderID, productID, adminID string) (domain.Order, error)
	RefundStatus(ctx context.Context, orderID, userID string) (RefundStatusView, error)
}

// PricedLine is an order line enriched with catalog data, used during
// discount evaluation.
type PricedLine struct {
	ProductID string
	Slug      string
	Color     string
	Size      string
	Quantity  int
	UnitPrice int64
}

// PreorderFold is the outcome of matching pending preorders against an order.
type PreorderFold struct {
	Deduction   int64
	ConsumedIDs []string
}

// CodeEvaluation is the outcome of validating a discount code for a user and
// line set.
type CodeEvaluation struct {
	Discount  domain.Discount
	Deduction int64
}

// DiscountService resolves both preorder deposits and promotional codes into
// order deductions.
type DiscountService interface {
	PendingPreorders(ctx context.Context, userID string) ([]domain.Preorder, error)
	// FoldPreorders matches pending preorders against the priced lines. Each
	// preorder is consumed at most once.
	FoldPreorders(preorders []domain.Preorder, lines []PricedLine) PreorderFold
	// EvaluateCode validates the code and computes its deduction against the
	// subtotal remaining after preorder folding.
	EvaluateCode(ctx context.Context, userID, code string, lines []PricedLine, subtotal int64) (CodeEvaluation, error)
	// RedeemCode records a redemption; called inside the order transaction.
	RedeemCode(ctx context.Context, discountID, userID string) error
}
