package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrVariantNotFound indicates the color/size pair does not exist on the product.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrInsufficientStock indicates a decrement would take on-hand stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// OrderStatus enumerates the order-level lifecycle states.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "Pending"
	OrderStatusProcessing      OrderStatus = "Processing"
	OrderStatusShipped         OrderStatus = "Shipped"
	OrderStatusDelivered       OrderStatus = "Delivered"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusReturnRequested OrderStatus = "Return Requested"
	OrderStatusReturned        OrderStatus = "Returned"
)

// LineItemStatus enumerates the per-line-item lifecycle states.
type LineItemStatus string

const (
	LineItemStatusPending         LineItemStatus = "Pending"
	LineItemStatusDelivered       LineItemStatus = "Delivered"
	LineItemStatusReturnRequested LineItemStatus = "Return Requested"
	LineItemStatusReturnApproved  LineItemStatus = "Return Approved"
	LineItemStatusReturnRejected  LineItemStatus = "Return Rejected"
	LineItemStatusReturned        LineItemStatus = "Returned"
	LineItemStatusRefunded        LineItemStatus = "Refunded"
)

// PickupStatus tracks the reverse-logistics pickup of a returned line item.
type PickupStatus string

const (
	PickupStatusPending  PickupStatus = "Pending"
	PickupStatusPickedUp PickupStatus = "Picked Up"
)

// RefundStatus is the order-level refund rollup state.
type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "None"
	RefundStatusRequested RefundStatus = "Requested"
	RefundStatusApproved  RefundStatus = "Approved"
	RefundStatusRejected  RefundStatus = "Rejected"
	RefundStatusProcessed RefundStatus = "Processed"
)

// ResolutionType is the customer's requested outcome for a return.
type ResolutionType string

const (
	ResolutionRefund      ResolutionType = "Refund"
	ResolutionReplacement ResolutionType = "Replacement"
)

// PaymentMethod is the closed set of accepted payment flows.
type PaymentMethod string

const (
	PaymentMethodCOD         PaymentMethod = "cod"
	PaymentMethodPrepaid     PaymentMethod = "prepaid"
	PaymentMethodReplacement PaymentMethod = "replacement"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusProcessing:      {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:         {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:       {OrderStatusReturnRequested},
	OrderStatusReturnRequested: {OrderStatusDelivered, OrderStatusReturned},
}

var lineItemTransitions = map[LineItemStatus][]LineItemStatus{
	LineItemStatusPending:         {LineItemStatusDelivered},
	LineItemStatusDelivered:       {LineItemStatusReturnRequested},
	LineItemStatusReturnRequested: {LineItemStatusDelivered, LineItemStatusReturnApproved, LineItemStatusReturnRejected},
	LineItemStatusReturnApproved:  {LineItemStatusRefunded, LineItemStatusReturned},
}

// CanTransitionOrder reports whether the order-level transition is legal.
func CanTransitionOrder(current, target OrderStatus) bool {
	if current == target {
		return true
	}
	for _, next := range orderTransitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// CanTransitionLineItem reports whether the per-line transition is legal.
func CanTransitionLineItem(current, target LineItemStatus) bool {
	if current == target {
		return true
	}
	for _, next := range lineItemTransitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// ValidOrderStatus reports whether the value belongs to the closed status set.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturnRequested, OrderStatusReturned:
		return true
	}
	return false
}

// ShippingAddress is a point-in-time snapshot copied onto the order at creation.
type ShippingAddress struct {
	Name          string `firestore:"name" json:"name"`
	Email         string `firestore:"email" json:"email"`
	Address       string `firestore:"address" json:"address"`
	City          string `firestore:"city,omitempty" json:"city,omitempty"`
	State         string `firestore:"state,omitempty" json:"state,omitempty"`
	PostalCode    string `firestore:"postalCode" json:"postalCode"`
	DeliveryPhone string `firestore:"deliveryPhone,omitempty" json:"deliveryPhone,omitempty"`
}

// RefundRecord is the per-line refund sub-record. A reservation carries only
// RefundInitiatedAt; the remaining fields are written once the gateway refund
// succeeds.
type RefundRecord struct {
	RefundDate          *time.Time `firestore:"refundDate,omitempty" json:"refundDate,omitempty"`
	RefundAmount        int64      `firestore:"refundAmount,omitempty" json:"refundAmount,omitempty"`
	RefundTransactionID string     `firestore:"refundTransactionId,omitempty" json:"refundTransactionId,omitempty"`
	// RefundInitiatedAt marks a refund reserved against the line but not yet
	// confirmed by the gateway; it blocks concurrent submissions.
	RefundInitiatedAt *time.Time `firestore:"refundInitiatedAt,omitempty" json:"refundInitiatedAt,omitempty"`
}

// OrderLineItem is embedded in an Order; it has no identity outside its parent.
// Product name, slug, SKU, and price are denormalised at purchase time.
type OrderLineItem struct {
	ProductID    string         `firestore:"productId" json:"productId"`
	ProductName  string         `firestore:"productName" json:"productName"`
	Slug         string         `firestore:"slug,omitempty" json:"slug,omitempty"`
	SKU          string         `firestore:"sku,omitempty" json:"sku,omitempty"`
	Color        string         `firestore:"color" json:"color"`
	Size         string         `firestore:"size" json:"size"`
	Quantity     int            `firestore:"quantity" json:"quantity"`
	PriceAtOrder int64          `firestore:"priceAtOrder" json:"priceAtOrder"`
	Status       LineItemStatus `firestore:"status" json:"status"`

	ReturnIssueType      string         `firestore:"returnIssueType,omitempty" json:"returnIssueType,omitempty"`
	ReturnIssueDesc      string         `firestore:"returnIssueDesc,omitempty" json:"returnIssueDesc,omitempty"`
	ReturnResolutionType ResolutionType `firestore:"returnResolutionType,omitempty" json:"returnResolutionType,omitempty"`
	ReturnImages         []string       `firestore:"returnImages,omitempty" json:"returnImages,omitempty"`
	PickupStatus         PickupStatus   `firestore:"pickupStatus" json:"pickupStatus"`
	ReturnDecisionNote   string         `firestore:"returnDecisionNote,omitempty" json:"returnDecisionNote,omitempty"`
	ExchangeToColor      string         `firestore:"exchangeToColor,omitempty" json:"exchangeToColor,omitempty"`
	ExchangeToSize       string         `firestore:"exchangeToSize,omitempty" json:"exchangeToSize,omitempty"`
	ReplacementOrderID   string         `firestore:"replacementOrderId,omitempty" json:"replacementOrderId,omitempty"`
	ReturnDetails        *RefundRecord  `firestore:"returnDetails,omitempty" json:"returnDetails,omitempty"`
}

// Subtotal returns priceAtOrder × quantity.
func (li OrderLineItem) Subtotal() int64 {
	return li.PriceAtOrder * int64(li.Quantity)
}

// PaymentCapture holds the raw gateway payment entity recorded via webhook,
// including the amount actually captured in minor currency units. Refund
// headroom derives from this, never from the declared order total.
type PaymentCapture struct {
	PaymentID   string         `firestore:"paymentId" json:"paymentId"`
	AmountMinor int64          `firestore:"amountMinor" json:"amountMinor"`
	Raw         map[string]any `firestore:"raw,omitempty" json:"raw,omitempty"`
}

// Order is the root aggregate. It is created once inside a transaction and is
// only ever status-transitioned afterwards, never deleted.
type Order struct {
	ID      string `firestore:"-" json:"id"`
	OrderID string `firestore:"orderId" json:"orderId"`
	UserID  string `firestore:"user" json:"user"`

	Items []OrderLineItem `firestore:"products" json:"products"`

	ShippingAddress ShippingAddress `firestore:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `firestore:"paymentMethod" json:"paymentMethod"`
	ShippingCost    int64           `firestore:"shippingCost" json:"shippingCost"`
	TotalPrice      int64           `firestore:"totalPrice" json:"totalPrice"`
	GiftWrap        bool            `firestore:"giftWrap,omitempty" json:"giftWrap,omitempty"`

	IsPaid            bool            `firestore:"isPaid" json:"isPaid"`
	PaidAt            *time.Time      `firestore:"paidAt,omitempty" json:"paidAt,omitempty"`
	RazorpayOrderID   string          `firestore:"razorpayOrderId,omitempty" json:"razorpayOrderId,omitempty"`
	RazorpayPaymentID string          `firestore:"razorpayPaymentId,omitempty" json:"razorpayPaymentId,omitempty"`
	RazorpaySignature string          `firestore:"razorpaySignature,omitempty" json:"razorpaySignature,omitempty"`
	PaymentDetails    *PaymentCapture `firestore:"paymentDetails,omitempty" json:"paymentDetails,omitempty"`

	Status OrderStatus `firestore:"status" json:"status"`
	// HasOpenReturns is maintained alongside line transitions so the admin
	// return queue can be queried without scanning every order.
	HasOpenReturns    bool        `firestore:"hasOpenReturns" json:"hasOpenReturns"`
	DeliveredAt       *time.Time  `firestore:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CancelledAt       *time.Time  `firestore:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	ReturnRequestedAt *time.Time  `firestore:"returnRequestedAt,omitempty" json:"returnRequestedAt,omitempty"`
	LastUpdatedBy     string      `firestore:"lastUpdatedBy,omitempty" json:"lastUpdatedBy,omitempty"`

	RefundStatus        RefundStatus `firestore:"refundStatus" json:"refundStatus"`
	RefundedAmount      int64        `firestore:"refundedAmount,omitempty" json:"refundedAmount,omitempty"`
	RefundTransactionID string       `firestore:"refundTransactionId,omitempty" json:"refundTransactionId,omitempty"`
	RefundDate          *time.Time   `firestore:"refundDate,omitempty" json:"refundDate,omitempty"`
	// RefundableMinor is the remaining refund headroom in minor currency
	// units, initialised from the captured amount when the order is paid and
	// decremented on every successful refund.
	RefundableMinor int64 `firestore:"refundableMinor,omitempty" json:"refundableMinor,omitempty"`

	ShippedFrom        string `firestore:"shippedFrom,omitempty" json:"shippedFrom,omitempty"`
	TrackingNumber     string `firestore:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	ShippingCarrier    string `firestore:"shippingCarrier,omitempty" json:"shippingCarrier,omitempty"`
	ShipcorrectOrderNo string `firestore:"shipcorrectOrderNo,omitempty" json:"shipcorrectOrderNo,omitempty"`

	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// LineByProductID returns a pointer to the line item for the given product, or nil.
func (o *Order) LineByProductID(productID string) *OrderLineItem {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return &o.Items[i]
		}
	}
	return nil
}

// AllLines reports whether every line item is in the given status.
func (o *Order) AllLines(status LineItemStatus) bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, li := range o.Items {
		if li.Status != status {
			return false
		}
	}
	return true
}

// PreorderStatus enumerates preorder deposit states.
type PreorderStatus string

const (
	PreorderStatusPending   PreorderStatus = "pending"
	PreorderStatusCompleted PreorderStatus = "completed"
)

// DiscountKind distinguishes fixed-amount from percentage discounts.
type DiscountKind string

const (
	DiscountFixed      DiscountKind = "fixed"
	DiscountPercentage DiscountKind = "percentage"
)

// Preorder is a deposit-backed reservation of a product variant. It is
// consumed exactly once: folded into a discount during order creation and
// flipped to completed in the same transaction.
type Preorder struct {
	ID            string         `firestore:"-" json:"id"`
	UserID        string         `firestore:"user" json:"user"`
	ProductID     string         `firestore:"product" json:"product"`
	Color         string         `firestore:"color,omitempty" json:"color,omitempty"`
	Size          string         `firestore:"size,omitempty" json:"size,omitempty"`
	AmountPaid    int64          `firestore:"amountPaid" json:"amountPaid"`
	Status        PreorderStatus `firestore:"status" json:"status"`
	DiscountType  DiscountKind   `firestore:"discountType" json:"discountType"`
	DiscountValue int64          `firestore:"discountValue" json:"discountValue"`
	CreatedAt     time.Time      `firestore:"createdAt" json:"createdAt"`
}

// DiscountFor computes the deduction this preorder contributes for a line
// priced at unitPrice, including the mandatory deposit.
func (p Preorder) DiscountFor(unitPrice int64) int64 {
	var discount int64
	switch p.DiscountType {
	case DiscountPercentage:
		discount = unitPrice * p.DiscountValue / 100
	case DiscountFixed:
		discount = p.DiscountValue
	}
	deposit := p.AmountPaid
	if deposit == 0 {
		deposit = 100
	}
	return discount + deposit
}

// Discount is a promotional code with eligibility constraints and a guarded
// usage counter.
type Discount struct {
	ID             string       `firestore:"-" json:"id"`
	Code           string       `firestore:"code" json:"code"`
	DiscountType   DiscountKind `firestore:"discountType" json:"discountType"`
	DiscountValue  int64        `firestore:"discountValue" json:"discountValue"`
	ExpiryDate     time.Time    `firestore:"expiryDate" json:"expiryDate"`
	IsActive       bool         `firestore:"isActive" json:"isActive"`
	UsageLimit     int          `firestore:"usageLimit" json:"usageLimit"`
	UsedCount      int          `firestore:"usedCount" json:"usedCount"`
	MinOrderAmount int64        `firestore:"minOrderAmount,omitempty" json:"minOrderAmount,omitempty"`
	AllowedUsers   []string     `firestore:"allowedUsers,omitempty" json:"allowedUsers,omitempty"`
	ProductSlugs   []string     `firestore:"productSlugs,omitempty" json:"productSlugs,omitempty"`
	MinQuantity    int          `firestore:"minQuantity,omitempty" json:"minQuantity,omitempty"`
	UsersUsed      []string     `firestore:"usersUsed,omitempty" json:"usersUsed,omitempty"`
}

// Expired reports whether the code is past its expiry at the given instant.
func (d Discount) Expired(now time.Time) bool {
	return d.ExpiryDate.Before(now)
}

// UsedBy reports whether the user has already redeemed this code.
func (d Discount) UsedBy(userID string) bool {
	for _, u := range d.UsersUsed {
		if u == userID {
			return true
		}
	}
	return false
}

// SizeDetail describes one size entry within a color variant. The per-color
// size table is always a map from size key to this struct; there is no
// alternate representation.
type SizeDetail struct {
	SKU      string `firestore:"sku" json:"sku"`
	Quantity int    `firestore:"quantity" json:"quantity"`
}

// ColorVariant is one color of a product with its size table.
type ColorVariant struct {
	Name  string                `firestore:"name" json:"name"`
	Sizes map[string]SizeDetail `firestore:"sizes" json:"sizes"`
}

// Product is the read-only catalog view the orchestrator enriches line items
// against. Catalog CRUD is owned by a collaborator service.
type Product struct {
	ID     string         `firestore:"-" json:"id"`
	Name   string         `firestore:"name" json:"name"`
	Slug   string         `firestore:"slug" json:"slug"`
	Price  int64          `firestore:"price" json:"price"`
	Colors []ColorVariant `firestore:"colors" json:"colors"`
}

// Variant resolves a color+size pair against the product's variants. Color
// matching is case-insensitive; size keys are exact.
func (p Product) Variant(color, size string) (ColorVariant, SizeDetail, bool) {
	for _, cv := range p.Colors {
		if strings.EqualFold(strings.TrimSpace(cv.Name), strings.TrimSpace(color)) {
			detail, ok := cv.Sizes[strings.TrimSpace(size)]
			return cv, detail, ok
		}
	}
	return ColorVariant{}, SizeDetail{}, false
}

// AdjustStock moves the on-hand quantity of one variant by delta, mutating
// the product in place. Negative deltas that would go below zero fail.
func (p *Product) AdjustStock(color, size string, delta int) error {
	for i, cv := range p.Colors {
		if !strings.EqualFold(strings.TrimSpace(cv.Name), strings.TrimSpace(color)) {
			continue
		}
		key := strings.TrimSpace(size)
		detail, ok := cv.Sizes[key]
		if !ok {
			return fmt.Errorf("%w: product %s color %q size %q", ErrVariantNotFound, p.ID, color, size)
		}
		next := detail.Quantity + delta
		if next < 0 {
			return fmt.Errorf("%w: product %s %s/%s has %d, want %d", ErrInsufficientStock, p.ID, color, size, detail.Quantity, -delta)
		}
		detail.Quantity = next
		p.Colors[i].Sizes[key] = detail
		return nil
	}
	return fmt.Errorf("%w: product %s color %q", ErrVariantNotFound, p.ID, color)
}

// User is the minimal account reference the order core needs; account
// management is a collaborator concern.
type User struct {
	ID    string `firestore:"-" json:"id"`
	Name  string `firestore:"name" json:"name"`
	Email string `firestore:"email" json:"email"`
}
