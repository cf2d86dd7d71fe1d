package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
)

// orderAPI is the slice of the Razorpay SDK order resource the adapter uses.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// paymentAPI is the slice of the Razorpay SDK payment resource the adapter uses.
type paymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGateway implements Gateway on the official Razorpay SDK.
type RazorpayGateway struct {
	orders   orderAPI
	payments paymentAPI
	currency string
}

// RazorpayOption customises the gateway adapter.
type RazorpayOption func(*RazorpayGateway)

// WithCurrency overrides the default settlement currency.
func WithCurrency(currency string) RazorpayOption {
	return func(g *RazorpayGateway) {
		if trimmed := strings.TrimSpace(currency); trimmed != "" {
			g.currency = trimmed
		}
	}
}

// NewRazorpayGateway constructs the adapter from API credentials.
func NewRazorpayGateway(keyID, keySecret string, opts ...RazorpayOption) (*RazorpayGateway, error) {
	if strings.TrimSpace(keyID) == "" || strings.TrimSpace(keySecret) == "" {
		return nil, errors.New("payments: razorpay credentials are required")
	}
	client := razorpay.NewClient(keyID, keySecret)
	gateway := &RazorpayGateway{
		orders:   client.Order,
		payments: client.Payment,
		currency: "INR",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(gateway)
		}
	}
	return gateway, nil
}

// CreateOrder registers a payment intent with Razorpay.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return GatewayOrder{}, err
	}
	if req.AmountMinor <= 0 {
		return GatewayOrder{}, fmt.Errorf("payments: order amount must be positive, got %d", req.AmountMinor)
	}

	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}

	data := map[string]interface{}{
		"amount":   req.AmountMinor,
		"currency": currency,
	}
	if req.Receipt != "" {
		data["receipt"] = req.Receipt
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	body, err := g.orders.Create(data, nil)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: create order: %v", ErrGatewayUnavailable, err)
	}

	order := GatewayOrder{
		ID:          asString(body["id"]),
		AmountMinor: asInt64(body["amount"]),
		Currency:    asString(body["currency"]),
	}
	if order.ID == "" {
		return GatewayOrder{}, fmt.Errorf("payments: gateway order response missing id: %v", body)
	}
	return order, nil
}

// FetchPayment retrieves a payment entity from Razorpay.
func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	if strings.TrimSpace(paymentID) == "" {
		return Payment{}, errors.New("payments: payment id is required")
	}

	body, err := g.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: fetch payment %s: %v", ErrGatewayUnavailable, paymentID, err)
	}
	return paymentFromEntity(body), nil
}

// Refund issues a refund for amountMinor against the captured payment.
func (g *RazorpayGateway) Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (Refund, error) {
	if err := ctx.Err(); err != nil {
		return Refund{}, err
	}
	if strings.TrimSpace(paymentID) == "" {
		return Refund{}, errors.New("payments: payment id is required")
	}
	if amountMinor <= 0 {
		return Refund{}, fmt.Errorf("payments: refund amount must be positive, got %d", amountMinor)
	}

	data := map[string]interface{}{}
	if len(notes) > 0 {
		converted := make(map[string]interface{}, len(notes))
		for k, v := range notes {
			converted[k] = v
		}
		data["notes"] = converted
	}

	body, err := g.payments.Refund(paymentID, int(amountMinor), data, nil)
	if err != nil {
		return Refund{}, fmt.Errorf("%w: payment %s: %v", ErrRefundRejected, paymentID, err)
	}

	refund := Refund{
		ID:          asString(body["id"]),
		PaymentID:   asString(body["payment_id"]),
		AmountMinor: asInt64(body["amount"]),
		Status:      asString(body["status"]),
	}
	if refund.ID == "" {
		return Refund{}, fmt.Errorf("payments: refund response missing id: %v", body)
	}
	return refund, nil
}

// PaymentFromEntity maps a raw gateway payment entity (SDK response or
// webhook payload) into the typed Payment.
func PaymentFromEntity(entity map[string]any) Payment {
	return paymentFromEntity(entity)
}

func paymentFromEntity(entity map[string]any) Payment {
	return Payment{
		ID:          asString(entity["id"]),
		OrderID:     asString(entity["order_id"]),
		AmountMinor: asInt64(entity["amount"]),
		Status:      asString(entity["status"]),
		Method:      asString(entity["method"]),
		Raw:         entity,
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch value := v.(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case float64:
		return int64(value)
	case json.Number:
		parsed, _ := value.Int64()
		return parsed
	case string:
		parsed, _ := strconv.ParseInt(value, 10, 64)
		return parsed
	default:
		return 0
	}
}
