package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/config"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 4
	initialBackoff     = 500 * time.Millisecond
)

// ErrRejected marks a definitive courier rejection; retrying will not help.
var ErrRejected = errors.New("courier: request rejected")

// ErrUnavailable marks a transient courier failure after retries were
// exhausted.
var ErrUnavailable = errors.New("courier: unavailable")

// ShipmentRequest describes a single line item hand-off to the aggregator.
// The aggregator API accepts one parcel per call; multi-line orders submit
// one request per line.
type ShipmentRequest struct {
	Order domain.Order
	Line  domain.OrderLineItem
}

// ShipmentResult carries the aggregator's acknowledgement.
type ShipmentResult struct {
	OrderNo string
	Raw     map[string]any
}

// TrackingInfo is the live tracking response for a courier order number.
type TrackingInfo struct {
	OrderNo string
	Status  string
	Raw     map[string]any
}

// Client is the shipping aggregator integration used at hand-off.
type Client interface {
	CreateShipment(ctx context.Context, req ShipmentRequest) (ShipmentResult, error)
	Tracking(ctx context.Context, orderNo string) (TrackingInfo, error)
}

// ShipCorrectClient implements Client against the ShipCorrect HTTP API. The
// API is string-typed throughout: every payload value is serialised as a
// string regardless of its natural type.
type ShipCorrectClient struct {
	httpClient  *http.Client
	apiKey      string
	createURL   string
	trackingURL string
	maxAttempts int
}

// NewShipCorrectClient constructs the aggregator client from configuration.
func NewShipCorrectClient(cfg config.CourierConfig) (*ShipCorrectClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("courier: api key is required")
	}
	if strings.TrimSpace(cfg.CreateURL) == "" {
		return nil, errors.New("courier: create url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	return &ShipCorrectClient{
		httpClient:  &http.Client{Timeout: timeout},
		apiKey:      strings.TrimSpace(cfg.APIKey),
		createURL:   strings.TrimSpace(cfg.CreateURL),
		trackingURL: strings.TrimSpace(cfg.TrackingURL),
		maxAttempts: attempts,
	}, nil
}

// CreateShipment registers one parcel with the aggregator. Transient failures
// (5xx, transport errors) are retried with exponential backoff; 4xx responses
// are definitive and returned immediately as ErrRejected.
func (c *ShipCorrectClient) CreateShipment(ctx context.Context, req ShipmentRequest) (ShipmentResult, error) {
	payload := c.shipmentPayload(req.Order, req.Line)

	body, err := c.post(ctx, c.createURL, payload)
	if err != nil {
		return ShipmentResult{}, err
	}

	result := ShipmentResult{Raw: body}
	if orderNo, ok := body["order_no"].(string); ok {
		result.OrderNo = orderNo
	}
	return result, nil
}

// Tracking fetches live tracking for a courier order number.
func (c *ShipCorrectClient) Tracking(ctx context.Context, orderNo string) (TrackingInfo, error) {
	if strings.TrimSpace(orderNo) == "" {
		return TrackingInfo{}, errors.New("courier: order number is required")
	}
	if c.trackingURL == "" {
		return TrackingInfo{}, errors.New("courier: tracking url not configured")
	}

	payload := map[string]string{
		"api_key":  c.apiKey,
		"order_no": orderNo,
	}
	body, err := c.post(ctx, c.trackingURL, payload)
	if err != nil {
		return TrackingInfo{}, err
	}

	info := TrackingInfo{OrderNo: orderNo, Raw: body}
	if status, ok := body["status"].(string); ok {
		info.Status = status
	}
	return info, nil
}

func (c *ShipCorrectClient) shipmentPayload(order domain.Order, line domain.OrderLineItem) map[string]string {
	payMode := "PREPAID"
	if order.PaymentMethod == domain.PaymentMethodCOD {
		payMode = "COD"
	}
	return map[string]string{
		"api_key":                  c.apiKey,
		"customer_name":            order.ShippingAddress.Name,
		"customer_email":           order.ShippingAddress.Email,
		"customer_address1":        order.ShippingAddress.Address,
		"customer_address_state":   order.ShippingAddress.State,
		"customer_address_city":    order.ShippingAddress.City,
		"customer_address_pincode": order.ShippingAddress.PostalCode,
		"customer_contact_number1": order.ShippingAddress.DeliveryPhone,
		"product_id":               line.ProductID,
		"product_name":             line.ProductName,
		"sku":                      line.SKU,
		"mrp":                      strconv.FormatInt(line.PriceAtOrder, 10),
		"product_size":             line.Size,
		"product_color":            line.Color,
		"pay_mode":                 payMode,
		"quantity":                 strconv.Itoa(line.Quantity),
		"total_amount":             strconv.FormatInt(order.TotalPrice, 10),
		"client_order_no":          order.OrderID,
	}
}

func (c *ShipCorrectClient) post(ctx context.Context, url string, payload map[string]string) (map[string]any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("courier: encode payload: %w", err)
	}

	var body map[string]any
	operation := func() error {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("courier: build request: %w", err))
		}
		request.Header.Set("Content-Type", "application/json")

		response, err := c.httpClient.Do(request)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer response.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
		}

		switch {
		case response.StatusCode >= 500:
			return fmt.Errorf("%w: status %d", ErrUnavailable, response.StatusCode)
		case response.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrRejected, response.StatusCode, strings.TrimSpace(string(raw))))
		}

		body = map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				return backoff.Permanent(fmt.Errorf("%w: decode response: %v", ErrRejected, err))
			}
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(initialBackoff),
		), uint64(c.maxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}
