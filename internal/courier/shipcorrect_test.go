package courier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/config"
)

func testOrder() domain.Order {
	return domain.Order{
		OrderID:       "ORD-20250701-AB12CD34",
		PaymentMethod: domain.PaymentMethodCOD,
		TotalPrice:    1499,
		ShippingAddress: domain.ShippingAddress{
			Name:          "Asha Rao",
			Email:         "asha@example.com",
			Address:       "12 MG Road",
			City:          "Bengaluru",
			State:         "Karnataka",
			PostalCode:    "560001",
			DeliveryPhone: "9800000000",
		},
	}
}

func testLine() domain.OrderLineItem {
	return domain.OrderLineItem{
		ProductID:    "prod-1",
		ProductName:  "Linen Kurta",
		SKU:          "KUR-IND-M",
		Color:        "Indigo",
		Size:         "M",
		Quantity:     2,
		PriceAtOrder: 700,
	}
}

func newTestClient(t *testing.T, createURL, trackingURL string, attempts int) *ShipCorrectClient {
	t.Helper()
	client, err := NewShipCorrectClient(config.CourierConfig{
		APIKey:      "test-key",
		CreateURL:   createURL,
		TrackingURL: trackingURL,
		Timeout:     2 * time.Second,
		MaxAttempts: attempts,
	})
	if err != nil {
		t.Fatalf("NewShipCorrectClient returned error: %v", err)
	}
	return client
}

func TestCreateShipmentStringTypedPayload(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"order_no": "SC-1001"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "", 1)
	result, err := client.CreateShipment(context.Background(), ShipmentRequest{Order: testOrder(), Line: testLine()})
	if err != nil {
		t.Fatalf("CreateShipment returned error: %v", err)
	}
	if result.OrderNo != "SC-1001" {
		t.Errorf("unexpected courier order no: %s", result.OrderNo)
	}

	// Every value crosses the wire as a string.
	if received["quantity"] != "2" {
		t.Errorf("quantity not stringified: %q", received["quantity"])
	}
	if received["mrp"] != "700" {
		t.Errorf("mrp not stringified: %q", received["mrp"])
	}
	if received["total_amount"] != "1499" {
		t.Errorf("total_amount not stringified: %q", received["total_amount"])
	}
	if received["pay_mode"] != "COD" {
		t.Errorf("unexpected pay_mode: %q", received["pay_mode"])
	}
	if received["api_key"] != "test-key" {
		t.Errorf("api key missing from payload")
	}
	if received["client_order_no"] != "ORD-20250701-AB12CD34" {
		t.Errorf("unexpected client order no: %q", received["client_order_no"])
	}
}

func TestCreateShipmentPrepaidPayMode(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(map[string]any{"order_no": "SC-1002"})
	}))
	defer server.Close()

	order := testOrder()
	order.PaymentMethod = domain.PaymentMethodPrepaid

	client := newTestClient(t, server.URL, "", 1)
	if _, err := client.CreateShipment(context.Background(), ShipmentRequest{Order: order, Line: testLine()}); err != nil {
		t.Fatalf("CreateShipment returned error: %v", err)
	}
	if received["pay_mode"] != "PREPAID" {
		t.Errorf("unexpected pay_mode: %q", received["pay_mode"])
	}
}

func TestCreateShipmentRetriesTransientFailures(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"order_no": "SC-1003"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "", 4)
	result, err := client.CreateShipment(context.Background(), ShipmentRequest{Order: testOrder(), Line: testLine()})
	if err != nil {
		t.Fatalf("CreateShipment returned error after retries: %v", err)
	}
	if result.OrderNo != "SC-1003" {
		t.Errorf("unexpected courier order no: %s", result.OrderNo)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestCreateShipmentDoesNotRetryRejections(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "", 4)
	_, err := client.CreateShipment(context.Background(), ShipmentRequest{Order: testOrder(), Line: testLine()})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call for a 4xx response, got %d", calls)
	}
}

func TestCreateShipmentExhaustsRetries(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "", 3)
	_, err := client.CreateShipment(context.Background(), ShipmentRequest{Order: testOrder(), Line: testLine()})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestTracking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["order_no"] != "SC-1001" {
			t.Errorf("unexpected order_no: %q", payload["order_no"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "In Transit"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, server.URL, 1)
	info, err := client.Tracking(context.Background(), "SC-1001")
	if err != nil {
		t.Fatalf("Tracking returned error: %v", err)
	}
	if info.Status != "In Transit" {
		t.Errorf("unexpected status: %s", info.Status)
	}
}

func TestTrackingRequiresConfiguration(t *testing.T) {
	client := newTestClient(t, "https://courier.example.com/create", "", 1)
	if _, err := client.Tracking(context.Background(), "SC-1"); err == nil {
		t.Fatal("expected error when tracking url is unset")
	}
}
