package domain

import (
	"testing"
	"time"
)

func TestCanTransitionOrder(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusShipped, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusProcessing, OrderStatusDelivered, false},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusReturnRequested, true},
		{OrderStatusReturnRequested, OrderStatusDelivered, true},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusCancelled, true},
	}
	for _, tc := range cases {
		if got := CanTransitionOrder(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionOrder(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCanTransitionLineItem(t *testing.T) {
	cases := []struct {
		from, to LineItemStatus
		want     bool
	}{
		{LineItemStatusPending, LineItemStatusDelivered, true},
		{LineItemStatusDelivered, LineItemStatusReturnRequested, true},
		{LineItemStatusDelivered, LineItemStatusRefunded, false},
		{LineItemStatusReturnRequested, LineItemStatusReturnApproved, true},
		{LineItemStatusReturnRequested, LineItemStatusReturnRejected, true},
		{LineItemStatusReturnRequested, LineItemStatusDelivered, true},
		{LineItemStatusReturnRequested, LineItemStatusRefunded, false},
		{LineItemStatusReturnApproved, LineItemStatusRefunded, true},
		{LineItemStatusReturnApproved, LineItemStatusReturned, true},
		{LineItemStatusReturnRejected, LineItemStatusRefunded, false},
		{LineItemStatusRefunded, LineItemStatusDelivered, false},
	}
	for _, tc := range cases {
		if got := CanTransitionLineItem(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionLineItem(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestPreorderDiscountFor(t *testing.T) {
	fixed := Preorder{DiscountType: DiscountFixed, DiscountValue: 100, AmountPaid: 100}
	if got := fixed.DiscountFor(999); got != 200 {
		t.Fatalf("fixed discount = %d, want 200", got)
	}

	pct := Preorder{DiscountType: DiscountPercentage, DiscountValue: 10, AmountPaid: 100}
	if got := pct.DiscountFor(1000); got != 200 {
		t.Fatalf("percentage discount = %d, want 200", got)
	}

	// A zero deposit still deducts the default deposit value.
	noDeposit := Preorder{DiscountType: DiscountFixed, DiscountValue: 50}
	if got := noDeposit.DiscountFor(500); got != 150 {
		t.Fatalf("default deposit discount = %d, want 150", got)
	}
}

func TestProductVariant(t *testing.T) {
	p := Product{
		Name: "Kurta",
		Colors: []ColorVariant{
			{Name: "Indigo", Sizes: map[string]SizeDetail{"M": {SKU: "KUR-IND-M", Quantity: 3}}},
		},
	}

	if _, detail, ok := p.Variant("indigo", "M"); !ok || detail.SKU != "KUR-IND-M" {
		t.Fatalf("expected case-insensitive color match, got ok=%v detail=%+v", ok, detail)
	}
	if _, _, ok := p.Variant("Indigo", "XL"); ok {
		t.Fatal("expected missing size to report not found")
	}
	if _, _, ok := p.Variant("Crimson", "M"); ok {
		t.Fatal("expected missing color to report not found")
	}
}

func TestDiscountEligibilityHelpers(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	d := Discount{
		Code:       "WELCOME10",
		ExpiryDate: now.Add(24 * time.Hour),
		UsersUsed:  []string{"user-1"},
	}
	if d.Expired(now) {
		t.Fatal("discount should not be expired")
	}
	if !d.Expired(now.Add(48 * time.Hour)) {
		t.Fatal("discount should be expired")
	}
	if !d.UsedBy("user-1") || d.UsedBy("user-2") {
		t.Fatal("UsedBy mismatch")
	}
}
