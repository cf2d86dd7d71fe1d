package services

import (
	"context"
	"errors"
	"testing"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/payments"
)

type returnServiceFixture struct {
	service  ReturnService
	orders   *stubOrderRepo
	products *stubProductRepo
	gateway  *stubGateway
	courier  *stubCourier
}

func newReturnServiceFixture(t *testing.T, orders ...domain.Order) *returnServiceFixture {
	t.Helper()

	fixture := &returnServiceFixture{
		orders:   newStubOrderRepo(orders...),
		products: newStubProductRepo(testProduct("p1", 1000, 5), testProduct("p2", 500, 3)),
		gateway:  &stubGateway{},
		courier:  &stubCourier{},
	}

	var err error
	fixture.service, err = NewReturnService(ReturnServiceDeps{
		Orders:      fixture.orders,
		Products:    fixture.products,
		Gateway:     fixture.gateway,
		Courier:     fixture.courier,
		Events:      &capturePublisher{},
		Clock:       fixedClock(testNow),
		IDGenerator: sequenceIDs("rid"),
	})
	if err != nil {
		t.Fatalf("NewReturnService: %v", err)
	}
	return fixture
}

func deliveredPrepaidOrder() domain.Order {
	return domain.Order{
		ID:                "o1",
		OrderID:           "ORD-20250314-AAAA1111",
		UserID:            "u1",
		PaymentMethod:     domain.PaymentMethodPrepaid,
		IsPaid:            true,
		RazorpayOrderID:   "order_rzp1",
		RazorpayPaymentID: "pay_1",
		RefundableMinor:   300000,
		TotalPrice:        2500,
		Status:            domain.OrderStatusDelivered,
		RefundStatus:      domain.RefundStatusNone,
		ShippingAddress:   testAddress(),
		Items: []domain.OrderLineItem{
			{ProductID: "p1", ProductName: "Product p1", Slug: "slug-p1", SKU: "p1-BLK-M", Color: "Black", Size: "M", Quantity: 2, PriceAtOrder: 1000, Status: domain.LineItemStatusDelivered, PickupStatus: domain.PickupStatusPending},
			{ProductID: "p2", ProductName: "Product p2", Slug: "slug-p2", SKU: "p2-BLK-L", Color: "Black", Size: "L", Quantity: 1, PriceAtOrder: 500, Status: domain.LineItemStatusDelivered, PickupStatus: domain.PickupStatusPending},
		},
	}
}

func refundRequest() ReturnRequestCommand {
	return ReturnRequestCommand{
		OrderID:    "o1",
		UserID:     "u1",
		ProductID:  "p1",
		IssueType:  "damaged",
		IssueDesc:  "seam came apart",
		Resolution: domain.ResolutionRefund,
		Images:     []string{"gs://bucket/returns/o1/p1/1.jpg"},
	}
}

func TestRequestReturn(t *testing.T) {
	fixture := newReturnServiceFixture(t, deliveredPrepaidOrder())

	order, err := fixture.service.RequestReturn(context.Background(), refundRequest())
	if err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}

	line := order.LineByProductID("p1")
	if line.Status != domain.LineItemStatusReturnRequested {
		t.Errorf("line status = %s, want Return Requested", line.Status)
	}
	if line.ReturnIssueType != "damaged" || line.ReturnResolutionType != domain.ResolutionRefund {
		t.Errorf("return metadata = %+v", line)
	}
	// Only one of two lines is in a return, so the order itself stays
	// Delivered and the open-returns marker carries the queue.
	if order.Status != domain.OrderStatusDelivered || order.ReturnRequestedAt == nil {
		t.Errorf("order status = %s, want Delivered with return timestamp", order.Status)
	}
	if !order.HasOpenReturns {
		t.Error("open-returns marker not set")
	}
	if order.RefundStatus != domain.RefundStatusRequested {
		t.Errorf("refund status = %s, want Requested", order.RefundStatus)
	}
	// Untouched sibling line stays delivered.
	if other := order.LineByProductID("p2"); other.Status != domain.LineItemStatusDelivered {
		t.Errorf("sibling line status = %s", other.Status)
	}
}

func TestRequestReturnGuards(t *testing.T) {
	pending := deliveredPrepaidOrder()
	pending.ID = "o2"
	pending.OrderID = "ORD-20250314-BBBB2222"
	pending.Status = domain.OrderStatusPending
	fixture := newReturnServiceFixture(t, deliveredPrepaidOrder(), pending)

	cases := []struct {
		name   string
		mutate func(*ReturnRequestCommand)
		want   error
	}{
		{"wrong user", func(c *ReturnRequestCommand) { c.UserID = "u2" }, ErrOrderForbidden},
		{"undelivered order", func(c *ReturnRequestCommand) { c.OrderID = "o2" }, ErrReturnInvalidState},
		{"unknown line", func(c *ReturnRequestCommand) { c.ProductID = "ghost" }, ErrReturnLineNotFound},
		{"missing issue type", func(c *ReturnRequestCommand) { c.IssueType = " " }, ErrReturnInvalidInput},
		{"missing issue description", func(c *ReturnRequestCommand) { c.IssueDesc = "" }, ErrReturnInvalidInput},
		{"bad resolution", func(c *ReturnRequestCommand) { c.Resolution = "StoreCredit" }, ErrReturnInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := refundRequest()
			tc.mutate(&cmd)
			if _, err := fixture.service.RequestReturn(context.Background(), cmd); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRequestReplacementChecksExchangeStock(t *testing.T) {
	fixture := newReturnServiceFixture(t, deliveredPrepaidOrder())

	cmd := refundRequest()
	cmd.Resolution = domain.ResolutionReplacement
	cmd.ExchangeToSize = "XXL"
	if _, err := fixture.service.RequestReturn(context.Background(), cmd); !errors.Is(err, ErrReturnInvalidInput) {
		t.Errorf("unknown exchange variant: err = %v, want ErrReturnInvalidInput", err)
	}

	cmd.ExchangeToSize = "L"
	order, err := fixture.service.RequestReturn(context.Background(), cmd)
	if err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}
	line := order.LineByProductID("p1")
	if line.ExchangeToSize != "L" {
		t.Errorf("exchange size = %q, want L", line.ExchangeToSize)
	}
	// Stock is only reserved when the replacement order is created.
	if got := fixture.products.quantity("p1", "Black", "L"); got != 5 {
		t.Errorf("stock = %d, want 5", got)
	}
}

func TestCancelReturn(t *testing.T) {
	fixture := newReturnServiceFixture(t, deliveredPrepaidOrder())
	if _, err := fixture.service.RequestReturn(context.Background(), refundRequest()); err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}

	order, err := fixture.service.CancelReturn(context.Background(), "o1", "u1", "p1")
	if err != nil {
		t.Fatalf("CancelReturn: %v", err)
	}
	line := order.LineByProductID("p1")
	if line.Status != domain.LineItemStatusDelivered || line.ReturnIssueType != "" {
		t.Errorf("line after cancel = %+v", line)
	}
	if order.Status != domain.OrderStatusDelivered || order.HasOpenReturns {
		t.Errorf("order after cancel: status=%s open=%v", order.Status, order.HasOpenReturns)
	}

	if _, err := fixture.service.CancelReturn(context.Background(), "o1", "u1", "p1"); !errors.Is(err, ErrReturnInvalidState) {
		t.Errorf("second cancel: err = %v, want ErrReturnInvalidState", err)
	}
}

func TestDecideReturn(t *testing.T) {
	fixture := newReturnServiceFixture(t, deliveredPrepaidOrder())
	if _, err := fixture.service.RequestReturn(context.Background(), refundRequest()); err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}

	order, err := fixture.service.DecideReturn(context.Background(), ReturnDecisionCommand{
		OrderID: "o1", ProductID: "p1", AdminID: "admin", Approve: true, Note: "photos verified",
	})
	if err != nil {
		t.Fatalf("DecideReturn: %v", err)
	}
	line := order.LineByProductID("p1")
	if line.Status != domain.LineItemStatusReturnApproved || line.ReturnDecisionNote != "photos verified" {
		t.Errorf("line after approve = %+v", line)
	}
	if order.RefundStatus != domain.RefundStatusApproved {
		t.Errorf("refund status = %s, want Approved", order.RefundStatus)
	}
	if !order.HasOpenReturns {
		t.Error("approved return still counts as open")
	}
}

func TestDecideReturnReject(t *testing.T) {
	fixture := newReturnServiceFixture(t, deliveredPrepaidOrder())
	if _, err := fixture.service.RequestReturn(context.Background(), refundRequest()); err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}

	order, err := fixture.service.DecideReturn(context.Background(), ReturnDecisionCommand{
		OrderID: "o1", ProductID: "p1", AdminID: "admin", Approve: false, Note: "wear and tear",
	})
	if err != nil {
		t.Fatalf("DecideReturn: %v", err)
	}
	if line := order.LineByProductID("p1"); line.Status != domain.LineItemStatusReturnRejected {
		t.Errorf("line status = %s, want Return Rejected", line.Status)
	}
	if order.Status != domain.OrderStatusDelivered || order.HasOpenReturns {
		t.Errorf("order after reject: status=%s open=%v", order.Status, order.HasOpenReturns)
	}
	if order.RefundStatus != domain.RefundStatusRejected {
		t.Errorf("refund status = %s, want Rejected", order.RefundStatus)
	}
}

func TestProcessRefund(t *testing.T) {
	fixture := newReturnServiceFixture(t, deliveredPrepaidOrder())
	fixture.mustApprove(t, refundRequest())

	if _, err := fixture.service.ProcessRefund(context.Background(), "o1", "p1", "admin"); !errors.Is(err, ErrRefundNotEligible) {
		t.Fatalf("refund before pickup: err = %v, want ErrRefundNotEligible", err)
	}
	if _, err := fixture.service.ConfirmPickup(context.Background(), "o1", "p1", "admin"); err != nil {
		t.Fatalf("ConfirmPickup: %v", err)
	}

	order, err := fixture.service.ProcessRefund(context.Background(), "o1", "p1", "admin")
	if err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}

	if len(fixture.gateway.refundCalls) != 1 || fixture.gateway.refundCalls[0] != payments.ToMinorUnits(2000) {
		t.Errorf("refund calls = %v, want one of 200000", fixture.gateway.refundCalls)
	}
	line := order.LineByProductID("p1")
	if line.Status != domain.LineItemStatusRefunded {
		t.Errorf("line status = %s, want Refunded", line.Status)
	}
	if line.ReturnDetails == nil || line.ReturnDetails.RefundAmount != 200000 || line.ReturnDetails.RefundTransactionID != "rfnd_1" {
		t.Errorf("refund record = %+v", line.ReturnDetails)
	}
	if order.RefundableMinor != 100000 {
		t.Errorf("headroom = %d, want 100000", order.RefundableMinor)
	}
	if order.RefundedAmount != 200000 || order.RefundStatus != domain.RefundStatusProcessed {
		t.Errorf("order refund rollup = %d/%s", order.RefundedAmount, order.RefundStatus)
	}
	if order.Status != domain.OrderStatusDelivered {
		t.Errorf("order status = %s, want Delivered while the sibling line stands", order.Status)
	}
	if order.HasOpenReturns {
		t.Error("refunded return must not stay open")
	}

	// Replaying the refund returns the recorded outcome without another
	// gateway submission.
	again, err := fixture.service.ProcessRefund(context.Background(), "o1", "p1", "admin")
	if err != nil {
		t.Fatalf("refund replay: %v", err)
	}
	if len(fixture.gateway.refundCalls) != 1 {
		t.Errorf("refund calls after replay = %d, want 1", len(fixture.gateway.refundCalls))
	}
	if again.RefundedAmount != 200000 {
		t.Errorf("replayed rollup = %d, want 200000", again.RefundedAmount)
	}
}

func TestProcessRefundInFlightReservationBlocksSecondSubmission(t *testing.T) {
	fixture := newReturnServiceFixture(t, deliveredPrepaidOrder())
	fixture.mustApprove(t, refundRequest())
	if _, err := fixture.service.ConfirmPickup(context.Background(), "o1", "p1", "admin"); err != nil {
		t.Fatalf("ConfirmPickup: %v", err)
	}

	// A competing request reserved the refund and is still waiting on the
	// gateway; this one must not submit a second gateway refund.
	order, err := fixture.orders.FindByID(context.Background(), "o1")
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	now := testNow
	order.LineByProductID("p1").ReturnDetails = &domain.RefundRecord{RefundInitiatedAt: &now}
	if err := fixture.orders.Update(context.Background(), order); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	if _, err := fixture.service.ProcessRefund(context.Background(), "o1", "p1", "admin"); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("err = %v, want ErrOrderConflict", err)
	}
	if len(fixture.gateway.refundCalls) != 0 {
		t.Errorf("gateway called %d times while a refund was in flight", len(fixture.gateway.refundCalls))
	}
}

func TestProcessRefundGatewayFailureReleasesReservation(t *testing.T) {
	fixture := newReturnServiceFixture(t, deliveredPrepaidOrder())
	fixture.mustApprove(t, refundRequest())
	if _, err := fixture.service.ConfirmPickup(context.Background(), "o1", "p1", "admin"); err != nil {
		t.Fatalf("ConfirmPickup: %v", err)
	}

	fixture.gateway.refundFn = func(context.Context, string, int64, map[string]string) (payments.Refund, error) {
		return payments.Refund{}, errors.New("gateway exploded")
	}
	if _, err := fixture.service.ProcessRefund(context.Background(), "o1", "p1", "admin"); err == nil {
		t.Fatal("expected gateway error")
	}

	// The reservation is released, so the retry reaches the gateway and
	// settles normally.
	fixture.gateway.refundFn = nil
	order, err := fixture.service.ProcessRefund(context.Background(), "o1", "p1", "admin")
	if err != nil {
		t.Fatalf("retry after gateway failure: %v", err)
	}
	if len(fixture.gateway.refundCalls) != 2 {
		t.Errorf("refund calls = %d, want 2", len(fixture.gateway.refundCalls))
	}
	if line := order.LineByProductID("p1"); line.Status != domain.LineItemStatusRefunded {
		t.Errorf("line status = %s, want Refunded", line.Status)
	}
}

func TestProcessRefundSingleLineOrderBecomesReturned(t *testing.T) {
	order := deliveredPrepaidOrder()
	order.Items = order.Items[:1]
	fixture := newReturnServiceFixture(t, order)
	fixture.mustApprove(t, refundRequest())
	if _, err := fixture.service.ConfirmPickup(context.Background(), "o1", "p1", "admin"); err != nil {
		t.Fatalf("ConfirmPickup: %v", err)
	}

	updated, err := fixture.service.ProcessRefund(context.Background(), "o1", "p1", "admin")
	if err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}
	if updated.Status != domain.OrderStatusReturned {
		t.Errorf("order status = %s, want Returned", updated.Status)
	}
}

func TestProcessRefundHeadroomExceeded(t *testing.T) {
	order := deliveredPrepaidOrder()
	order.RefundableMinor = 50000
	fixture := newReturnServiceFixture(t, order)
	fixture.mustApprove(t, refundRequest())
	if _, err := fixture.service.ConfirmPickup(context.Background(), "o1", "p1", "admin"); err != nil {
		t.Fatalf("ConfirmPickup: %v", err)
	}

	// The line is worth 200000 minor units but only 50000 remain refundable;
	// that is a hard error, never a silently truncated refund.
	if _, err := fixture.service.ProcessRefund(context.Background(), "o1", "p1", "admin"); !errors.Is(err, ErrRefundHeadroom) {
		t.Fatalf("err = %v, want ErrRefundHeadroom", err)
	}
	if len(fixture.gateway.refundCalls) != 0 {
		t.Errorf("gateway called %d times despite exhausted headroom", len(fixture.gateway.refundCalls))
	}
}

func TestProcessRefundRequiresPrepaid(t *testing.T) {
	order := deliveredPrepaidOrder()
	order.PaymentMethod = domain.PaymentMethodCOD
	order.IsPaid = false
	fixture := newReturnServiceFixture(t, order)
	fixture.mustApprove(t, refundRequest())

	if _, err := fixture.service.ProcessRefund(context.Background(), "o1", "p1", "admin"); !errors.Is(err, ErrRefundNotEligible) {
		t.Fatalf("err = %v, want ErrRefundNotEligible", err)
	}
	if len(fixture.gateway.refundCalls) != 0 {
		t.Errorf("gateway called %d times for a cash order", len(fixture.gateway.refundCalls))
	}
}

func TestCreateReplacement(t *testing.T) {
	fixture := newReturnServiceFixture(t, deliveredPrepaidOrder())

	cmd := refundRequest()
	cmd.Resolution = domain.ResolutionReplacement
	cmd.ExchangeToSize = "L"
	fixture.mustApprove(t, cmd)
	if _, err := fixture.service.ConfirmPickup(context.Background(), "o1", "p1", "admin"); err != nil {
		t.Fatalf("ConfirmPickup: %v", err)
	}

	replacement, err := fixture.service.CreateReplacement(context.Background(), "o1", "p1", "admin")
	if err != nil {
		t.Fatalf("CreateReplacement: %v", err)
	}

	if replacement.PaymentMethod != domain.PaymentMethodReplacement || replacement.TotalPrice != 0 {
		t.Errorf("replacement order = %+v, want zero-priced replacement", replacement)
	}
	if len(replacement.Items) != 1 || replacement.Items[0].Size != "L" || replacement.Items[0].PriceAtOrder != 0 {
		t.Errorf("replacement items = %+v", replacement.Items)
	}
	if got := fixture.products.quantity("p1", "Black", "L"); got != 3 {
		t.Errorf("exchange stock = %d, want 3", got)
	}

	origin := fixture.orders.get("o1")
	line := origin.LineByProductID("p1")
	if line.Status != domain.LineItemStatusReturned || line.ReplacementOrderID != replacement.ID {
		t.Errorf("origin line = %+v", line)
	}
	if len(fixture.courier.requests) != 1 {
		t.Errorf("courier calls = %d, want 1", len(fixture.courier.requests))
	}

	// A second call reuses the linked replacement instead of creating another.
	again, err := fixture.service.CreateReplacement(context.Background(), "o1", "p1", "admin")
	if err == nil {
		if again.ID != replacement.ID {
			t.Errorf("second call created %s, want %s", again.ID, replacement.ID)
		}
	} else if !errors.Is(err, ErrReturnInvalidState) {
		t.Errorf("second call err = %v", err)
	}
}

func TestRefundStatusView(t *testing.T) {
	fixture := newReturnServiceFixture(t, deliveredPrepaidOrder())
	fixture.mustApprove(t, refundRequest())
	if _, err := fixture.service.ConfirmPickup(context.Background(), "o1", "p1", "admin"); err != nil {
		t.Fatalf("ConfirmPickup: %v", err)
	}
	if _, err := fixture.service.ProcessRefund(context.Background(), "o1", "p1", "admin"); err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}

	view, err := fixture.service.RefundStatus(context.Background(), "o1", "u1")
	if err != nil {
		t.Fatalf("RefundStatus: %v", err)
	}
	if view.RefundStatus != domain.RefundStatusProcessed || view.RefundedAmount != 200000 {
		t.Errorf("view rollup = %+v", view)
	}
	if len(view.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(view.Lines))
	}
	if view.Lines[0].RefundAmount != 200000 || view.Lines[0].RefundTxnID != "rfnd_1" {
		t.Errorf("line view = %+v", view.Lines[0])
	}

	if _, err := fixture.service.RefundStatus(context.Background(), "o1", "u2"); !errors.Is(err, ErrOrderForbidden) {
		t.Errorf("other user err = %v, want ErrOrderForbidden", err)
	}
}

func (f *returnServiceFixture) mustApprove(t *testing.T, cmd ReturnRequestCommand) {
	t.Helper()
	if _, err := f.service.RequestReturn(context.Background(), cmd); err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}
	if _, err := f.service.DecideReturn(context.Background(), ReturnDecisionCommand{
		OrderID: cmd.OrderID, ProductID: cmd.ProductID, AdminID: "admin", Approve: true,
	}); err != nil {
		t.Fatalf("DecideReturn: %v", err)
	}
}
