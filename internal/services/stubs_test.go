package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/courier"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/payments"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/events"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/repositories"
)

// stubRepoError satisfies repositories.RepositoryError for tests.
type stubRepoError struct {
	msg      string
	notFound bool
	conflict bool
}

func (e stubRepoError) Error() string       { return e.msg }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return false }

func notFound(msg string) error { return stubRepoError{msg: msg, notFound: true} }

type stubOrderRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order

	insertErr error
	updateErr error
}

func newStubOrderRepo(orders ...domain.Order) *stubOrderRepo {
	repo := &stubOrderRepo{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (r *stubOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return stubRepoError{msg: "order exists", conflict: true}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepo) Update(_ context.Context, order domain.Order) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		return notFound("order " + order.ID)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepo) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, notFound("order " + id)
	}
	return order, nil
}

func (r *stubOrderRepo) FindByOrderNumber(_ context.Context, orderNumber string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderID == orderNumber {
			return o, nil
		}
	}
	return domain.Order{}, notFound("order number " + orderNumber)
}

func (r *stubOrderRepo) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.RazorpayOrderID == gatewayOrderID {
			return o, nil
		}
	}
	return domain.Order{}, notFound("gateway order " + gatewayOrderID)
}

func (r *stubOrderRepo) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *stubOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.HasReturns && !o.HasOpenReturns {
			continue
		}
		if len(filter.Status) > 0 {
			match := false
			for _, s := range filter.Status {
				if o.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *stubOrderRepo) get(id string) domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

type stubProductRepo struct {
	mu       sync.Mutex
	products map[string]domain.Product
	writes   []string
}

func newStubProductRepo(products ...domain.Product) *stubProductRepo {
	repo := &stubProductRepo{products: make(map[string]domain.Product)}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *stubProductRepo) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, notFound("product " + id)
	}
	return p, nil
}

func (r *stubProductRepo) UpdateVariantStock(_ context.Context, productID string, colors []domain.ColorVariant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return notFound("product " + productID)
	}
	p.Colors = colors
	r.products[productID] = p
	r.writes = append(r.writes, productID)
	return nil
}

func (r *stubProductRepo) quantity(productID, color, size string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, detail, _ := r.products[productID].Variant(color, size)
	return detail.Quantity
}

type stubPreorderRepo struct {
	pending   []domain.Preorder
	completed []string
}

func (r *stubPreorderRepo) FindByID(_ context.Context, id string) (domain.Preorder, error) {
	for _, p := range r.pending {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Preorder{}, notFound("preorder " + id)
}

func (r *stubPreorderRepo) ListPendingByUser(_ context.Context, userID string) ([]domain.Preorder, error) {
	var out []domain.Preorder
	for _, p := range r.pending {
		if p.UserID == userID && p.Status == domain.PreorderStatusPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *stubPreorderRepo) MarkCompleted(_ context.Context, id string) error {
	for i := range r.pending {
		if r.pending[i].ID == id {
			r.pending[i].Status = domain.PreorderStatusCompleted
		}
	}
	r.completed = append(r.completed, id)
	return nil
}

type stubDiscountRepo struct {
	discounts   map[string]domain.Discount
	redemptions []string
}

func newStubDiscountRepo(discounts ...domain.Discount) *stubDiscountRepo {
	repo := &stubDiscountRepo{discounts: make(map[string]domain.Discount)}
	for _, d := range discounts {
		repo.discounts[d.Code] = d
	}
	return repo
}

func (r *stubDiscountRepo) FindByID(_ context.Context, id string) (domain.Discount, error) {
	for _, d := range r.discounts {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Discount{}, notFound("discount " + id)
}

func (r *stubDiscountRepo) FindByCode(_ context.Context, code string) (domain.Discount, error) {
	d, ok := r.discounts[code]
	if !ok {
		return domain.Discount{}, notFound("discount " + code)
	}
	return d, nil
}

func (r *stubDiscountRepo) RecordRedemption(_ context.Context, discountID, userID string) error {
	for code, d := range r.discounts {
		if d.ID == discountID {
			d.UsedCount++
			d.UsersUsed = append(d.UsersUsed, userID)
			r.discounts[code] = d
		}
	}
	r.redemptions = append(r.redemptions, discountID+":"+userID)
	return nil
}

// unitOfWorkFunc adapts a function to repositories.UnitOfWork so tests can
// interleave work around the transaction body.
type unitOfWorkFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func (f unitOfWorkFunc) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

type stubUserRepo struct {
	users map[string]domain.User
}

func newStubUserRepo(users ...domain.User) *stubUserRepo {
	repo := &stubUserRepo{users: make(map[string]domain.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, notFound("user " + id)
	}
	return u, nil
}

type stubGateway struct {
	createOrderFn  func(ctx context.Context, req payments.CreateOrderRequest) (payments.GatewayOrder, error)
	fetchPaymentFn func(ctx context.Context, paymentID string) (payments.Payment, error)
	refundFn       func(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (payments.Refund, error)

	refundCalls []int64
}

func (g *stubGateway) CreateOrder(ctx context.Context, req payments.CreateOrderRequest) (payments.GatewayOrder, error) {
	if g.createOrderFn != nil {
		return g.createOrderFn(ctx, req)
	}
	return payments.GatewayOrder{ID: "order_rzp1", AmountMinor: req.AmountMinor, Currency: req.Currency}, nil
}

func (g *stubGateway) FetchPayment(ctx context.Context, paymentID string) (payments.Payment, error) {
	if g.fetchPaymentFn != nil {
		return g.fetchPaymentFn(ctx, paymentID)
	}
	return payments.Payment{ID: paymentID, Status: "captured"}, nil
}

func (g *stubGateway) Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (payments.Refund, error) {
	g.refundCalls = append(g.refundCalls, amountMinor)
	if g.refundFn != nil {
		return g.refundFn(ctx, paymentID, amountMinor, notes)
	}
	return payments.Refund{ID: "rfnd_1", PaymentID: paymentID, AmountMinor: amountMinor, Status: "processed"}, nil
}

type stubCourier struct {
	err      error
	requests []courier.ShipmentRequest
}

func (c *stubCourier) CreateShipment(_ context.Context, req courier.ShipmentRequest) (courier.ShipmentResult, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return courier.ShipmentResult{}, c.err
	}
	return courier.ShipmentResult{OrderNo: fmt.Sprintf("SC-%d", len(c.requests))}, nil
}

func (c *stubCourier) Tracking(_ context.Context, orderNo string) (courier.TrackingInfo, error) {
	if c.err != nil {
		return courier.TrackingInfo{}, c.err
	}
	return courier.TrackingInfo{OrderNo: orderNo, Status: "In Transit"}, nil
}

type capturePublisher struct {
	notifications []events.Notification
}

func (p *capturePublisher) PublishNotification(_ context.Context, n events.Notification) (string, error) {
	p.notifications = append(p.notifications, n)
	return fmt.Sprintf("msg-%d", len(p.notifications)), nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequenceIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%08d", prefix, n)
	}
}

func testProduct(id string, price int64, qty int) domain.Product {
	return domain.Product{
		ID:    id,
		Name:  "Product " + id,
		Slug:  "slug-" + id,
		Price: price,
		Colors: []domain.ColorVariant{{
			Name: "Black",
			Sizes: map[string]domain.SizeDetail{
				"M": {SKU: id + "-BLK-M", Quantity: qty},
				"L": {SKU: id + "-BLK-L", Quantity: qty},
			},
		}},
	}
}

func testAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		Name:          "Asha Rao",
		Email:         "asha@example.com",
		Address:       "12 MG Road",
		City:          "Bengaluru",
		State:         "Karnataka",
		PostalCode:    "560001",
		DeliveryPhone: "9999999999",
	}
}
