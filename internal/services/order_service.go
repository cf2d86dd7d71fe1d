package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/courier"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/payments"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/events"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the requester does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState indicates an illegal status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates duplicates or concurrent modification.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrPaymentVerification indicates the checkout signature or payment
	// state did not check out.
	ErrPaymentVerification = errors.New("order: payment verification failed")
	// ErrTrackingUnavailable indicates the order has no courier reference yet.
	ErrTrackingUnavailable = errors.New("order: tracking unavailable")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Products   repositories.ProductRepository
	Users      repositories.UserRepository
	Preorders  repositories.PreorderRepository
	Discounts  DiscountService
	UnitOfWork repositories.UnitOfWork
	Gateway    payments.Gateway
	Courier    courier.Client
	Events     events.NotificationPublisher

	// VerifySignature validates the client checkout signature for a gateway
	// order/payment pair.
	VerifySignature func(gatewayOrderID, gatewayPaymentID, signature string) bool

	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
	ShippingCost int64
	Currency     string
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	users      repositories.UserRepository
	preorders  repositories.PreorderRepository
	discounts  DiscountService
	unitOfWork repositories.UnitOfWork
	gateway    payments.Gateway
	courier    courier.Client
	events     events.NotificationPublisher
	verifySig  func(string, string, string) bool

	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
	shippingCost int64
	currency     string
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Preorders == nil {
		return nil, errors.New("order service: preorder repository is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("order service: discount service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	publisher := deps.Events
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	currency := strings.TrimSpace(deps.Currency)
	if currency == "" {
		currency = "INR"
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		users:      deps.Users,
		preorders:  deps.Preorders,
		discounts:  deps.Discounts,
		unitOfWork: unit,
		gateway:    deps.Gateway,
		courier:    deps.Courier,
		events:     publisher,
		verifySig:  deps.VerifySignature,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:        idGen,
		logger:       logger,
		shippingCost: deps.ShippingCost,
		currency:     currency,
	}, nil
}

// pricedOrder is the costed view of a submission before persistence.
type pricedOrder struct {
	lines    []PricedLine
	subtotal int64
	fold     PreorderFold
	code     *CodeEvaluation
	total    int64
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error) {
	if cmd.PaymentMethod != domain.PaymentMethodCOD {
		return domain.Order{}, fmt.Errorf("%w: PlaceOrder accepts cash-on-delivery only", ErrOrderInvalidInput)
	}
	priced, err := s.price(ctx, cmd)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.createOrder(ctx, cmd, priced, nil)
	if err != nil {
		return domain.Order{}, err
	}

	s.notify(ctx, events.EventOrderPlaced, order, "")
	s.handOffToCourier(ctx, &order)
	return order, nil
}

func (s *orderService) CreatePaymentIntent(ctx context.Context, cmd PlaceOrderCommand) (PaymentIntent, error) {
	if cmd.PaymentMethod != domain.PaymentMethodPrepaid {
		return PaymentIntent{}, fmt.Errorf("%w: payment intents are for prepaid orders", ErrOrderInvalidInput)
	}
	if s.gateway == nil {
		return PaymentIntent{}, errors.New("order service: payment gateway not configured")
	}

	priced, err := s.price(ctx, cmd)
	if err != nil {
		return PaymentIntent{}, err
	}
	if priced.total <= 0 {
		return PaymentIntent{}, fmt.Errorf("%w: prepaid order total must be positive", ErrOrderInvalidInput)
	}

	gatewayOrder, err := s.gateway.CreateOrder(ctx, payments.CreateOrderRequest{
		AmountMinor: payments.ToMinorUnits(priced.total),
		Currency:    s.currency,
		Receipt:     s.newID(),
		Notes:       map[string]string{"userId": cmd.UserID},
	})
	if err != nil {
		return PaymentIntent{}, err
	}
	return PaymentIntent{
		GatewayOrderID: gatewayOrder.ID,
		AmountMinor:    gatewayOrder.AmountMinor,
		Currency:       gatewayOrder.Currency,
	}, nil
}

func (s *orderService) VerifyAndCreateOrder(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error) {
	if cmd.Order.PaymentMethod != domain.PaymentMethodPrepaid {
		return domain.Order{}, fmt.Errorf("%w: verification is for prepaid orders", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.GatewayOrderID) == "" || strings.TrimSpace(cmd.GatewayPaymentID) == "" {
		return domain.Order{}, fmt.Errorf("%w: gateway identifiers are required", ErrOrderInvalidInput)
	}
	if s.verifySig == nil {
		return domain.Order{}, errors.New("order service: signature verifier not configured")
	}
	if !s.verifySig(cmd.GatewayOrderID, cmd.GatewayPaymentID, cmd.Signature) {
		return domain.Order{}, fmt.Errorf("%w: signature mismatch for %s", ErrPaymentVerification, cmd.GatewayOrderID)
	}

	// Re-verification of an already created order is idempotent.
	if existing, err := s.orders.FindByGatewayOrderID(ctx, cmd.GatewayOrderID); err == nil {
		return existing, nil
	}

	priced, err := s.price(ctx, cmd.Order)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	paid := &paidDetails{
		gatewayOrderID:   cmd.GatewayOrderID,
		gatewayPaymentID: cmd.GatewayPaymentID,
		signature:        cmd.Signature,
		paidAt:           now,
		refundableMinor:  payments.ToMinorUnits(priced.total),
	}
	if s.gateway != nil {
		payment, err := s.gateway.FetchPayment(ctx, cmd.GatewayPaymentID)
		switch {
		case err == nil:
			if payment.OrderID != "" && payment.OrderID != cmd.GatewayOrderID {
				return domain.Order{}, fmt.Errorf("%w: payment %s belongs to gateway order %s", ErrPaymentVerification, cmd.GatewayPaymentID, payment.OrderID)
			}
			paid.capture = &domain.PaymentCapture{
				PaymentID:   payment.ID,
				AmountMinor: payment.AmountMinor,
				Raw:         payment.Raw,
			}
			if payment.AmountMinor > 0 {
				paid.refundableMinor = payment.AmountMinor
			}
		case errors.Is(err, payments.ErrGatewayUnavailable):
			// The signature already proves the payment; capture details are
			// reconciled later by the webhook.
			s.logger(ctx, "order.payment.fetch.failed", map[string]any{
				"gatewayPaymentId": cmd.GatewayPaymentID,
				"error":            err.Error(),
			})
		default:
			return domain.Order{}, err
		}
	}

	order, err := s.createOrder(ctx, cmd.Order, priced, paid)
	if err != nil {
		return domain.Order{}, err
	}

	s.notify(ctx, events.EventOrderPaid, order, "")
	s.handOffToCourier(ctx, &order)
	return order, nil
}

func (s *orderService) MarkOrderPaid(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (domain.Order, error) {
	if strings.TrimSpace(gatewayOrderID) == "" || strings.TrimSpace(gatewayPaymentID) == "" {
		return domain.Order{}, fmt.Errorf("%w: gateway identifiers are required", ErrOrderInvalidInput)
	}
	if s.verifySig == nil {
		return domain.Order{}, errors.New("order service: signature verifier not configured")
	}
	if !s.verifySig(gatewayOrderID, gatewayPaymentID, signature) {
		return domain.Order{}, fmt.Errorf("%w: signature mismatch for %s", ErrPaymentVerification, gatewayOrderID)
	}

	var capture *domain.PaymentCapture
	if s.gateway != nil {
		if payment, err := s.gateway.FetchPayment(ctx, gatewayPaymentID); err == nil {
			if payment.OrderID != "" && payment.OrderID != gatewayOrderID {
				return domain.Order{}, fmt.Errorf("%w: payment %s belongs to gateway order %s", ErrPaymentVerification, gatewayPaymentID, payment.OrderID)
			}
			capture = &domain.PaymentCapture{
				PaymentID:   payment.ID,
				AmountMinor: payment.AmountMinor,
				Raw:         payment.Raw,
			}
		} else if !errors.Is(err, payments.ErrGatewayUnavailable) {
			return domain.Order{}, err
		}
	}

	var updated domain.Order
	flipped := false
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByGatewayOrderID(txCtx, gatewayOrderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if order.IsPaid {
			updated = order
			return nil
		}
		flipped = true

		now := s.clock()
		order.IsPaid = true
		order.PaidAt = &now
		order.RazorpayPaymentID = gatewayPaymentID
		order.RazorpaySignature = signature
		order.RefundableMinor = payments.ToMinorUnits(order.TotalPrice)
		if capture != nil {
			order.PaymentDetails = capture
			if capture.AmountMinor > 0 {
				order.RefundableMinor = capture.AmountMinor
			}
		}
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if flipped {
		s.notify(ctx, events.EventOrderPaid, updated, "")
	}
	return updated, nil
}

type paidDetails struct {
	gatewayOrderID   string
	gatewayPaymentID string
	signature        string
	paidAt           time.Time
	capture          *domain.PaymentCapture
	refundableMinor  int64
}

// price validates the submission and produces the costed view: catalog
// enrichment, preorder folding, then the promo code on whatever remains.
func (s *orderService) price(ctx context.Context, cmd PlaceOrderCommand) (pricedOrder, error) {
	if err := validateSubmission(cmd); err != nil {
		return pricedOrder{}, err
	}
	if s.users != nil {
		if _, err := s.users.FindByID(ctx, cmd.UserID); err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return pricedOrder{}, fmt.Errorf("%w: unknown user %s", ErrOrderInvalidInput, cmd.UserID)
			}
			return pricedOrder{}, s.mapRepositoryError(err)
		}
	}

	lines := make([]PricedLine, 0, len(cmd.Items))
	var subtotal int64
	for _, item := range cmd.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return pricedOrder{}, fmt.Errorf("%w: unknown product %s", ErrOrderInvalidInput, item.ProductID)
			}
			return pricedOrder{}, s.mapRepositoryError(err)
		}
		_, detail, ok := product.Variant(item.Color, item.Size)
		if !ok {
			return pricedOrder{}, fmt.Errorf("%w: product %s has no variant %s/%s", ErrOrderInvalidInput, item.ProductID, item.Color, item.Size)
		}
		if detail.Quantity < item.Quantity {
			return pricedOrder{}, fmt.Errorf("%w: product %s %s/%s", domain.ErrInsufficientStock, item.ProductID, item.Color, item.Size)
		}
		lines = append(lines, PricedLine{
			ProductID: product.ID,
			Slug:      product.Slug,
			Color:     item.Color,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
		subtotal += product.Price * int64(item.Quantity)
	}

	priced := pricedOrder{lines: lines, subtotal: subtotal}

	pending, err := s.discounts.PendingPreorders(ctx, cmd.UserID)
	if err != nil {
		return pricedOrder{}, err
	}
	priced.fold = s.discounts.FoldPreorders(pending, lines)

	remaining := subtotal - priced.fold.Deduction
	if remaining < 0 {
		remaining = 0
	}

	if strings.TrimSpace(cmd.DiscountCode) != "" {
		evaluation, err := s.discounts.EvaluateCode(ctx, cmd.UserID, cmd.DiscountCode, lines, remaining)
		if err != nil {
			return pricedOrder{}, err
		}
		priced.code = &evaluation
		remaining -= evaluation.Deduction
		if remaining < 0 {
			remaining = 0
		}
	}

	priced.total = remaining + s.shippingCost
	if cmd.ClientTotal > 0 && cmd.ClientTotal != priced.total {
		s.logger(ctx, "order.total.mismatch", map[string]any{
			"userId":        cmd.UserID,
			"clientTotal":   cmd.ClientTotal,
			"computedTotal": priced.total,
		})
	}
	return priced, nil
}

func validateSubmission(cmd PlaceOrderCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: item %d is missing a product id", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, i)
		}
		if strings.TrimSpace(item.Color) == "" || strings.TrimSpace(item.Size) == "" {
			return fmt.Errorf("%w: item %d requires color and size", ErrOrderInvalidInput, i)
		}
	}
	addr := cmd.ShippingAddress
	if strings.TrimSpace(addr.Name) == "" || strings.TrimSpace(addr.Email) == "" ||
		strings.TrimSpace(addr.Address) == "" || strings.TrimSpace(addr.PostalCode) == "" {
		return fmt.Errorf("%w: shipping address requires name, email, address, and postal code", ErrOrderInvalidInput)
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCOD, domain.PaymentMethodPrepaid:
	default:
		return fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	return nil
}

// createOrder persists the order and all its side effects in one transaction:
// stock decrements, preorder consumption, code redemption, order insert.
// Inside the transaction every read happens before the first write.
func (s *orderService) createOrder(ctx context.Context, cmd PlaceOrderCommand, priced pricedOrder, paid *paidDetails) (domain.Order, error) {
	now := s.clock()

	order := domain.Order{
		ID:              s.newID(),
		OrderID:         s.orderNumber(now),
		UserID:          cmd.UserID,
		ShippingAddress: cmd.ShippingAddress,
		PaymentMethod:   cmd.PaymentMethod,
		ShippingCost:    s.shippingCost,
		TotalPrice:      priced.total,
		GiftWrap:        cmd.GiftWrap,
		Status:          domain.OrderStatusPending,
		RefundStatus:    domain.RefundStatusNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if paid != nil {
		order.IsPaid = true
		order.PaidAt = &paid.paidAt
		order.RazorpayOrderID = paid.gatewayOrderID
		order.RazorpayPaymentID = paid.gatewayPaymentID
		order.RazorpaySignature = paid.signature
		order.PaymentDetails = paid.capture
		order.RefundableMinor = paid.refundableMinor
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		// Reads: fresh product aggregates for every distinct product.
		productsByID := make(map[string]*domain.Product)
		for _, line := range priced.lines {
			if _, ok := productsByID[line.ProductID]; ok {
				continue
			}
			product, err := s.products.FindByID(txCtx, line.ProductID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			productsByID[line.ProductID] = &product
		}

		// Re-check every folded preorder inside the transaction; a
		// concurrent order may have consumed it since pricing.
		for _, preorderID := range priced.fold.ConsumedIDs {
			preorder, err := s.preorders.FindByID(txCtx, preorderID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			if preorder.Status != domain.PreorderStatusPending {
				return fmt.Errorf("%w: preorder %s already applied", ErrOrderConflict, preorderID)
			}
		}

		// RedeemCode re-reads the discount before writing the redemption,
		// so it runs ahead of the stock writes below.
		if priced.code != nil {
			if err := s.discounts.RedeemCode(txCtx, priced.code.Discount.ID, cmd.UserID); err != nil {
				return s.mapRepositoryError(err)
			}
		}

		// Apply decrements on the aggregates and build the order lines.
		order.Items = order.Items[:0]
		for _, line := range priced.lines {
			product := productsByID[line.ProductID]
			if err := product.AdjustStock(line.Color, line.Size, -line.Quantity); err != nil {
				return fmt.Errorf("%w: %v", ErrOrderConflict, err)
			}
			_, detail, _ := product.Variant(line.Color, line.Size)
			order.Items = append(order.Items, domain.OrderLineItem{
				ProductID:    product.ID,
				ProductName:  product.Name,
				Slug:         product.Slug,
				SKU:          detail.SKU,
				Color:        line.Color,
				Size:         line.Size,
				Quantity:     line.Quantity,
				PriceAtOrder: line.UnitPrice,
				Status:       domain.LineItemStatusPending,
				PickupStatus: domain.PickupStatusPending,
			})
		}

		// Writes.
		for id, product := range productsByID {
			if err := s.products.UpdateVariantStock(txCtx, id, product.Colors); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		for _, preorderID := range priced.fold.ConsumedIDs {
			if err := s.preorders.MarkCompleted(txCtx, preorderID); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// handOffToCourier registers each line with the shipping aggregator. The
// hand-off is best effort: failures are logged and the order stands.
func (s *orderService) handOffToCourier(ctx context.Context, order *domain.Order) {
	if s.courier == nil {
		return
	}
	for _, line := range order.Items {
		result, err := s.courier.CreateShipment(ctx, courier.ShipmentRequest{Order: *order, Line: line})
		if err != nil {
			s.logger(ctx, "order.courier.handoff.failed", map[string]any{
				"orderId":   order.OrderID,
				"productId": line.ProductID,
				"error":     err.Error(),
			})
			continue
		}
		if order.ShipcorrectOrderNo == "" && result.OrderNo != "" {
			order.ShipcorrectOrderNo = result.OrderNo
		}
	}
	if order.ShipcorrectOrderNo == "" {
		return
	}
	if err := s.orders.Update(ctx, *order); err != nil {
		s.logger(ctx, "order.courier.reference.persist.failed", map[string]any{
			"orderId": order.OrderID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) GetOrder(ctx context.Context, orderID, requesterID string, isAdmin bool) (domain.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !isAdmin && order.UserID != requesterID {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}
	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	for _, status := range filter.Status {
		if !domain.ValidOrderStatus(status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) TrackOrder(ctx context.Context, orderID, requesterID string, isAdmin bool) (courier.TrackingInfo, error) {
	order, err := s.GetOrder(ctx, orderID, requesterID, isAdmin)
	if err != nil {
		return courier.TrackingInfo{}, err
	}
	if s.courier == nil || order.ShipcorrectOrderNo == "" {
		return courier.TrackingInfo{}, fmt.Errorf("%w: order %s", ErrTrackingUnavailable, order.OrderID)
	}
	return s.courier.Tracking(ctx, order.ShipcorrectOrderNo)
}

func (s *orderService) ConfirmDelivery(ctx context.Context, orderID, userID string) (domain.Order, error) {
	var updated domain.Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.findOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
		}
		if order.Status != domain.OrderStatusShipped {
			return fmt.Errorf("%w: %s → %s", ErrOrderInvalidState, order.Status, domain.OrderStatusDelivered)
		}

		now := s.clock()
		order.Status = domain.OrderStatusDelivered
		order.DeliveredAt = &now
		order.UpdatedAt = now
		order.LastUpdatedBy = userID
		for i := range order.Items {
			if order.Items[i].Status == domain.LineItemStatusPending {
				order.Items[i].Status = domain.LineItemStatusDelivered
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.notify(ctx, events.EventOrderDelivered, updated, "")
	return updated, nil
}

func (s *orderService) CancelOrder(ctx context.Context, orderID, actorID string, isAdmin bool) (domain.Order, error) {
	var updated domain.Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.findOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if !isAdmin && order.UserID != actorID {
			return fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
		}
		cancelled, err := s.cancelInTx(txCtx, order, actorID)
		if err != nil {
			return err
		}
		updated = cancelled
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.notify(ctx, events.EventOrderCancelled, updated, "")
	return updated, nil
}

// cancelInTx performs the cancellation body inside an open transaction:
// status guard, stock restoration, tracking field reset.
func (s *orderService) cancelInTx(ctx context.Context, order domain.Order, actorID string) (domain.Order, error) {
	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusShipped:
	default:
		return domain.Order{}, fmt.Errorf("%w: cannot cancel order in status %s", ErrOrderInvalidState, order.Status)
	}

	// Reads before writes: load every product aggregate first.
	productsByID := make(map[string]*domain.Product)
	for _, line := range order.Items {
		if _, ok := productsByID[line.ProductID]; ok {
			continue
		}
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil {
			// A deleted catalog entry must not block cancellation.
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return domain.Order{}, s.mapRepositoryError(err)
		}
		productsByID[line.ProductID] = &product
	}
	for _, line := range order.Items {
		product, ok := productsByID[line.ProductID]
		if !ok {
			continue
		}
		if err := product.AdjustStock(line.Color, line.Size, line.Quantity); err != nil {
			s.logger(ctx, "order.cancel.restock.failed", map[string]any{
				"orderId":   order.OrderID,
				"productId": line.ProductID,
				"error":     err.Error(),
			})
		}
	}
	for id, product := range productsByID {
		if err := s.products.UpdateVariantStock(ctx, id, product.Colors); err != nil {
			return domain.Order{}, s.mapRepositoryError(err)
		}
	}

	now := s.clock()
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now
	order.LastUpdatedBy = actorID
	order.ShippedFrom = ""
	order.TrackingNumber = ""
	order.ShippingCarrier = ""

	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error) {
	if !domain.ValidOrderStatus(cmd.Status) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	if cmd.Status == domain.OrderStatusShipped {
		if strings.TrimSpace(cmd.ShippedFrom) == "" || strings.TrimSpace(cmd.TrackingNumber) == "" || strings.TrimSpace(cmd.ShippingCarrier) == "" {
			return domain.Order{}, fmt.Errorf("%w: shipping requires origin, tracking number, and carrier together", ErrOrderInvalidInput)
		}
	}

	var updated domain.Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.findOrder(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}

		if cmd.Status == domain.OrderStatusCancelled {
			cancelled, err := s.cancelInTx(txCtx, order, cmd.AdminID)
			if err != nil {
				return err
			}
			updated = cancelled
			return nil
		}

		if !domain.CanTransitionOrder(order.Status, cmd.Status) {
			return fmt.Errorf("%w: %s → %s", ErrOrderInvalidState, order.Status, cmd.Status)
		}

		now := s.clock()
		order.Status = cmd.Status
		order.UpdatedAt = now
		order.LastUpdatedBy = cmd.AdminID

		switch cmd.Status {
		case domain.OrderStatusShipped:
			order.ShippedFrom = strings.TrimSpace(cmd.ShippedFrom)
			order.TrackingNumber = strings.TrimSpace(cmd.TrackingNumber)
			order.ShippingCarrier = strings.TrimSpace(cmd.ShippingCarrier)
		case domain.OrderStatusDelivered:
			order.DeliveredAt = &now
			for i := range order.Items {
				if order.Items[i].Status == domain.LineItemStatusPending {
					order.Items[i].Status = domain.LineItemStatusDelivered
				}
			}
		}

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if cmd.Status == domain.OrderStatusShipped {
		s.notify(ctx, events.EventOrderShipped, updated, "")
	}
	return updated, nil
}

// findOrder resolves either the document id or the customer-facing order
// number.
func (s *orderService) findOrder(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if strings.HasPrefix(id, "ORD-") {
		order, err := s.orders.FindByOrderNumber(ctx, id)
		if err != nil {
			return domain.Order{}, s.mapRepositoryError(err)
		}
		return order, nil
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) orderNumber(now time.Time) string {
	id := s.newID()
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(suffix))
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) notify(ctx context.Context, event string, order domain.Order, detail string) {
	if _, err := s.events.PublishNotification(ctx, events.Notification{
		Event:      event,
		OrderID:    order.OrderID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		Detail:     detail,
		OccurredAt: s.clock(),
	}); err != nil {
		s.logger(ctx, "order.notification.publish.failed", map[string]any{
			"event":   event,
			"orderId": order.OrderID,
			"error":   err.Error(),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
