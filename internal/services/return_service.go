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
	// ErrReturnInvalidInput signals invalid return submission data.
	ErrReturnInvalidInput = errors.New("return: invalid input")
	// ErrReturnInvalidState indicates the line is not in a state that allows
	// the requested return operation.
	ErrReturnInvalidState = errors.New("return: invalid state")
	// ErrReturnLineNotFound indicates the order has no line for the product.
	ErrReturnLineNotFound = errors.New("return: line item not found")
	// ErrRefundNotEligible indicates refund preconditions are not met.
	ErrRefundNotEligible = errors.New("return: refund not eligible")
	// ErrRefundHeadroom indicates the refund would exceed the order's
	// remaining refundable amount.
	ErrRefundHeadroom = errors.New("return: refund exceeds refundable amount")
)

// ReturnServiceDeps bundles collaborators for the return workflow.
type ReturnServiceDeps struct {
	Orders     repositories.OrderRepository
	Products   repositories.ProductRepository
	UnitOfWork repositories.UnitOfWork
	Gateway    payments.Gateway
	Courier    courier.Client
	Events     events.NotificationPublisher

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type returnService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	unitOfWork repositories.UnitOfWork
	gateway    payments.Gateway
	courier    courier.Client
	events     events.NotificationPublisher

	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewReturnService wires dependencies into a concrete ReturnService.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Orders == nil {
		return nil, errors.New("return service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("return service: product repository is required")
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

	return &returnService{
		orders:     deps.Orders,
		products:   deps.Products,
		unitOfWork: unit,
		gateway:    deps.Gateway,
		courier:    deps.Courier,
		events:     publisher,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *returnService) RequestReturn(ctx context.Context, cmd ReturnRequestCommand) (domain.Order, error) {
	if strings.TrimSpace(cmd.IssueType) == "" {
		return domain.Order{}, fmt.Errorf("%w: issue type is required", ErrReturnInvalidInput)
	}
	if strings.TrimSpace(cmd.IssueDesc) == "" {
		return domain.Order{}, fmt.Errorf("%w: issue description is required", ErrReturnInvalidInput)
	}
	switch cmd.Resolution {
	case domain.ResolutionRefund, domain.ResolutionReplacement:
	default:
		return domain.Order{}, fmt.Errorf("%w: unsupported resolution %q", ErrReturnInvalidInput, cmd.Resolution)
	}

	var updated domain.Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, line, err := s.loadLine(txCtx, cmd.OrderID, cmd.ProductID)
		if err != nil {
			return err
		}
		if order.UserID != cmd.UserID {
			return fmt.Errorf("%w: order %s", ErrOrderForbidden, cmd.OrderID)
		}
		if order.Status != domain.OrderStatusDelivered && order.Status != domain.OrderStatusReturnRequested {
			return fmt.Errorf("%w: order %s is %s, returns require delivery", ErrReturnInvalidState, order.OrderID, order.Status)
		}
		if !domain.CanTransitionLineItem(line.Status, domain.LineItemStatusReturnRequested) {
			return fmt.Errorf("%w: line %s is %s", ErrReturnInvalidState, cmd.ProductID, line.Status)
		}

		if cmd.Resolution == domain.ResolutionReplacement {
			if err := s.checkExchangeVariant(txCtx, cmd, line); err != nil {
				return err
			}
		}

		now := s.clock()
		line.Status = domain.LineItemStatusReturnRequested
		line.ReturnIssueType = strings.TrimSpace(cmd.IssueType)
		line.ReturnIssueDesc = strings.TrimSpace(cmd.IssueDesc)
		line.ReturnResolutionType = cmd.Resolution
		line.ReturnImages = cmd.Images
		line.PickupStatus = domain.PickupStatusPending
		line.ReturnDecisionNote = ""
		if cmd.Resolution == domain.ResolutionReplacement {
			line.ExchangeToColor = strings.TrimSpace(cmd.ExchangeToColor)
			line.ExchangeToSize = strings.TrimSpace(cmd.ExchangeToSize)
		}

		// The order-level status bubbles only once every line is in a
		// return; partial returns keep the order Delivered and rely on the
		// open-returns marker.
		if order.AllLines(domain.LineItemStatusReturnRequested) {
			order.Status = domain.OrderStatusReturnRequested
		}
		order.ReturnRequestedAt = &now
		order.HasOpenReturns = true
		if cmd.Resolution == domain.ResolutionRefund && order.RefundStatus == domain.RefundStatusNone {
			order.RefundStatus = domain.RefundStatusRequested
		}
		order.UpdatedAt = now
		order.LastUpdatedBy = cmd.UserID

		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.notify(ctx, events.EventReturnRequested, updated, cmd.ProductID)
	return updated, nil
}

// checkExchangeVariant verifies the requested replacement variant exists and
// has stock. The decrement itself happens when the replacement order is
// created.
func (s *returnService) checkExchangeVariant(ctx context.Context, cmd ReturnRequestCommand, line *domain.OrderLineItem) error {
	color := strings.TrimSpace(cmd.ExchangeToColor)
	size := strings.TrimSpace(cmd.ExchangeToSize)
	if color == "" {
		color = line.Color
	}
	if size == "" {
		size = line.Size
	}
	product, err := s.products.FindByID(ctx, line.ProductID)
	if err != nil {
		return err
	}
	_, detail, ok := product.Variant(color, size)
	if !ok {
		return fmt.Errorf("%w: product %s has no variant %s/%s", ErrReturnInvalidInput, line.ProductID, color, size)
	}
	if detail.Quantity < line.Quantity {
		return fmt.Errorf("%w: product %s %s/%s", domain.ErrInsufficientStock, line.ProductID, color, size)
	}
	return nil
}

func (s *returnService) CancelReturn(ctx context.Context, orderID, userID, productID string) (domain.Order, error) {
	var updated domain.Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, line, err := s.loadLine(txCtx, orderID, productID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
		}
		if line.Status != domain.LineItemStatusReturnRequested {
			return fmt.Errorf("%w: line %s is %s, only requested returns can be withdrawn", ErrReturnInvalidState, productID, line.Status)
		}

		line.Status = domain.LineItemStatusDelivered
		line.ReturnIssueType = ""
		line.ReturnIssueDesc = ""
		line.ReturnResolutionType = ""
		line.ReturnImages = nil
		line.ExchangeToColor = ""
		line.ExchangeToSize = ""

		s.settleReturnState(&order, userID)
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

func (s *returnService) DecideReturn(ctx context.Context, cmd ReturnDecisionCommand) (domain.Order, error) {
	var updated domain.Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, line, err := s.loadLine(txCtx, cmd.OrderID, cmd.ProductID)
		if err != nil {
			return err
		}
		if line.Status != domain.LineItemStatusReturnRequested {
			return fmt.Errorf("%w: line %s is %s, decisions apply to requested returns", ErrReturnInvalidState, cmd.ProductID, line.Status)
		}

		if cmd.Approve {
			line.Status = domain.LineItemStatusReturnApproved
			if line.ReturnResolutionType == domain.ResolutionRefund {
				order.RefundStatus = domain.RefundStatusApproved
			}
		} else {
			line.Status = domain.LineItemStatusReturnRejected
			if line.ReturnResolutionType == domain.ResolutionRefund && order.RefundedAmount == 0 {
				order.RefundStatus = domain.RefundStatusRejected
			}
		}
		line.ReturnDecisionNote = strings.TrimSpace(cmd.Note)

		s.settleReturnState(&order, cmd.AdminID)
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.notify(ctx, events.EventReturnDecided, updated, cmd.ProductID)
	return updated, nil
}

func (s *returnService) ConfirmPickup(ctx context.Context, orderID, productID, adminID string) (domain.Order, error) {
	var updated domain.Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, line, err := s.loadLine(txCtx, orderID, productID)
		if err != nil {
			return err
		}
		if line.Status != domain.LineItemStatusReturnApproved {
			return fmt.Errorf("%w: line %s is %s, pickup follows approval", ErrReturnInvalidState, productID, line.Status)
		}
		if line.PickupStatus == domain.PickupStatusPickedUp {
			updated = order
			return nil
		}

		line.PickupStatus = domain.PickupStatusPickedUp
		order.UpdatedAt = s.clock()
		order.LastUpdatedBy = adminID
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// ProcessRefund issues the gateway refund for an approved, picked-up refund
// line. Amounts are handled in minor currency units end to end; the refund is
// capped by the order's remaining headroom. The refund is first reserved with
// a conditional transactional write so exactly one caller reaches the
// gateway, then finalized once the gateway confirms.
func (s *returnService) ProcessRefund(ctx context.Context, orderID, productID, adminID string) (domain.Order, error) {
	if s.gateway == nil {
		return domain.Order{}, errors.New("return service: payment gateway not configured")
	}

	var (
		amountMinor int64
		paymentID   string
		orderNumber string
		settled     domain.Order
	)
	alreadySettled := false
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, line, err := s.loadLine(txCtx, orderID, productID)
		if err != nil {
			return err
		}
		// A line that already carries a refund transaction is settled;
		// return the recorded outcome instead of hitting the gateway again.
		if line.ReturnDetails != nil && line.ReturnDetails.RefundTransactionID != "" {
			settled = order
			alreadySettled = true
			return nil
		}
		if line.ReturnDetails != nil && line.ReturnDetails.RefundInitiatedAt != nil {
			return fmt.Errorf("%w: line %s already has a refund in flight", ErrOrderConflict, productID)
		}
		if err := refundEligibility(order, line); err != nil {
			return err
		}

		amountMinor = payments.ToMinorUnits(line.Subtotal())
		if amountMinor <= 0 {
			return fmt.Errorf("%w: line %s has nothing to refund", ErrRefundNotEligible, line.ProductID)
		}
		if amountMinor > order.RefundableMinor {
			return fmt.Errorf("%w: order %s has %d left, refund needs %d", ErrRefundHeadroom, order.OrderID, order.RefundableMinor, amountMinor)
		}

		orderNumber = order.OrderID
		paymentID = order.RazorpayPaymentID
		if order.PaymentDetails != nil && order.PaymentDetails.PaymentID != "" {
			paymentID = order.PaymentDetails.PaymentID
		}

		now := s.clock()
		line.ReturnDetails = &domain.RefundRecord{RefundInitiatedAt: &now}
		return s.orders.Update(txCtx, order)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if alreadySettled {
		return settled, nil
	}

	refund, err := s.gateway.Refund(ctx, paymentID, amountMinor, map[string]string{
		"orderId":   orderNumber,
		"productId": productID,
	})
	if err != nil {
		s.releaseRefundReservation(ctx, orderID, productID)
		return domain.Order{}, err
	}

	var updated domain.Order
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, line, err := s.loadLine(txCtx, orderID, productID)
		if err != nil {
			return err
		}
		if line.Status == domain.LineItemStatusRefunded {
			updated = order
			return nil
		}

		now := s.clock()
		line.Status = domain.LineItemStatusRefunded
		line.ReturnDetails = &domain.RefundRecord{
			RefundDate:          &now,
			RefundAmount:        refund.AmountMinor,
			RefundTransactionID: refund.ID,
		}

		order.RefundableMinor -= refund.AmountMinor
		if order.RefundableMinor < 0 {
			order.RefundableMinor = 0
		}
		order.RefundedAmount += refund.AmountMinor
		order.RefundStatus = domain.RefundStatusProcessed
		order.RefundTransactionID = refund.ID
		order.RefundDate = &now

		s.settleReturnState(&order, adminID)
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		// The gateway refund went through but the record did not; surface
		// loudly so the discrepancy gets reconciled by hand.
		s.logger(ctx, "return.refund.persist.failed", map[string]any{
			"orderId":  orderID,
			"refundId": refund.ID,
			"error":    err.Error(),
		})
		return domain.Order{}, err
	}

	s.notify(ctx, events.EventRefundProcessed, updated, productID)
	return updated, nil
}

// releaseRefundReservation clears the in-flight marker after a gateway
// failure so the refund can be retried.
func (s *returnService) releaseRefundReservation(ctx context.Context, orderID, productID string) {
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, line, err := s.loadLine(txCtx, orderID, productID)
		if err != nil {
			return err
		}
		if line.ReturnDetails == nil || line.ReturnDetails.RefundTransactionID != "" {
			return nil
		}
		line.ReturnDetails = nil
		return s.orders.Update(txCtx, order)
	})
	if err != nil {
		s.logger(ctx, "return.refund.release.failed", map[string]any{
			"orderId":   orderID,
			"productId": productID,
			"error":     err.Error(),
		})
	}
}

func refundEligibility(order domain.Order, line *domain.OrderLineItem) error {
	if order.PaymentMethod != domain.PaymentMethodPrepaid || !order.IsPaid {
		return fmt.Errorf("%w: order %s was not paid online", ErrRefundNotEligible, order.OrderID)
	}
	if line.Status != domain.LineItemStatusReturnApproved {
		return fmt.Errorf("%w: line %s is %s, refunds follow approval", ErrRefundNotEligible, line.ProductID, line.Status)
	}
	if line.ReturnResolutionType != domain.ResolutionRefund {
		return fmt.Errorf("%w: line %s requested a %s", ErrRefundNotEligible, line.ProductID, line.ReturnResolutionType)
	}
	if line.PickupStatus != domain.PickupStatusPickedUp {
		return fmt.Errorf("%w: line %s has not been picked up", ErrRefundNotEligible, line.ProductID)
	}
	return nil
}

func (s *returnService) CreateReplacement(ctx context.Context, orderID, productID, adminID string) (domain.Order, error) {
	var replacement domain.Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, line, err := s.loadLine(txCtx, orderID, productID)
		if err != nil {
			return err
		}
		if line.ReplacementOrderID != "" {
			existing, err := s.orders.FindByID(txCtx, line.ReplacementOrderID)
			if err != nil {
				return err
			}
			replacement = existing
			return nil
		}
		if line.Status != domain.LineItemStatusReturnApproved {
			return fmt.Errorf("%w: line %s is %s, replacements follow approval", ErrReturnInvalidState, productID, line.Status)
		}
		if line.ReturnResolutionType != domain.ResolutionReplacement {
			return fmt.Errorf("%w: line %s requested a %s", ErrReturnInvalidState, productID, line.ReturnResolutionType)
		}
		if line.PickupStatus != domain.PickupStatusPickedUp {
			return fmt.Errorf("%w: line %s has not been picked up", ErrReturnInvalidState, productID)
		}

		color := line.ExchangeToColor
		if color == "" {
			color = line.Color
		}
		size := line.ExchangeToSize
		if size == "" {
			size = line.Size
		}

		// Read the product before any write in the transaction.
		product, err := s.products.FindByID(txCtx, line.ProductID)
		if err != nil {
			return err
		}
		if err := product.AdjustStock(color, size, -line.Quantity); err != nil {
			return err
		}
		_, detail, _ := product.Variant(color, size)

		now := s.clock()
		replacement = domain.Order{
			ID:              s.newID(),
			OrderID:         replacementNumber(now, s.newID()),
			UserID:          order.UserID,
			ShippingAddress: order.ShippingAddress,
			PaymentMethod:   domain.PaymentMethodReplacement,
			TotalPrice:      0,
			Status:          domain.OrderStatusPending,
			RefundStatus:    domain.RefundStatusNone,
			CreatedAt:       now,
			UpdatedAt:       now,
			LastUpdatedBy:   adminID,
			Items: []domain.OrderLineItem{{
				ProductID:    product.ID,
				ProductName:  product.Name,
				Slug:         product.Slug,
				SKU:          detail.SKU,
				Color:        color,
				Size:         size,
				Quantity:     line.Quantity,
				PriceAtOrder: 0,
				Status:       domain.LineItemStatusPending,
				PickupStatus: domain.PickupStatusPending,
			}},
		}

		line.Status = domain.LineItemStatusReturned
		line.ReplacementOrderID = replacement.ID
		s.settleReturnState(&order, adminID)

		if err := s.products.UpdateVariantStock(txCtx, product.ID, product.Colors); err != nil {
			return err
		}
		if err := s.orders.Insert(txCtx, replacement); err != nil {
			return err
		}
		return s.orders.Update(txCtx, order)
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.courier != nil && len(replacement.Items) == 1 && replacement.ShipcorrectOrderNo == "" {
		result, err := s.courier.CreateShipment(ctx, courier.ShipmentRequest{Order: replacement, Line: replacement.Items[0]})
		if err != nil {
			s.logger(ctx, "return.replacement.handoff.failed", map[string]any{
				"orderId": replacement.OrderID,
				"error":   err.Error(),
			})
		} else if result.OrderNo != "" {
			replacement.ShipcorrectOrderNo = result.OrderNo
			if err := s.orders.Update(ctx, replacement); err != nil {
				s.logger(ctx, "return.replacement.reference.persist.failed", map[string]any{
					"orderId": replacement.OrderID,
					"error":   err.Error(),
				})
			}
		}
	}

	s.notify(ctx, events.EventOrderPlaced, replacement, productID)
	return replacement, nil
}

func (s *returnService) RefundStatus(ctx context.Context, orderID, userID string) (RefundStatusView, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return RefundStatusView{}, err
	}
	if order.UserID != userID {
		return RefundStatusView{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}

	view := RefundStatusView{
		OrderID:        order.OrderID,
		RefundStatus:   order.RefundStatus,
		RefundedAmount: order.RefundedAmount,
	}
	for _, line := range order.Items {
		lv := LineRefundView{
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			Status:       line.Status,
			PickupStatus: line.PickupStatus,
		}
		if line.ReturnDetails != nil {
			lv.RefundAmount = line.ReturnDetails.RefundAmount
			lv.RefundTxnID = line.ReturnDetails.RefundTransactionID
		}
		view.Lines = append(view.Lines, lv)
	}
	return view, nil
}

// settleReturnState recomputes the order-level rollups after a line mutation:
// the open-returns marker and, once every return is closed, the order status.
func (s *returnService) settleReturnState(order *domain.Order, actorID string) {
	open := false
	allClosed := true
	for _, li := range order.Items {
		switch li.Status {
		case domain.LineItemStatusReturnRequested, domain.LineItemStatusReturnApproved:
			open = true
			allClosed = false
		case domain.LineItemStatusPending:
			allClosed = false
		}
	}
	order.HasOpenReturns = open

	if !open && order.Status == domain.OrderStatusReturnRequested {
		returnedOrRefunded := false
		for _, li := range order.Items {
			if li.Status == domain.LineItemStatusReturned || li.Status == domain.LineItemStatusRefunded {
				returnedOrRefunded = true
				break
			}
		}
		if returnedOrRefunded && allClosed && !order.AllLines(domain.LineItemStatusDelivered) {
			order.Status = domain.OrderStatusReturned
		} else {
			order.Status = domain.OrderStatusDelivered
		}
	}

	now := s.clock()
	order.UpdatedAt = now
	order.LastUpdatedBy = actorID
}

// loadLine resolves the order and the addressed line item. The returned line
// pointer aliases the order's Items slice, so mutations stick.
func (s *returnService) loadLine(ctx context.Context, orderID, productID string) (domain.Order, *domain.OrderLineItem, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	line := order.LineByProductID(productID)
	if line == nil {
		return domain.Order{}, nil, fmt.Errorf("%w: order %s has no line for product %s", ErrReturnLineNotFound, order.OrderID, productID)
	}
	return order, line, nil
}

func (s *returnService) findOrder(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrReturnInvalidInput)
	}
	var (
		order domain.Order
		err   error
	)
	if strings.HasPrefix(id, "ORD-") {
		order, err = s.orders.FindByOrderNumber(ctx, id)
	} else {
		order, err = s.orders.FindByID(ctx, id)
	}
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return domain.Order{}, err
	}
	return order, nil
}

func replacementNumber(now time.Time, id string) string {
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(suffix))
}

func (s *returnService) notify(ctx context.Context, event string, order domain.Order, productID string) {
	if _, err := s.events.PublishNotification(ctx, events.Notification{
		Event:      event,
		OrderID:    order.OrderID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		Detail:     productID,
		OccurredAt: s.clock(),
	}); err != nil {
		s.logger(ctx, "return.notification.publish.failed", map[string]any{
			"event":   event,
			"orderId": order.OrderID,
			"error":   err.Error(),
		})
	}
}
