package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	pfirestore "github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/firestore"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	base *pfirestore.Collection
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewCollection(provider, ordersCollection),
	}, nil
}

// Insert creates the order document, failing when the ID is already taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	ref, err := r.base.Doc(ctx, order.ID)
	if err != nil {
		return err
	}
	return pfirestore.WrapError("orders.insert", createDoc(ctx, ref, order))
}

// Update replaces the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	ref, err := r.base.Doc(ctx, order.ID)
	if err != nil {
		return err
	}
	return pfirestore.WrapError("orders.update", setDoc(ctx, ref, order))
}

// FindByID loads an order by its document identifier.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	return decodeOrder(snap)
}

// FindByOrderNumber loads an order by its customer-facing order number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return r.findOneWhere(ctx, "orderId", strings.TrimSpace(orderNumber))
}

// FindByGatewayOrderID loads the order created for a payment gateway order.
func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	return r.findOneWhere(ctx, "razorpayOrderId", strings.TrimSpace(gatewayOrderID))
}

func (r *OrderRepository) findOneWhere(ctx context.Context, field, value string) (domain.Order, error) {
	if value == "" {
		return domain.Order{}, pfirestore.NotFoundError("orders.find", fmt.Errorf("empty %s", field))
	}
	coll, err := r.base.Ref(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	iter := queryDocs(ctx, coll.Where(field, "==", value).Limit(1))
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, pfirestore.NotFoundError("orders.find", fmt.Errorf("no order with %s %q", field, value))
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}
	return decodeOrder(snap)
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	coll, err := r.base.Ref(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Where("user", "==", userID).OrderBy("createdAt", firestore.Desc)
	return r.collect(ctx, query)
}

// List returns orders matching the admin filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	coll, err := r.base.Ref(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if filter.UserID != "" {
		query = query.Where("user", "==", filter.UserID)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.HasReturns {
		query = query.Where("hasOpenReturns", "==", true)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("createdAt", ">=", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("createdAt", "<", *filter.CreatedBefore)
	}
	query = query.OrderBy("createdAt", firestore.Desc)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	return r.collect(ctx, query)
}

func (r *OrderRepository) collect(ctx context.Context, query firestore.Query) ([]domain.Order, error) {
	iter := queryDocs(ctx, query)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.list", err)
		}
		order, err := decodeOrder(snap)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func decodeOrder(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var order domain.Order
	if err := snap.DataTo(&order); err != nil {
		return domain.Order{}, fmt.Errorf("orders: decode %s: %w", snap.Ref.ID, err)
	}
	order.ID = snap.Ref.ID
	return order, nil
}
