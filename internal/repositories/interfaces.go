package repositories

import (
	"context"
	"time"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation
// used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary.
// Repositories participating in the transaction observe it through the
// context passed to fn.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	UserID        string
	Status        []domain.OrderStatus
	HasReturns    bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
}

// OrderRepository persists order aggregates and provides the lookups used by
// customers, admins, and the payment webhook.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, id string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
}

// PreorderRepository stores deposit-backed reservations.
type PreorderRepository interface {
	FindByID(ctx context.Context, id string) (domain.Preorder, error)
	ListPendingByUser(ctx context.Context, userID string) ([]domain.Preorder, error)
	MarkCompleted(ctx context.Context, id string) error
}

// DiscountRepository maintains promotional codes and their usage ledger.
type DiscountRepository interface {
	FindByID(ctx context.Context, id string) (domain.Discount, error)
	FindByCode(ctx context.Context, code string) (domain.Discount, error)
	RecordRedemption(ctx context.Context, discountID, userID string) error
}

// ProductRepository is the read side of the catalog plus the stock write the
// order flow needs. Callers adjust quantities on the domain aggregate and
// persist the result, keeping reads ahead of writes inside a transaction.
type ProductRepository interface {
	FindByID(ctx context.Context, id string) (domain.Product, error)
	UpdateVariantStock(ctx context.Context, productID string, colors []domain.ColorVariant) error
}

// UserRepository resolves minimal account references.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (domain.User, error)
}
