package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	pfirestore "github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/firestore"
)

const productsCollection = "products"

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	base *pfirestore.Collection
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewCollection(provider, productsCollection),
	}, nil
}

// FindByID loads a product by document identifier.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.get", err)
	}

	var product domain.Product
	if err := snap.DataTo(&product); err != nil {
		return domain.Product{}, fmt.Errorf("products: decode %s: %w", snap.Ref.ID, err)
	}
	product.ID = snap.Ref.ID
	return product, nil
}

// UpdateVariantStock rewrites the colors array carrying per-variant
// quantities. Variant stock lives inside an array of maps, so field-level
// increments are not expressible; callers mutate the aggregate and persist it
// whole, inside the unit of work when atomicity matters.
func (r *ProductRepository) UpdateVariantStock(ctx context.Context, productID string, colors []domain.ColorVariant) error {
	ref, err := r.base.Doc(ctx, productID)
	if err != nil {
		return err
	}
	updates := []firestore.Update{{Path: "colors", Value: colors}}
	return pfirestore.WrapError("products.stock", updateDoc(ctx, ref, updates))
}
