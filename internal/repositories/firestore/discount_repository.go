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
)

const discountsCollection = "discounts"

// DiscountRepository implements repositories.DiscountRepository backed by Firestore.
type DiscountRepository struct {
	base *pfirestore.Collection
}

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	return &DiscountRepository{
		base: pfirestore.NewCollection(provider, discountsCollection),
	}, nil
}

// FindByID loads a discount by document identifier.
func (r *DiscountRepository) FindByID(ctx context.Context, id string) (domain.Discount, error) {
	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.Discount{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.Discount{}, pfirestore.WrapError("discounts.get", err)
	}
	return decodeDiscount(snap)
}

// FindByCode loads a discount by its code. Codes are stored uppercased.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (domain.Discount, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return domain.Discount{}, pfirestore.NotFoundError("discounts.find", errors.New("empty code"))
	}

	coll, err := r.base.Ref(ctx)
	if err != nil {
		return domain.Discount{}, err
	}

	iter := queryDocs(ctx, coll.Where("code", "==", normalized).Limit(1))
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Discount{}, pfirestore.NotFoundError("discounts.find", fmt.Errorf("no discount with code %q", normalized))
	}
	if err != nil {
		return domain.Discount{}, pfirestore.WrapError("discounts.find", err)
	}

	return decodeDiscount(snap)
}

func decodeDiscount(snap *firestore.DocumentSnapshot) (domain.Discount, error) {
	var discount domain.Discount
	if err := snap.DataTo(&discount); err != nil {
		return domain.Discount{}, fmt.Errorf("discounts: decode %s: %w", snap.Ref.ID, err)
	}
	discount.ID = snap.Ref.ID
	return discount, nil
}

// RecordRedemption bumps the usage counter and remembers the redeeming user.
func (r *DiscountRepository) RecordRedemption(ctx context.Context, discountID, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}
	ref, err := r.base.Doc(ctx, discountID)
	if err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "usedCount", Value: firestore.Increment(1)},
		{Path: "usersUsed", Value: firestore.ArrayUnion(userID)},
	}
	return pfirestore.WrapError("discounts.redeem", updateDoc(ctx, ref, updates))
}
