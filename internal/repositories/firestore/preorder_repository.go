package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	pfirestore "github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/firestore"
)

const preordersCollection = "preorders"

// PreorderRepository implements repositories.PreorderRepository backed by Firestore.
type PreorderRepository struct {
	base *pfirestore.Collection
}

// NewPreorderRepository constructs a Firestore-backed preorder repository.
func NewPreorderRepository(provider *pfirestore.Provider) (*PreorderRepository, error) {
	if provider == nil {
		return nil, errors.New("preorder repository requires firestore provider")
	}
	return &PreorderRepository{
		base: pfirestore.NewCollection(provider, preordersCollection),
	}, nil
}

// FindByID loads a preorder by document identifier.
func (r *PreorderRepository) FindByID(ctx context.Context, id string) (domain.Preorder, error) {
	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.Preorder{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.Preorder{}, pfirestore.WrapError("preorders.get", err)
	}
	return decodePreorder(snap)
}

// ListPendingByUser returns the user's unconsumed preorders.
func (r *PreorderRepository) ListPendingByUser(ctx context.Context, userID string) ([]domain.Preorder, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	coll, err := r.base.Ref(ctx)
	if err != nil {
		return nil, err
	}

	iter := queryDocs(ctx, coll.
		Where("user", "==", userID).
		Where("status", "==", string(domain.PreorderStatusPending)))
	defer iter.Stop()

	var preorders []domain.Preorder
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("preorders.list", err)
		}
		preorder, err := decodePreorder(snap)
		if err != nil {
			return nil, err
		}
		preorders = append(preorders, preorder)
	}
	return preorders, nil
}

// MarkCompleted flips the preorder to its consumed state.
func (r *PreorderRepository) MarkCompleted(ctx context.Context, id string) error {
	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "status", Value: string(domain.PreorderStatusCompleted)},
		{Path: "completedAt", Value: time.Now().UTC()},
	}
	return pfirestore.WrapError("preorders.complete", updateDoc(ctx, ref, updates))
}

func decodePreorder(snap *firestore.DocumentSnapshot) (domain.Preorder, error) {
	var preorder domain.Preorder
	if err := snap.DataTo(&preorder); err != nil {
		return domain.Preorder{}, fmt.Errorf("preorders: decode %s: %w", snap.Ref.ID, err)
	}
	preorder.ID = snap.Ref.ID
	return preorder, nil
}
