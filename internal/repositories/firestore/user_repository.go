package firestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	pfirestore "github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/firestore"
)

const usersCollection = "users"

// UserRepository implements repositories.UserRepository backed by Firestore.
type UserRepository struct {
	base *pfirestore.Collection
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		base: pfirestore.NewCollection(provider, usersCollection),
	}, nil
}

// FindByID loads a user by document identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (domain.User, error) {
	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.User{}, pfirestore.WrapError("users.get", err)
	}

	var user domain.User
	if err := snap.DataTo(&user); err != nil {
		return domain.User{}, fmt.Errorf("users: decode %s: %w", snap.Ref.ID, err)
	}
	user.ID = snap.Ref.ID
	return user, nil
}
