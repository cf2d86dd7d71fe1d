package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/firestore"
)

type txContextKey struct{}

// UnitOfWork implements repositories.UnitOfWork on Firestore transactions.
// Repositories in this package observe the transaction through the context
// passed to the callback; reads and writes issued inside the callback are
// committed atomically.
type UnitOfWork struct {
	provider *pfirestore.Provider
}

// NewUnitOfWork constructs a Firestore-backed unit of work.
func NewUnitOfWork(provider *pfirestore.Provider) (*UnitOfWork, error) {
	if provider == nil {
		return nil, errors.New("unit of work requires firestore provider")
	}
	return &UnitOfWork{provider: provider}, nil
}

// RunInTx executes fn inside a Firestore transaction.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.provider == nil {
		return errors.New("unit of work not initialised")
	}
	if fn == nil {
		return errors.New("unit of work: callback is required")
	}
	if _, ok := txFrom(ctx); ok {
		// Already transactional; nesting reuses the outer transaction.
		return fn(ctx)
	}
	return u.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(withTx(ctx, tx))
	})
}

func withTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

func txFrom(ctx context.Context) (*firestore.Transaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// getDoc reads a document honouring an active transaction.
func getDoc(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx, ok := txFrom(ctx); ok {
		return tx.Get(ref)
	}
	return ref.Get(ctx)
}

// setDoc writes a document honouring an active transaction.
func setDoc(ctx context.Context, ref *firestore.DocumentRef, value any) error {
	if tx, ok := txFrom(ctx); ok {
		return tx.Set(ref, value)
	}
	_, err := ref.Set(ctx, value)
	return err
}

// createDoc creates a document honouring an active transaction.
func createDoc(ctx context.Context, ref *firestore.DocumentRef, value any) error {
	if tx, ok := txFrom(ctx); ok {
		return tx.Create(ref, value)
	}
	_, err := ref.Create(ctx, value)
	return err
}

// updateDoc applies field updates honouring an active transaction.
func updateDoc(ctx context.Context, ref *firestore.DocumentRef, updates []firestore.Update) error {
	if tx, ok := txFrom(ctx); ok {
		return tx.Update(ref, updates)
	}
	_, err := ref.Update(ctx, updates)
	return err
}

// queryDocs runs a query honouring an active transaction.
func queryDocs(ctx context.Context, query firestore.Query) *firestore.DocumentIterator {
	if tx, ok := txFrom(ctx); ok {
		return tx.Documents(query)
	}
	return query.Documents(ctx)
}
