package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/repositories"
)

// UnitOfWork runs repository calls inside a single Firestore transaction.
// The transaction is carried on the context so repositories join it
// instead of opening their own.
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

// RunInTx executes fn within one transaction. Nested calls reuse the
// transaction already on the context.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.provider == nil {
		return errors.New("unit of work not initialised")
	}
	if fn == nil {
		return errors.New("unit of work: fn is required")
	}
	if _, ok := pfirestore.TxFromContext(ctx); ok {
		return fn(ctx)
	}
	return u.provider.RunInTx(ctx, fn)
}

var _ repositories.UnitOfWork = (*UnitOfWork)(nil)
