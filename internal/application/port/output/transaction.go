package output

import (
	"context"
)

// TransactionManager runs a read-modify-write sequence atomically where the
// store supports it. Repositories pick the transaction up from txCtx.
type TransactionManager interface {
	// InTransaction executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	InTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}
