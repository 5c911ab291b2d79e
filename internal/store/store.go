// Package store defines the collaborator interface the loader persists
// through: keyed lookups, inserts, and a scoped all-or-nothing unit of
// work per logical transaction. Implementations live in subpackages
// (postgres for the real store, memory for tests).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/cafe-etl/internal/model"
)

// ErrUnavailable marks connection or transport failures. The loader aborts
// the remaining batch when it sees this; nothing further can be persisted.
var ErrUnavailable = errors.New("store unavailable")

// ErrConflict marks a constraint violation not explained by the loader's
// natural-key idempotence check. It fails the record, not the batch.
var ErrConflict = errors.New("store conflict")

// TransactionKey is the natural key of a transaction: the business fields
// that identify it independent of any generated id.
type TransactionKey struct {
	BranchID    string
	DateTime    time.Time
	Qty         int
	Price       decimal.Decimal
	PaymentType string
}

// Queries are the lookup and insert operations the loader needs. Lookups
// return found=false (not an error) when no row matches. Branch and
// product lookups match case-insensitively on the canonical identity key.
type Queries interface {
	FindBranch(ctx context.Context, name string) (id string, found bool, err error)
	InsertBranch(ctx context.Context, name string) (id string, err error)

	FindProduct(ctx context.Context, name, size, flavour string) (id string, found bool, err error)
	InsertProduct(ctx context.Context, name, size, flavour string, price decimal.Decimal) (id string, err error)

	FindTransaction(ctx context.Context, key TransactionKey) (id string, found bool, err error)
	InsertTransaction(ctx context.Context, tx model.Transaction) (id string, err error)

	InsertTransactionProduct(ctx context.Context, transactionID, productID string) error
}

// UnitOfWork scopes a group of mutations that commit or roll back
// together. Rollback after Commit is a no-op, so callers can defer it
// unconditionally.
type UnitOfWork interface {
	Queries
	Commit() error
	Rollback() error
}

// Store opens units of work against the backing database.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
