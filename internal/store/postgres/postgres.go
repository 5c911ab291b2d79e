// Package postgres implements the store against PostgreSQL using sqlx.
// Surrogate ids are generated in the application as UUIDs; identity
// matching for branches and products is case-insensitive via lower().
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/cafe-etl/internal/config"
	"github.com/dvloznov/cafe-etl/internal/model"
	"github.com/dvloznov/cafe-etl/internal/store"
)

// Store is the PostgreSQL-backed store.
type Store struct {
	db *sqlx.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", classify(err))
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing connection pool. Useful for tools that
// manage the pool themselves.
func NewFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool for schema checks.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Begin opens a unit of work backed by a database transaction.
func (s *Store) Begin(ctx context.Context) (store.UnitOfWork, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", classify(err))
	}
	return &unitOfWork{tx: tx}, nil
}

type unitOfWork struct {
	tx *sqlx.Tx
}

func (u *unitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", classify(err))
	}
	return nil
}

func (u *unitOfWork) Rollback() error {
	err := u.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("postgres: rollback: %w", classify(err))
	}
	return nil
}

func (u *unitOfWork) FindBranch(ctx context.Context, name string) (string, bool, error) {
	var id string
	err := u.tx.GetContext(ctx, &id,
		`SELECT id FROM branches WHERE lower(name) = lower($1) LIMIT 1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("postgres: find branch: %w", classify(err))
	}
	return id, true, nil
}

func (u *unitOfWork) InsertBranch(ctx context.Context, name string) (string, error) {
	branch := model.Branch{ID: uuid.NewString(), Name: name}
	_, err := u.tx.NamedExecContext(ctx,
		`INSERT INTO branches (id, name) VALUES (:id, :name)`, branch)
	if err != nil {
		return "", fmt.Errorf("postgres: insert branch: %w", classify(err))
	}
	return branch.ID, nil
}

func (u *unitOfWork) FindProduct(ctx context.Context, name, size, flavour string) (string, bool, error) {
	var id string
	err := u.tx.GetContext(ctx, &id, `
		SELECT id FROM products
		WHERE lower(product_name) = lower($1)
		  AND lower(size) = lower($2)
		  AND lower(flavour) = lower($3)
		LIMIT 1`, name, size, flavour)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("postgres: find product: %w", classify(err))
	}
	return id, true, nil
}

func (u *unitOfWork) InsertProduct(ctx context.Context, name, size, flavour string, price decimal.Decimal) (string, error) {
	product := model.Product{
		ID:          uuid.NewString(),
		ProductName: name,
		Size:        size,
		Flavour:     flavour,
		Price:       price,
	}
	_, err := u.tx.NamedExecContext(ctx, `
		INSERT INTO products (id, product_name, size, flavour, price)
		VALUES (:id, :product_name, :size, :flavour, :price)`, product)
	if err != nil {
		return "", fmt.Errorf("postgres: insert product: %w", classify(err))
	}
	return product.ID, nil
}

func (u *unitOfWork) FindTransaction(ctx context.Context, key store.TransactionKey) (string, bool, error) {
	var id string
	err := u.tx.GetContext(ctx, &id, `
		SELECT id FROM transactions
		WHERE branch_id = $1
		  AND date_time = $2
		  AND qty = $3
		  AND price = $4
		  AND payment_type = $5
		LIMIT 1`, key.BranchID, key.DateTime, key.Qty, key.Price, key.PaymentType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("postgres: find transaction: %w", classify(err))
	}
	return id, true, nil
}

func (u *unitOfWork) InsertTransaction(ctx context.Context, tx model.Transaction) (string, error) {
	tx.ID = uuid.NewString()
	_, err := u.tx.NamedExecContext(ctx, `
		INSERT INTO transactions (id, branch_id, date_time, qty, price, payment_type)
		VALUES (:id, :branch_id, :date_time, :qty, :price, :payment_type)`, tx)
	if err != nil {
		return "", fmt.Errorf("postgres: insert transaction: %w", classify(err))
	}
	return tx.ID, nil
}

func (u *unitOfWork) InsertTransactionProduct(ctx context.Context, transactionID, productID string) error {
	link := model.TransactionProduct{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		ProductID:     productID,
	}
	_, err := u.tx.NamedExecContext(ctx, `
		INSERT INTO transaction_product (id, transaction_id, product_id)
		VALUES (:id, :transaction_id, :product_id)`, link)
	if err != nil {
		return fmt.Errorf("postgres: insert transaction_product: %w", classify(err))
	}
	return nil
}

// classify maps driver errors onto the store's sentinel kinds: connection
// class failures become ErrUnavailable, unique violations ErrConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return err
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
