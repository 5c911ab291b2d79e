// Package memory is an in-memory store implementation. It backs the
// pipeline and loader tests and doubles as a dry-run target: units of work
// stage their inserts and only merge them into the committed state on
// Commit, so rollback semantics match the real store.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/cafe-etl/internal/model"
	"github.com/dvloznov/cafe-etl/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	branches     []model.Branch
	products     []model.Product
	transactions []model.Transaction
	links        []model.TransactionProduct

	// FailOn, when set, is consulted before every operation with the
	// operation name ("insert_transaction", "commit", ...). Returning a
	// non-nil error fails that operation. Test hook.
	FailOn func(op string) error
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{}
}

// Begin opens a staged unit of work.
func (s *Store) Begin(ctx context.Context) (store.UnitOfWork, error) {
	if err := s.fail("begin"); err != nil {
		return nil, err
	}
	return &unitOfWork{store: s}, nil
}

func (s *Store) fail(op string) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(op)
}

// Branches returns a copy of the committed branches.
func (s *Store) Branches() []model.Branch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Branch(nil), s.branches...)
}

// Products returns a copy of the committed products.
func (s *Store) Products() []model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Product(nil), s.products...)
}

// Transactions returns a copy of the committed transactions.
func (s *Store) Transactions() []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Transaction(nil), s.transactions...)
}

// TransactionProducts returns a copy of the committed junction rows.
func (s *Store) TransactionProducts() []model.TransactionProduct {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TransactionProduct(nil), s.links...)
}

// unitOfWork stages inserts until Commit merges them into the store.
type unitOfWork struct {
	store *Store
	done  bool

	branches     []model.Branch
	products     []model.Product
	transactions []model.Transaction
	links        []model.TransactionProduct
}

func (u *unitOfWork) Commit() error {
	if err := u.store.fail("commit"); err != nil {
		return err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if u.done {
		return nil
	}
	u.done = true
	u.store.branches = append(u.store.branches, u.branches...)
	u.store.products = append(u.store.products, u.products...)
	u.store.transactions = append(u.store.transactions, u.transactions...)
	u.store.links = append(u.store.links, u.links...)
	return nil
}

func (u *unitOfWork) Rollback() error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.done = true
	u.branches = nil
	u.products = nil
	u.transactions = nil
	u.links = nil
	return nil
}

func (u *unitOfWork) FindBranch(ctx context.Context, name string) (string, bool, error) {
	if err := u.store.fail("find_branch"); err != nil {
		return "", false, err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	want := model.Fold(name)
	for _, b := range u.store.branches {
		if model.Fold(b.Name) == want {
			return b.ID, true, nil
		}
	}
	for _, b := range u.branches {
		if model.Fold(b.Name) == want {
			return b.ID, true, nil
		}
	}
	return "", false, nil
}

func (u *unitOfWork) InsertBranch(ctx context.Context, name string) (string, error) {
	if err := u.store.fail("insert_branch"); err != nil {
		return "", err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	b := model.Branch{ID: uuid.NewString(), Name: name}
	u.branches = append(u.branches, b)
	return b.ID, nil
}

func (u *unitOfWork) FindProduct(ctx context.Context, name, size, flavour string) (string, bool, error) {
	if err := u.store.fail("find_product"); err != nil {
		return "", false, err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	want := model.ProductLine{Name: name, Size: size, Flavour: flavour}.IdentityKey()
	for _, p := range append(append([]model.Product(nil), u.store.products...), u.products...) {
		key := model.ProductLine{Name: p.ProductName, Size: p.Size, Flavour: p.Flavour}.IdentityKey()
		if key == want {
			return p.ID, true, nil
		}
	}
	return "", false, nil
}

func (u *unitOfWork) InsertProduct(ctx context.Context, name, size, flavour string, price decimal.Decimal) (string, error) {
	if err := u.store.fail("insert_product"); err != nil {
		return "", err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	p := model.Product{
		ID:          uuid.NewString(),
		ProductName: name,
		Size:        size,
		Flavour:     flavour,
		Price:       price,
	}
	u.products = append(u.products, p)
	return p.ID, nil
}

func (u *unitOfWork) FindTransaction(ctx context.Context, key store.TransactionKey) (string, bool, error) {
	if err := u.store.fail("find_transaction"); err != nil {
		return "", false, err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for _, t := range append(append([]model.Transaction(nil), u.store.transactions...), u.transactions...) {
		if t.BranchID == key.BranchID &&
			t.DateTime.Equal(key.DateTime) &&
			t.Qty == key.Qty &&
			t.Price.Equal(key.Price) &&
			t.PaymentType == key.PaymentType {
			return t.ID, true, nil
		}
	}
	return "", false, nil
}

func (u *unitOfWork) InsertTransaction(ctx context.Context, tx model.Transaction) (string, error) {
	if err := u.store.fail("insert_transaction"); err != nil {
		return "", err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	tx.ID = uuid.NewString()
	u.transactions = append(u.transactions, tx)
	return tx.ID, nil
}

func (u *unitOfWork) InsertTransactionProduct(ctx context.Context, transactionID, productID string) error {
	if err := u.store.fail("insert_transaction_product"); err != nil {
		return err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.links = append(u.links, model.TransactionProduct{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		ProductID:     productID,
	})
	return nil
}
