// Package load persists normalized records. For every record it resolves
// or creates the branch and product entities, then inserts the transaction
// and its junction rows, all inside one unit of work so a failure leaves
// no partial state. Re-running over already-loaded input is detected by
// the transaction's natural key and reported as a skip, not an error.
package load

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/cafe-etl/internal/model"
	"github.com/dvloznov/cafe-etl/internal/store"
)

// Resolution is the outcome of a lookup-or-create: either an existing row
// was found or a new one was created. Both carry the surrogate id.
type Resolution struct {
	ID      string
	Created bool
}

// Found wraps the id of an existing row.
func Found(id string) Resolution { return Resolution{ID: id} }

// Created wraps the id of a freshly inserted row.
func Created(id string) Resolution { return Resolution{ID: id, Created: true} }

// Failure is one record the loader could not persist.
type Failure struct {
	Record model.Record
	Err    error
}

// Result summarizes a batch load.
type Result struct {
	Loaded            int
	SkippedDuplicates int
	Failures          []Failure
}

// Loader writes normalized records through a store collaborator.
type Loader struct {
	store store.Store
	log   zerolog.Logger
}

// New creates a Loader.
func New(st store.Store, log zerolog.Logger) *Loader {
	return &Loader{store: st, log: log}
}

// Load persists the batch sequentially. A failed record is recorded and
// the batch continues, except when the store becomes unavailable: then the
// partial Result is returned together with the error so the caller knows
// what succeeded before the failure.
func (l *Loader) Load(ctx context.Context, records []model.Record) (Result, error) {
	var res Result
	for _, rec := range records {
		skipped, err := l.loadOne(ctx, rec)
		switch {
		case err == nil && skipped:
			res.SkippedDuplicates++
			l.log.Debug().
				Str("branch", rec.Branch).
				Time("date_time", rec.DateTime).
				Msg("transaction already loaded, skipping")
		case err == nil:
			res.Loaded++
		case errors.Is(err, store.ErrUnavailable):
			res.Failures = append(res.Failures, Failure{Record: rec, Err: err})
			return res, fmt.Errorf("load: aborting batch: %w", err)
		default:
			res.Failures = append(res.Failures, Failure{Record: rec, Err: err})
			l.log.Warn().Err(err).
				Str("branch", rec.Branch).
				Int("line", rec.Raw.Line).
				Msg("record failed to load, continuing batch")
		}
	}
	return res, nil
}

// loadOne runs the resolve-and-insert algorithm for a single record inside
// one unit of work. Any error rolls the whole unit back.
func (l *Loader) loadOne(ctx context.Context, rec model.Record) (skipped bool, err error) {
	uow, err := l.store.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("loadOne: begin: %w", err)
	}
	defer uow.Rollback()

	branch, err := l.resolveBranch(ctx, uow, rec.Branch)
	if err != nil {
		return false, err
	}

	productIDs := make([]string, 0, len(rec.Lines))
	for _, line := range rec.Lines {
		product, err := l.resolveProduct(ctx, uow, line)
		if err != nil {
			return false, err
		}
		productIDs = append(productIDs, product.ID)
	}

	key := store.TransactionKey{
		BranchID:    branch.ID,
		DateTime:    rec.DateTime,
		Qty:         rec.Qty,
		Price:       rec.Price,
		PaymentType: rec.PaymentType,
	}
	_, found, err := uow.FindTransaction(ctx, key)
	if err != nil {
		return false, fmt.Errorf("loadOne: find transaction: %w", err)
	}
	if found {
		// Already loaded on a previous run. Commit so a branch or product
		// resolved above is kept; on a true re-run both were found, not
		// created, and nothing is written.
		return true, uow.Commit()
	}

	txID, err := uow.InsertTransaction(ctx, model.Transaction{
		BranchID:    branch.ID,
		DateTime:    rec.DateTime,
		Qty:         rec.Qty,
		Price:       rec.Price,
		PaymentType: rec.PaymentType,
	})
	if err != nil {
		return false, fmt.Errorf("loadOne: insert transaction: %w", err)
	}
	for _, productID := range productIDs {
		if err := uow.InsertTransactionProduct(ctx, txID, productID); err != nil {
			return false, fmt.Errorf("loadOne: insert transaction_product: %w", err)
		}
	}
	return false, uow.Commit()
}

func (l *Loader) resolveBranch(ctx context.Context, q store.Queries, name string) (Resolution, error) {
	id, found, err := q.FindBranch(ctx, name)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve branch %q: %w", name, err)
	}
	if found {
		return Found(id), nil
	}
	id, err = q.InsertBranch(ctx, name)
	if err != nil {
		return Resolution{}, fmt.Errorf("create branch %q: %w", name, err)
	}
	l.log.Debug().Str("branch", name).Str("id", id).Msg("created branch")
	return Created(id), nil
}

func (l *Loader) resolveProduct(ctx context.Context, q store.Queries, line model.ProductLine) (Resolution, error) {
	id, found, err := q.FindProduct(ctx, line.Name, line.Size, line.Flavour)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve product %q: %w", line.Name, err)
	}
	if found {
		return Found(id), nil
	}
	id, err = q.InsertProduct(ctx, line.Name, line.Size, line.Flavour, line.Price)
	if err != nil {
		return Resolution{}, fmt.Errorf("create product %q: %w", line.Name, err)
	}
	l.log.Debug().Str("product", line.Name).Str("id", id).Msg("created product")
	return Created(id), nil
}
