// Package model holds the domain types shared by the extraction, transform
// and load stages. Raw CSV rows come in as RawRecord maps; the normalizer
// turns them into Record values; the loader persists Branch, Product,
// Transaction and TransactionProduct rows.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one extracted CSV row, keyed by semantic field name
// (branch, date_time, qty, ...) rather than by source column header.
type RawRecord struct {
	// Line is the 1-based row number in the source file, kept for reporting.
	Line int
	// Source identifies the file or URI the row came from.
	Source string

	Fields map[string]string
}

// Get returns the value of a field, or "" if the field is absent.
func (r RawRecord) Get(field string) string {
	return r.Fields[field]
}

// Has reports whether the field is present with a non-blank value.
func (r RawRecord) Has(field string) bool {
	return strings.TrimSpace(r.Fields[field]) != ""
}

// Clone returns a deep copy of the record. Stages that rewrite fields work
// on a copy so earlier stages keep their view of the data.
func (r RawRecord) Clone() RawRecord {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return RawRecord{Line: r.Line, Source: r.Source, Fields: fields}
}

// Fold produces the canonical form of a free-text value used for entity
// identity matching: surrounding whitespace trimmed, case folded. The
// originally-cased value is what gets stored.
func Fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ProductLine is one product entry attached to a transaction.
type ProductLine struct {
	Name    string
	Size    string
	Flavour string
	Price   decimal.Decimal
}

// IdentityKey returns the case-folded (name, size, flavour) key under which
// the loader resolves this line to a Product. Price is informational and
// not part of identity.
func (l ProductLine) IdentityKey() string {
	return Fold(l.Name) + "\x1f" + Fold(l.Size) + "\x1f" + Fold(l.Flavour)
}

// Record is a normalized transaction ready for loading. All free-text
// fields are trimmed; DateTime is canonical; Qty and Price are validated.
type Record struct {
	Branch      string
	DateTime    time.Time
	Qty         int
	Price       decimal.Decimal
	PaymentType string
	Lines       []ProductLine

	// Raw is the scrubbed source row this record was normalized from,
	// carried along so load failures can be reported against it.
	Raw RawRecord
}

// Branch is a persisted café branch. Name is unique (case-insensitively)
// and never mutated once created.
type Branch struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

// Product is a persisted product. Identity for resolution is the
// case-folded (ProductName, Size, Flavour) triple.
type Product struct {
	ID          string          `db:"id"`
	ProductName string          `db:"product_name"`
	Size        string          `db:"size"`
	Flavour     string          `db:"flavour"`
	Price       decimal.Decimal `db:"price"`
}

// Transaction is a persisted transaction. Immutable once created.
type Transaction struct {
	ID          string          `db:"id"`
	BranchID    string          `db:"branch_id"`
	DateTime    time.Time       `db:"date_time"`
	Qty         int             `db:"qty"`
	Price       decimal.Decimal `db:"price"`
	PaymentType string          `db:"payment_type"`
}

// TransactionProduct links a transaction to one of its product lines.
type TransactionProduct struct {
	ID            string `db:"id"`
	TransactionID string `db:"transaction_id"`
	ProductID     string `db:"product_id"`
}
