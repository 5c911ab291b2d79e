package pipeline

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/cafe-etl/internal/model"
)

// Deduplicator removes exact duplicates from a batch, preserving
// first-occurrence order. The comparison key covers business fields only:
// two otherwise-identical purchases that differ in a PII field are still
// duplicates, and two distinct purchases are never merged because of one.
type Deduplicator struct {
	required []string
	log      zerolog.Logger
}

// NewDeduplicator creates a Deduplicator. required lists the business
// fields a record must carry to be comparable at all.
func NewDeduplicator(required []string, log zerolog.Logger) *Deduplicator {
	return &Deduplicator{required: required, log: log}
}

// Deduplicate returns the unique records in input order, the number of
// duplicates removed, and the number of non-comparable records passed
// through unchanged.
func (d *Deduplicator) Deduplicate(records []model.RawRecord) (unique []model.RawRecord, removed, flagged int) {
	seen := make(map[string]bool, len(records))
	unique = make([]model.RawRecord, 0, len(records))

	for _, rec := range records {
		if !d.comparable(rec) {
			// Missing a required business field: not safe to compare, so
			// never dropped here. The normalizer rejects it with a reason.
			flagged++
			d.log.Warn().Int("line", rec.Line).Str("source", rec.Source).
				Msg("record missing required fields, passed through deduplication")
			unique = append(unique, rec)
			continue
		}
		key := comparisonKey(rec)
		if seen[key] {
			removed++
			continue
		}
		seen[key] = true
		unique = append(unique, rec)
	}
	return unique, removed, flagged
}

func (d *Deduplicator) comparable(rec model.RawRecord) bool {
	for _, field := range d.required {
		if !rec.Has(field) {
			return false
		}
	}
	return true
}

// comparisonKey serializes the business fields in a fixed order. PII
// fields never contribute.
func comparisonKey(rec model.RawRecord) string {
	var b strings.Builder
	for _, field := range model.BusinessFieldOrder {
		b.WriteString(field)
		b.WriteByte('=')
		b.WriteString(rec.Get(field))
		b.WriteByte('\x1e')
	}
	return b.String()
}
