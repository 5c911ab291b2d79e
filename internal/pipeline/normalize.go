package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/cafe-etl/internal/config"
	"github.com/dvloznov/cafe-etl/internal/model"
)

// Normalizer converts scrubbed raw records into structured domain records.
// Free-text fields are trimmed, with case-folding applied only at identity
// matching; blank size or flavour normalize to the empty-string sentinel;
// date_time, qty and price are parsed and validated. A record that cannot
// be normalized is routed to the reject list with a reason code, never
// silently dropped or defaulted.
type Normalizer struct {
	knownSizes map[string]bool
	layouts    []string
	required   []string
	log        zerolog.Logger
}

// NewNormalizer creates a Normalizer from the pipeline configuration.
func NewNormalizer(cfg *config.Config, log zerolog.Logger) *Normalizer {
	sizes := make(map[string]bool, len(cfg.KnownSizes))
	for _, s := range cfg.KnownSizes {
		sizes[model.Fold(s)] = true
	}
	return &Normalizer{
		knownSizes: sizes,
		layouts:    cfg.DateTimeLayouts,
		required:   cfg.RequiredFields,
		log:        log,
	}
}

// NormalizeBatch normalizes every record, splitting the batch into valid
// domain records and rejects.
func (n *Normalizer) NormalizeBatch(records []model.RawRecord) ([]model.Record, []Reject) {
	out := make([]model.Record, 0, len(records))
	var rejects []Reject
	for _, raw := range records {
		rec, rej := n.Normalize(raw)
		if rej != nil {
			rejects = append(rejects, *rej)
			n.log.Warn().Err(rej.Err).Int("line", raw.Line).Str("reason", string(rej.Reason)).
				Msg("record rejected")
			continue
		}
		out = append(out, rec)
	}
	return out, rejects
}

// Normalize converts one scrubbed record. On failure it returns a Reject
// carrying the original record and a reason code.
func (n *Normalizer) Normalize(raw model.RawRecord) (model.Record, *Reject) {
	for _, field := range n.required {
		if !raw.Has(field) {
			return model.Record{}, reject(raw, ReasonMissingField,
				fmt.Errorf("%w: missing required field %q", ErrValidation, field))
		}
	}

	dateTime, err := n.parseDateTime(raw.Get(model.FieldDateTime))
	if err != nil {
		return model.Record{}, reject(raw, ReasonBadDateTime, err)
	}

	qty, err := strconv.Atoi(strings.TrimSpace(raw.Get(model.FieldQty)))
	if err != nil {
		return model.Record{}, reject(raw, ReasonBadQty,
			fmt.Errorf("%w: qty %q: %v", ErrParse, raw.Get(model.FieldQty), err))
	}
	if qty < 0 {
		return model.Record{}, reject(raw, ReasonBadQty,
			fmt.Errorf("%w: negative qty %d", ErrValidation, qty))
	}

	price, err := parsePrice(raw.Get(model.FieldPrice))
	if err != nil {
		return model.Record{}, reject(raw, ReasonBadPrice, err)
	}

	lines, reason, err := n.productLines(raw)
	if err != nil {
		return model.Record{}, reject(raw, reason, err)
	}

	return model.Record{
		Branch:      strings.TrimSpace(raw.Get(model.FieldBranch)),
		DateTime:    dateTime,
		Qty:         qty,
		Price:       price,
		PaymentType: strings.TrimSpace(raw.Get(model.FieldPaymentType)),
		Lines:       lines,
		Raw:         raw,
	}, nil
}

func (n *Normalizer) parseDateTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range n.layouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date_time %q matches no configured layout", ErrParse, value)
}

func parsePrice(value string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q: %v", ErrParse, value, err)
	}
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s", ErrValidation, price)
	}
	return price, nil
}

// productLines builds the product lines for a record. Exports come in two
// shapes: a single free-text product descriptor column, or already-split
// product_name/size/flavour/product_price columns.
func (n *Normalizer) productLines(raw model.RawRecord) ([]model.ProductLine, Reason, error) {
	if raw.Has(model.FieldProduct) {
		lines, err := n.parseDescriptor(raw.Get(model.FieldProduct))
		return lines, ReasonBadProduct, err
	}
	if raw.Has(model.FieldProductName) {
		price, err := parsePrice(raw.Get(model.FieldProductPrice))
		if err != nil {
			return nil, ReasonBadProduct, fmt.Errorf("product_price: %w", err)
		}
		return []model.ProductLine{{
			Name:    strings.TrimSpace(raw.Get(model.FieldProductName)),
			Size:    strings.TrimSpace(raw.Get(model.FieldSize)),
			Flavour: strings.TrimSpace(raw.Get(model.FieldFlavour)),
			Price:   price,
		}}, ReasonBadProduct, nil
	}
	return nil, ReasonMissingField, fmt.Errorf("%w: missing product descriptor", ErrValidation)
}

// parseDescriptor parses the free-text product column. Each comma-separated
// entry has the shape "[Size] Name [- Flavour] - Price"; the leading token
// counts as a size only when it is one of the configured known sizes.
func (n *Normalizer) parseDescriptor(field string) ([]model.ProductLine, error) {
	entries := strings.Split(field, ",")
	lines := make([]model.ProductLine, 0, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, " - ", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: product entry %q has no price separator", ErrParse, entry)
		}

		size, name := n.splitSizeName(parts[0])
		var flavour string
		if len(parts) == 3 {
			flavour = strings.TrimSpace(parts[1])
		}

		price, err := parsePrice(parts[len(parts)-1])
		if err != nil {
			return nil, fmt.Errorf("product entry %q: %w", entry, err)
		}
		lines = append(lines, model.ProductLine{
			Name:    name,
			Size:    size,
			Flavour: flavour,
			Price:   price,
		})
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: product descriptor %q has no parseable entries", ErrParse, field)
	}
	return lines, nil
}

// splitSizeName peels a leading known-size token off a product name.
func (n *Normalizer) splitSizeName(s string) (size, name string) {
	head := strings.Fields(s)
	if len(head) > 1 && n.knownSizes[model.Fold(head[0])] {
		return head[0], strings.Join(head[1:], " ")
	}
	return "", strings.TrimSpace(s)
}
