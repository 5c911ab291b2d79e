package pipeline

import (
	"errors"
	"fmt"

	"github.com/dvloznov/cafe-etl/internal/model"
)

// ErrParse marks a field that could not be parsed (date_time, qty, price).
var ErrParse = errors.New("parse error")

// ErrValidation marks a parseable but invalid value (negative qty,
// non-positive price, missing required field).
var ErrValidation = errors.New("validation error")

// Reason codes attached to rejected records.
type Reason string

const (
	ReasonMissingField Reason = "missing_field"
	ReasonBadDateTime  Reason = "bad_date_time"
	ReasonBadQty       Reason = "bad_qty"
	ReasonBadPrice     Reason = "bad_price"
	ReasonBadProduct   Reason = "bad_product"
	ReasonLoadFailed   Reason = "load_failed"
)

// Reject is a record excluded from the batch, kept with its reason for the
// run report. Raw is the scrubbed row, so a Reject never carries PII.
type Reject struct {
	Raw    model.RawRecord
	Reason Reason
	Err    error
}

func (r Reject) String() string {
	return fmt.Sprintf("line %d (%s): %s: %v", r.Raw.Line, r.Raw.Source, r.Reason, r.Err)
}

func reject(raw model.RawRecord, reason Reason, err error) *Reject {
	return &Reject{Raw: raw, Reason: reason, Err: err}
}
