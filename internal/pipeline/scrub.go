package pipeline

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/cafe-etl/internal/config"
	"github.com/dvloznov/cafe-etl/internal/model"
)

// Scrubber strips or redacts personally identifying fields before any
// record can reach the normalizer or the store. Fields on the configured
// policy get their configured action; known business fields pass through;
// anything else cannot be classified confidently and is redacted rather
// than passed on (fail-safe, not fail-open).
type Scrubber struct {
	policy config.PIIPolicy
	log    zerolog.Logger
}

// NewScrubber creates a Scrubber for the given policy.
func NewScrubber(policy config.PIIPolicy, log zerolog.Logger) *Scrubber {
	return &Scrubber{policy: policy, log: log}
}

// Scrub returns a scrubbed copy of the record and the number of fields
// removed or redacted. The input record is not modified.
func (s *Scrubber) Scrub(rec model.RawRecord) (model.RawRecord, int) {
	out := rec.Clone()
	scrubbed := 0
	for field := range rec.Fields {
		switch {
		case s.policy.IsPII(field):
			if s.policy.Actions[field] == config.ActionRemove {
				delete(out.Fields, field)
			} else {
				out.Fields[field] = s.policy.RedactionMarker
			}
			scrubbed++
		case model.BusinessFields[field]:
			// keep
		default:
			out.Fields[field] = s.policy.RedactionMarker
			scrubbed++
			s.log.Debug().Str("field", field).Int("line", rec.Line).
				Msg("unclassified field redacted conservatively")
		}
	}
	return out, scrubbed
}

// ScrubBatch scrubs every record and verifies the postcondition that no
// listed PII field survives with non-redacted content. A verification
// failure is a programming error and fails the batch.
func (s *Scrubber) ScrubBatch(records []model.RawRecord) ([]model.RawRecord, int, error) {
	out := make([]model.RawRecord, 0, len(records))
	total := 0
	for _, rec := range records {
		scrubbed, n := s.Scrub(rec)
		if err := s.verify(scrubbed); err != nil {
			return nil, total, err
		}
		out = append(out, scrubbed)
		total += n
	}
	return out, total, nil
}

func (s *Scrubber) verify(rec model.RawRecord) error {
	for field, value := range rec.Fields {
		if !s.policy.IsPII(field) && model.BusinessFields[field] {
			continue
		}
		if value != "" && value != s.policy.RedactionMarker {
			return fmt.Errorf("scrub: field %q survived scrubbing on line %d", field, rec.Line)
		}
	}
	return nil
}
