// Package pipeline implements the transform stages of the ETL run and the
// orchestrator that sequences them: deduplicate, scrub PII, normalize,
// load. Each stage is a Step over a shared State; the Summary accumulates
// the counts the caller reports.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/cafe-etl/internal/config"
	"github.com/dvloznov/cafe-etl/internal/load"
	"github.com/dvloznov/cafe-etl/internal/logger"
	"github.com/dvloznov/cafe-etl/internal/model"
)

// Summary is the run report: counts per stage plus the rejected records.
type Summary struct {
	RowsRead            int
	DuplicatesRemoved   int
	PIIFieldsRedacted   int
	NormalizationErrors int
	TransactionsLoaded  int
	TransactionsSkipped int
	LoadErrors          int

	Rejects []Reject
}

// State is the shared state all pipeline steps operate on.
type State struct {
	Raw     []model.RawRecord
	Records []model.Record
	Summary Summary
}

// NewState seeds the state with the extracted batch.
func NewState(raw []model.RawRecord) *State {
	return &State{Raw: raw, Summary: Summary{RowsRead: len(raw)}}
}

// Step is a single stage in the pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// DedupStep removes duplicate raw records.
type DedupStep struct {
	dedup *Deduplicator
}

func (s *DedupStep) Execute(ctx context.Context, state *State) error {
	unique, removed, flagged := s.dedup.Deduplicate(state.Raw)
	state.Raw = unique
	state.Summary.DuplicatesRemoved = removed
	if flagged > 0 {
		log := logger.FromContext(ctx)
		log.Info().Int("flagged", flagged).
			Msg("non-comparable records passed through deduplication")
	}
	return nil
}

// ScrubStep strips PII. It runs strictly before normalization and loading;
// a postcondition violation aborts the run.
type ScrubStep struct {
	scrubber *Scrubber
}

func (s *ScrubStep) Execute(ctx context.Context, state *State) error {
	scrubbed, redacted, err := s.scrubber.ScrubBatch(state.Raw)
	if err != nil {
		return err
	}
	state.Raw = scrubbed
	state.Summary.PIIFieldsRedacted = redacted
	return nil
}

// NormalizeStep converts raw records into domain records, rejecting those
// that cannot be normalized.
type NormalizeStep struct {
	normalizer *Normalizer
}

func (s *NormalizeStep) Execute(ctx context.Context, state *State) error {
	records, rejects := s.normalizer.NormalizeBatch(state.Raw)
	state.Records = records
	state.Summary.NormalizationErrors = len(rejects)
	state.Summary.Rejects = append(state.Summary.Rejects, rejects...)
	return nil
}

// RecordLoader is the loading collaborator of the pipeline. *load.Loader
// implements it.
type RecordLoader interface {
	Load(ctx context.Context, records []model.Record) (load.Result, error)
}

// LoadStep persists the normalized records. A store-unavailable error is
// surfaced after the partial counts have been recorded.
type LoadStep struct {
	loader RecordLoader
}

func (s *LoadStep) Execute(ctx context.Context, state *State) error {
	result, err := s.loader.Load(ctx, state.Records)
	state.Summary.TransactionsLoaded = result.Loaded
	state.Summary.TransactionsSkipped = result.SkippedDuplicates
	state.Summary.LoadErrors = len(result.Failures)
	for _, failure := range result.Failures {
		state.Summary.Rejects = append(state.Summary.Rejects, Reject{
			Raw:    failure.Record.Raw,
			Reason: ReasonLoadFailed,
			Err:    failure.Err,
		})
	}
	if err != nil {
		return err
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first error. The
// state keeps whatever counts were accumulated up to that point.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Run executes the pipeline over an extracted batch and returns the run
// summary, which is valid (partial) even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context, raw []model.RawRecord) (Summary, error) {
	state := NewState(raw)
	err := p.Execute(ctx, state)
	return state.Summary, err
}

// NewETLPipeline assembles the standard dedup -> scrub -> normalize ->
// load pipeline. With a nil loader the load stage is omitted (dry run).
func NewETLPipeline(cfg *config.Config, recordLoader RecordLoader, log zerolog.Logger) *Pipeline {
	steps := []Step{
		&DedupStep{dedup: NewDeduplicator(cfg.RequiredFields, logger.Component(log, "dedup"))},
		&ScrubStep{scrubber: NewScrubber(cfg.PII, logger.Component(log, "scrub"))},
		&NormalizeStep{normalizer: NewNormalizer(cfg, logger.Component(log, "normalize"))},
	}
	if recordLoader != nil {
		steps = append(steps, &LoadStep{loader: recordLoader})
	}
	return NewPipeline(steps...)
}
