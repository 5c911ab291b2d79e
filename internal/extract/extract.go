// Package extract reads raw point-of-sale CSV exports into RawRecords.
// The exports are headerless; the column order and the mapping from
// column header to semantic field name come from configuration. Sources
// are local files or gs:// object URIs.
package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/cafe-etl/internal/config"
	"github.com/dvloznov/cafe-etl/internal/model"
)

// BlobFetcher downloads a remote object by URI. The GCS implementation is
// the default; tests substitute their own.
type BlobFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Extractor parses CSV exports into RawRecords.
type Extractor struct {
	columns    []string
	fields     map[string]string
	defaultQty string
	fetcher    BlobFetcher
	log        zerolog.Logger
}

// New creates an Extractor using the GCS fetcher for remote URIs.
func New(cfg *config.Config, log zerolog.Logger) *Extractor {
	return NewWithFetcher(cfg, &GCSFetcher{}, log)
}

// NewWithFetcher creates an Extractor with a custom remote fetcher.
func NewWithFetcher(cfg *config.Config, fetcher BlobFetcher, log zerolog.Logger) *Extractor {
	return &Extractor{
		columns:    cfg.Columns,
		fields:     cfg.Fields,
		defaultQty: cfg.DefaultQty,
		fetcher:    fetcher,
		log:        log,
	}
}

// ExtractBatch reads all inputs and aggregates their rows into one batch,
// in input order.
func (e *Extractor) ExtractBatch(ctx context.Context, paths []string) ([]model.RawRecord, error) {
	var batch []model.RawRecord
	for _, path := range paths {
		records, err := e.ExtractFile(ctx, path)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			e.log.Warn().Str("source", path).Msg("no rows extracted")
		}
		batch = append(batch, records...)
	}
	return batch, nil
}

// ExtractFile reads one input, which is either a local path or a
// gs://bucket/object URI.
func (e *Extractor) ExtractFile(ctx context.Context, path string) ([]model.RawRecord, error) {
	if IsGCSURI(path) {
		data, err := e.fetcher.Fetch(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("extract: fetch %s: %w", path, err)
		}
		return e.ExtractReader(bytes.NewReader(data), path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", path, err)
	}
	defer f.Close()
	return e.ExtractReader(f, path)
}

// ExtractReader parses CSV rows from r. Rows with fewer fields than the
// configured column count are skipped with a warning; an accidental
// header row at the top is detected and dropped.
func (e *Extractor) ExtractReader(r io.Reader, source string) ([]model.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var records []model.RawRecord
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("extract: read %s: %w", source, err)
		}
		line++

		if line == 1 && len(row) > 0 && strings.TrimSpace(row[0]) == e.columns[0] {
			e.log.Debug().Str("source", source).Msg("header row detected, skipping")
			continue
		}
		if len(row) < len(e.columns) {
			e.log.Warn().Str("source", source).Int("line", line).
				Int("fields", len(row)).Int("expected", len(e.columns)).
				Msg("row skipped due to insufficient fields")
			continue
		}

		byColumn := make(map[string]string, len(e.columns))
		for i, column := range e.columns {
			byColumn[column] = strings.TrimSpace(row[i])
		}

		fields := make(map[string]string, len(e.fields)+1)
		for field, column := range e.fields {
			fields[field] = byColumn[column]
		}
		// qty is not part of the raw export
		if _, ok := fields[model.FieldQty]; !ok {
			fields[model.FieldQty] = e.defaultQty
		}

		records = append(records, model.RawRecord{Line: line, Source: source, Fields: fields})
	}

	e.log.Info().Str("source", source).Int("rows", len(records)).Msg("extraction complete")
	return records, nil
}
