package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/cafe-etl/internal/config"
	"github.com/dvloznov/cafe-etl/internal/load"
	"github.com/dvloznov/cafe-etl/internal/model"
	"github.com/dvloznov/cafe-etl/internal/pipeline"
	"github.com/dvloznov/cafe-etl/internal/store/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		RequiredFields:  []string{model.FieldBranch, model.FieldDateTime, model.FieldQty, model.FieldPrice},
		KnownSizes:      []string{"small", "regular", "medium", "large"},
		DateTimeLayouts: []string{"2006-01-02 15:04:05"},
		PII: config.PIIPolicy{
			Actions: map[string]string{
				model.FieldCustomerName: config.ActionRemove,
				model.FieldCardNumber:   config.ActionRemove,
			},
			RedactionMarker: "[REDACTED]",
		},
	}
}

func row(line int, overrides map[string]string) model.RawRecord {
	fields := map[string]string{
		model.FieldBranch:       "Chesterfield",
		model.FieldDateTime:     "2023-04-01 10:00:00",
		model.FieldQty:          "2",
		model.FieldPrice:        "5.00",
		model.FieldPaymentType:  "CARD",
		model.FieldProduct:      "Regular Latte - 2.50",
		model.FieldCustomerName: "John Smith",
		model.FieldCardNumber:   "4111-1111-1111-1111",
	}
	for k, v := range overrides {
		fields[k] = v
	}
	return model.RawRecord{Line: line, Source: "april.csv", Fields: fields}
}

func runPipeline(t *testing.T, st *memory.Store, raw []model.RawRecord) (pipeline.Summary, error) {
	t.Helper()
	cfg := testConfig()
	loader := load.New(st, zerolog.Nop())
	p := pipeline.NewETLPipeline(cfg, loader, zerolog.Nop())
	return p.Run(context.Background(), raw)
}

func TestPipeline_EndToEnd(t *testing.T) {
	st := memory.New()

	// Two identical purchases (line 1 and 2) and one from another branch.
	raw := []model.RawRecord{
		row(1, nil),
		row(2, nil),
		row(3, map[string]string{model.FieldBranch: "Uppingham"}),
	}

	summary, err := runPipeline(t, st, raw)
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	if summary.RowsRead != 3 {
		t.Errorf("RowsRead = %d, want 3", summary.RowsRead)
	}
	if summary.DuplicatesRemoved != 1 {
		t.Errorf("DuplicatesRemoved = %d, want 1", summary.DuplicatesRemoved)
	}
	if summary.PIIFieldsRedacted != 4 {
		t.Errorf("PIIFieldsRedacted = %d, want 4", summary.PIIFieldsRedacted)
	}
	if summary.TransactionsLoaded != 2 {
		t.Errorf("TransactionsLoaded = %d, want 2", summary.TransactionsLoaded)
	}
	if summary.NormalizationErrors != 0 || summary.LoadErrors != 0 {
		t.Errorf("unexpected errors in summary: %+v", summary)
	}

	if got := len(st.Branches()); got != 2 {
		t.Errorf("branches = %d, want 2", got)
	}
	// Both transactions bought the same product.
	if got := len(st.Products()); got != 1 {
		t.Errorf("products = %d, want 1", got)
	}
	if got := len(st.Transactions()); got != 2 {
		t.Errorf("transactions = %d, want 2", got)
	}
	if got := len(st.TransactionProducts()); got != 2 {
		t.Errorf("transaction_product rows = %d, want 2", got)
	}

	// No PII survives into the store.
	for _, b := range st.Branches() {
		if b.Name != "Chesterfield" && b.Name != "Uppingham" {
			t.Errorf("unexpected branch %q", b.Name)
		}
	}
}

func TestPipeline_RerunIsIdempotent(t *testing.T) {
	st := memory.New()
	raw := []model.RawRecord{row(1, nil)}

	if _, err := runPipeline(t, st, raw); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	summary, err := runPipeline(t, st, raw)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if summary.TransactionsLoaded != 0 {
		t.Errorf("TransactionsLoaded = %d, want 0 on re-run", summary.TransactionsLoaded)
	}
	if summary.TransactionsSkipped != 1 {
		t.Errorf("TransactionsSkipped = %d, want 1", summary.TransactionsSkipped)
	}
	if got := len(st.Transactions()); got != 1 {
		t.Errorf("transactions = %d after re-run, want 1", got)
	}
	if got := len(st.TransactionProducts()); got != 1 {
		t.Errorf("transaction_product rows = %d after re-run, want 1", got)
	}
}

func TestPipeline_RejectsRecordedNotLoaded(t *testing.T) {
	st := memory.New()
	raw := []model.RawRecord{
		row(1, nil),
		row(2, map[string]string{model.FieldPrice: "-1.00", model.FieldBranch: "Sherwood"}),
	}

	summary, err := runPipeline(t, st, raw)
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	if summary.NormalizationErrors != 1 {
		t.Errorf("NormalizationErrors = %d, want 1", summary.NormalizationErrors)
	}
	if len(summary.Rejects) != 1 {
		t.Fatalf("got %d rejects, want 1", len(summary.Rejects))
	}
	if summary.Rejects[0].Raw.Line != 2 {
		t.Errorf("reject line = %d, want 2", summary.Rejects[0].Raw.Line)
	}
	if got := len(st.Branches()); got != 1 {
		t.Errorf("branches = %d, want only the valid record's branch", got)
	}
}

func TestPipeline_FailedRecordLeavesNoPartialState(t *testing.T) {
	st := memory.New()
	errBoom := errors.New("boom")
	st.FailOn = func(op string) error {
		if op == "insert_transaction_product" {
			return errBoom
		}
		return nil
	}

	summary, err := runPipeline(t, st, []model.RawRecord{row(1, nil)})
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	if summary.LoadErrors != 1 {
		t.Errorf("LoadErrors = %d, want 1", summary.LoadErrors)
	}
	if len(summary.Rejects) != 1 || summary.Rejects[0].Reason != pipeline.ReasonLoadFailed {
		t.Fatalf("rejects = %+v, want one load_failed reject", summary.Rejects)
	}
	// The rolled-back unit of work must not leak the branch, product or
	// transaction it staged before the failure.
	if got := len(st.Branches()); got != 0 {
		t.Errorf("branches = %d, want 0", got)
	}
	if got := len(st.Products()); got != 0 {
		t.Errorf("products = %d, want 0", got)
	}
	if got := len(st.Transactions()); got != 0 {
		t.Errorf("transactions = %d, want 0", got)
	}
}

func TestPipeline_DryRunLoadsNothing(t *testing.T) {
	cfg := testConfig()
	p := pipeline.NewETLPipeline(cfg, nil, zerolog.Nop())

	summary, err := p.Run(context.Background(), []model.RawRecord{row(1, nil)})
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if summary.TransactionsLoaded != 0 {
		t.Errorf("TransactionsLoaded = %d, want 0 in dry run", summary.TransactionsLoaded)
	}
	if summary.DuplicatesRemoved != 0 || summary.PIIFieldsRedacted != 2 {
		t.Errorf("unexpected transform counts: %+v", summary)
	}
}
