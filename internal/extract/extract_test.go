package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/cafe-etl/internal/config"
	"github.com/dvloznov/cafe-etl/internal/model"
)

func extractorConfig() *config.Config {
	return &config.Config{
		Columns: []string{
			"Date/Time", "Branch", "Customer Name", "Product",
			"Price", "Payment Type", "Card Number",
		},
		Fields: map[string]string{
			model.FieldDateTime:     "Date/Time",
			model.FieldBranch:       "Branch",
			model.FieldCustomerName: "Customer Name",
			model.FieldProduct:      "Product",
			model.FieldPrice:        "Price",
			model.FieldPaymentType:  "Payment Type",
			model.FieldCardNumber:   "Card Number",
		},
		DefaultQty: "1",
	}
}

const sampleCSV = `2023-04-01 10:00:00,Chesterfield,John Smith,Regular Latte - 2.50,2.50,CARD,4111-1111-1111-1111
2023-04-01 10:05:00,Chesterfield,Jane Doe,Large Mocha - 2.75,2.75,CASH,
`

func TestExtractReader_MapsColumnsToFields(t *testing.T) {
	e := NewWithFetcher(extractorConfig(), nil, zerolog.Nop())

	records, err := e.ExtractReader(strings.NewReader(sampleCSV), "april.csv")
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, 1, first.Line)
	assert.Equal(t, "april.csv", first.Source)
	assert.Equal(t, "Chesterfield", first.Get(model.FieldBranch))
	assert.Equal(t, "2023-04-01 10:00:00", first.Get(model.FieldDateTime))
	assert.Equal(t, "Regular Latte - 2.50", first.Get(model.FieldProduct))
	assert.Equal(t, "John Smith", first.Get(model.FieldCustomerName))
	assert.Equal(t, "4111-1111-1111-1111", first.Get(model.FieldCardNumber))
	assert.Equal(t, "CARD", first.Get(model.FieldPaymentType))

	// qty is not in the export; the default fills it in.
	assert.Equal(t, "1", first.Get(model.FieldQty))
	assert.Equal(t, "1", records[1].Get(model.FieldQty))
}

func TestExtractReader_SkipsHeaderRow(t *testing.T) {
	e := NewWithFetcher(extractorConfig(), nil, zerolog.Nop())
	input := "Date/Time,Branch,Customer Name,Product,Price,Payment Type,Card Number\n" + sampleCSV

	records, err := e.ExtractReader(strings.NewReader(input), "april.csv")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Chesterfield", records[0].Get(model.FieldBranch))
	// Line numbers stay 1-based against the source file.
	assert.Equal(t, 2, records[0].Line)
}

func TestExtractReader_SkipsShortRows(t *testing.T) {
	e := NewWithFetcher(extractorConfig(), nil, zerolog.Nop())
	input := sampleCSV + "incomplete,row\n"

	records, err := e.ExtractReader(strings.NewReader(input), "april.csv")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestExtractReader_Empty(t *testing.T) {
	e := NewWithFetcher(extractorConfig(), nil, zerolog.Nop())

	records, err := e.ExtractReader(strings.NewReader(""), "empty.csv")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractFile_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "april.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	e := NewWithFetcher(extractorConfig(), nil, zerolog.Nop())
	records, err := e.ExtractFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, path, records[0].Source)
}

func TestExtractFile_MissingLocal(t *testing.T) {
	e := NewWithFetcher(extractorConfig(), nil, zerolog.Nop())

	_, err := e.ExtractFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

type fakeFetcher struct {
	objects map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, uri string) ([]byte, error) {
	data, ok := f.objects[uri]
	if !ok {
		return nil, fmt.Errorf("object %s not found", uri)
	}
	return data, nil
}

func TestExtractFile_GCS(t *testing.T) {
	fetcher := &fakeFetcher{objects: map[string][]byte{
		"gs://exports/april.csv": []byte(sampleCSV),
	}}
	e := NewWithFetcher(extractorConfig(), fetcher, zerolog.Nop())

	records, err := e.ExtractFile(context.Background(), "gs://exports/april.csv")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "gs://exports/april.csv", records[0].Source)

	_, err = e.ExtractFile(context.Background(), "gs://exports/missing.csv")
	assert.Error(t, err)
}

func TestExtractBatch_AggregatesInOrder(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(a, []byte(sampleCSV), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("2023-04-02 09:00:00,Uppingham,Amy Pond,Flat White - 2.20,2.20,CARD,\n"), 0o644))

	e := NewWithFetcher(extractorConfig(), nil, zerolog.Nop())
	records, err := e.ExtractBatch(context.Background(), []string{a, b})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, a, records[0].Source)
	assert.Equal(t, b, records[2].Source)
	assert.Equal(t, "Uppingham", records[2].Get(model.FieldBranch))
}

func TestIsGCSURI(t *testing.T) {
	assert.True(t, IsGCSURI("gs://bucket/object.csv"))
	assert.False(t, IsGCSURI("/tmp/object.csv"))
	assert.False(t, IsGCSURI("https://bucket/object.csv"))
}

func TestSplitGCSURI(t *testing.T) {
	bucket, object, err := splitGCSURI("gs://exports/2023/april.csv")
	require.NoError(t, err)
	assert.Equal(t, "exports", bucket)
	assert.Equal(t, "2023/april.csv", object)

	_, _, err = splitGCSURI("gs://exports")
	assert.Error(t, err)
}
