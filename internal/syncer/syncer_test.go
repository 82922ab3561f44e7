package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sellsync/internal/airtable"
	"sellsync/internal/sellsy"
	"sellsync/pkg/models"
)

type fakeSource struct {
	invoices  []map[string]interface{}
	searchErr error

	details    map[string]map[string]interface{}
	detailErr  error
	detailHits int

	pdfErr  error
	pdfHits int
}

func (f *fakeSource) SearchInvoices(ctx context.Context, filter sellsy.Filter) ([]map[string]interface{}, error) {
	return f.invoices, f.searchErr
}

func (f *fakeSource) GetInvoice(ctx context.Context, id string) (map[string]interface{}, error) {
	f.detailHits++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	if detail, ok := f.details[id]; ok {
		return detail, nil
	}
	return nil, sellsy.ErrNotFound
}

func (f *fakeSource) DownloadPDF(ctx context.Context, invoice map[string]interface{}, dir string) (string, error) {
	f.pdfHits++
	if f.pdfErr != nil {
		return "", f.pdfErr
	}
	return dir + "/stub.pdf", nil
}

type fakeDest struct {
	existing  map[string]*airtable.Record
	upserted  []*models.InvoiceRecord
	upsertErr error
	findErr   error
}

func (f *fakeDest) Upsert(ctx context.Context, record *models.InvoiceRecord) (string, bool, error) {
	if f.upsertErr != nil {
		return "", false, f.upsertErr
	}
	f.upserted = append(f.upserted, record)
	_, exists := f.existing[record.ExternalID]
	return "rec001", !exists, nil
}

func (f *fakeDest) FindByExternalID(ctx context.Context, id string) (*airtable.Record, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.existing[id], nil
}

func summaryInvoice(id int) map[string]interface{} {
	return map[string]interface{}{
		"id":        fmt.Sprintf("%d", id),
		"reference": fmt.Sprintf("FA-%d", id),
	}
}

func TestRunCreatesAndUpdates(t *testing.T) {
	source := &fakeSource{
		invoices: []map[string]interface{}{summaryInvoice(1), summaryInvoice(2)},
		details: map[string]map[string]interface{}{
			"1": summaryInvoice(1),
			"2": summaryInvoice(2),
		},
	}
	dest := &fakeDest{existing: map[string]*airtable.Record{
		"2": {ID: "rec002"},
	}}

	summary, err := New(source, dest, t.TempDir()).Run(context.Background(), Options{Days: 30})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Updated)
	assert.Zero(t, summary.Failed)
	assert.Len(t, dest.upserted, 2)
}

func TestRunMissingOnlySkipsExisting(t *testing.T) {
	source := &fakeSource{
		invoices: []map[string]interface{}{summaryInvoice(1), summaryInvoice(2)},
		details: map[string]map[string]interface{}{
			"1": summaryInvoice(1),
			"2": summaryInvoice(2),
		},
	}
	dest := &fakeDest{existing: map[string]*airtable.Record{
		"1": {ID: "rec001"},
	}}

	summary, err := New(source, dest, t.TempDir()).Run(context.Background(), Options{MissingOnly: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Created)
	require.Len(t, dest.upserted, 1)
	assert.Equal(t, "2", dest.upserted[0].ExternalID)
}

func TestRunFallsBackToSummaryPayload(t *testing.T) {
	source := &fakeSource{
		invoices:  []map[string]interface{}{summaryInvoice(1)},
		detailErr: errors.New("detail endpoint down"),
	}
	dest := &fakeDest{}

	summary, err := New(source, dest, t.TempDir()).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Created)
	require.Len(t, dest.upserted, 1)
	assert.Equal(t, "FA-1", dest.upserted[0].Number, "summary payload must survive the fallback")
}

func TestRunDropsInvoiceWithoutID(t *testing.T) {
	source := &fakeSource{
		invoices: []map[string]interface{}{{"reference": "FA-anonymous"}},
	}
	dest := &fakeDest{}

	summary, err := New(source, dest, t.TempDir()).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)
	assert.Empty(t, dest.upserted)
	assert.Zero(t, source.detailHits, "an id-less invoice has no detail endpoint to call")
}

func TestRunIsolatesPerInvoiceFailures(t *testing.T) {
	source := &fakeSource{
		invoices: []map[string]interface{}{summaryInvoice(1), summaryInvoice(2)},
		details: map[string]map[string]interface{}{
			"1": summaryInvoice(1),
			"2": summaryInvoice(2),
		},
	}
	dest := &fakeDest{findErr: errors.New("transient table error")}

	summary, err := New(source, dest, t.TempDir()).Run(context.Background(), Options{MissingOnly: true})
	require.NoError(t, err, "per-invoice failures must not abort the run")

	assert.Equal(t, 2, summary.Failed)
	assert.Empty(t, dest.upserted)
}

func TestRunAbortsOnAuthFailure(t *testing.T) {
	source := &fakeSource{
		invoices:  []map[string]interface{}{summaryInvoice(1), summaryInvoice(2)},
		detailErr: fmt.Errorf("token exchange: %w", sellsy.ErrAuthFailed),
	}
	dest := &fakeDest{}

	summary, err := New(source, dest, t.TempDir()).Run(context.Background(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sellsy.ErrAuthFailed)
	assert.Equal(t, 1, source.detailHits, "auth failure must stop before the next invoice")
	assert.Equal(t, 2, summary.Fetched)
}

func TestRunSyncsPartialFetchResults(t *testing.T) {
	source := &fakeSource{
		invoices:  []map[string]interface{}{summaryInvoice(1)},
		searchErr: fmt.Errorf("page 2: %w", sellsy.ErrFetchFailed),
		details: map[string]map[string]interface{}{
			"1": summaryInvoice(1),
		},
	}
	dest := &fakeDest{}

	summary, err := New(source, dest, t.TempDir()).Run(context.Background(), Options{})
	require.Error(t, err, "the truncated fetch must still be reported")
	assert.ErrorIs(t, err, sellsy.ErrFetchFailed)

	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, 1, summary.Created, "partial results are synced before reporting the error")
}

func TestRunFailsWhenFetchYieldsNothing(t *testing.T) {
	source := &fakeSource{searchErr: errors.New("network unreachable")}
	dest := &fakeDest{}

	summary, err := New(source, dest, t.TempDir()).Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Zero(t, summary.Fetched)
}

func TestRunDownloadsPDFsWhenRequested(t *testing.T) {
	source := &fakeSource{
		invoices: []map[string]interface{}{summaryInvoice(1)},
		details:  map[string]map[string]interface{}{"1": summaryInvoice(1)},
	}
	dest := &fakeDest{}

	_, err := New(source, dest, t.TempDir()).Run(context.Background(), Options{DownloadPDFs: true})
	require.NoError(t, err)
	assert.Equal(t, 1, source.pdfHits)
}

func TestRunPDFFailureDoesNotFailInvoice(t *testing.T) {
	source := &fakeSource{
		invoices: []map[string]interface{}{summaryInvoice(1)},
		details:  map[string]map[string]interface{}{"1": summaryInvoice(1)},
		pdfErr:   sellsy.ErrPDFUnavailable,
	}
	dest := &fakeDest{}

	summary, err := New(source, dest, t.TempDir()).Run(context.Background(), Options{DownloadPDFs: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Zero(t, summary.Failed)
}

func TestSummaryString(t *testing.T) {
	summary := Summary{Fetched: 5, Created: 2, Updated: 1, Skipped: 1, Failed: 1}
	assert.Equal(t, "5 fetched, 2 created, 1 updated, 1 skipped, 1 failed", summary.String())
}
