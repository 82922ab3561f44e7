// Package syncer drives the batch pipeline: fetch invoices from Sellsy,
// normalize them and upsert them into Airtable, one invoice at a time.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sellsync/internal/airtable"
	"sellsync/internal/logger"
	"sellsync/internal/normalize"
	"sellsync/internal/sellsy"
	"sellsync/pkg/models"
)

// InvoiceSource is the Sellsy-side surface the driver needs.
type InvoiceSource interface {
	SearchInvoices(ctx context.Context, filter sellsy.Filter) ([]map[string]interface{}, error)
	GetInvoice(ctx context.Context, id string) (map[string]interface{}, error)
	DownloadPDF(ctx context.Context, invoice map[string]interface{}, dir string) (string, error)
}

// Destination is the Airtable-side surface the driver needs.
type Destination interface {
	Upsert(ctx context.Context, record *models.InvoiceRecord) (string, bool, error)
	FindByExternalID(ctx context.Context, id string) (*airtable.Record, error)
}

// Options selects what a sync run covers.
type Options struct {
	// Days restricts the run to invoices created in the last N days.
	// Zero means no date filter.
	Days int

	// Limit caps how many invoices are fetched. Zero means no cap.
	Limit int

	// MissingOnly skips invoices that already have a destination record
	// (reconciliation mode).
	MissingOnly bool

	// DownloadPDFs additionally stores each invoice's PDF locally.
	DownloadPDFs bool
}

// Summary tallies the outcome of one run.
type Summary struct {
	Fetched int
	Created int
	Updated int
	Skipped int
	Failed  int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d fetched, %d created, %d updated, %d skipped, %d failed",
		s.Fetched, s.Created, s.Updated, s.Skipped, s.Failed)
}

// Syncer runs the fetch → normalize → upsert pipeline sequentially. Failures
// local to one invoice are logged and skipped; authentication failures abort
// the whole run.
type Syncer struct {
	source InvoiceSource
	dest   Destination
	pdfDir string
	log    zerolog.Logger
}

// New creates a Syncer. pdfDir is where DownloadPDFs stores files.
func New(source InvoiceSource, dest Destination, pdfDir string) *Syncer {
	return &Syncer{
		source: source,
		dest:   dest,
		pdfDir: pdfDir,
		log:    logger.WithComponent("syncer"),
	}
}

// Run executes one batch pass and returns the summary. The summary is valid
// even when an error is returned: partial progress is never discarded.
func (s *Syncer) Run(ctx context.Context, opts Options) (Summary, error) {
	const op = "Run"

	var summary Summary

	filter := sellsy.Filter{Limit: opts.Limit}
	if opts.Days > 0 {
		filter.CreatedAfter = time.Now().AddDate(0, 0, -opts.Days)
	}

	s.log.Info().
		Int("days", opts.Days).
		Int("limit", opts.Limit).
		Bool("missing_only", opts.MissingOnly).
		Msg("Starting invoice sync")

	invoices, err := s.source.SearchInvoices(ctx, filter)
	if err != nil {
		if len(invoices) == 0 {
			return summary, fmt.Errorf("%s: %w", op, err)
		}
		// Partial results are still synced; the fetch error is reported at
		// the end of the run.
		s.log.Warn().
			Err(err).
			Int("fetched", len(invoices)).
			Msg("Invoice fetch ended early, syncing partial results")
	}
	fetchErr := err

	summary.Fetched = len(invoices)

	for i, invoice := range invoices {
		id := normalize.ID(invoice)

		s.log.Info().
			Int("index", i+1).
			Int("total", len(invoices)).
			Str("invoice_id", id).
			Msg("Processing invoice")

		if err := s.processOne(ctx, invoice, id, opts, &summary); err != nil {
			if errors.Is(err, sellsy.ErrAuthFailed) || errors.Is(err, context.Canceled) {
				return summary, fmt.Errorf("%s: %w", op, err)
			}
			summary.Failed++
			s.log.Error().
				Err(err).
				Str("invoice_id", id).
				Msg("Invoice failed, continuing with next")
		}
	}

	s.log.Info().
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Invoice sync finished")

	if fetchErr != nil {
		return summary, fmt.Errorf("%s: partial fetch: %w", op, fetchErr)
	}
	return summary, nil
}

func (s *Syncer) processOne(ctx context.Context, invoice map[string]interface{}, id string, opts Options, summary *Summary) error {
	if opts.MissingOnly && id != "" {
		existing, err := s.dest.FindByExternalID(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			s.log.Debug().Str("invoice_id", id).Msg("Already in destination, skipping")
			summary.Skipped++
			return nil
		}
	}

	// Prefer the full detail payload; fall back to the list summary when the
	// detail fetch fails so one flaky endpoint does not lose the invoice.
	payload := invoice
	if id != "" {
		details, err := s.source.GetInvoice(ctx, id)
		if err != nil {
			if errors.Is(err, sellsy.ErrAuthFailed) {
				return err
			}
			s.log.Warn().
				Err(err).
				Str("invoice_id", id).
				Msg("Detail fetch failed, using summary payload")
		} else {
			payload = details
		}
	}

	if opts.DownloadPDFs {
		if _, err := s.source.DownloadPDF(ctx, payload, s.pdfDir); err != nil {
			s.log.Warn().Err(err).Str("invoice_id", id).Msg("PDF not stored")
		}
	}

	record := normalize.Normalize(payload)
	if record == nil {
		return fmt.Errorf("invoice %s: empty payload after normalization", id)
	}
	if !record.HasExternalID() {
		s.log.Warn().
			Str("number", record.Number).
			Str("client", record.ClientName).
			Msg("Normalized record has no external id, dropping")
		summary.Skipped++
		return nil
	}

	_, created, err := s.dest.Upsert(ctx, record)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", record.ExternalID, err)
	}
	if created {
		summary.Created++
	} else {
		summary.Updated++
	}
	return nil
}
