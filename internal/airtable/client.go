// Package airtable implements the destination-table client and the upsert
// engine. Records are matched by the Sellsy invoice id stored in the
// ID_Facture column; the upsert is check-then-act (query, then create or
// update), so uniqueness is maintained by this engine, not by the table.
package airtable

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"sellsync/internal/httpx"
	"sellsync/internal/logger"
	"sellsync/pkg/models"
)

// externalIDField is the destination column holding the Sellsy invoice id.
const externalIDField = "ID_Facture"

// Config holds the settings needed to talk to the Airtable API.
type Config struct {
	APIURL    string
	APIKey    string
	BaseID    string
	TableName string
}

// Record is an Airtable record: destination-assigned id plus column values.
type Record struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

type recordList struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// Client talks to one Airtable table.
type Client struct {
	http      *httpx.Client
	tablePath string
	log       zerolog.Logger
}

// NewClient creates an Airtable client bound to the configured base and table.
func NewClient(cfg Config) *Client {
	return &Client{
		http: httpx.NewClient(
			httpx.WithBaseURL(cfg.APIURL),
			httpx.WithDefaultHeader("Authorization", "Bearer "+cfg.APIKey),
		),
		tablePath: "/" + cfg.BaseID + "/" + url.PathEscape(cfg.TableName),
		log:       logger.WithComponent("airtable"),
	}
}

// Fields converts an InvoiceRecord to the destination column layout.
func Fields(record *models.InvoiceRecord) map[string]interface{} {
	fields := map[string]interface{}{
		externalIDField: record.ExternalID,
		"Numéro":        record.Number,
		"Date":          record.Date,
		"Client":        record.ClientName,
		"Montant_HT":    record.AmountExclTax,
		"Montant_TTC":   record.AmountInclTax,
		"Statut":        record.Status,
		"URL":           record.URL,
	}
	if record.ClientID != "" {
		fields["ID_Client_Sellsy"] = record.ClientID
	}
	if record.PDFURL != "" {
		fields["PDF_URL"] = record.PDFURL
	}
	return fields
}

// FindByExternalID returns the first record whose external-id column equals
// id, or nil when no record matches. Multiple matches are tolerated (the
// first returned wins); the upsert engine prevents new duplicates but cannot
// repair pre-existing ones.
func (c *Client) FindByExternalID(ctx context.Context, id string) (*Record, error) {
	const op = "FindByExternalID"

	if id == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingExternalID)
	}

	formula := fmt.Sprintf("{%s}='%s'", externalIDField, escapeFormulaValue(id))
	records, err := c.listByFormula(ctx, formula)
	if err != nil {
		return nil, fmt.Errorf("%s: id %s: %w: %v", op, id, ErrSearchFailed, err)
	}

	if len(records) == 0 {
		return nil, nil
	}
	if len(records) > 1 {
		c.log.Warn().
			Str("external_id", id).
			Int("matches", len(records)).
			Msg("Multiple destination records share one external id, using the first")
	}
	return &records[0], nil
}

// Upsert writes the record to the destination table, creating it when no
// record carries its external id and updating the existing record otherwise.
// Returns the destination record id and whether a new record was created.
//
// Calling Upsert twice with the same input leaves exactly one record with
// that external id, holding the second call's field values.
func (c *Client) Upsert(ctx context.Context, record *models.InvoiceRecord) (string, bool, error) {
	const op = "Upsert"

	if !record.HasExternalID() {
		return "", false, fmt.Errorf("%s: %w", op, ErrMissingExternalID)
	}

	existing, err := c.FindByExternalID(ctx, record.ExternalID)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	fields := Fields(record)

	if existing != nil {
		if err := c.UpdateRecord(ctx, existing.ID, fields); err != nil {
			return "", false, fmt.Errorf("%s: external id %s: %w: %v", op, record.ExternalID, ErrUpsertFailed, err)
		}
		c.log.Info().
			Str("external_id", record.ExternalID).
			Str("record_id", existing.ID).
			Msg("Invoice record updated")
		return existing.ID, false, nil
	}

	recordID, err := c.CreateRecord(ctx, fields)
	if err != nil {
		return "", false, fmt.Errorf("%s: external id %s: %w: %v", op, record.ExternalID, ErrUpsertFailed, err)
	}
	c.log.Info().
		Str("external_id", record.ExternalID).
		Str("record_id", recordID).
		Msg("Invoice record created")
	return recordID, true, nil
}

// CreateRecord creates a record and returns the destination-assigned id.
func (c *Client) CreateRecord(ctx context.Context, fields map[string]interface{}) (string, error) {
	resp, err := c.http.Post(ctx, c.tablePath, map[string]interface{}{"fields": fields})
	if err != nil {
		return "", err
	}

	var created Record
	if err := c.http.ProcessJSONResponse(resp, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// UpdateRecord replaces the given columns of an existing record in place.
func (c *Client) UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) error {
	resp, err := c.http.Patch(ctx, c.tablePath+"/"+recordID, map[string]interface{}{"fields": fields})
	if err != nil {
		return err
	}
	var updated Record
	return c.http.ProcessJSONResponse(resp, &updated)
}

// DeleteRecord removes a record by its destination id.
func (c *Client) DeleteRecord(ctx context.Context, recordID string) error {
	resp, err := c.http.Delete(ctx, c.tablePath+"/"+recordID)
	if err != nil {
		return err
	}
	var deleted struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	}
	return c.http.ProcessJSONResponse(resp, &deleted)
}

// ListEmptyExternalID returns every record whose external-id column is blank.
// Such records can never be matched by an upsert and only accumulate as
// duplicates; the cleanup command deletes them.
func (c *Client) ListEmptyExternalID(ctx context.Context) ([]Record, error) {
	const op = "ListEmptyExternalID"

	formula := fmt.Sprintf("OR({%s}='', {%s}=BLANK())", externalIDField, externalIDField)
	records, err := c.listByFormula(ctx, formula)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrSearchFailed, err)
	}
	return records, nil
}

// listByFormula pages through the table with the given filter formula.
func (c *Client) listByFormula(ctx context.Context, formula string) ([]Record, error) {
	var records []Record
	offset := ""

	for {
		options := []httpx.RequestOption{httpx.WithQueryParam("filterByFormula", formula)}
		if offset != "" {
			options = append(options, httpx.WithQueryParam("offset", offset))
		}

		resp, err := c.http.Get(ctx, c.tablePath, options...)
		if err != nil {
			return nil, err
		}

		var page recordList
		if err := c.http.ProcessJSONResponse(resp, &page); err != nil {
			return nil, err
		}

		records = append(records, page.Records...)

		if page.Offset == "" {
			return records, nil
		}
		offset = page.Offset
	}
}

// escapeFormulaValue escapes single quotes for interpolation into an Airtable
// formula string literal.
func escapeFormulaValue(value string) string {
	return strings.ReplaceAll(value, "'", "\\'")
}
