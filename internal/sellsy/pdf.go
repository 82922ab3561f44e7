package sellsy

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"sellsync/internal/httpx"
)

// failedMarker is the content written into a permanent placeholder file after
// a PDF could not be retrieved from any source. The placeholder makes later
// sync runs skip the re-download attempt for that invoice.
const failedMarker = "pdf download failed permanently\n"

// DownloadPDF stores the invoice's PDF under dir as <id>.pdf and returns the
// stored path.
//
// A direct pdf_link embedded in the detail payload is preferred; the
// document-download endpoint is the fallback. When both fail a <id>.failed
// placeholder is written and ErrPDFUnavailable is returned; subsequent calls
// for the same id return ErrPDFUnavailable immediately without hitting the
// network. An already-downloaded PDF is likewise not fetched again.
func (c *Client) DownloadPDF(ctx context.Context, invoice map[string]interface{}, dir string) (string, error) {
	const op = "DownloadPDF"

	id, _ := invoice["id"].(string)
	if id == "" {
		if n, ok := invoice["id"].(float64); ok {
			id = fmt.Sprintf("%.0f", n)
		}
	}
	if id == "" {
		return "", fmt.Errorf("%s: %w: invoice has no id", op, ErrPDFUnavailable)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%s: failed to create storage dir: %w", op, err)
	}

	pdfPath := filepath.Join(dir, id+".pdf")
	failedPath := filepath.Join(dir, id+".failed")

	if _, err := os.Stat(pdfPath); err == nil {
		c.log.Debug().Str("invoice_id", id).Msg("PDF already stored, skipping download")
		return pdfPath, nil
	}
	if _, err := os.Stat(failedPath); err == nil {
		c.log.Debug().Str("invoice_id", id).Msg("PDF marked as permanently failed, skipping download")
		return "", fmt.Errorf("%s: invoice %s: %w", op, id, ErrPDFUnavailable)
	}

	data, err := c.fetchPDF(ctx, id, invoice)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("invoice_id", id).
			Msg("PDF unavailable from both sources, writing permanent placeholder")
		if writeErr := os.WriteFile(failedPath, []byte(failedMarker), 0644); writeErr != nil {
			c.log.Error().Err(writeErr).Str("invoice_id", id).Msg("Failed to write placeholder file")
		}
		return "", fmt.Errorf("%s: invoice %s: %w", op, id, ErrPDFUnavailable)
	}

	if err := os.WriteFile(pdfPath, data, 0644); err != nil {
		return "", fmt.Errorf("%s: failed to store PDF: %w", op, err)
	}

	c.log.Info().
		Str("invoice_id", id).
		Str("path", pdfPath).
		Int("bytes", len(data)).
		Msg("Invoice PDF stored")

	return pdfPath, nil
}

// fetchPDF tries the embedded direct link first, then the document endpoint.
func (c *Client) fetchPDF(ctx context.Context, id string, invoice map[string]interface{}) ([]byte, error) {
	if link, ok := invoice["pdf_link"].(string); ok && link != "" {
		data, err := c.fetchURL(ctx, c.download, link, false)
		if err == nil {
			return data, nil
		}
		c.log.Debug().Err(err).Str("invoice_id", id).Msg("Direct PDF link failed, trying document endpoint")
	}

	return c.fetchURL(ctx, c.api, "/invoices/"+url.PathEscape(id)+"/document", true)
}

func (c *Client) fetchURL(ctx context.Context, client *httpx.Client, target string, authenticated bool) ([]byte, error) {
	var options []httpx.RequestOption
	if authenticated {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, err
		}
		options = append(options, httpx.WithBearerToken(token))
	}

	resp, err := client.Get(ctx, target, options...)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
