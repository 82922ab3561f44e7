// Package normalize maps the variably-shaped Sellsy invoice payloads onto the
// fixed destination record schema.
//
// Sellsy has shipped several layouts for the same logical fields across API
// revisions (nested relation objects vs related arrays, three different
// amount containers, multiple date keys). Each destination field is resolved
// by an ordered list of extraction strategies applied until one succeeds,
// with a bounded depth-first keyword scan as the last resort for amounts.
//
// Normalize performs no I/O and is deterministic for a fixed payload.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"sellsync/internal/logger"
	"sellsync/pkg/models"
)

// documentURL is the provider's fixed deep-link template.
const documentURL = "https://go.sellsy.com/document/"

// maxScanDepth bounds the recursive amount scan.
const maxScanDepth = 5

// timeNow is swapped in tests exercising the current-date fallback.
var timeNow = time.Now

// Ordered known paths for the two amount fields. Earlier entries win.
var (
	exclTaxPaths = [][]string{
		{"total_amount_without_taxes"},
		{"amounts", "total_excluding_tax"},
		{"amounts", "total_excl_tax"},
		{"amounts", "tax_excl"},
		{"amounts", "total_raw_excl_tax"},
		{"amount", "tax_excl"},
	}
	inclTaxPaths = [][]string{
		{"total_amount_with_taxes"},
		{"amounts", "total_including_tax"},
		{"amounts", "total_incl_tax"},
		{"amounts", "tax_incl"},
		{"amount", "tax_incl"},
	}

	// Keyword sets for the fallback scan. A key matches when it contains any
	// keyword. Short keywords like "ht" and "net" can match unintended fields
	// (e.g. a shipping figure); this is a known accuracy limitation of the
	// empirical fallback, kept as observed.
	exclTaxKeywords = []string{"without_tax", "excluding", "excl", "ht", "net"}
	inclTaxKeywords = []string{"with_tax", "including", "incl", "ttc", "gross"}
)

// Normalize converts a raw Sellsy invoice payload into an InvoiceRecord.
// Returns nil for a nil or empty payload. Never panics: missing fields get
// defaults, unconvertible amounts become 0.0.
//
// A record with an empty ExternalID is still returned (the payload had no
// usable id); the upsert engine refuses to write such records.
func Normalize(invoice map[string]interface{}) *models.InvoiceRecord {
	if len(invoice) == 0 {
		log := logger.WithComponent("normalize")
		log.Warn().Msg("Empty invoice payload, nothing to normalize")
		return nil
	}

	id := asString(invoice["id"])
	clientID, clientName := extractClient(invoice)

	record := &models.InvoiceRecord{
		ExternalID:    id,
		Number:        firstString(invoice, "reference", "number", "decimal_number"),
		Date:          extractDate(invoice),
		ClientName:    clientName,
		ClientID:      clientID,
		AmountExclTax: extractAmount(invoice, exclTaxPaths, exclTaxKeywords),
		AmountInclTax: extractAmount(invoice, inclTaxPaths, inclTaxKeywords),
		Status:        asString(invoice["status"]),
		URL:           documentURL + id,
	}

	if link, ok := invoice["pdf_link"].(string); ok {
		record.PDFURL = link
	}

	return record
}

// ID extracts the provider invoice id from a raw payload, coerced to string.
// Empty when the payload has no usable id.
func ID(invoice map[string]interface{}) string {
	return asString(invoice["id"])
}

// extractClient resolves the counterparty id and display name.
//
// Strategy order: a nested relation object first, then the related array
// (first individual or corporation entry), with the name falling back to
// top-level company/client fields and finally a synthesized placeholder.
func extractClient(invoice map[string]interface{}) (id, name string) {
	if relation, ok := invoice["relation"].(map[string]interface{}); ok {
		return asString(relation["id"]), asString(relation["name"])
	}

	related, ok := invoice["related"].([]interface{})
	if !ok {
		return "", ""
	}

	for _, entry := range related {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		kind := asString(m["type"])
		if kind != "individual" && kind != "corporation" {
			continue
		}
		id = asString(m["id"])
		name = asString(m["name"])
		break
	}

	if name == "" {
		name = firstString(invoice, "company_name", "client_name")
	}
	if name == "" && id != "" {
		name = "Client #" + id
	}

	return id, name
}

// extractDate resolves the creation date as YYYY-MM-DD. ISO timestamps are
// truncated to the date portion. When no date key is present the current date
// is used; callers needing historical accuracy must treat that as a
// data-quality signal.
func extractDate(invoice map[string]interface{}) string {
	for _, key := range []string{"created_at", "date", "created"} {
		value := asString(invoice[key])
		if value == "" {
			continue
		}
		if idx := strings.Index(value, "T"); idx > 0 {
			value = value[:idx]
		}
		return value
	}
	return timeNow().Format("2006-01-02")
}

// extractAmount resolves an amount by trying the known paths in order, then
// falling back to the recursive keyword scan. Missing or unconvertible
// amounts resolve to 0.
func extractAmount(invoice map[string]interface{}, paths [][]string, keywords []string) float64 {
	for _, path := range paths {
		if value, ok := lookupPath(invoice, path); ok {
			return toFloat(value)
		}
	}

	if value, ok := scanAmount(invoice, keywords, 0); ok {
		return value
	}

	return 0
}

// scanAmount walks the payload depth-first looking for a numeric value whose
// key contains one of the keywords. Keys are visited in sorted order so the
// result does not depend on map iteration order.
func scanAmount(value interface{}, keywords []string, depth int) (float64, bool) {
	if depth > maxScanDepth {
		return 0, false
	}

	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			child := v[key]
			if isNumeric(child) && keyMatches(key, keywords) {
				return toFloat(child), true
			}
		}
		for _, key := range keys {
			if found, ok := scanAmount(v[key], keywords, depth+1); ok {
				return found, ok
			}
		}
	case []interface{}:
		for _, child := range v {
			if found, ok := scanAmount(child, keywords, depth+1); ok {
				return found, ok
			}
		}
	}

	return 0, false
}

func keyMatches(key string, keywords []string) bool {
	key = strings.ToLower(key)
	for _, keyword := range keywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

// lookupPath descends nested objects along path, reporting the value only
// when every segment exists and the leaf is non-nil.
func lookupPath(invoice map[string]interface{}, path []string) (interface{}, bool) {
	var current interface{} = invoice
	for _, segment := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// firstString returns the first present, non-empty string value among keys.
func firstString(invoice map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if value := asString(invoice[key]); value != "" {
			return value
		}
	}
	return ""
}

// asString coerces scalar JSON values to strings. Integral floats (the JSON
// decoding of provider ids) render without a decimal point.
func asString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// toFloat coerces a value to float64, defaulting to 0 for anything it cannot
// convert. This coercion must never fail.
func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return parsed
	case fmt.Stringer:
		parsed, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func isNumeric(value interface{}) bool {
	switch v := value.(type) {
	case float64, int:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil
	default:
		return false
	}
}
