package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sellsync/pkg/models"
)

// fakeTable is an in-memory stand-in for one Airtable table. It understands
// the two formula shapes the client emits: an external-id equality match and
// the blank-id OR formula used by cleanup.
type fakeTable struct {
	t        *testing.T
	records  []Record
	nextID   int
	pageSize int // 0 means everything in one page
	requests int
}

func newFakeTable(t *testing.T) *fakeTable {
	return &fakeTable{t: t, nextID: 1}
}

func (f *fakeTable) add(fields map[string]interface{}) Record {
	record := Record{ID: fmt.Sprintf("rec%03d", f.nextID), Fields: fields}
	f.nextID++
	f.records = append(f.records, record)
	return record
}

func (f *fakeTable) filter(formula string) []Record {
	var matched []Record
	switch {
	case strings.HasPrefix(formula, "OR("):
		for _, record := range f.records {
			id, _ := record.Fields[externalIDField].(string)
			if id == "" {
				matched = append(matched, record)
			}
		}
	case strings.HasPrefix(formula, "{"+externalIDField+"}='"):
		want := strings.TrimSuffix(strings.TrimPrefix(formula, "{"+externalIDField+"}='"), "'")
		want = strings.ReplaceAll(want, "\\'", "'")
		for _, record := range f.records {
			if record.Fields[externalIDField] == want {
				matched = append(matched, record)
			}
		}
	default:
		f.t.Fatalf("unexpected formula: %s", formula)
	}
	return matched
}

func (f *fakeTable) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests++
		w.Header().Set("Content-Type", "application/json")

		recordID := strings.TrimPrefix(r.URL.Path, "/appBase/Invoices")
		recordID = strings.TrimPrefix(recordID, "/")

		switch {
		case r.Method == http.MethodGet:
			matched := f.filter(r.URL.Query().Get("filterByFormula"))

			start := 0
			if offset := r.URL.Query().Get("offset"); offset != "" {
				var err error
				start, err = strconv.Atoi(offset)
				require.NoError(f.t, err)
			}

			page := recordList{Records: matched[start:]}
			if f.pageSize > 0 && start+f.pageSize < len(matched) {
				page.Records = matched[start : start+f.pageSize]
				page.Offset = strconv.Itoa(start + f.pageSize)
			}
			json.NewEncoder(w).Encode(page)

		case r.Method == http.MethodPost:
			var body struct {
				Fields map[string]interface{} `json:"fields"`
			}
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
			json.NewEncoder(w).Encode(f.add(body.Fields))

		case r.Method == http.MethodPatch:
			var body struct {
				Fields map[string]interface{} `json:"fields"`
			}
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
			for i := range f.records {
				if f.records[i].ID == recordID {
					for key, value := range body.Fields {
						f.records[i].Fields[key] = value
					}
					json.NewEncoder(w).Encode(f.records[i])
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)

		case r.Method == http.MethodDelete:
			for i := range f.records {
				if f.records[i].ID == recordID {
					f.records = append(f.records[:i], f.records[i+1:]...)
					json.NewEncoder(w).Encode(map[string]interface{}{"id": recordID, "deleted": true})
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestClient(t *testing.T, table *fakeTable) *Client {
	t.Helper()
	server := httptest.NewServer(table.handler())
	t.Cleanup(server.Close)

	return NewClient(Config{
		APIURL:    server.URL,
		APIKey:    "key",
		BaseID:    "appBase",
		TableName: "Invoices",
	})
}

func sampleRecord() *models.InvoiceRecord {
	return &models.InvoiceRecord{
		ExternalID:    "12345",
		Number:        "FA-2024-001",
		ClientName:    "ACME SARL",
		ClientID:      "99",
		Date:          "2024-03-15",
		AmountExclTax: 100.0,
		AmountInclTax: 120.0,
		Status:        "paid",
		URL:           "https://go.sellsy.com/document/12345",
	}
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	table := newFakeTable(t)
	client := newTestClient(t, table)
	ctx := context.Background()

	record := sampleRecord()

	recordID, created, err := client.Upsert(ctx, record)
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, table.records, 1)
	assert.Equal(t, table.records[0].ID, recordID)

	record.AmountInclTax = 150.0
	record.Status = "due"

	secondID, created, err := client.Upsert(ctx, record)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, recordID, secondID)

	require.Len(t, table.records, 1, "repeated upsert must not duplicate the record")
	assert.Equal(t, 150.0, table.records[0].Fields["Montant_TTC"])
	assert.Equal(t, "due", table.records[0].Fields["Statut"])
}

func TestUpsertRequiresExternalID(t *testing.T) {
	table := newFakeTable(t)
	client := newTestClient(t, table)

	_, _, err := client.Upsert(context.Background(), &models.InvoiceRecord{Number: "FA-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingExternalID)
	assert.Zero(t, table.requests, "refusal must happen before any request")
}

func TestFindByExternalID(t *testing.T) {
	table := newFakeTable(t)
	table.add(map[string]interface{}{externalIDField: "1", "Numéro": "FA-1"})
	table.add(map[string]interface{}{externalIDField: "2", "Numéro": "FA-2"})
	client := newTestClient(t, table)
	ctx := context.Background()

	found, err := client.FindByExternalID(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "FA-2", found.Fields["Numéro"])

	missing, err := client.FindByExternalID(ctx, "777")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = client.FindByExternalID(ctx, "")
	assert.ErrorIs(t, err, ErrMissingExternalID)
}

func TestFindByExternalIDFirstOfDuplicates(t *testing.T) {
	table := newFakeTable(t)
	first := table.add(map[string]interface{}{externalIDField: "dup"})
	table.add(map[string]interface{}{externalIDField: "dup"})
	client := newTestClient(t, table)

	found, err := client.FindByExternalID(context.Background(), "dup")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
}

func TestFindByExternalIDEscapesQuotes(t *testing.T) {
	table := newFakeTable(t)
	table.add(map[string]interface{}{externalIDField: "o'brien"})
	client := newTestClient(t, table)

	found, err := client.FindByExternalID(context.Background(), "o'brien")
	require.NoError(t, err)
	require.NotNil(t, found)
}

func TestFieldsMapping(t *testing.T) {
	fields := Fields(sampleRecord())

	assert.Equal(t, "12345", fields["ID_Facture"])
	assert.Equal(t, "FA-2024-001", fields["Numéro"])
	assert.Equal(t, "2024-03-15", fields["Date"])
	assert.Equal(t, "ACME SARL", fields["Client"])
	assert.Equal(t, "99", fields["ID_Client_Sellsy"])
	assert.Equal(t, 100.0, fields["Montant_HT"])
	assert.Equal(t, 120.0, fields["Montant_TTC"])
	assert.Equal(t, "paid", fields["Statut"])
	assert.Equal(t, "https://go.sellsy.com/document/12345", fields["URL"])
	assert.NotContains(t, fields, "PDF_URL", "empty PDF url must be omitted")

	bare := Fields(&models.InvoiceRecord{ExternalID: "1", PDFURL: "https://x/1.pdf"})
	assert.NotContains(t, bare, "ID_Client_Sellsy", "empty client id must be omitted")
	assert.Equal(t, "https://x/1.pdf", bare["PDF_URL"])
}

func TestListEmptyExternalID(t *testing.T) {
	table := newFakeTable(t)
	table.add(map[string]interface{}{externalIDField: "1", "Numéro": "FA-1"})
	blank := table.add(map[string]interface{}{externalIDField: "", "Numéro": "FA-blank"})
	noColumn := table.add(map[string]interface{}{"Numéro": "FA-missing"})
	client := newTestClient(t, table)

	records, err := client.ListEmptyExternalID(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, blank.ID, records[0].ID)
	assert.Equal(t, noColumn.ID, records[1].ID)
}

func TestListByFormulaFollowsOffset(t *testing.T) {
	table := newFakeTable(t)
	table.pageSize = 2
	for i := 0; i < 5; i++ {
		table.add(map[string]interface{}{"Numéro": fmt.Sprintf("FA-%d", i)})
	}
	client := newTestClient(t, table)

	records, err := client.ListEmptyExternalID(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, 3, table.requests, "five records at page size two take three pages")
}

func TestDeleteRecord(t *testing.T) {
	table := newFakeTable(t)
	record := table.add(map[string]interface{}{externalIDField: ""})
	client := newTestClient(t, table)

	require.NoError(t, client.DeleteRecord(context.Background(), record.ID))
	assert.Empty(t, table.records)
}
