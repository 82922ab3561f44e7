package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayloadJSON(t *testing.T) {
	payload, ok := ParsePayload([]byte(`{"event":"invoice.created","relatedid":123,"relatedtype":"invoice"}`))
	require.True(t, ok)
	assert.Equal(t, "invoice.created", payload["event"])
}

func TestParsePayloadFormEncoded(t *testing.T) {
	payload, ok := ParsePayload([]byte("event=doclog&relatedid=456&relatedtype=invoice"))
	require.True(t, ok)
	assert.Equal(t, "doclog", payload["event"])
	assert.Equal(t, "456", payload["relatedid"])
}

func TestParsePayloadGarbage(t *testing.T) {
	_, ok := ParsePayload([]byte("%zz-not-a-payload"))
	assert.False(t, ok)
}

func TestClassifyEventAliases(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		want    Event
	}{
		{
			name: "modern field names",
			payload: map[string]interface{}{
				"event_type":    "invoice.updated",
				"resource_id":   "42",
				"resource_type": "invoice",
			},
			want: Event{Type: "invoice.updated", ResourceID: "42", ResourceType: "invoice"},
		},
		{
			name: "legacy related fields",
			payload: map[string]interface{}{
				"event":       "doclog",
				"relatedid":   float64(987),
				"relatedtype": "invoice",
			},
			want: Event{Type: "doclog", ResourceID: "987", ResourceType: "invoice"},
		},
		{
			name: "priority prefers resource_id over id",
			payload: map[string]interface{}{
				"event_type":  "invoice.created",
				"resource_id": "1",
				"id":          "2",
			},
			want: Event{Type: "invoice.created", ResourceID: "1"},
		},
		{
			name:    "empty payload",
			payload: map[string]interface{}{},
			want:    Event{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyEvent(tt.payload))
		})
	}
}

func TestEventHandled(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{"invoice created", Event{Type: "invoice.created", ResourceID: "1", ResourceType: "invoice"}, true},
		{"invoice updated", Event{Type: "invoice.updated", ResourceID: "1", ResourceType: "invoice"}, true},
		{"doclog", Event{Type: "doclog", ResourceID: "1", ResourceType: "invoice"}, true},
		{"unhandled event type", Event{Type: "invoice.deleted", ResourceID: "1", ResourceType: "invoice"}, false},
		{"non-invoice resource", Event{Type: "invoice.created", ResourceID: "1", ResourceType: "contact"}, false},
		{"missing resource id", Event{Type: "invoice.created", ResourceType: "invoice"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.Handled())
		})
	}
}
