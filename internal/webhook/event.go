package webhook

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// Event is a classified push notification.
type Event struct {
	Type         string
	ResourceID   string
	ResourceType string
}

// Field aliases observed across Sellsy webhook payload revisions, in
// priority order.
var (
	eventTypeKeys    = []string{"event_type", "eventType", "event"}
	resourceIDKeys   = []string{"resource_id", "relatedid", "id"}
	resourceTypeKeys = []string{"resource_type", "relatedtype", "type"}
)

// handledEvents are the event types that trigger an invoice sync. "doclog"
// is the provider-internal document log event emitted alongside document
// changes.
var handledEvents = map[string]bool{
	"invoice.created": true,
	"invoice.updated": true,
	"doclog":          true,
}

// ParsePayload decodes a webhook body. JSON objects are preferred; a
// form-encoded body is flattened into a map using each key's first value.
func ParsePayload(body []byte) (map[string]interface{}, bool) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		return payload, true
	}

	values, err := url.ParseQuery(string(body))
	if err != nil || len(values) == 0 {
		return nil, false
	}
	payload = make(map[string]interface{}, len(values))
	for key := range values {
		payload[key] = values.Get(key)
	}
	return payload, true
}

// ClassifyEvent extracts the event type and resource identity from a
// payload, trying each known field alias in priority order.
func ClassifyEvent(payload map[string]interface{}) Event {
	return Event{
		Type:         firstValue(payload, eventTypeKeys),
		ResourceID:   firstValue(payload, resourceIDKeys),
		ResourceType: firstValue(payload, resourceTypeKeys),
	}
}

// Handled reports whether the event should trigger invoice processing.
func (e Event) Handled() bool {
	return e.ResourceType == "invoice" && handledEvents[e.Type] && e.ResourceID != ""
}

func firstValue(payload map[string]interface{}, keys []string) string {
	for _, key := range keys {
		switch v := payload[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
