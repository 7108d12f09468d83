package gateway

import (
	"bytes"
	"encoding/json"
	"strings"

	apperrors "campusloans/pkg/errors"
	"campusloans/pkg/model"
)

const EventGridValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"

// Event is the normalized form of every inbound event, whichever producer or
// transport it came from.
type Event struct {
	ID      string
	Type    string
	Subject string
	Data    json.RawMessage
}

var knownTypes = func() map[string]string {
	types := []string{
		EventGridValidation,
		model.EventDeviceCreated,
		model.EventDeviceUpdated,
		model.EventDeviceDeleted,
		model.EventDeviceSnapshot,
		model.EventReservationConfirmed,
		model.EventReservationCancelled,
		model.EventDeviceCollected,
		model.EventDeviceReturned,
	}
	m := make(map[string]string, len(types)*2)
	for _, t := range types {
		lower := strings.ToLower(t)
		m[lower] = t
		m[strings.ReplaceAll(lower, ".", "")] = t
	}
	return m
}()

// canonicalType maps "device.updated" or "DeviceUpdated" to "Device.Updated".
// Unknown types pass through unchanged.
func canonicalType(t string) string {
	t = strings.TrimSpace(t)
	if canonical, ok := knownTypes[strings.ToLower(t)]; ok {
		return canonical
	}
	return t
}

// Normalize accepts both Event Grid envelopes (eventType + data) and the
// flat action-style shape (actionType with fields at the root).
func Normalize(raw json.RawMessage) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Event{}, apperrors.MalformedEvent("Event is not a JSON object")
	}

	ev := Event{
		ID:      stringField(fields, "eventId"),
		Type:    canonicalType(stringField(fields, "eventType", "actionType", "type")),
		Subject: stringField(fields, "subject"),
		Data:    raw,
	}
	// In the flat shape "id" belongs to the payload, so only an envelope's
	// "id" names the event.
	if data, ok := fields["data"]; ok && isObject(data) {
		ev.Data = data
		if id := stringField(fields, "id"); id != "" {
			ev.ID = id
		}
	}

	if ev.Type == "" {
		return ev, apperrors.MalformedEvent("Event has no type")
	}
	return ev, nil
}

// ParseBatch splits a request or message body into events. Event Grid posts
// arrays; other producers send a single object.
func ParseBatch(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, apperrors.MalformedEvent("Event body is empty")
	}

	switch body[0] {
	case '[':
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, apperrors.MalformedEvent("Event batch is not valid JSON")
		}
		return batch, nil
	case '{':
		return []json.RawMessage{json.RawMessage(body)}, nil
	default:
		return nil, apperrors.MalformedEvent("Event body must be a JSON object or array")
	}
}

func stringField(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// subjectID returns the last path segment of an Event Grid subject such as
// "/devices/665f...".
func subjectID(subject string) string {
	subject = strings.Trim(subject, "/")
	if i := strings.LastIndex(subject, "/"); i >= 0 {
		return subject[i+1:]
	}
	return subject
}
