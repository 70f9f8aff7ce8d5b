package audit

import (
	"encoding/json"
	"fmt"
)

// requiredPayloadKeys is the minimal key set each event kind's payload
// must carry before it is accepted.
var requiredPayloadKeys = map[EventKind][]string{
	EventCreated:     {"created_at", "job_type", "priority", "params", "idempotency_key"},
	EventQueued:      {"queue_name", "routing_key", "queued_at"},
	EventStarted:     {"started_at"},
	EventProgress:    {"progress", "updated_at"},
	EventRetrying:    {"retry_count"},
	EventCancelled:   {"cancelled_at", "cancelled_by"},
	EventFailed:      {"error_code", "error_message", "traceback", "failed_at"},
	EventSucceeded:   {"output_summary", "completed_at"},
	EventDLQReplayed: {"dlq_name", "replay_attempt", "replayed_at", "replayed_by"},
}

const maxTracebackChars = 5000

func validatePayload(kind EventKind, payload map[string]interface{}) error {
	required, ok := requiredPayloadKeys[kind]
	if !ok {
		return fmt.Errorf("audit: unknown event kind %q", kind)
	}
	for _, key := range required {
		if _, present := payload[key]; !present {
			return fmt.Errorf("audit: event kind %q missing required payload key %q", kind, key)
		}
	}
	if kind == EventFailed {
		if tb, ok := payload["traceback"].(string); ok && len(tb) > maxTracebackChars {
			payload["traceback"] = tb[:maxTracebackChars]
		}
	}
	return nil
}

// capPayload replaces an oversized payload with a truncated summary
// stub rather than storing it whole.
func capPayload(payload map[string]interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("audit: measure payload size: %w", err)
	}
	if len(data) <= MaxPayloadBytes {
		return payload, nil
	}
	summary := string(data)
	if len(summary) > 500 {
		summary = summary[:500]
	}
	return map[string]interface{}{
		"truncated":     true,
		"original_size": len(data),
		"summary":       summary,
	}, nil
}
