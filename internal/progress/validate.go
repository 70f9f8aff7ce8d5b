package progress

import "fmt"

// ValidationError reports the field and reason a message was rejected,
// per spec's fail-closed rejection policy.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("progress: invalid field %q: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate rejects a message that violates schema v2's constraints.
// It does not mutate msg; callers that want derived fields filled in
// call Derive afterwards.
func Validate(msg *Message) error {
	if msg.JobID == 0 {
		return invalid("job_id", "required")
	}
	if msg.EventID < 0 {
		return invalid("event_id", "must be >= 0 (0 means unassigned)")
	}
	if msg.SchemaVersion != "" && msg.SchemaVersion != SchemaVersion {
		return invalid("schema_version", "unsupported schema version "+msg.SchemaVersion)
	}
	if !msg.EventType.valid() {
		return invalid("event_type", "unknown event type "+string(msg.EventType))
	}
	switch msg.Phase {
	case "", PhaseStart, PhaseProgress, PhaseEnd:
	default:
		return invalid("phase", "unknown phase "+string(msg.Phase))
	}

	if err := checkCounterPair("step_index", "step_total", msg.StepIndex, msg.StepTotal); err != nil {
		return err
	}
	if err := checkCounterPair("items_done", "items_total", msg.ItemsDone, msg.ItemsTotal); err != nil {
		return err
	}
	if msg.ProgressPct != nil && (*msg.ProgressPct < 0 || *msg.ProgressPct > 100) {
		return invalid("progress_pct", "must be between 0 and 100")
	}
	if msg.ElapsedMs != nil && *msg.ElapsedMs < 0 {
		return invalid("elapsed_ms", "must be >= 0")
	}
	if msg.ETAMs != nil && *msg.ETAMs < 0 {
		return invalid("eta_ms", "must be >= 0")
	}
	switch msg.Status {
	case "", StatusRunning, StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
	default:
		return invalid("status", "unknown status "+string(msg.Status))
	}
	return nil
}

func checkCounterPair(doneField, totalField string, done, total *int64) error {
	if done == nil || total == nil {
		return nil
	}
	if *done < 0 {
		return invalid(doneField, "must be >= 0")
	}
	if *total < 0 {
		return invalid(totalField, "must be >= 0")
	}
	if *done > *total {
		return invalid(doneField, fmt.Sprintf("%s (%d) exceeds %s (%d)", doneField, *done, totalField, *total))
	}
	return nil
}
