package progress

// Derive fills in fields schema v2 says must be computed when absent:
// progress_pct from items_done/items_total, milestone from phase, and
// operation_group from event_type. Derive assumes msg has already
// passed Validate.
func Derive(msg *Message) *Message {
	out := *msg
	out.SchemaVersion = SchemaVersion

	if out.ProgressPct == nil && out.ItemsTotal != nil && *out.ItemsTotal > 0 && out.ItemsDone != nil {
		pct := int(min64(100, (*out.ItemsDone*100)/(*out.ItemsTotal)))
		out.ProgressPct = &pct
	}

	if out.Phase == PhaseStart || out.Phase == PhaseEnd {
		out.Milestone = true
	}

	if out.OperationGroup == "" {
		if g, ok := eventToGroup[out.EventType]; ok {
			out.OperationGroup = g
		} else {
			out.OperationGroup = GroupGeneral
		}
	}

	return &out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
