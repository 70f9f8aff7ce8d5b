package fanout

import (
	"net/url"
	"strings"

	"github.com/cncaiprojem/progressd/internal/progress"
)

// Filter narrows the stream a session receives. Applied identically to
// replayed and live messages.
type Filter struct {
	Types          map[progress.EventType]bool
	MilestonesOnly bool
}

// Match reports whether msg passes the filter.
func (f Filter) Match(msg *progress.Message) bool {
	if f.MilestonesOnly && !msg.Milestone {
		return false
	}
	if len(f.Types) > 0 && !f.Types[msg.EventType] {
		return false
	}
	return true
}

// ParseFilter builds a Filter from the `filter_types`/`milestones_only`
// query parameters shared by both transports.
func ParseFilter(q url.Values) Filter {
	var f Filter
	if raw := q.Get("filter_types"); raw != "" {
		f.Types = make(map[progress.EventType]bool)
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				f.Types[progress.EventType(t)] = true
			}
		}
	}
	f.MilestonesOnly = q.Get("milestones_only") == "true" || q.Get("milestones_only") == "1"
	return f
}
