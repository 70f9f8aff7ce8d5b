package fanout_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cncaiprojem/progressd/internal/fanout"
	"github.com/cncaiprojem/progressd/internal/progress"
)

func TestFilterMatchNoFilter(t *testing.T) {
	var f fanout.Filter
	msg := &progress.Message{EventType: progress.EventPhase, Milestone: false}
	require.True(t, f.Match(msg))
}

func TestFilterMatchByType(t *testing.T) {
	f := fanout.Filter{Types: map[progress.EventType]bool{progress.EventOCCT: true}}
	require.True(t, f.Match(&progress.Message{EventType: progress.EventOCCT}))
	require.False(t, f.Match(&progress.Message{EventType: progress.EventMaterial}))
}

func TestFilterMatchMilestonesOnly(t *testing.T) {
	f := fanout.Filter{MilestonesOnly: true}
	require.True(t, f.Match(&progress.Message{Milestone: true}))
	require.False(t, f.Match(&progress.Message{Milestone: false}))
}

func TestFilterMatchCombined(t *testing.T) {
	f := fanout.Filter{
		Types:          map[progress.EventType]bool{progress.EventExport: true},
		MilestonesOnly: true,
	}
	require.True(t, f.Match(&progress.Message{EventType: progress.EventExport, Milestone: true}))
	require.False(t, f.Match(&progress.Message{EventType: progress.EventExport, Milestone: false}))
	require.False(t, f.Match(&progress.Message{EventType: progress.EventDocument, Milestone: true}))
}

func TestParseFilterTypesAndMilestones(t *testing.T) {
	q := url.Values{
		"filter_types":     {"occt, export,material"},
		"milestones_only": {"true"},
	}
	f := fanout.ParseFilter(q)
	require.True(t, f.MilestonesOnly)
	require.True(t, f.Types[progress.EventOCCT])
	require.True(t, f.Types[progress.EventExport])
	require.True(t, f.Types[progress.EventMaterial])
	require.False(t, f.Types[progress.EventDocument])
}

func TestParseFilterEmpty(t *testing.T) {
	f := fanout.ParseFilter(url.Values{})
	require.Nil(t, f.Types)
	require.False(t, f.MilestonesOnly)
}

func TestParseFilterMilestonesOnlyAcceptsNumericOne(t *testing.T) {
	f := fanout.ParseFilter(url.Values{"milestones_only": {"1"}})
	require.True(t, f.MilestonesOnly)
}
