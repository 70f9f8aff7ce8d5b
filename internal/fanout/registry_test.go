package fanout_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cncaiprojem/progressd/internal/fanout"
)

func TestRegistryAddAndStats(t *testing.T) {
	r := fanout.NewRegistry()
	r.Add(&fanout.SessionInfo{ID: "s1", JobID: 1, Transport: "sse"})
	r.Add(&fanout.SessionInfo{ID: "s2", JobID: 1, Transport: "push-socket"})
	r.Add(&fanout.SessionInfo{ID: "s3", JobID: 2, Transport: "sse"})

	stats := r.Stats()
	require.Equal(t, 3, stats.TotalSessions)
	require.Equal(t, 2, stats.SessionsByJob[1])
	require.Equal(t, 1, stats.SessionsByJob[2])
}

func TestRegistryRemove(t *testing.T) {
	r := fanout.NewRegistry()
	r.Add(&fanout.SessionInfo{ID: "s1", JobID: 1})
	r.Add(&fanout.SessionInfo{ID: "s2", JobID: 1})

	r.Remove("s1")
	stats := r.Stats()
	require.Equal(t, 1, stats.TotalSessions)
	require.Equal(t, 1, stats.SessionsByJob[1])

	r.Remove("s2")
	stats = r.Stats()
	require.Equal(t, 0, stats.TotalSessions)
	require.NotContains(t, stats.SessionsByJob, int64(1))
}

func TestRegistryRemoveUnknownSessionIsNoop(t *testing.T) {
	r := fanout.NewRegistry()
	require.NotPanics(t, func() { r.Remove("does-not-exist") })
}

func TestRegistryRemoveTwiceIsSafe(t *testing.T) {
	r := fanout.NewRegistry()
	r.Add(&fanout.SessionInfo{ID: "s1", JobID: 1})
	r.Remove("s1")
	require.NotPanics(t, func() { r.Remove("s1") })
}
