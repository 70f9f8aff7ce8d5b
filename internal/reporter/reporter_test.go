package reporter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cncaiprojem/progressd/internal/broker"
	"github.com/cncaiprojem/progressd/internal/progress"
	"github.com/cncaiprojem/progressd/internal/reporter"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []*progress.Message
	forced   []bool
}

func (f *fakePublisher) Publish(_ context.Context, msg *progress.Message, force bool) (broker.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	f.forced = append(f.forced, force)
	return broker.Published, nil
}

func (f *fakePublisher) snapshot() []*progress.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*progress.Message, len(f.messages))
	copy(out, f.messages)
	return out
}

func waitFor(t *testing.T, n int, f *fakePublisher) []*progress.Message {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(f.snapshot()) >= n {
			return f.snapshot()
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d published messages, got %d", n, len(f.snapshot()))
	return nil
}

func TestEventIDsAreStrictlyMonotonic(t *testing.T) {
	pub := &fakePublisher{}
	r := reporter.New(1, "task-1", pub, zerolog.Nop())
	defer r.Close()

	r.Report(nil, "step one", false)
	r.Report(nil, "step two", true)
	r.Report(nil, "step three", true)

	msgs := waitFor(t, 3, pub)
	require.Len(t, msgs, 3)
	assert.Less(t, msgs[0].EventID, msgs[1].EventID)
	assert.Less(t, msgs[1].EventID, msgs[2].EventID)
}

func TestBeginEndOperationEmitsMilestones(t *testing.T) {
	pub := &fakePublisher{}
	r := reporter.New(2, "task-2", pub, zerolog.Nop())
	defer r.Close()

	op := r.BeginOperation("boolean_fuse", progress.GroupOCCT, 3)
	op.Update(1, "one of three")
	op.Update(2, "two of three")
	op.End(true)

	msgs := waitFor(t, 4, pub)
	require.Len(t, msgs, 4)
	assert.Equal(t, progress.PhaseStart, msgs[0].Phase)
	assert.True(t, msgs[0].Milestone)
	assert.Equal(t, progress.PhaseProgress, msgs[1].Phase)
	assert.False(t, msgs[1].Milestone)
	assert.Equal(t, progress.PhaseEnd, msgs[3].Phase)
	assert.True(t, msgs[3].Milestone)
	assert.Equal(t, msgs[0].OperationID, msgs[3].OperationID)
}

func TestEndOnPanicStillEmitsEndOnPanic(t *testing.T) {
	pub := &fakePublisher{}
	r := reporter.New(3, "task-3", pub, zerolog.Nop())
	defer r.Close()

	func() {
		defer func() { _ = recover() }()

		success := false
		op := r.BeginOperation("risky", progress.GroupGeneral, 0)
		defer op.EndOnPanic(&success)
		panic("boom")
	}()

	msgs := waitFor(t, 2, pub)
	require.Len(t, msgs, 2)
	assert.Equal(t, progress.PhaseEnd, msgs[1].Phase)
	assert.Contains(t, msgs[1].Message, "failed")
}

func TestMilestonesArePublishedWithForce(t *testing.T) {
	pub := &fakePublisher{}
	r := reporter.New(4, "task-4", pub, zerolog.Nop())
	defer r.Close()

	op := r.BeginOperation("op", progress.GroupGeneral, 1)
	op.End(true)

	waitFor(t, 2, pub)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, forced := range pub.forced {
		assert.True(t, forced)
	}
}

func TestReportAssembly4DerivesProgressFromConstraints(t *testing.T) {
	pub := &fakePublisher{}
	r := reporter.New(5, "task-5", pub, zerolog.Nop())
	defer r.Close()

	r.ReportAssembly4(progress.PhaseProgress, progress.Assembly4Fields{
		ConstraintsResolved: 5,
		ConstraintsTotal:    10,
	}, "solving")

	msgs := waitFor(t, 1, pub)
	require.NotNil(t, msgs[0].ProgressPct)
	assert.Equal(t, 50, *msgs[0].ProgressPct)
}
