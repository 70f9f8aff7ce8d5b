package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr64(v int64) *int64 { return &v }

func TestValidateRejectsMissingJobID(t *testing.T) {
	msg := &Message{EventType: EventPhase}
	err := Validate(msg)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "job_id", verr.Field)
}

func TestValidateRejectsUnknownEventType(t *testing.T) {
	msg := &Message{JobID: 1, EventType: "nonsense"}
	err := Validate(msg)
	require.Error(t, err)
}

func TestValidateRejectsDoneExceedingTotal(t *testing.T) {
	msg := &Message{
		JobID:      1,
		EventType:  EventOCCT,
		ItemsDone:  ptr64(10),
		ItemsTotal: ptr64(5),
	}
	err := Validate(msg)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items_done", verr.Field)
}

func TestValidateAcceptsWellFormedMessage(t *testing.T) {
	msg := &Message{
		JobID:      42,
		EventID:    7,
		EventType:  EventAssembly4,
		Phase:      PhaseProgress,
		ItemsDone:  ptr64(3),
		ItemsTotal: ptr64(10),
	}
	assert.NoError(t, Validate(msg))
}

func TestDeriveComputesProgressPctFromItems(t *testing.T) {
	msg := &Message{
		JobID:      1,
		EventType:  EventOCCT,
		ItemsDone:  ptr64(25),
		ItemsTotal: ptr64(100),
	}
	out := Derive(msg)
	require.NotNil(t, out.ProgressPct)
	assert.Equal(t, 25, *out.ProgressPct)
	assert.Equal(t, SchemaVersion, out.SchemaVersion)
}

func TestDeriveDoesNotOverwriteExplicitProgressPct(t *testing.T) {
	explicit := 90
	msg := &Message{
		JobID:       1,
		EventType:   EventOCCT,
		ItemsDone:   ptr64(1),
		ItemsTotal:  ptr64(100),
		ProgressPct: &explicit,
	}
	out := Derive(msg)
	assert.Equal(t, 90, *out.ProgressPct)
}

func TestDeriveSetsMilestoneOnStartAndEnd(t *testing.T) {
	start := Derive(&Message{JobID: 1, EventType: EventPhase, Phase: PhaseStart})
	assert.True(t, start.Milestone)

	mid := Derive(&Message{JobID: 1, EventType: EventPhase, Phase: PhaseProgress})
	assert.False(t, mid.Milestone)

	end := Derive(&Message{JobID: 1, EventType: EventPhase, Phase: PhaseEnd})
	assert.True(t, end.Milestone)
}

func TestDeriveFallsBackToOperationGroupGeneral(t *testing.T) {
	out := Derive(&Message{JobID: 1, EventType: EventStatusChange})
	assert.Equal(t, GroupGeneral, out.OperationGroup)
}

func TestDeriveMapsEventTypeToOperationGroup(t *testing.T) {
	out := Derive(&Message{JobID: 1, EventType: EventAssembly4})
	assert.Equal(t, GroupAssembly4, out.OperationGroup)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := &Message{
		JobID:         99,
		EventID:       3,
		Timestamp:     time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
		SchemaVersion: SchemaVersion,
		EventType:     EventTopologyHash,
		Phase:         PhaseEnd,
		Topology: &TopologyFields{
			FacesDone:    10,
			FacesTotal:   10,
			ComputedHash: "abc123",
			ExpectedHash: "abc123",
		},
	}

	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, original.JobID, decoded.JobID)
	assert.Equal(t, original.EventID, decoded.EventID)
	assert.Equal(t, original.EventType, decoded.EventType)
	require.NotNil(t, decoded.Topology)
	assert.Equal(t, original.Topology.ComputedHash, decoded.Topology.ComputedHash)
	assert.True(t, original.Timestamp.Equal(decoded.Timestamp))
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)
}
