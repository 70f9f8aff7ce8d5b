package reporter

import (
	"time"

	"github.com/cncaiprojem/progressd/internal/progress"
)

// milestoneFor mirrors the convention every domain helper shares:
// start/end phases are milestones, progress is not.
func milestoneFor(phase progress.Phase) bool {
	return phase == progress.PhaseStart || phase == progress.PhaseEnd
}

// ReportDocument reports FreeCAD document lifecycle progress.
func (r *Reporter) ReportDocument(phase progress.Phase, fields progress.DocumentFields, message string) {
	f := fields
	msg := &progress.Message{
		JobID:     r.jobID,
		EventID:   r.nextEventID(),
		Timestamp: time.Now().UTC(),
		EventType: progress.EventDocument,
		Phase:     phase,
		Document:  &f,
		Message:   message,
	}
	r.emit(msg, milestoneFor(phase))
}

// ReportAssembly4 reports Assembly4 constraint-solver progress.
func (r *Reporter) ReportAssembly4(phase progress.Phase, fields progress.Assembly4Fields, message string) {
	f := fields
	msg := &progress.Message{
		JobID:     r.jobID,
		EventID:   r.nextEventID(),
		Timestamp: time.Now().UTC(),
		EventType: progress.EventAssembly4,
		Phase:     phase,
		Assembly4: &f,
		Message:   message,
	}
	if f.ConstraintsTotal > 0 {
		msg.ItemsDone = i64(f.ConstraintsResolved)
		msg.ItemsTotal = i64(f.ConstraintsTotal)
	}
	r.emit(msg, milestoneFor(phase))
}

// ReportMaterial reports Material Framework application progress.
func (r *Reporter) ReportMaterial(phase progress.Phase, fields progress.MaterialFields, message string) {
	f := fields
	msg := &progress.Message{
		JobID:     r.jobID,
		EventID:   r.nextEventID(),
		Timestamp: time.Now().UTC(),
		EventType: progress.EventMaterial,
		Phase:     phase,
		Material:  &f,
		Message:   message,
	}
	if f.ObjectsTotal > 0 {
		msg.ItemsDone = i64(f.ObjectsDone)
		msg.ItemsTotal = i64(f.ObjectsTotal)
	}
	r.emit(msg, milestoneFor(phase))
}

// ReportOCCT reports a boolean/fillet/chamfer OCCT operation's progress.
func (r *Reporter) ReportOCCT(phase progress.Phase, fields progress.OCCTFields, message string) {
	f := fields
	msg := &progress.Message{
		JobID:     r.jobID,
		EventID:   r.nextEventID(),
		Timestamp: time.Now().UTC(),
		EventType: progress.EventOCCT,
		Phase:     phase,
		OCCT:      &f,
		Message:   message,
	}
	if f.ShapesTotal > 0 {
		msg.ItemsDone = i64(f.ShapesDone)
		msg.ItemsTotal = i64(f.ShapesTotal)
	}
	r.emit(msg, milestoneFor(phase))
}

// ReportTopology reports topology-hash recomputation progress.
func (r *Reporter) ReportTopology(phase progress.Phase, fields progress.TopologyFields, message string) {
	f := fields
	msg := &progress.Message{
		JobID:     r.jobID,
		EventID:   r.nextEventID(),
		Timestamp: time.Now().UTC(),
		EventType: progress.EventTopologyHash,
		Phase:     phase,
		Topology:  &f,
		Message:   message,
	}
	if f.FacesTotal > 0 {
		msg.ItemsDone = i64(f.FacesDone)
		msg.ItemsTotal = i64(f.FacesTotal)
	}
	r.emit(msg, milestoneFor(phase))
}

// ReportExport reports export-to-format progress.
func (r *Reporter) ReportExport(phase progress.Phase, fields progress.ExportFields, message string) {
	f := fields
	msg := &progress.Message{
		JobID:     r.jobID,
		EventID:   r.nextEventID(),
		Timestamp: time.Now().UTC(),
		EventType: progress.EventExport,
		Phase:     phase,
		Export:    &f,
		Message:   message,
	}
	if f.BytesTotal > 0 {
		msg.ItemsDone = i64(f.BytesWritten)
		msg.ItemsTotal = i64(f.BytesTotal)
	}
	r.emit(msg, milestoneFor(phase))
}
