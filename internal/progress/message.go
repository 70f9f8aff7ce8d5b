// Package progress defines the v2 progress message schema shared by the
// worker reporter, the broker, and the client fan-out transports.
package progress

import "time"

// EventType is the closed set of progress event variants. Unlike the
// duck-typed payloads of the system this schema was distilled from,
// every variant's fields live directly on Message so callers never
// need to type-assert a generic payload.
type EventType string

const (
	EventPhase         EventType = "phase"
	EventDocument      EventType = "document"
	EventAssembly4     EventType = "assembly4"
	EventMaterial      EventType = "material"
	EventOCCT          EventType = "occt"
	EventTopologyHash  EventType = "topology_hash"
	EventDocGraph      EventType = "doc_graph"
	EventExport        EventType = "export"
	EventProgressUpdate EventType = "progress_update"
	EventStatusChange  EventType = "status_change"
)

func (t EventType) valid() bool {
	switch t {
	case EventPhase, EventDocument, EventAssembly4, EventMaterial, EventOCCT,
		EventTopologyHash, EventDocGraph, EventExport, EventProgressUpdate, EventStatusChange:
		return true
	default:
		return false
	}
}

// OperationGroup is the coarse category an event belongs to, derived
// from EventType when the caller does not supply one.
type OperationGroup string

const (
	GroupAssembly4 OperationGroup = "assembly4"
	GroupOCCT      OperationGroup = "occt"
	GroupMaterial  OperationGroup = "material"
	GroupTopology  OperationGroup = "topology"
	GroupDocGraph  OperationGroup = "doc_graph"
	GroupDocument  OperationGroup = "document"
	GroupExport    OperationGroup = "export"
	GroupGeneral   OperationGroup = "general"
)

var eventToGroup = map[EventType]OperationGroup{
	EventAssembly4:    GroupAssembly4,
	EventOCCT:         GroupOCCT,
	EventMaterial:     GroupMaterial,
	EventTopologyHash: GroupTopology,
	EventDocGraph:     GroupDocGraph,
	EventDocument:     GroupDocument,
	EventExport:       GroupExport,
}

// Phase is the lifecycle stage of an operation.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseProgress Phase = "progress"
	PhaseEnd      Phase = "end"
)

// Status is a terminal or non-terminal job status mirrored onto
// progress_update / status_change messages.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// IsTerminal reports whether s is one of the statuses that drains a
// client-fan-out session (spec testable property #5).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	default:
		return false
	}
}

const SchemaVersion = "2.0"

// Message is a single immutable progress record (schema v2). Fields are
// grouped by the variant that populates them; every field besides
// JobID/EventID/Timestamp/SchemaVersion/EventType is optional.
type Message struct {
	JobID          int64     `json:"job_id"`
	EventID        int64     `json:"event_id"`
	Timestamp      time.Time `json:"timestamp"`
	SchemaVersion  string    `json:"schema_version"`
	EventType      EventType `json:"event_type"`
	OperationGroup OperationGroup `json:"operation_group,omitempty"`
	OperationID    string    `json:"operation_id,omitempty"`
	OperationName  string    `json:"operation_name,omitempty"`
	Phase          Phase     `json:"phase,omitempty"`

	StepIndex *int64 `json:"step_index,omitempty"`
	StepTotal *int64 `json:"step_total,omitempty"`
	ItemsDone  *int64 `json:"items_done,omitempty"`
	ItemsTotal *int64 `json:"items_total,omitempty"`

	ProgressPct *int   `json:"progress_pct,omitempty"`
	ElapsedMs   *int64 `json:"elapsed_ms,omitempty"`
	ETAMs       *int64 `json:"eta_ms,omitempty"`

	Milestone bool   `json:"milestone"`
	Message   string `json:"message,omitempty"`
	Status    Status `json:"status,omitempty"`

	// Provenance, carried from the original CAD-compute producers but
	// never interpreted by the core itself.
	FreeCADVersion string `json:"freecad_version,omitempty"`
	OCCTVersion    string `json:"occt_version,omitempty"`
	Workbench      string `json:"workbench,omitempty"`
	Platform       string `json:"platform,omitempty"`

	Document  *DocumentFields  `json:"document,omitempty"`
	Assembly4 *Assembly4Fields `json:"assembly4,omitempty"`
	Material  *MaterialFields  `json:"material,omitempty"`
	OCCT      *OCCTFields      `json:"occt,omitempty"`
	Topology  *TopologyFields  `json:"topology,omitempty"`
	DocGraph  *DocGraphFields  `json:"doc_graph,omitempty"`
	Export    *ExportFields    `json:"export,omitempty"`
}

// DocumentFields carries document-lifecycle payload for EventDocument.
type DocumentFields struct {
	DocumentID    string `json:"document_id,omitempty"`
	DocumentLabel string `json:"document_label,omitempty"`
	ObjectName    string `json:"object_name,omitempty"`
	ObjectType    string `json:"object_type,omitempty"`
}

// Assembly4Fields carries solver payload for EventAssembly4.
type Assembly4Fields struct {
	ConstraintsResolved int64   `json:"constraints_resolved"`
	ConstraintsTotal    int64   `json:"constraints_total"`
	LCSResolved         int64   `json:"lcs_resolved,omitempty"`
	LCSTotal            int64   `json:"lcs_total,omitempty"`
	LCSName             string  `json:"lcs_name,omitempty"`
	Iteration           int64   `json:"iteration,omitempty"`
	Residual            float64 `json:"residual,omitempty"`
}

// MaterialFields carries Material Framework payload for EventMaterial.
type MaterialFields struct {
	LibraryName   string `json:"library_name,omitempty"`
	MaterialKey   string `json:"material_key,omitempty"`
	MatUID        string `json:"mat_uid,omitempty"`
	ObjectsDone   int64  `json:"objects_done"`
	ObjectsTotal  int64  `json:"objects_total"`
	AppearanceBake bool  `json:"appearance_bake,omitempty"`
}

// OCCTFields carries boolean/fillet/chamfer operation payload for EventOCCT.
type OCCTFields struct {
	Operation   string `json:"occt_op"`
	ShapesDone  int64  `json:"shapes_done"`
	ShapesTotal int64  `json:"shapes_total"`
	EdgesDone   int64  `json:"edges_done,omitempty"`
	EdgesTotal  int64  `json:"edges_total,omitempty"`
}

// TopologyFields carries topology-hash payload for EventTopologyHash.
type TopologyFields struct {
	FacesDone    int64  `json:"faces_done,omitempty"`
	FacesTotal   int64  `json:"faces_total,omitempty"`
	EdgesDone    int64  `json:"edges_done,omitempty"`
	EdgesTotal   int64  `json:"edges_total,omitempty"`
	VerticesDone int64  `json:"vertices_done,omitempty"`
	VerticesTotal int64 `json:"vertices_total,omitempty"`
	ComputedHash string `json:"computed_hash,omitempty"`
	ExpectedHash string `json:"expected_hash,omitempty"`
}

// DocGraphFields carries document-graph payload for EventDocGraph.
type DocGraphFields struct {
	NodesDone int64 `json:"nodes_done,omitempty"`
	NodesTotal int64 `json:"nodes_total,omitempty"`
	EdgesDone int64 `json:"edges_done,omitempty"`
	EdgesTotal int64 `json:"edges_total,omitempty"`
}

// ExportFields carries export-progress payload for EventExport.
type ExportFields struct {
	Format       string `json:"format"`
	BytesWritten int64  `json:"bytes_written"`
	BytesTotal   int64  `json:"bytes_total"`
}
