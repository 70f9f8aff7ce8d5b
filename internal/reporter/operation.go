package reporter

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cncaiprojem/progressd/internal/progress"
)

// OperationHandle is a stack-scoped record of one named unit of work.
// BeginOperation pushes it onto the reporter's single-writer stack; End
// (or EndOnPanic) pops it and emits the terminal phase=end milestone on
// every exit path.
type OperationHandle struct {
	reporter    *Reporter
	operationID string
	name        string
	group       progress.OperationGroup
	totalSteps  int64
	currentStep int64
	startTime   time.Time
	ended       bool
}

// BeginOperation starts tracking a named operation and emits its
// phase=start milestone. Every call MUST be paired with exactly one
// End or EndOnPanic.
func (r *Reporter) BeginOperation(name string, group progress.OperationGroup, totalSteps int64) *OperationHandle {
	h := &OperationHandle{
		reporter:   r,
		operationID: uuid.NewString(),
		name:       name,
		group:      group,
		totalSteps: totalSteps,
		startTime:  time.Now(),
	}
	r.stack = append(r.stack, h)

	msg := &progress.Message{
		JobID:          r.jobID,
		EventID:        r.nextEventID(),
		Timestamp:      time.Now().UTC(),
		EventType:      progress.EventPhase,
		OperationGroup: group,
		OperationID:    h.operationID,
		OperationName:  name,
		Phase:          progress.PhaseStart,
		Milestone:      true,
		Message:        fmt.Sprintf("starting %s", name),
	}
	if totalSteps > 0 {
		msg.StepTotal = i64(totalSteps)
	}
	r.emit(msg, true)
	return h
}

// Update emits a phase=progress event carrying elapsed/ETA and a
// derived progress_pct.
func (h *OperationHandle) Update(stepIndex int64, message string) {
	if h.ended {
		return
	}
	h.currentStep = stepIndex
	elapsed := time.Since(h.startTime).Milliseconds()

	msg := &progress.Message{
		JobID:          h.reporter.jobID,
		EventID:        h.reporter.nextEventID(),
		Timestamp:      time.Now().UTC(),
		EventType:      progress.EventPhase,
		OperationGroup: h.group,
		OperationID:    h.operationID,
		OperationName:  h.name,
		Phase:          progress.PhaseProgress,
		StepIndex:      i64(stepIndex),
		ElapsedMs:      i64(elapsed),
		Message:        message,
	}
	if h.totalSteps > 0 {
		msg.StepTotal = i64(h.totalSteps)
		if stepIndex > 0 {
			eta := elapsed * (h.totalSteps - stepIndex) / stepIndex
			msg.ETAMs = i64(eta)
		}
		pct := int(stepIndex * 100 / h.totalSteps)
		if pct > 100 {
			pct = 100
		}
		msg.ProgressPct = &pct
	}
	h.reporter.emit(msg, false)
}

// End pops the operation and emits its phase=end milestone. Safe to
// call at most once; later calls are no-ops.
func (h *OperationHandle) End(success bool) {
	if h.ended {
		return
	}
	h.ended = true
	h.reporter.popOperation(h)

	elapsed := time.Since(h.startTime).Milliseconds()
	message := fmt.Sprintf("completed %s", h.name)
	if !success {
		message = fmt.Sprintf("failed %s", h.name)
	}

	msg := &progress.Message{
		JobID:          h.reporter.jobID,
		EventID:        h.reporter.nextEventID(),
		Timestamp:      time.Now().UTC(),
		EventType:      progress.EventPhase,
		OperationGroup: h.group,
		OperationID:    h.operationID,
		OperationName:  h.name,
		Phase:          progress.PhaseEnd,
		StepIndex:      i64(h.currentStep),
		ElapsedMs:      i64(elapsed),
		Milestone:      true,
		Message:        message,
	}
	if h.totalSteps > 0 {
		msg.StepTotal = i64(h.totalSteps)
	}
	h.reporter.emit(msg, true)
}

// EndOnPanic is the guaranteed-release construct for operation scoping:
// deferred immediately after BeginOperation, it ends the operation with
// success=*success on normal return, and with success=false (then
// re-panics) if the guarded body panicked.
//
//	success := false
//	op := r.BeginOperation("boolean_fuse", progress.GroupOCCT, 3)
//	defer op.EndOnPanic(&success)
//	...
//	success = true
func (h *OperationHandle) EndOnPanic(success *bool) {
	if p := recover(); p != nil {
		h.End(false)
		panic(p)
	}
	h.End(*success)
}

func (r *Reporter) popOperation(h *OperationHandle) {
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i] == h {
			r.stack = append(r.stack[:i], r.stack[i+1:]...)
			return
		}
	}
}
