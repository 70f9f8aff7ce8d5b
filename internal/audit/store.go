package audit

import "context"

// Store is the durability collaborator the chain is built over. It
// persists entries in insertion order per job and never mutates a
// stored entry — the chain's append-only guarantee lives here.
type Store interface {
	// LatestEntry returns the most recently appended entry for jobID,
	// or nil if none exists yet.
	LatestEntry(ctx context.Context, jobID int64) (*Entry, error)

	// Insert persists e, assigning e.AuditID.
	Insert(ctx context.Context, e *Entry) error

	// ListByJob returns every entry for jobID in insertion order.
	ListByJob(ctx context.Context, jobID int64) ([]*Entry, error)
}
