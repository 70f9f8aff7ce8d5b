package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cncaiprojem/progressd/internal/audit/canonical"
)

// Chain is the append/verify operations over one Store.
type Chain struct {
	store Store
	log   zerolog.Logger
}

func NewChain(store Store, log zerolog.Logger) *Chain {
	return &Chain{store: store, log: log.With().Str("component", "audit").Logger()}
}

// Append looks up the job's latest chain_hash (or GenesisHash if none),
// builds the canonical payload, computes the new chain_hash, and
// persists the entry. The job transition this records MUST NOT be
// considered finalized if Append returns an error.
func (c *Chain) Append(ctx context.Context, jobID int64, kind EventKind, actorID *string, payload map[string]interface{}) (*Entry, error) {
	if err := validatePayload(kind, payload); err != nil {
		return nil, err
	}
	capped, err := capPayload(payload)
	if err != nil {
		return nil, err
	}

	prev, err := c.store.LatestEntry(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("audit: lookup latest entry for job %d: %w", jobID, err)
	}
	prevHash := GenesisHash
	if prev != nil {
		prevHash = prev.ChainHash
	}

	chainHash, err := computeChainHash(prevHash, jobID, kind, capped)
	if err != nil {
		return nil, err
	}

	stored := make(map[string]interface{}, len(capped)+2)
	for k, v := range capped {
		stored[k] = v
	}
	stored["prev_hash"] = prevHash
	stored["chain_hash"] = chainHash

	entry := &Entry{
		JobID:     jobID,
		EventKind: kind,
		ActorID:   actorID,
		Payload:   stored,
		PrevHash:  prevHash,
		ChainHash: chainHash,
	}
	if err := c.store.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("audit: insert entry for job %d: %w", jobID, err)
	}
	return entry, nil
}

// VerifyResult is the outcome of re-deriving a job's full chain.
type VerifyResult struct {
	Valid      bool
	Checked    int
	Violations []Violation
}

// Violation points at one entry whose stored hash does not match the
// hash re-derived from its payload and chain position.
type Violation struct {
	AuditID  int64
	Kind     EventKind
	Expected string
	Actual   string
}

// Verify re-derives chain_hash for every entry of jobID in insertion
// order and flags both link breaks and hash mismatches. A corrupted
// entry invalidates every entry after it by transitivity, since the
// expected prev_hash propagates from the re-derived chain, not the
// stored one.
func (c *Chain) Verify(ctx context.Context, jobID int64) (*VerifyResult, error) {
	entries, err := c.store.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries for job %d: %w", jobID, err)
	}

	result := &VerifyResult{Valid: true}
	expectedPrev := GenesisHash
	for _, e := range entries {
		result.Checked++

		callerPayload := withoutLinkKeys(e.Payload)
		expectedHash, err := computeChainHash(expectedPrev, e.JobID, e.EventKind, callerPayload)
		if err != nil {
			return nil, err
		}

		if e.PrevHash != expectedPrev || e.ChainHash != expectedHash {
			result.Valid = false
			result.Violations = append(result.Violations, Violation{
				AuditID:  e.AuditID,
				Kind:     e.EventKind,
				Expected: expectedHash,
				Actual:   e.ChainHash,
			})
		}
		expectedPrev = expectedHash
	}
	return result, nil
}

func computeChainHash(prevHash string, jobID int64, kind EventKind, payload map[string]interface{}) (string, error) {
	canonicalPayload := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		canonicalPayload[k] = v
	}
	canonicalPayload["job_id"] = jobID
	canonicalPayload["event_kind"] = string(kind)

	canonicalBytes, err := canonical.Marshal(canonicalPayload)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize payload: %w", err)
	}

	sum := sha256.Sum256(append([]byte(prevHash), canonicalBytes...))
	return hex.EncodeToString(sum[:]), nil
}

func withoutLinkKeys(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k == "prev_hash" || k == "chain_hash" {
			continue
		}
		out[k] = v
	}
	return out
}
