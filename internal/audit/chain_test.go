package audit_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cncaiprojem/progressd/internal/audit"
)

func TestAppendFirstEntryUsesGenesisHash(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	chain := audit.NewChain(store, zerolog.Nop())

	entry, err := chain.Append(ctx, 100, audit.EventCreated, nil, map[string]interface{}{
		"created_at":      "2026-07-31T00:00:00Z",
		"job_type":        "cad_build",
		"priority":        1,
		"params":          map[string]interface{}{},
		"idempotency_key": "abc-123",
	})
	require.NoError(t, err)
	assert.Equal(t, audit.GenesisHash, entry.PrevHash)
	assert.Len(t, entry.ChainHash, 64)
}

func TestAppendChainsSubsequentEntries(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	chain := audit.NewChain(store, zerolog.Nop())

	first, err := chain.Append(ctx, 100, audit.EventCreated, nil, map[string]interface{}{
		"created_at":      "2026-07-31T00:00:00Z",
		"job_type":        "cad_build",
		"priority":        1,
		"params":          map[string]interface{}{},
		"idempotency_key": "abc-123",
	})
	require.NoError(t, err)

	second, err := chain.Append(ctx, 100, audit.EventStarted, nil, map[string]interface{}{
		"started_at": "2026-07-31T00:00:01Z",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ChainHash, second.PrevHash)
	assert.NotEqual(t, first.ChainHash, second.ChainHash)
}

func TestAppendRejectsMissingRequiredPayloadKeys(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	chain := audit.NewChain(store, zerolog.Nop())

	_, err := chain.Append(ctx, 100, audit.EventCreated, nil, map[string]interface{}{
		"created_at": "2026-07-31T00:00:00Z",
	})
	assert.Error(t, err)
}

func TestVerifyPassesOnUntamperedChain(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	chain := audit.NewChain(store, zerolog.Nop())

	_, err := chain.Append(ctx, 200, audit.EventCreated, nil, map[string]interface{}{
		"created_at":      "2026-07-31T00:00:00Z",
		"job_type":        "cad_build",
		"priority":        1,
		"params":          map[string]interface{}{},
		"idempotency_key": "xyz",
	})
	require.NoError(t, err)
	_, err = chain.Append(ctx, 200, audit.EventStarted, nil, map[string]interface{}{
		"started_at": "2026-07-31T00:00:01Z",
	})
	require.NoError(t, err)

	result, err := chain.Verify(ctx, 200)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.Checked)
	assert.Empty(t, result.Violations)
}

func TestVerifyDetectsTamperingAndPropagatesByTransitivity(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	chain := audit.NewChain(store, zerolog.Nop())

	_, err := chain.Append(ctx, 300, audit.EventCreated, nil, map[string]interface{}{
		"created_at":      "2026-07-31T00:00:00Z",
		"job_type":        "cad_build",
		"priority":        1,
		"params":          map[string]interface{}{},
		"idempotency_key": "xyz",
	})
	require.NoError(t, err)
	_, err = chain.Append(ctx, 300, audit.EventStarted, nil, map[string]interface{}{
		"started_at": "2026-07-31T00:00:01Z",
	})
	require.NoError(t, err)

	entries, err := store.ListByJob(ctx, 300)
	require.NoError(t, err)
	entries[0].Payload["job_type"] = "tampered_value"

	result, err := chain.Verify(ctx, 300)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Violations, 2)
	assert.Equal(t, entries[0].AuditID, result.Violations[0].AuditID)
	assert.Equal(t, entries[1].AuditID, result.Violations[1].AuditID)
}

func TestAppendFailsClosedOnUnknownEventKind(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	chain := audit.NewChain(store, zerolog.Nop())

	_, err := chain.Append(ctx, 400, audit.EventKind("bogus"), nil, map[string]interface{}{})
	assert.Error(t, err)
}
