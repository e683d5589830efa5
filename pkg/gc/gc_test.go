// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package gc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tessera-io/tessera/internal/testcontext"
	"github.com/tessera-io/tessera/pkg/catalog"
	"github.com/tessera-io/tessera/pkg/gc"
	"github.com/tessera-io/tessera/pkg/tessera"
	"github.com/tessera-io/tessera/storage/teststore"
)

func commitValue(t *testing.T, ctx context.Context, adapter *catalog.Adapter, key tessera.Key, id tessera.ContentID, value string) tessera.Hash {
	t.Helper()
	head, err := adapter.Commit(ctx, catalog.CommitAttempt{
		Branch:   "main",
		Metadata: []byte(value),
		Puts: []tessera.KeyWithBytes{
			{Key: key, ID: id, Type: 1, Value: []byte(value)},
		},
	})
	require.NoError(t, err)
	// commit times must differ around the cutoff
	time.Sleep(2 * time.Millisecond)
	return head
}

func commitTime(t *testing.T, ctx context.Context, adapter *catalog.Adapter, hash tessera.Hash) int64 {
	t.Helper()
	it, err := adapter.CommitLog(ctx, hash)
	require.NoError(t, err)
	defer func() { require.NoError(t, it.Close()) }()

	var entry tessera.CommitLogEntry
	require.True(t, it.Next(ctx, &entry))
	return entry.CreatedTime
}

func TestTimeTravelLiveSet(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	adapter := catalog.New(zaptest.NewLogger(t), store, catalog.DefaultConfig("test"))
	require.NoError(t, adapter.InitializeRepo(ctx, "main"))

	key := tessera.NewKey("table")

	commitValue(t, ctx, adapter, key, "cid", "v0")
	v1 := commitValue(t, ctx, adapter, key, "cid", "v1")
	v2 := commitValue(t, ctx, adapter, key, "cid", "v2")
	commitValue(t, ctx, adapter, key, "cid", "v3")

	// a branch still pointing at v1 gets dropped before gc runs
	_, err := adapter.Create(ctx, tessera.BranchName("stale"), &v1)
	require.NoError(t, err)
	require.NoError(t, adapter.Delete(ctx, tessera.BranchName("stale"), &v1))

	// cutoff lands between v1 and v2
	cutoffMicros := (commitTime(t, ctx, adapter, v1) + commitTime(t, ctx, adapter, v2)) / 2
	config := gc.DefaultConfig(time.UnixMicro(cutoffMicros), "main")
	config.FalsePositiveRate = 0.001
	config.ExpectedEntries = 100

	collector := gc.NewCollector(zaptest.NewLogger(t), adapter, config)
	result, err := collector.IdentifyExpiredContents(ctx)
	require.NoError(t, err)

	// v2 and v3 are after the cutoff; v1 is the current value at the
	// cutoff, kept for time travel and for the dropped reference
	assert.True(t, result.LiveSet.Contains("cid", []byte("v1")))
	assert.True(t, result.LiveSet.Contains("cid", []byte("v2")))
	assert.True(t, result.LiveSet.Contains("cid", []byte("v3")))
	assert.False(t, result.LiveSet.Contains("cid", []byte("v0")))

	// v0 is identified as expired
	foundExpired := false
	for _, perID := range result.Expired {
		for _, contents := range perID {
			for _, content := range contents {
				assert.Equal(t, []byte("v0"), content.Value)
				foundExpired = true
			}
		}
	}
	assert.True(t, foundExpired, "v0 should have been identified as expired")

	// every reference walk succeeded: main, plus the dropped branch in
	// both passes
	for _, res := range result.Results {
		assert.NoError(t, res.Err)
	}
	for _, res := range result.LiveSet.Results {
		assert.NoError(t, res.Err)
	}
}

func TestAssignDropsOldChain(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	adapter := catalog.New(zaptest.NewLogger(t), store, catalog.DefaultConfig("test"))
	require.NoError(t, adapter.InitializeRepo(ctx, "main"))

	key := tessera.NewKey("doc")

	old := commitValue(t, ctx, adapter, key, "cid", "kept-by-reflog")
	require.NoError(t, adapter.Assign(ctx, tessera.BranchName("main"), &old, tessera.NoAncestor))
	commitValue(t, ctx, adapter, key, "cid", "fresh")

	// everything is after the cutoff, so even the reassigned-away chain
	// stays live through the ref log
	config := gc.DefaultConfig(time.UnixMicro(commitTime(t, ctx, adapter, old)-1), "main")
	config.ExpectedEntries = 100

	collector := gc.NewCollector(zaptest.NewLogger(t), adapter, config)
	result, err := collector.IdentifyExpiredContents(ctx)
	require.NoError(t, err)

	assert.True(t, result.LiveSet.Contains("cid", []byte("kept-by-reflog")))
	assert.True(t, result.LiveSet.Contains("cid", []byte("fresh")))
	assert.Empty(t, result.Expired)
}
