// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package catalog_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/internal/testcontext"
	"github.com/tessera-io/tessera/pkg/catalog"
	"github.com/tessera-io/tessera/pkg/tessera"
)

func TestTransplantOrdering(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)
	mainHead, err := adapter.HashOnReference(ctx, tessera.BranchName("main"), nil)
	require.NoError(t, err)

	_, err = adapter.Create(ctx, tessera.BranchName("work"), &mainHead)
	require.NoError(t, err)

	var sequence []tessera.Hash
	for i := 0; i < 3; i++ {
		head := commit(t, ctx, adapter, "work", fmt.Sprintf("commit %d", i),
			put(tessera.NewKey("t", fmt.Sprint(i)), tessera.ContentID(fmt.Sprint("cid-", i)), "v"))
		sequence = append(sequence, head)
	}

	_, err = adapter.Create(ctx, tessera.BranchName("target"), &mainHead)
	require.NoError(t, err)

	n := 0
	rewriter := func(metadata []byte) []byte {
		out := fmt.Sprintf("%s transplanted %d", metadata, n)
		n++
		return []byte(out)
	}

	tip, err := adapter.Transplant(ctx, "target", &mainHead, sequence, rewriter)
	require.NoError(t, err)

	entries := collectLog(t, ctx, adapter, tip)
	require.Len(t, entries, 3)
	assert.Equal(t, "commit 2 transplanted 2", string(entries[0].Metadata))
	assert.Equal(t, "commit 1 transplanted 1", string(entries[1].Metadata))
	assert.Equal(t, "commit 0 transplanted 0", string(entries[2].Metadata))

	// the ref log records the source commits
	refLog := collectRefLog(t, ctx, adapter)
	assert.Equal(t, tessera.RefLogOpTransplant, refLog[0].Operation)
	assert.Equal(t, sequence, refLog[0].SourceHashes)
}

func TestTransplantPreservation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)
	mainHead, err := adapter.HashOnReference(ctx, tessera.BranchName("main"), nil)
	require.NoError(t, err)

	_, err = adapter.Create(ctx, tessera.BranchName("source"), &mainHead)
	require.NoError(t, err)

	first := commit(t, ctx, adapter, "source", "add both",
		put(tessera.NewKey("a"), "cid-a", "1"),
		put(tessera.NewKey("b"), "cid-b", "2"))
	second, err := adapter.Commit(ctx, catalog.CommitAttempt{
		Branch:  "source",
		Deletes: []tessera.Key{tessera.NewKey("b")},
	})
	require.NoError(t, err)

	_, err = adapter.Create(ctx, tessera.BranchName("copy"), &mainHead)
	require.NoError(t, err)

	tip, err := adapter.Transplant(ctx, "copy", nil, []tessera.Hash{first, second}, nil)
	require.NoError(t, err)

	sources := collectLog(t, ctx, adapter, second)
	copies := collectLog(t, ctx, adapter, tip)
	require.Len(t, copies, 2)
	for i := range copies {
		assert.Equal(t, sources[i].Puts, copies[i].Puts)
		assert.Equal(t, sources[i].Deletes, copies[i].Deletes)
		assert.Equal(t, sources[i].Metadata, copies[i].Metadata)
	}
}

func TestTransplantEmptySequence(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)

	_, err := adapter.Transplant(ctx, "main", nil, nil, nil)
	require.True(t, tessera.ErrInvalidArgument.Has(err), "expected invalid argument, got %v", err)
	assert.Contains(t, err.Error(), "No hashes to transplant given.")
}

func TestMergeConflict(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)
	key := tessera.NewKey("key", "0")

	commit(t, ctx, adapter, "main", "base", put(key, "cid", "v0"))
	mainHead, err := adapter.HashOnReference(ctx, tessera.BranchName("main"), nil)
	require.NoError(t, err)

	_, err = adapter.Create(ctx, tessera.BranchName("b1"), &mainHead)
	require.NoError(t, err)
	_, err = adapter.Create(ctx, tessera.BranchName("b2"), &mainHead)
	require.NoError(t, err)

	b1Head := commit(t, ctx, adapter, "b1", "change on b1", put(key, "cid", "v1"))
	b2Head := commit(t, ctx, adapter, "b2", "change on b2", put(key, "cid", "v2"))

	_, err = adapter.Merge(ctx, b2Head, "b1", &b1Head, nil)
	require.True(t, tessera.ErrReferenceConflict.Has(err), "expected reference conflict, got %v", err)
	assert.Contains(t, err.Error(), "key.0")
}

func TestMergeFastForward(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)

	commit(t, ctx, adapter, "main", "base", put(tessera.NewKey("base"), "cid-base", "v"))
	mainHead, err := adapter.HashOnReference(ctx, tessera.BranchName("main"), nil)
	require.NoError(t, err)

	_, err = adapter.Create(ctx, tessera.BranchName("feature"), &mainHead)
	require.NoError(t, err)

	commit(t, ctx, adapter, "feature", "one", put(tessera.NewKey("f", "1"), "cid-f1", "a"))
	featureHead := commit(t, ctx, adapter, "feature", "two", put(tessera.NewKey("f", "2"), "cid-f2", "b"))

	tip, err := adapter.Merge(ctx, featureHead, "main", &mainHead, nil)
	require.NoError(t, err)

	values, err := adapter.Values(ctx, tip, []tessera.Key{
		tessera.NewKey("base"), tessera.NewKey("f", "1"), tessera.NewKey("f", "2"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), values["base"].RefState)
	assert.Equal(t, []byte("a"), values["f.1"].RefState)
	assert.Equal(t, []byte("b"), values["f.2"].RefState)

	// the merged commits form a rebase chain, two new commits on main
	entries := collectLog(t, ctx, adapter, tip)
	require.Len(t, entries, 3)
	assert.Equal(t, "two", string(entries[0].Metadata))
	assert.Equal(t, "one", string(entries[1].Metadata))
	assert.Equal(t, "base", string(entries[2].Metadata))
}

func TestMergeNothingToMerge(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)

	head := commit(t, ctx, adapter, "main", "one", put(tessera.NewKey("k"), "cid", "v"))
	commit(t, ctx, adapter, "main", "two", put(tessera.NewKey("k"), "cid", "w"))

	_, err := adapter.Merge(ctx, head, "main", nil, nil)
	require.True(t, tessera.ErrInvalidArgument.Has(err), "expected invalid argument, got %v", err)
	assert.Contains(t, err.Error(), "No hashes to merge")
}

func TestMergeUnrelatedKeysNoConflict(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)

	commit(t, ctx, adapter, "main", "base", put(tessera.NewKey("shared"), "cid", "v"))
	mainHead, err := adapter.HashOnReference(ctx, tessera.BranchName("main"), nil)
	require.NoError(t, err)

	_, err = adapter.Create(ctx, tessera.BranchName("side"), &mainHead)
	require.NoError(t, err)

	sideHead := commit(t, ctx, adapter, "side", "side change", put(tessera.NewKey("side-only"), "cid-s", "s"))
	commit(t, ctx, adapter, "main", "main change", put(tessera.NewKey("main-only"), "cid-m", "m"))

	// both branches moved, but they touched different keys
	tip, err := adapter.Merge(ctx, sideHead, "main", nil, nil)
	require.NoError(t, err)

	values, err := adapter.Values(ctx, tip, []tessera.Key{
		tessera.NewKey("side-only"), tessera.NewKey("main-only"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("s"), values["side-only"].RefState)
	assert.Equal(t, []byte("m"), values["main-only"].RefState)
}
