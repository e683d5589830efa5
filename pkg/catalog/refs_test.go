// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/internal/testcontext"
	"github.com/tessera-io/tessera/pkg/tessera"
)

func TestCreateReference(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)
	head := commit(t, ctx, adapter, "main", "base", put(tessera.NewKey("k"), "cid", "v"))

	created, err := adapter.Create(ctx, tessera.TagName("v1"), &head)
	require.NoError(t, err)
	assert.Equal(t, head, created)

	_, err = adapter.Create(ctx, tessera.TagName("v1"), &head)
	assert.True(t, tessera.ErrReferenceAlreadyExists.Has(err), "expected already exists, got %v", err)

	// an unknown target cannot anchor a reference
	unknown := tessera.HashOf([]byte("nowhere"))
	_, err = adapter.Create(ctx, tessera.BranchName("dangling"), &unknown)
	assert.True(t, tessera.ErrReferenceNotFound.Has(err), "expected reference not found, got %v", err)

	// only the default branch may be created without a target
	_, err = adapter.Create(ctx, tessera.BranchName("other"), nil)
	assert.True(t, tessera.ErrInvalidArgument.Has(err), "expected invalid argument, got %v", err)
}

func TestDeleteReference(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)
	head := commit(t, ctx, adapter, "main", "base", put(tessera.NewKey("k"), "cid", "v"))

	_, err := adapter.Create(ctx, tessera.BranchName("doomed"), &head)
	require.NoError(t, err)

	wrong := tessera.NoAncestor
	err = adapter.Delete(ctx, tessera.BranchName("doomed"), &wrong)
	assert.True(t, tessera.ErrReferenceConflict.Has(err), "expected reference conflict, got %v", err)

	require.NoError(t, adapter.Delete(ctx, tessera.BranchName("doomed"), &head))

	_, err = adapter.HashOnReference(ctx, tessera.BranchName("doomed"), nil)
	assert.True(t, tessera.ErrReferenceNotFound.Has(err), "expected reference not found, got %v", err)

	// the dropped head is recorded in the ref log
	refLog := collectRefLog(t, ctx, adapter)
	assert.Equal(t, tessera.RefLogOpDelete, refLog[0].Operation)
	assert.Equal(t, head, refLog[0].CommitHash)
}

func TestAssignReference(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)

	first := commit(t, ctx, adapter, "main", "one", put(tessera.NewKey("k"), "cid", "1"))
	second := commit(t, ctx, adapter, "main", "two", put(tessera.NewKey("k"), "cid", "2"))

	require.NoError(t, adapter.Assign(ctx, tessera.BranchName("main"), &second, first))

	head, err := adapter.HashOnReference(ctx, tessera.BranchName("main"), nil)
	require.NoError(t, err)
	assert.Equal(t, first, head)

	// the prior head survives in the ref log source hashes
	refLog := collectRefLog(t, ctx, adapter)
	assert.Equal(t, tessera.RefLogOpAssign, refLog[0].Operation)
	require.Len(t, refLog[0].SourceHashes, 1)
	assert.Equal(t, second, refLog[0].SourceHashes[0])

	stale := tessera.NoAncestor
	err = adapter.Assign(ctx, tessera.BranchName("main"), &stale, second)
	assert.True(t, tessera.ErrReferenceConflict.Has(err), "expected reference conflict, got %v", err)
}

func TestHashOnReference(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)

	first := commit(t, ctx, adapter, "main", "one", put(tessera.NewKey("k"), "cid", "1"))
	second := commit(t, ctx, adapter, "main", "two", put(tessera.NewKey("k"), "cid", "2"))

	head, err := adapter.HashOnReference(ctx, tessera.BranchName("main"), nil)
	require.NoError(t, err)
	assert.Equal(t, second, head)

	verified, err := adapter.HashOnReference(ctx, tessera.BranchName("main"), &first)
	require.NoError(t, err)
	assert.Equal(t, first, verified)

	unreachable := tessera.HashOf([]byte("unreachable"))
	_, err = adapter.HashOnReference(ctx, tessera.BranchName("main"), &unreachable)
	assert.True(t, tessera.ErrReferenceNotFound.Has(err), "expected reference not found, got %v", err)

	// a tag lookup does not resolve a branch
	_, err = adapter.HashOnReference(ctx, tessera.TagName("main"), nil)
	assert.True(t, tessera.ErrReferenceNotFound.Has(err), "expected reference not found, got %v", err)
}

func TestNamedRefs(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, _ := newAdapter(t, ctx)

	head := commit(t, ctx, adapter, "main", "base", put(tessera.NewKey("k"), "cid", "v"))
	_, err := adapter.Create(ctx, tessera.BranchName("feature"), &head)
	require.NoError(t, err)
	featureHead := commit(t, ctx, adapter, "feature", "extra", put(tessera.NewKey("f"), "cid-f", "x"))

	info, err := adapter.NamedRef(ctx, "feature", tessera.RefInfoParams{
		IncludeCommitMeta:      true,
		IncludeNumTotalCommits: true,
		IncludeNumCommitsAhead: true,
		RetrieveCommonAncestor: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, featureHead, info.Head)
	assert.Equal(t, []byte("extra"), info.CommitMeta)
	assert.Equal(t, 2, info.NumTotalCommits)
	assert.Equal(t, 1, info.NumCommitsAhead)
	assert.Equal(t, head, info.CommonAncestor)

	// most recently touched first
	it, err := adapter.NamedRefs(ctx, tessera.RefInfoParams{})
	require.NoError(t, err)
	defer func() { require.NoError(t, it.Close()) }()

	var names []string
	var ref tessera.ReferenceInfo
	for it.Next(ctx, &ref) {
		names = append(names, ref.Ref.Name)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"feature", "main"}, names)

	_, err = adapter.NamedRef(ctx, "missing", tessera.RefInfoParams{})
	assert.True(t, tessera.ErrReferenceNotFound.Has(err), "expected reference not found, got %v", err)
}

func TestEraseAndReinitialize(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	adapter, store := newAdapter(t, ctx)
	commit(t, ctx, adapter, "main", "data", put(tessera.NewKey("k"), "cid", "v"))

	require.NoError(t, adapter.EraseRepo(ctx))

	keys, err := store.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, adapter.InitializeRepo(ctx, "main"))
	head, err := adapter.HashOnReference(ctx, tessera.BranchName("main"), nil)
	require.NoError(t, err)
	assert.True(t, head.IsNoAncestor())
}
