// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package catalog

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/tessera-io/tessera/pkg/tessera"
)

// MetadataRewriter transforms the metadata of a copied commit into the
// metadata written on the target branch.
type MetadataRewriter func(metadata []byte) []byte

// Transplant cherry-picks the given source commits, in order, onto the
// target branch. Every copied commit keeps its puts and deletes; its
// metadata is passed through rewriter.
func (a *Adapter) Transplant(ctx context.Context, targetBranch string, expectedHead *tessera.Hash, sequence []tessera.Hash, rewriter MetadataRewriter) (_ tessera.Hash, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(sequence) == 0 {
		return tessera.Hash{}, tessera.ErrInvalidArgument.New("No hashes to transplant given.")
	}

	return a.casOpLoop(ctx, "transplant", func(ctx context.Context, pointer *tessera.GlobalPointer) (*casOp, error) {
		head, err := resolveBranch(pointer, targetBranch)
		if err != nil {
			return nil, err
		}
		if expectedHead != nil && *expectedHead != head {
			return nil, tessera.ErrReferenceConflict.New("expected hash %s on branch %q, found %s",
				*expectedHead, targetBranch, head)
		}

		entries := make([]*tessera.CommitLogEntry, 0, len(sequence))
		for _, hash := range sequence {
			entry, err := a.fetchCommit(ctx, hash)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}

		ancestor := primaryParent(entries[0])
		return a.applySequence(ctx, pointer, targetBranch, head, ancestor, entries, rewriter, tessera.RefLogOpTransplant, sequence)
	})
}

// Merge applies all commits reachable from `from` but not from the target
// branch onto the target branch, oldest first, as a fast-forward rebase
// chain.
func (a *Adapter) Merge(ctx context.Context, from tessera.Hash, targetBranch string, expectedHead *tessera.Hash, rewriter MetadataRewriter) (_ tessera.Hash, err error) {
	defer mon.Task()(&ctx)(&err)

	return a.casOpLoop(ctx, "merge", func(ctx context.Context, pointer *tessera.GlobalPointer) (*casOp, error) {
		head, err := resolveBranch(pointer, targetBranch)
		if err != nil {
			return nil, err
		}
		if expectedHead != nil && *expectedHead != head {
			return nil, tessera.ErrReferenceConflict.New("expected hash %s on branch %q, found %s",
				*expectedHead, targetBranch, head)
		}

		ancestor, err := a.commonAncestor(ctx, from, head)
		if err != nil {
			return nil, err
		}

		// commits strictly between the ancestor and `from`, oldest first
		var sequence []tessera.Hash
		var entries []*tessera.CommitLogEntry
		cursor := from
		for cursor != ancestor {
			entry, err := a.fetchCommit(ctx, cursor)
			if err != nil {
				return nil, err
			}
			sequence = append([]tessera.Hash{cursor}, sequence...)
			entries = append([]*tessera.CommitLogEntry{entry}, entries...)
			cursor = primaryParent(entry)
		}
		if len(entries) == 0 {
			return nil, tessera.ErrInvalidArgument.New("No hashes to merge from %s onto branch %q @ %s.",
				from, targetBranch, head)
		}

		return a.applySequence(ctx, pointer, targetBranch, head, ancestor, entries, rewriter, tessera.RefLogOpMerge, sequence)
	})
}

// applySequence copies the source entries onto the target tip after
// checking for key conflicts against the common ancestor.
func (a *Adapter) applySequence(ctx context.Context, pointer *tessera.GlobalPointer, targetBranch string, head, ancestor tessera.Hash, entries []*tessera.CommitLogEntry, rewriter MetadataRewriter, op tessera.RefLogOp, sources []tessera.Hash) (*casOp, error) {
	written := writtenKeys(entries)
	conflicts, err := a.conflictingKeys(ctx, ancestor, head, written)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, tessera.ErrReferenceConflict.New("the following keys have been changed in conflict: %s",
			strings.Join(conflicts, ", "))
	}

	if rewriter == nil {
		rewriter = func(metadata []byte) []byte { return metadata }
	}

	result := &casOp{newPointer: clonePointer(pointer)}
	tip := head
	for _, source := range entries {
		entry, entryData, err := a.buildCommitEntry(ctx, tip, rewriter(source.Metadata), source.Puts, source.Deletes)
		if err != nil {
			return nil, err
		}
		// the next entry reads its parent from the store, so each copy is
		// persisted before the following one is built
		if err := a.store.Put(ctx, a.commitKey(entry.Hash), entryData); err != nil {
			return nil, tessera.ErrStoreUnavailable.Wrap(err)
		}
		result.writes = append(result.writes, write{key: a.commitKey(entry.Hash), data: entryData})
		tip = entry.Hash
	}

	touchReference(result.newPointer, tessera.BranchName(targetBranch), tip)
	result.writes = append(result.writes,
		a.newRefLogEntry(result.newPointer, tessera.BranchName(targetBranch), tip, op, sources))
	result.result = tip
	return result, nil
}

// writtenKeys returns every key put or deleted by the entries.
func writtenKeys(entries []*tessera.CommitLogEntry) []tessera.Key {
	seen := make(map[string]bool)
	var keys []tessera.Key
	for _, entry := range entries {
		for i := range entry.Puts {
			key := entry.Puts[i].Key
			if !seen[key.String()] {
				seen[key.String()] = true
				keys = append(keys, key)
			}
		}
		for _, key := range entry.Deletes {
			if !seen[key.String()] {
				seen[key.String()] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// conflictingKeys returns the keys whose value on the target tip differs
// from their value at the common ancestor, meaning the target modified
// them since the histories diverged. Deletes count as modifications.
func (a *Adapter) conflictingKeys(ctx context.Context, ancestor, targetHead tessera.Hash, keys []tessera.Key) ([]string, error) {
	if len(keys) == 0 || ancestor == targetHead {
		return nil, nil
	}

	ancestorValues, _, err := a.resolveLocalValues(ctx, ancestor, keys)
	if err != nil {
		return nil, err
	}
	targetValues, _, err := a.resolveLocalValues(ctx, targetHead, keys)
	if err != nil {
		return nil, err
	}

	var conflicts []string
	for _, key := range keys {
		name := key.String()
		if !bytes.Equal(ancestorValues[name], targetValues[name]) {
			conflicts = append(conflicts, name)
		}
	}
	sort.Strings(conflicts)
	return conflicts, nil
}

// commonAncestor finds the most recent commit reachable from both from
// and to, following primary parents. The no-ancestor sentinel is the common
// root of all histories.
func (a *Adapter) commonAncestor(ctx context.Context, from, to tessera.Hash) (tessera.Hash, error) {
	reachable := map[tessera.Hash]bool{tessera.NoAncestor: true}
	cursor := from
	for !cursor.IsNoAncestor() {
		reachable[cursor] = true
		entry, err := a.fetchCommit(ctx, cursor)
		if err != nil {
			return tessera.Hash{}, err
		}
		cursor = primaryParent(entry)
	}

	cursor = to
	for {
		if reachable[cursor] {
			return cursor, nil
		}
		entry, err := a.fetchCommit(ctx, cursor)
		if err != nil {
			return tessera.Hash{}, err
		}
		cursor = primaryParent(entry)
	}
}
