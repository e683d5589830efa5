// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"

	"github.com/tessera-io/tessera/pkg/tessera"
	"github.com/tessera-io/tessera/pkg/wire"
)

// CommitAttempt carries the inputs of a single commit operation.
type CommitAttempt struct {
	// Branch is the branch to commit to.
	Branch string
	// ExpectedHead, when set, requires the branch HEAD to match before
	// the commit is attempted.
	ExpectedHead *tessera.Hash
	// Metadata is the opaque commit metadata.
	Metadata []byte
	// Puts are applied in order; the last put wins for a repeated key.
	Puts []tessera.KeyWithBytes
	// Deletes remove keys. A key must not appear in both Puts and
	// Deletes.
	Deletes []tessera.Key
	// Global carries replacement global-state values for content ids
	// whose type keeps shared state.
	Global map[tessera.ContentID][]byte
	// Validator, when set, runs after the tentative commit entry is
	// built and before the pointer swap; an error aborts the commit.
	Validator func(ctx context.Context, newHead tessera.Hash) error
}

// Commit writes a new commit entry onto the attempt's branch and advances
// its HEAD. It returns the hash of the new commit.
func (a *Adapter) Commit(ctx context.Context, attempt CommitAttempt) (_ tessera.Hash, err error) {
	defer mon.Task()(&ctx)(&err)

	if attempt.Branch == "" {
		return tessera.Hash{}, tessera.ErrInvalidArgument.New("no branch given")
	}
	if err := checkDisjoint(attempt.Puts, attempt.Deletes); err != nil {
		return tessera.Hash{}, err
	}

	return a.casOpLoop(ctx, "commit", func(ctx context.Context, pointer *tessera.GlobalPointer) (*casOp, error) {
		head, err := resolveBranch(pointer, attempt.Branch)
		if err != nil {
			return nil, err
		}
		if attempt.ExpectedHead != nil && *attempt.ExpectedHead != head {
			return nil, tessera.ErrReferenceConflict.New("expected hash %s on branch %q, found %s",
				*attempt.ExpectedHead, attempt.Branch, head)
		}

		entry, entryData, err := a.buildCommitEntry(ctx, head, attempt.Metadata, attempt.Puts, attempt.Deletes)
		if err != nil {
			return nil, err
		}

		op := &casOp{newPointer: clonePointer(pointer), result: entry.Hash}
		op.writes = append(op.writes, write{key: a.commitKey(entry.Hash), data: entryData})

		if len(attempt.Global) > 0 {
			op.writes = append(op.writes, a.newGlobalLogEntry(op.newPointer, attempt.Global))
		}

		if attempt.Validator != nil {
			if err := attempt.Validator(ctx, entry.Hash); err != nil {
				return nil, err
			}
		}

		touchReference(op.newPointer, tessera.BranchName(attempt.Branch), entry.Hash)
		op.writes = append(op.writes,
			a.newRefLogEntry(op.newPointer, tessera.BranchName(attempt.Branch), entry.Hash, tessera.RefLogOpCommit, nil))
		return op, nil
	})
}

// buildCommitEntry assembles a new commit entry on top of parent,
// embedding a materialized key list whenever the configured distance is
// reached.
func (a *Adapter) buildCommitEntry(ctx context.Context, parent tessera.Hash, metadata []byte, puts []tessera.KeyWithBytes, deletes []tessera.Key) (*tessera.CommitLogEntry, []byte, error) {
	entry := &tessera.CommitLogEntry{
		CreatedTime: a.now(),
		Metadata:    metadata,
		Puts:        puts,
		Deletes:     deletes,
	}

	if parent.IsNoAncestor() {
		entry.CommitSeq = 1
		entry.Parents = []tessera.Hash{tessera.NoAncestor}
		entry.KeyListDistance = 1
	} else {
		parentEntry, err := a.fetchCommit(ctx, parent)
		if err != nil {
			return nil, nil, err
		}
		entry.CommitSeq = parentEntry.CommitSeq + 1
		entry.Parents = append([]tessera.Hash{parent}, parentEntry.Parents...)
		if len(entry.Parents) > a.config.ParentsPerCommit {
			entry.Parents = entry.Parents[:a.config.ParentsPerCommit]
		}
		entry.KeyListDistance = parentEntry.KeyListDistance + 1
	}

	if entry.KeyListDistance >= a.config.KeyListDistance {
		live, err := a.rebuildKeyList(ctx, parent)
		if err != nil {
			return nil, nil, err
		}
		for _, key := range deletes {
			delete(live, key.String())
		}
		for i := range puts {
			put := &puts[i]
			live[put.Key.String()] = tessera.KeyWithType{Key: put.Key, ID: put.ID, Type: put.Type}
		}
		entry.KeyList = sortedKeyList(live)
		entry.KeyListDistance = 0
	}

	data := wire.MarshalCommitLogEntry(entry)
	entry.Hash = tessera.HashOf(data)
	return entry, data, nil
}

// newGlobalLogEntry builds and serializes a global-log entry replacing
// the global state of the given content ids, and updates the pointer's
// global head and ring.
func (a *Adapter) newGlobalLogEntry(pointer *tessera.GlobalPointer, global map[tessera.ContentID][]byte) write {
	entry := &tessera.GlobalLogEntry{
		CreatedTime: a.now(),
		Parents:     logParents(pointer.GlobalID, pointer.GlobalParents),
		Puts:        sortedGlobalPuts(global),
	}

	data := wire.MarshalGlobalLogEntry(entry)
	entry.ID = tessera.HashOf(data)

	pointer.GlobalID = entry.ID
	pointer.GlobalParents = rotateRing(pointer.GlobalParents, entry.ID, a.config.GlobalParentsRing)
	return write{key: a.globalKey(entry.ID), data: data}
}

// checkDisjoint rejects attempts that put and delete the same key.
func checkDisjoint(puts []tessera.KeyWithBytes, deletes []tessera.Key) error {
	if len(puts) == 0 || len(deletes) == 0 {
		return nil
	}
	putKeys := make(map[string]bool, len(puts))
	for i := range puts {
		putKeys[puts[i].Key.String()] = true
	}
	for _, key := range deletes {
		if putKeys[key.String()] {
			return tessera.ErrInvalidArgument.New("key %q is used in both puts and deletes", key)
		}
	}
	return nil
}

// resolveBranch returns the HEAD of the named branch from the pointer.
func resolveBranch(pointer *tessera.GlobalPointer, branch string) (tessera.Hash, error) {
	ref := pointer.Reference(branch)
	if ref == nil || ref.Ref.Type != tessera.RefTypeBranch {
		return tessera.Hash{}, tessera.ErrReferenceNotFound.New("branch %q", branch)
	}
	return ref.Hash, nil
}
