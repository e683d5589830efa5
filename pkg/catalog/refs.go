// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"

	"github.com/tessera-io/tessera/pkg/tessera"
)

// Create creates a new named reference pointing at target. A nil target
// is allowed only for the repository's default branch; the reference then
// starts at the beginning of history. Create needs an initialized
// repository: after EraseRepo it fails with ErrReferenceNotFound until
// InitializeRepo has run.
func (a *Adapter) Create(ctx context.Context, ref tessera.NamedRef, target *tessera.Hash) (_ tessera.Hash, err error) {
	defer mon.Task()(&ctx)(&err)

	if ref.Name == "" {
		return tessera.Hash{}, tessera.ErrInvalidArgument.New("no reference name given")
	}
	if target == nil && ref.Name != a.config.DefaultBranch {
		return tessera.Hash{}, tessera.ErrInvalidArgument.New("only the default branch %q may be created without a target", a.config.DefaultBranch)
	}

	return a.casOpLoop(ctx, "create reference", func(ctx context.Context, pointer *tessera.GlobalPointer) (*casOp, error) {
		if existing := pointer.Reference(ref.Name); existing != nil {
			return nil, tessera.ErrReferenceAlreadyExists.New("%s", existing.Ref)
		}

		head := tessera.NoAncestor
		if target != nil {
			head = *target
			if !head.IsNoAncestor() {
				if _, err := a.fetchCommit(ctx, head); err != nil {
					return nil, err
				}
			}
		}

		op := &casOp{newPointer: clonePointer(pointer), result: head}
		touchReference(op.newPointer, ref, head)
		op.writes = append(op.writes,
			a.newRefLogEntry(op.newPointer, ref, head, tessera.RefLogOpCreate, nil))
		return op, nil
	})
}

// Delete removes the named reference. When expected is set, the current
// HEAD must match. The dropped commit chain stays reachable only through
// the ref log.
func (a *Adapter) Delete(ctx context.Context, ref tessera.NamedRef, expected *tessera.Hash) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = a.casOpLoop(ctx, "delete reference", func(ctx context.Context, pointer *tessera.GlobalPointer) (*casOp, error) {
		head, err := resolveRef(pointer, ref)
		if err != nil {
			return nil, err
		}
		if expected != nil && *expected != head {
			return nil, tessera.ErrReferenceConflict.New("expected hash %s on %s, found %s", *expected, ref, head)
		}

		op := &casOp{newPointer: clonePointer(pointer), result: head}
		refs := op.newPointer.NamedReferences
		for i := range refs {
			if refs[i].Ref.Name == ref.Name {
				op.newPointer.NamedReferences = append(refs[:i:i], refs[i+1:]...)
				break
			}
		}
		op.writes = append(op.writes,
			a.newRefLogEntry(op.newPointer, ref, head, tessera.RefLogOpDelete, nil))
		return op, nil
	})
	return err
}

// Assign atomically updates the named reference's HEAD to the given
// commit. The previous HEAD is recorded in the ref log's source hashes,
// keeping the replaced chain discoverable.
func (a *Adapter) Assign(ctx context.Context, ref tessera.NamedRef, expected *tessera.Hash, assignTo tessera.Hash) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = a.casOpLoop(ctx, "assign reference", func(ctx context.Context, pointer *tessera.GlobalPointer) (*casOp, error) {
		head, err := resolveRef(pointer, ref)
		if err != nil {
			return nil, err
		}
		if expected != nil && *expected != head {
			return nil, tessera.ErrReferenceConflict.New("expected hash %s on %s, found %s", *expected, ref, head)
		}
		if !assignTo.IsNoAncestor() {
			if _, err := a.fetchCommit(ctx, assignTo); err != nil {
				return nil, err
			}
		}

		op := &casOp{newPointer: clonePointer(pointer), result: assignTo}
		touchReference(op.newPointer, ref, assignTo)
		op.writes = append(op.writes,
			a.newRefLogEntry(op.newPointer, ref, assignTo, tessera.RefLogOpAssign, []tessera.Hash{head}))
		return op, nil
	})
	return err
}

// NamedRef resolves one named reference with the details selected by
// params.
func (a *Adapter) NamedRef(ctx context.Context, name string, params tessera.RefInfoParams) (_ tessera.ReferenceInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	pointer, _, err := a.loadPointer(ctx)
	if err != nil {
		return tessera.ReferenceInfo{}, err
	}
	ref := pointer.Reference(name)
	if ref == nil {
		return tessera.ReferenceInfo{}, tessera.ErrReferenceNotFound.New("%q", name)
	}
	return a.referenceInfo(ctx, pointer, *ref, params)
}

// RefIterator iterates over named references.
type RefIterator struct {
	items []tessera.ReferenceInfo
	index int
}

// Next advances to the next reference and fills info.
func (it *RefIterator) Next(ctx context.Context, info *tessera.ReferenceInfo) bool {
	if it.index >= len(it.items) {
		return false
	}
	*info = it.items[it.index]
	it.index++
	return true
}

// Err returns the iteration error, if any.
func (it *RefIterator) Err() error { return nil }

// Close releases the iterator.
func (it *RefIterator) Close() error { return nil }

// NamedRefs returns an iterator over all named references, most recently
// updated first, with the details selected by params.
func (a *Adapter) NamedRefs(ctx context.Context, params tessera.RefInfoParams) (_ *RefIterator, err error) {
	defer mon.Task()(&ctx)(&err)

	pointer, _, err := a.loadPointer(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]tessera.ReferenceInfo, 0, len(pointer.NamedReferences))
	for _, ref := range pointer.NamedReferences {
		info, err := a.referenceInfo(ctx, pointer, ref, params)
		if err != nil {
			return nil, err
		}
		items = append(items, info)
	}
	return &RefIterator{items: items}, nil
}

// referenceInfo fills a ReferenceInfo, walking the log only as far as the
// requested fields require.
func (a *Adapter) referenceInfo(ctx context.Context, pointer *tessera.GlobalPointer, ref tessera.RefPointer, params tessera.RefInfoParams) (tessera.ReferenceInfo, error) {
	info := tessera.ReferenceInfo{Ref: ref.Ref, Head: ref.Hash}

	var headSeq int64
	if !ref.Hash.IsNoAncestor() && (params.IncludeCommitMeta || params.IncludeNumTotalCommits || params.IncludeNumCommitsAhead) {
		head, err := a.fetchCommit(ctx, ref.Hash)
		if err != nil {
			return tessera.ReferenceInfo{}, err
		}
		headSeq = head.CommitSeq
		if params.IncludeCommitMeta {
			info.CommitMeta = head.Metadata
		}
		if params.IncludeNumTotalCommits {
			// commit sequence equals depth along primary parents
			info.NumTotalCommits = int(head.CommitSeq)
		}
	}

	if params.RetrieveCommonAncestor != "" {
		base := pointer.Reference(params.RetrieveCommonAncestor)
		if base == nil {
			return tessera.ReferenceInfo{}, tessera.ErrReferenceNotFound.New("%q", params.RetrieveCommonAncestor)
		}
		ancestor, err := a.commonAncestor(ctx, base.Hash, ref.Hash)
		if err != nil {
			return tessera.ReferenceInfo{}, err
		}
		info.CommonAncestor = ancestor
		if params.IncludeNumCommitsAhead {
			ancestorSeq := int64(0)
			if !ancestor.IsNoAncestor() {
				ancestorEntry, err := a.fetchCommit(ctx, ancestor)
				if err != nil {
					return tessera.ReferenceInfo{}, err
				}
				ancestorSeq = ancestorEntry.CommitSeq
			}
			info.NumCommitsAhead = int(headSeq - ancestorSeq)
		}
	}
	return info, nil
}
