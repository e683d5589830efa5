// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package catalog

import (
	"bytes"
	"context"
	"sort"

	"github.com/tessera-io/tessera/pkg/tessera"
)

// HashOnReference resolves the named reference and verifies that hash, if
// given, is reachable from its HEAD. It returns the verified hash, or the
// HEAD when no hash was given.
func (a *Adapter) HashOnReference(ctx context.Context, ref tessera.NamedRef, hash *tessera.Hash) (_ tessera.Hash, err error) {
	defer mon.Task()(&ctx)(&err)

	pointer, _, err := a.loadPointer(ctx)
	if err != nil {
		return tessera.Hash{}, err
	}
	head, err := resolveRef(pointer, ref)
	if err != nil {
		return tessera.Hash{}, err
	}
	if hash == nil {
		return head, nil
	}

	cursor := head
	for {
		if cursor == *hash {
			return cursor, nil
		}
		if cursor.IsNoAncestor() {
			return tessera.Hash{}, tessera.ErrReferenceNotFound.New("hash %s is not reachable from %s", *hash, ref)
		}
		entry, err := a.fetchCommit(ctx, cursor)
		if err != nil {
			return tessera.Hash{}, err
		}
		cursor = primaryParent(entry)
	}
}

// resolveRef returns the HEAD of the named reference, requiring the
// recorded type to match.
func resolveRef(pointer *tessera.GlobalPointer, ref tessera.NamedRef) (tessera.Hash, error) {
	existing := pointer.Reference(ref.Name)
	if existing == nil || existing.Ref.Type != ref.Type {
		return tessera.Hash{}, tessera.ErrReferenceNotFound.New("%s", ref)
	}
	return existing.Hash, nil
}

// Values returns the per-reference and global values of the requested
// keys at the given commit, keyed by the canonical key string. Keys that
// are absent, or rejected by the filter, are missing from the result.
func (a *Adapter) Values(ctx context.Context, commit tessera.Hash, keys []tessera.Key, filter tessera.KeyFilter) (_ map[string]tessera.ContentAndState, err error) {
	defer mon.Task()(&ctx)(&err)

	if !commit.IsNoAncestor() {
		if _, err := a.fetchCommit(ctx, commit); err != nil {
			return nil, err
		}
	}

	values, types, err := a.resolveLocalValues(ctx, commit, keys)
	if err != nil {
		return nil, err
	}

	result := make(map[string]tessera.ContentAndState, len(keys))
	wantGlobal := make(map[tessera.ContentID]bool)
	for name, value := range values {
		if value == nil {
			continue
		}
		kt := types[name]
		if filter != nil && !filter(kt.Key, kt.ID, kt.Type) {
			continue
		}
		result[name] = tessera.ContentAndState{ID: kt.ID, Type: kt.Type, RefState: value}
		wantGlobal[kt.ID] = true
	}

	pointer, _, err := a.loadPointer(ctx)
	if err != nil {
		return nil, err
	}
	global, err := a.globalContents(ctx, pointer.GlobalID, wantGlobal)
	if err != nil {
		return nil, err
	}
	for name, state := range result {
		if value, ok := global[state.ID]; ok {
			state.Global = value
			result[name] = state
		}
	}
	return result, nil
}

// KeyIterator iterates over the live keys of a commit.
type KeyIterator struct {
	items []tessera.KeyWithType
	index int
}

// Next advances to the next key and fills item.
func (it *KeyIterator) Next(ctx context.Context, item *tessera.KeyWithType) bool {
	if it.index >= len(it.items) {
		return false
	}
	*item = it.items[it.index]
	it.index++
	return true
}

// Err returns the iteration error, if any.
func (it *KeyIterator) Err() error { return nil }

// Close releases the iterator.
func (it *KeyIterator) Close() error { return nil }

// Keys returns an iterator over the keys live at the given commit, in
// key order.
func (a *Adapter) Keys(ctx context.Context, commit tessera.Hash, filter tessera.KeyFilter) (_ *KeyIterator, err error) {
	defer mon.Task()(&ctx)(&err)

	if !commit.IsNoAncestor() {
		if _, err := a.fetchCommit(ctx, commit); err != nil {
			return nil, err
		}
	}
	live, err := a.rebuildKeyList(ctx, commit)
	if err != nil {
		return nil, err
	}

	items := make([]tessera.KeyWithType, 0, len(live))
	for _, kt := range sortedKeyList(live) {
		if filter != nil && !filter(kt.Key, kt.ID, kt.Type) {
			continue
		}
		items = append(items, kt)
	}
	return &KeyIterator{items: items}, nil
}

// CommitIterator lazily walks the commit log along primary parents.
type CommitIterator struct {
	adapter *Adapter
	next    tessera.Hash
	err     error
	closed  bool
}

// Next advances to the next commit entry and fills entry. It returns
// false at the beginning of history, after Close, and on error.
func (it *CommitIterator) Next(ctx context.Context, entry *tessera.CommitLogEntry) bool {
	if it.closed || it.err != nil || it.next.IsNoAncestor() {
		return false
	}
	fetched, err := it.adapter.fetchCommit(ctx, it.next)
	if err != nil {
		it.err = err
		return false
	}
	*entry = *fetched
	it.next = primaryParent(fetched)
	return true
}

// Err returns the iteration error, if any.
func (it *CommitIterator) Err() error { return it.err }

// Close releases the iterator.
func (it *CommitIterator) Close() error {
	it.closed = true
	return nil
}

// CommitLog returns an iterator over the commit log starting at offset,
// following primary parents down to the beginning of history. The walk
// can be restarted by calling CommitLog again with the last observed
// hash.
func (a *Adapter) CommitLog(ctx context.Context, offset tessera.Hash) (_ *CommitIterator, err error) {
	defer mon.Task()(&ctx)(&err)

	if !offset.IsNoAncestor() {
		if _, err := a.fetchCommit(ctx, offset); err != nil {
			return nil, err
		}
	}
	return &CommitIterator{adapter: a, next: offset}, nil
}

// DiffIterator iterates over the differences between two commits.
type DiffIterator struct {
	items []tessera.Difference
	index int
}

// Next advances to the next difference and fills diff.
func (it *DiffIterator) Next(ctx context.Context, diff *tessera.Difference) bool {
	if it.index >= len(it.items) {
		return false
	}
	*diff = it.items[it.index]
	it.index++
	return true
}

// Err returns the iteration error, if any.
func (it *DiffIterator) Err() error { return nil }

// Close releases the iterator.
func (it *DiffIterator) Close() error { return nil }

// Diff compares the content of two commits and returns the keys whose
// per-reference values differ, in key order.
func (a *Adapter) Diff(ctx context.Context, from, to tessera.Hash, filter tessera.KeyFilter) (_ *DiffIterator, err error) {
	defer mon.Task()(&ctx)(&err)

	fromLive, err := a.keyListChecked(ctx, from)
	if err != nil {
		return nil, err
	}
	toLive, err := a.keyListChecked(ctx, to)
	if err != nil {
		return nil, err
	}

	names := make(map[string]tessera.KeyWithType)
	for name, kt := range fromLive {
		names[name] = kt
	}
	for name, kt := range toLive {
		names[name] = kt
	}

	keys := make([]tessera.Key, 0, len(names))
	for _, kt := range names {
		if filter != nil && !filter(kt.Key, kt.ID, kt.Type) {
			continue
		}
		keys = append(keys, kt.Key)
	}

	fromValues, _, err := a.resolveLocalValues(ctx, from, keys)
	if err != nil {
		return nil, err
	}
	toValues, _, err := a.resolveLocalValues(ctx, to, keys)
	if err != nil {
		return nil, err
	}

	var items []tessera.Difference
	for _, key := range keys {
		name := key.String()
		if bytes.Equal(fromValues[name], toValues[name]) {
			continue
		}
		items = append(items, tessera.Difference{
			Key:  key,
			From: fromValues[name],
			To:   toValues[name],
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Key.String() < items[j].Key.String()
	})
	return &DiffIterator{items: items}, nil
}

func (a *Adapter) keyListChecked(ctx context.Context, commit tessera.Hash) (map[string]tessera.KeyWithType, error) {
	if !commit.IsNoAncestor() {
		if _, err := a.fetchCommit(ctx, commit); err != nil {
			return nil, err
		}
	}
	return a.rebuildKeyList(ctx, commit)
}

// RefLogIterator lazily walks the reference audit log.
type RefLogIterator struct {
	adapter *Adapter
	next    tessera.Hash
	err     error
	closed  bool
}

// Next advances to the next ref-log entry and fills entry.
func (it *RefLogIterator) Next(ctx context.Context, entry *tessera.RefLogEntry) bool {
	if it.closed || it.err != nil || it.next.IsNoAncestor() || it.next.IsZero() {
		return false
	}
	fetched, err := it.adapter.fetchRefLog(ctx, it.next)
	if err != nil {
		it.err = err
		return false
	}
	*entry = *fetched
	if len(fetched.Parents) == 0 {
		it.next = tessera.NoAncestor
	} else {
		it.next = fetched.Parents[0]
	}
	return true
}

// Err returns the iteration error, if any.
func (it *RefLogIterator) Err() error { return it.err }

// Close releases the iterator.
func (it *RefLogIterator) Close() error {
	it.closed = true
	return nil
}

// RefLog returns an iterator over the reference audit log starting at
// offset. A zero offset starts at the current head.
func (a *Adapter) RefLog(ctx context.Context, offset tessera.Hash) (_ *RefLogIterator, err error) {
	defer mon.Task()(&ctx)(&err)

	if offset.IsZero() {
		pointer, _, err := a.loadPointer(ctx)
		if err != nil {
			return nil, err
		}
		offset = pointer.RefLogID
	} else if !offset.IsNoAncestor() {
		if _, err := a.fetchRefLog(ctx, offset); err != nil {
			return nil, err
		}
	}
	return &RefLogIterator{adapter: a, next: offset}, nil
}
