// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"sort"

	"github.com/tessera-io/tessera/pkg/tessera"
)

// sortedGlobalPuts flattens a global-state update map into content id
// order, keeping the serialized entry deterministic.
func sortedGlobalPuts(global map[tessera.ContentID][]byte) []tessera.ContentIDAndBytes {
	ids := make([]string, 0, len(global))
	for id := range global {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	puts := make([]tessera.ContentIDAndBytes, 0, len(global))
	for _, id := range ids {
		puts = append(puts, tessera.ContentIDAndBytes{
			ID:    tessera.ContentID(id),
			Value: global[tessera.ContentID(id)],
		})
	}
	return puts
}

// GlobalKeys returns all content ids recorded in the global state log,
// most recently written first.
func (a *Adapter) GlobalKeys(ctx context.Context) (_ []tessera.ContentID, err error) {
	defer mon.Task()(&ctx)(&err)

	pointer, _, err := a.loadPointer(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[tessera.ContentID]bool)
	var ids []tessera.ContentID
	cursor := pointer.GlobalID
	for !cursor.IsNoAncestor() && !cursor.IsZero() {
		entry, err := a.fetchGlobal(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, put := range entry.Puts {
			if !seen[put.ID] {
				seen[put.ID] = true
				ids = append(ids, put.ID)
			}
		}
		if len(entry.Parents) == 0 {
			break
		}
		cursor = entry.Parents[0]
	}
	return ids, nil
}

// GlobalContent returns the current global value for the content id. The
// returned ok is false when the id has no recorded global state.
func (a *Adapter) GlobalContent(ctx context.Context, id tessera.ContentID) (_ []byte, ok bool, err error) {
	defer mon.Task()(&ctx)(&err)

	pointer, _, err := a.loadPointer(ctx)
	if err != nil {
		return nil, false, err
	}
	values, err := a.globalContents(ctx, pointer.GlobalID, map[tessera.ContentID]bool{id: true})
	if err != nil {
		return nil, false, err
	}
	value, ok := values[id]
	return value, ok, nil
}

// globalContents walks the global log once from head and returns the most
// recent value for every requested content id that has one.
func (a *Adapter) globalContents(ctx context.Context, head tessera.Hash, ids map[tessera.ContentID]bool) (map[tessera.ContentID][]byte, error) {
	values := make(map[tessera.ContentID][]byte)
	if len(ids) == 0 {
		return values, nil
	}

	remaining := make(map[tessera.ContentID]bool, len(ids))
	for id := range ids {
		remaining[id] = true
	}

	cursor := head
	for !cursor.IsNoAncestor() && !cursor.IsZero() && len(remaining) > 0 {
		entry, err := a.fetchGlobal(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, put := range entry.Puts {
			if remaining[put.ID] {
				delete(remaining, put.ID)
				values[put.ID] = put.Value
			}
		}
		if len(entry.Parents) == 0 {
			break
		}
		cursor = entry.Parents[0]
	}
	return values, nil
}
