// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"sort"

	"github.com/tessera-io/tessera/pkg/tessera"
)

// rebuildKeyList computes the set of live keys at commit by replaying
// puts and deletes backwards until an entry with an embedded key list, or
// the beginning of history, is reached. Newer mutations shadow older ones.
func (a *Adapter) rebuildKeyList(ctx context.Context, commit tessera.Hash) (map[string]tessera.KeyWithType, error) {
	live := make(map[string]tessera.KeyWithType)
	decided := make(map[string]bool)

	cursor := commit
	for !cursor.IsNoAncestor() {
		entry, err := a.fetchCommit(ctx, cursor)
		if err != nil {
			return nil, err
		}

		// reverse order, the last put of a repeated key wins
		for i := len(entry.Puts) - 1; i >= 0; i-- {
			put := &entry.Puts[i]
			name := put.Key.String()
			if decided[name] {
				continue
			}
			decided[name] = true
			live[name] = tessera.KeyWithType{Key: put.Key, ID: put.ID, Type: put.Type}
		}
		for _, key := range entry.Deletes {
			name := key.String()
			if decided[name] {
				continue
			}
			decided[name] = true
		}

		if entry.HasKeyList() {
			for _, kt := range entry.KeyList {
				name := kt.Key.String()
				if decided[name] {
					continue
				}
				decided[name] = true
				live[name] = kt
			}
			break
		}

		cursor = primaryParent(entry)
	}

	return live, nil
}

// sortedKeyList flattens a rebuilt key list into key order.
func sortedKeyList(live map[string]tessera.KeyWithType) []tessera.KeyWithType {
	names := make([]string, 0, len(live))
	for name := range live {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]tessera.KeyWithType, 0, len(live))
	for _, name := range names {
		out = append(out, live[name])
	}
	return out
}

// primaryParent returns the entry's immediate predecessor, or the
// no-ancestor sentinel for entries without parents.
func primaryParent(entry *tessera.CommitLogEntry) tessera.Hash {
	if len(entry.Parents) == 0 {
		return tessera.NoAncestor
	}
	return entry.Parents[0]
}

// resolveLocalValues walks the log from commit and returns the most
// recent per-reference value for every requested key. Deleted and never
// written keys map to nil.
func (a *Adapter) resolveLocalValues(ctx context.Context, commit tessera.Hash, keys []tessera.Key) (map[string][]byte, map[string]tessera.KeyWithType, error) {
	values := make(map[string][]byte, len(keys))
	types := make(map[string]tessera.KeyWithType, len(keys))

	remaining := make(map[string]tessera.Key, len(keys))
	for _, key := range keys {
		remaining[key.String()] = key
	}

	cursor := commit
	for !cursor.IsNoAncestor() && len(remaining) > 0 {
		entry, err := a.fetchCommit(ctx, cursor)
		if err != nil {
			return nil, nil, err
		}

		for i := len(entry.Puts) - 1; i >= 0; i-- {
			put := &entry.Puts[i]
			name := put.Key.String()
			if _, ok := remaining[name]; !ok {
				continue
			}
			delete(remaining, name)
			values[name] = put.Value
			types[name] = tessera.KeyWithType{Key: put.Key, ID: put.ID, Type: put.Type}
		}
		for _, key := range entry.Deletes {
			name := key.String()
			if _, ok := remaining[name]; !ok {
				continue
			}
			delete(remaining, name)
			values[name] = nil
		}

		cursor = primaryParent(entry)
	}

	for name := range remaining {
		values[name] = nil
	}
	return values, types, nil
}
