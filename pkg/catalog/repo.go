// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"

	"github.com/tessera-io/tessera/pkg/tessera"
	"github.com/tessera-io/tessera/pkg/wire"
	"github.com/tessera-io/tessera/storage"
)

// FetchRepoDescription returns the repository's version and properties.
// An uninitialized description reads as version zero with no properties.
func (a *Adapter) FetchRepoDescription(ctx context.Context) (_ *tessera.RepoDescription, err error) {
	defer mon.Task()(&ctx)(&err)

	raw, err := a.store.Get(ctx, a.descriptionKey())
	if err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return &tessera.RepoDescription{Properties: map[string]string{}}, nil
		}
		return nil, tessera.ErrStoreUnavailable.Wrap(err)
	}
	return wire.UnmarshalRepoDescription(raw)
}

// UpdateRepoDescription applies updater to the current description and
// persists the result, retrying on concurrent updates. A nil result from
// updater aborts the update without error.
func (a *Adapter) UpdateRepoDescription(ctx context.Context, updater func(*tessera.RepoDescription) *tessera.RepoDescription) (err error) {
	defer mon.Task()(&ctx)(&err)

	for attempt := 0; attempt < a.config.CommitRetries; attempt++ {
		raw, err := a.store.Get(ctx, a.descriptionKey())
		current := &tessera.RepoDescription{Properties: map[string]string{}}
		if err == nil {
			current, err = wire.UnmarshalRepoDescription(raw)
			if err != nil {
				return err
			}
		} else if storage.ErrKeyNotFound.Has(err) {
			raw = nil
		} else {
			return tessera.ErrStoreUnavailable.Wrap(err)
		}

		updated := updater(current)
		if updated == nil {
			return nil
		}

		var expected storage.Value
		if raw != nil {
			expected = raw
		}
		err = a.store.CompareAndSwap(ctx, a.descriptionKey(), expected, wire.MarshalRepoDescription(updated))
		if err == nil {
			return nil
		}
		if !storage.ErrValueChanged.Has(err) {
			return tessera.ErrStoreUnavailable.Wrap(err)
		}
	}
	return tessera.ErrReferenceConflict.New("update of repository description: retry budget of %d attempts exhausted", a.config.CommitRetries)
}
