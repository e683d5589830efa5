// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package gc

import (
	"context"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-io/tessera/pkg/tessera"
)

// ExpiredContent is one content value no live-set filter covers.
type ExpiredContent struct {
	Key   tessera.Key
	ID    tessera.ContentID
	Value []byte
}

// IdentifiedResult is the outcome of expired-content identification:
// expired contents grouped by reference and content id, the live set the
// decision was made against, and the per-reference walk results.
type IdentifiedResult struct {
	// Expired maps a reference key to the expired contents found walking
	// it, grouped by content id.
	Expired map[string]map[tessera.ContentID][]ExpiredContent
	LiveSet *LiveSet
	Results []RefResult
}

// identify re-walks every reference and reports each put whose value is
// absent from its content id's live-set filter.
func (c *Collector) identify(ctx context.Context, liveSet *LiveSet, refs []reference) (_ *IdentifiedResult, err error) {
	defer mon.Task()(&ctx)(&err)

	shards := c.config.Shards
	if shards <= 0 {
		shards = len(refs)
	}
	if shards == 0 {
		shards = 1
	}

	perRef := make([]map[tessera.ContentID][]ExpiredContent, len(refs))
	results := make([]RefResult, len(refs))

	var group errgroup.Group
	group.SetLimit(shards)
	for i := range refs {
		i, ref := i, refs[i]
		group.Go(func() error {
			expired, walkErr := c.walkExpired(ctx, ref, liveSet)
			perRef[i] = expired
			results[i] = RefResult{Ref: ref.ref, Head: ref.head, Dead: ref.dead, Err: walkErr}
			if walkErr != nil {
				c.log.Warn("identify walk failed",
					zap.String("reference", ref.Key()),
					zap.Error(walkErr))
			}
			return nil
		})
	}
	_ = group.Wait()

	result := &IdentifiedResult{
		Expired: make(map[string]map[tessera.ContentID][]ExpiredContent),
		LiveSet: liveSet,
		Results: results,
	}
	for i, ref := range refs {
		if len(perRef[i]) == 0 {
			continue
		}
		result.Expired[ref.Key()] = perRef[i]
	}
	return result, nil
}

// walkExpired tests every put of every commit reachable from the
// reference against the live set.
func (c *Collector) walkExpired(ctx context.Context, ref reference, liveSet *LiveSet) (_ map[tessera.ContentID][]ExpiredContent, err error) {
	it, err := c.catalog.CommitLog(ctx, ref.head)
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, it.Close()) }()

	expired := make(map[tessera.ContentID][]ExpiredContent)
	var entry tessera.CommitLogEntry
	for it.Next(ctx, &entry) {
		for i := range entry.Puts {
			put := &entry.Puts[i]
			if liveSet.Contains(put.ID, put.Value) {
				continue
			}
			expired[put.ID] = append(expired[put.ID], ExpiredContent{
				Key:   put.Key,
				ID:    put.ID,
				Value: put.Value,
			})
		}
	}
	return expired, it.Err()
}
