// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package gc

import (
	"context"
	"crypto/sha256"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-io/tessera/pkg/bloomfilter"
	"github.com/tessera-io/tessera/pkg/tessera"
)

// LiveSet holds the merged per-content-id bloom filters of everything
// that must be retained, plus the per-reference walk results.
type LiveSet struct {
	Filters map[tessera.ContentID]*bloomfilter.Filter
	Results []RefResult
}

// Contains reports whether the value may be live for the content id.
func (set *LiveSet) Contains(id tessera.ContentID, value []byte) bool {
	filter, ok := set.Filters[id]
	if !ok {
		return false
	}
	return filter.Contains(bloomfilter.Of(value))
}

// filterSet accumulates fingerprints per content id for one reference
// walk.
type filterSet struct {
	fpp      float64
	expected int64
	filters  map[tessera.ContentID]*bloomfilter.Filter
}

func newFilterSet(fpp float64, expected int64) *filterSet {
	return &filterSet{
		fpp:      fpp,
		expected: expected,
		filters:  make(map[tessera.ContentID]*bloomfilter.Filter),
	}
}

// seedFor derives a stable per-content-id seed, so filters built in
// independent walks share parameters and merge.
func seedFor(id tessera.ContentID) byte {
	sum := sha256.Sum256([]byte(id))
	return sum[0]
}

func (fs *filterSet) add(id tessera.ContentID, value []byte) {
	filter, ok := fs.filters[id]
	if !ok {
		filter = bloomfilter.NewOptimal(seedFor(id), fs.expected, fs.fpp)
		fs.filters[id] = filter
	}
	filter.Add(bloomfilter.Of(value))
}

// buildLiveSet walks every reference in parallel partitions and merges
// the resulting filters.
func (c *Collector) buildLiveSet(ctx context.Context, refs []reference) (_ *LiveSet, err error) {
	defer mon.Task()(&ctx)(&err)

	expected, err := c.expectedEntries(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := c.config.CutoffTime.UnixMicro()

	shards := c.config.Shards
	if shards <= 0 {
		shards = len(refs)
	}
	if shards == 0 {
		shards = 1
	}

	sets := make([]*filterSet, len(refs))
	results := make([]RefResult, len(refs))

	var group errgroup.Group
	group.SetLimit(shards)
	for i := range refs {
		i, ref := i, refs[i]
		group.Go(func() error {
			set := newFilterSet(c.config.FalsePositiveRate, expected)
			walkErr := c.walkLive(ctx, ref, cutoff, set)
			sets[i] = set
			results[i] = RefResult{Ref: ref.ref, Head: ref.head, Dead: ref.dead, Err: walkErr}
			if walkErr != nil {
				c.log.Warn("live-set walk failed",
					zap.String("reference", ref.Key()),
					zap.Error(walkErr))
			}
			return nil
		})
	}
	_ = group.Wait()

	liveSet := &LiveSet{
		Filters: make(map[tessera.ContentID]*bloomfilter.Filter),
		Results: results,
	}
	for _, set := range sets {
		if set == nil {
			continue
		}
		for id, filter := range set.filters {
			merged, ok := liveSet.Filters[id]
			if !ok {
				liveSet.Filters[id] = filter
				continue
			}
			if err := merged.Merge(filter); err != nil {
				return nil, Error.Wrap(err)
			}
		}
	}

	for id, filter := range liveSet.Filters {
		if observed := filter.ObservedFalsePositiveRate(); observed > c.config.FalsePositiveRate {
			c.log.Warn("bloom filter degraded",
				zap.String("content id", string(id)),
				zap.Float64("observed fpp", observed),
				zap.Float64("target fpp", c.config.FalsePositiveRate))
		}
	}
	return liveSet, nil
}

// walkLive walks one reference from its head. Commits at or after the
// cutoff contribute every put; at the first expired commit the live key
// set is captured, and the expired region contributes only the current
// value of each still-unresolved live key.
func (c *Collector) walkLive(ctx context.Context, ref reference, cutoff int64, set *filterSet) (err error) {
	it, err := c.catalog.CommitLog(ctx, ref.head)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, it.Close()) }()

	var liveKeys map[string]bool
	inExpired := false

	var entry tessera.CommitLogEntry
	for it.Next(ctx, &entry) {
		createdTime := entry.CreatedTime
		if ref.dead && ref.droppedAt < createdTime {
			// the drop time caps the lifetime of a dead reference
			createdTime = ref.droppedAt
		}

		if !inExpired && createdTime >= cutoff {
			for i := range entry.Puts {
				set.add(entry.Puts[i].ID, entry.Puts[i].Value)
			}
			continue
		}

		if !inExpired {
			// the cutoff commit: everything live here stays reachable for
			// time travel up to the cutoff
			inExpired = true
			liveKeys, err = c.liveKeysAt(ctx, entry.Hash)
			if err != nil {
				return err
			}
		}

		for i := range entry.Puts {
			put := &entry.Puts[i]
			name := put.Key.String()
			if liveKeys[name] {
				delete(liveKeys, name)
				set.add(put.ID, put.Value)
			}
		}
		if len(liveKeys) == 0 {
			break
		}
	}
	return it.Err()
}

// liveKeysAt returns the names of all keys live at the commit.
func (c *Collector) liveKeysAt(ctx context.Context, commit tessera.Hash) (_ map[string]bool, err error) {
	it, err := c.catalog.Keys(ctx, commit, nil)
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, it.Close()) }()

	live := make(map[string]bool)
	var item tessera.KeyWithType
	for it.Next(ctx, &item) {
		live[item.Key.String()] = true
	}
	return live, it.Err()
}
