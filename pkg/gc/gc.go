// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

// Package gc identifies expired content in a catalog repository. A first
// pass walks every live and dead reference and collects the fingerprints
// of all content that must be retained into per-content-id bloom filters;
// a second pass re-walks the references and reports every content value
// the filters do not cover.
package gc

import (
	"context"
	"fmt"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/tessera-io/tessera/pkg/catalog"
	"github.com/tessera-io/tessera/pkg/tessera"
)

var (
	mon = monkit.Package()

	// Error is the class for gc errors.
	Error = errs.Class("gc")
)

// Config contains configurable values for garbage collection.
type Config struct {
	// CutoffTime separates live commits from expired ones.
	CutoffTime time.Time
	// DefaultBranch sizes the bloom filters when ExpectedEntries is not
	// set.
	DefaultBranch string
	// FalsePositiveRate is the target false positive probability of the
	// bloom filters.
	FalsePositiveRate float64
	// ExpectedEntries overrides the expected element count per filter;
	// zero means the total number of commits on the default branch.
	ExpectedEntries int64
	// Shards bounds the number of references walked concurrently; zero
	// means one shard per reference.
	Shards int
}

// DefaultConfig returns the default gc configuration for the given
// cutoff.
func DefaultConfig(cutoff time.Time, defaultBranch string) Config {
	return Config{
		CutoffTime:        cutoff,
		DefaultBranch:     defaultBranch,
		FalsePositiveRate: 0.01,
	}
}

// Catalog is the subset of the catalog adapter the collector consumes.
type Catalog interface {
	NamedRef(ctx context.Context, name string, params tessera.RefInfoParams) (tessera.ReferenceInfo, error)
	NamedRefs(ctx context.Context, params tessera.RefInfoParams) (*catalog.RefIterator, error)
	RefLog(ctx context.Context, offset tessera.Hash) (*catalog.RefLogIterator, error)
	CommitLog(ctx context.Context, offset tessera.Hash) (*catalog.CommitIterator, error)
	Keys(ctx context.Context, commit tessera.Hash, filter tessera.KeyFilter) (*catalog.KeyIterator, error)
}

// Collector runs the two-pass expired-content identification.
type Collector struct {
	log     *zap.Logger
	catalog Catalog
	config  Config
}

// NewCollector creates a new collector.
func NewCollector(log *zap.Logger, cat Catalog, config Config) *Collector {
	return &Collector{
		log:     log,
		catalog: cat,
		config:  config,
	}
}

// reference is one unit of per-reference work: a live named reference,
// or a reference dropped through a delete or reassign.
type reference struct {
	ref  tessera.NamedRef
	head tessera.Hash
	// dead references carry the time they were dropped.
	dead      bool
	droppedAt int64
}

// Key renders the reference walk's identity for result maps.
func (ref reference) Key() string {
	return fmt.Sprintf("%s@%s", ref.ref.Name, ref.head)
}

// RefResult carries the per-reference outcome of a walk.
type RefResult struct {
	Ref  tessera.NamedRef
	Head tessera.Hash
	Dead bool
	Err  error
}

// collectReferences enumerates all live references plus every reference
// dropped by a DELETE_REFERENCE or ASSIGN_REFERENCE entry in the ref log.
func (c *Collector) collectReferences(ctx context.Context) (_ []reference, err error) {
	defer mon.Task()(&ctx)(&err)

	var refs []reference

	it, err := c.catalog.NamedRefs(ctx, tessera.RefInfoParams{})
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, it.Close()) }()

	var info tessera.ReferenceInfo
	for it.Next(ctx, &info) {
		refs = append(refs, reference{ref: info.Ref, head: info.Head})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	logIt, err := c.catalog.RefLog(ctx, tessera.Hash{})
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, logIt.Close()) }()

	var entry tessera.RefLogEntry
	for logIt.Next(ctx, &entry) {
		var dropped tessera.Hash
		switch entry.Operation {
		case tessera.RefLogOpDelete:
			dropped = entry.CommitHash
		case tessera.RefLogOpAssign:
			if len(entry.SourceHashes) == 0 {
				continue
			}
			dropped = entry.SourceHashes[0]
		default:
			continue
		}
		if dropped.IsNoAncestor() {
			continue
		}
		refs = append(refs, reference{
			ref:       tessera.NamedRef{Name: entry.RefName, Type: entry.RefType},
			head:      dropped,
			dead:      true,
			droppedAt: entry.OperationTime,
		})
	}
	if err := logIt.Err(); err != nil {
		return nil, err
	}

	return refs, nil
}

// expectedEntries resolves the bloom filter sizing: the configured value,
// or the total number of commits on the default branch.
func (c *Collector) expectedEntries(ctx context.Context) (int64, error) {
	if c.config.ExpectedEntries > 0 {
		return c.config.ExpectedEntries, nil
	}
	info, err := c.catalog.NamedRef(ctx, c.config.DefaultBranch, tessera.RefInfoParams{IncludeNumTotalCommits: true})
	if err != nil {
		return 0, err
	}
	if info.NumTotalCommits <= 0 {
		return 1, nil
	}
	return int64(info.NumTotalCommits), nil
}

// IdentifyExpiredContents runs both passes and returns the expired
// contents per reference and content id.
func (c *Collector) IdentifyExpiredContents(ctx context.Context) (_ *IdentifiedResult, err error) {
	defer mon.Task()(&ctx)(&err)

	refs, err := c.collectReferences(ctx)
	if err != nil {
		return nil, err
	}
	liveSet, err := c.buildLiveSet(ctx, refs)
	if err != nil {
		return nil, err
	}
	return c.identify(ctx, liveSet, refs)
}
