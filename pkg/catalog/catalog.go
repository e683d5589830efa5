// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

// Package catalog implements the versioned-catalog database adapter: a
// content-addressed commit log with named branches and tags, an append-only
// global state log and reference audit log, all rooted in a single global
// pointer record updated through compare-and-swap.
package catalog

import (
	"context"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/tessera-io/tessera/pkg/tessera"
	"github.com/tessera-io/tessera/pkg/wire"
	"github.com/tessera-io/tessera/storage"
)

var (
	mon = monkit.Package()

	// Error is the class for unexpected catalog errors.
	Error = errs.Class("catalog")
)

// Config contains the configurable values of the adapter.
type Config struct {
	// RepositoryID namespaces all records of this repository inside the
	// shared store.
	RepositoryID string
	// DefaultBranch is the branch created by InitializeRepo.
	DefaultBranch string
	// KeyListDistance is the number of commits between embedded key
	// lists; it bounds the replay cost of key-list rebuilds.
	KeyListDistance int32
	// CommitRetries bounds the compare-and-swap retry loop of every
	// write operation.
	CommitRetries int
	// ParentsPerCommit bounds the number of parents, the primary parent
	// included, recorded per commit entry.
	ParentsPerCommit int
	// GlobalParentsRing bounds the ring of recent global-log heads kept
	// in the global pointer.
	GlobalParentsRing int
	// RefLogParentsRing bounds the ring of recent ref-log heads kept in
	// the global pointer.
	RefLogParentsRing int
}

// DefaultConfig returns the default adapter configuration for the given
// repository id.
func DefaultConfig(repositoryID string) Config {
	return Config{
		RepositoryID:      repositoryID,
		DefaultBranch:     "main",
		KeyListDistance:   20,
		CommitRetries:     5,
		ParentsPerCommit:  20,
		GlobalParentsRing: 20,
		RefLogParentsRing: 20,
	}
}

// Adapter is the catalog database adapter. All methods are safe for
// concurrent use; writes synchronize solely through compare-and-swap on
// the global pointer.
type Adapter struct {
	log    *zap.Logger
	store  storage.KeyValueStore
	config Config
}

// New creates a new adapter on top of store.
func New(log *zap.Logger, store storage.KeyValueStore, config Config) *Adapter {
	return &Adapter{
		log:    log,
		store:  store,
		config: config,
	}
}

// Config returns the adapter's configuration.
func (a *Adapter) Config() Config { return a.config }

// NoAncestor returns the hash marking the beginning of history.
func (a *Adapter) NoAncestor() tessera.Hash { return tessera.NoAncestor }

func (a *Adapter) pointerKey() storage.Key {
	return storage.Key(a.config.RepositoryID + "/p")
}

func (a *Adapter) descriptionKey() storage.Key {
	return storage.Key(a.config.RepositoryID + "/d")
}

func (a *Adapter) commitKey(hash tessera.Hash) storage.Key {
	return storage.Key(a.config.RepositoryID + "/c/" + hash.String())
}

func (a *Adapter) globalKey(hash tessera.Hash) storage.Key {
	return storage.Key(a.config.RepositoryID + "/g/" + hash.String())
}

func (a *Adapter) refLogKey(hash tessera.Hash) storage.Key {
	return storage.Key(a.config.RepositoryID + "/r/" + hash.String())
}

func (a *Adapter) now() int64 { return time.Now().UnixMicro() }

// loadPointer fetches the global pointer together with its raw serialized
// form, which the caller passes back for the compare-and-swap.
func (a *Adapter) loadPointer(ctx context.Context) (*tessera.GlobalPointer, storage.Value, error) {
	raw, err := a.store.Get(ctx, a.pointerKey())
	if err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return nil, nil, tessera.ErrReferenceNotFound.New("repository %q is not initialized", a.config.RepositoryID)
		}
		return nil, nil, tessera.ErrStoreUnavailable.Wrap(err)
	}
	pointer, err := wire.UnmarshalGlobalPointer(raw)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	return pointer, raw, nil
}

func (a *Adapter) fetchCommit(ctx context.Context, hash tessera.Hash) (*tessera.CommitLogEntry, error) {
	raw, err := a.store.Get(ctx, a.commitKey(hash))
	if err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return nil, tessera.ErrReferenceNotFound.New("commit %s not found", hash)
		}
		return nil, tessera.ErrStoreUnavailable.Wrap(err)
	}
	return wire.UnmarshalCommitLogEntry(raw)
}

func (a *Adapter) fetchGlobal(ctx context.Context, hash tessera.Hash) (*tessera.GlobalLogEntry, error) {
	raw, err := a.store.Get(ctx, a.globalKey(hash))
	if err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return nil, tessera.ErrReferenceNotFound.New("global log entry %s not found", hash)
		}
		return nil, tessera.ErrStoreUnavailable.Wrap(err)
	}
	return wire.UnmarshalGlobalLogEntry(raw)
}

func (a *Adapter) fetchRefLog(ctx context.Context, hash tessera.Hash) (*tessera.RefLogEntry, error) {
	raw, err := a.store.Get(ctx, a.refLogKey(hash))
	if err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return nil, tessera.ErrRefLogNotFound.New("ref log entry %s not found", hash)
		}
		return nil, tessera.ErrStoreUnavailable.Wrap(err)
	}
	return wire.UnmarshalRefLogEntry(raw)
}

// write is one record to persist before the pointer swap.
type write struct {
	key  storage.Key
	data []byte
}

// casOp is the outcome of one attempt computation inside casOpLoop.
type casOp struct {
	newPointer *tessera.GlobalPointer
	writes     []write
	// result is handed back to the operation's caller on success.
	result tessera.Hash
}

// casOpLoop implements the optimistic write protocol shared by all
// mutating operations: load the pointer, compute the new state, persist
// the write-once records, then swap the pointer. A lost swap retries with
// a freshly loaded pointer up to the configured attempt budget; all other
// errors are terminal.
func (a *Adapter) casOpLoop(ctx context.Context, opName string, fn func(ctx context.Context, pointer *tessera.GlobalPointer) (*casOp, error)) (tessera.Hash, error) {
	for attempt := 0; attempt < a.config.CommitRetries; attempt++ {
		pointer, raw, err := a.loadPointer(ctx)
		if err != nil {
			return tessera.Hash{}, err
		}

		op, err := fn(ctx, pointer)
		if err != nil {
			return tessera.Hash{}, err
		}

		for _, w := range op.writes {
			if err := a.store.Put(ctx, w.key, w.data); err != nil {
				return tessera.Hash{}, tessera.ErrStoreUnavailable.Wrap(err)
			}
		}

		err = a.store.CompareAndSwap(ctx, a.pointerKey(), raw, wire.MarshalGlobalPointer(op.newPointer))
		if err == nil {
			return op.result, nil
		}
		if !storage.ErrValueChanged.Has(err) {
			return tessera.Hash{}, tessera.ErrStoreUnavailable.Wrap(err)
		}

		a.cleanUpAttempt(ctx, op.writes)
		a.log.Debug("pointer swap lost, retrying",
			zap.String("operation", opName),
			zap.Int("attempt", attempt+1))
	}
	return tessera.Hash{}, tessera.ErrReferenceConflict.New("%s: retry budget of %d attempts exhausted", opName, a.config.CommitRetries)
}

// cleanUpAttempt removes records written by a lost attempt, unless a
// concurrent writer produced byte-identical records that are now
// referenced by the current pointer.
func (a *Adapter) cleanUpAttempt(ctx context.Context, writes []write) {
	pointer, _, err := a.loadPointer(ctx)
	if err != nil {
		return
	}
	referenced := make(map[string]bool)
	referenced[string(a.refLogKey(pointer.RefLogID))] = true
	referenced[string(a.globalKey(pointer.GlobalID))] = true
	for _, ref := range pointer.NamedReferences {
		referenced[string(a.commitKey(ref.Hash))] = true
	}
	for _, w := range writes {
		if referenced[string(w.key)] {
			continue
		}
		if err := a.store.Delete(ctx, w.key); err != nil && !storage.ErrKeyNotFound.Has(err) {
			a.log.Debug("clean up of lost attempt failed", zap.String("key", w.key.String()), zap.Error(err))
		}
	}
}

// rotateRing prepends head to the ring and truncates it to limit entries.
func rotateRing(ring []tessera.Hash, head tessera.Hash, limit int) []tessera.Hash {
	out := make([]tessera.Hash, 0, limit)
	out = append(out, head)
	for _, h := range ring {
		if len(out) >= limit {
			break
		}
		out = append(out, h)
	}
	return out
}

// logParents returns the parent list for a new append-only log entry:
// the current ring with the head first, or the no-ancestor sentinel for
// an empty log.
func logParents(head tessera.Hash, ring []tessera.Hash) []tessera.Hash {
	if head.IsNoAncestor() || head.IsZero() {
		return []tessera.Hash{tessera.NoAncestor}
	}
	if len(ring) > 0 && ring[0] == head {
		return append([]tessera.Hash(nil), ring...)
	}
	return append([]tessera.Hash{head}, ring...)
}

// newRefLogEntry builds and serializes the audit entry for a reference
// operation and updates the pointer's ref-log head and ring.
func (a *Adapter) newRefLogEntry(pointer *tessera.GlobalPointer, ref tessera.NamedRef, commit tessera.Hash, op tessera.RefLogOp, sources []tessera.Hash) write {
	entry := &tessera.RefLogEntry{
		Parents:       logParents(pointer.RefLogID, pointer.RefLogParents),
		RefName:       ref.Name,
		RefType:       ref.Type,
		CommitHash:    commit,
		Operation:     op,
		OperationTime: a.now(),
		SourceHashes:  sources,
	}
	data := wire.MarshalRefLogEntry(entry)
	entry.ID = tessera.HashOf(data)

	pointer.RefLogID = entry.ID
	pointer.RefLogParents = rotateRing(pointer.RefLogParents, entry.ID, a.config.RefLogParentsRing)
	return write{key: a.refLogKey(entry.ID), data: data}
}

// touchReference moves the named reference to the front of the pointer's
// reference list and sets its head.
func touchReference(pointer *tessera.GlobalPointer, ref tessera.NamedRef, head tessera.Hash) {
	refs := pointer.NamedReferences
	for i := range refs {
		if refs[i].Ref.Name == ref.Name {
			copy(refs[1:i+1], refs[:i])
			refs[0] = tessera.RefPointer{Ref: ref, Hash: head}
			return
		}
	}
	pointer.NamedReferences = append([]tessera.RefPointer{{Ref: ref, Hash: head}}, refs...)
}

// clonePointer makes a deep enough copy of the pointer for attempt-local
// mutation.
func clonePointer(pointer *tessera.GlobalPointer) *tessera.GlobalPointer {
	out := &tessera.GlobalPointer{
		GlobalID: pointer.GlobalID,
		RefLogID: pointer.RefLogID,
	}
	out.NamedReferences = append(out.NamedReferences, pointer.NamedReferences...)
	out.GlobalParents = append(out.GlobalParents, pointer.GlobalParents...)
	out.RefLogParents = append(out.RefLogParents, pointer.RefLogParents...)
	return out
}

// InitializeRepo ensures the repository's mandatory data is present. An
// already initialized repository is left unchanged.
func (a *Adapter) InitializeRepo(ctx context.Context, defaultBranch string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if defaultBranch == "" {
		defaultBranch = a.config.DefaultBranch
	}

	_, err = a.store.Get(ctx, a.pointerKey())
	if err == nil {
		return nil
	}
	if !storage.ErrKeyNotFound.Has(err) {
		return tessera.ErrStoreUnavailable.Wrap(err)
	}

	pointer := &tessera.GlobalPointer{
		GlobalID: tessera.NoAncestor,
		NamedReferences: []tessera.RefPointer{
			{Ref: tessera.BranchName(defaultBranch), Hash: tessera.NoAncestor},
		},
	}
	refLogWrite := a.newRefLogEntry(pointer, tessera.BranchName(defaultBranch), tessera.NoAncestor, tessera.RefLogOpCreate, nil)
	if err := a.store.Put(ctx, refLogWrite.key, refLogWrite.data); err != nil {
		return tessera.ErrStoreUnavailable.Wrap(err)
	}

	err = a.store.CompareAndSwap(ctx, a.pointerKey(), nil, wire.MarshalGlobalPointer(pointer))
	if storage.ErrValueChanged.Has(err) {
		// another adapter instance initialized concurrently
		return nil
	}
	if err != nil {
		return tessera.ErrStoreUnavailable.Wrap(err)
	}

	a.log.Info("repository initialized",
		zap.String("repository", a.config.RepositoryID),
		zap.String("default branch", defaultBranch))
	return nil
}

// EraseRepo deletes every record of the configured repository id.
func (a *Adapter) EraseRepo(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	prefix := storage.Key(a.config.RepositoryID + "/")
	keys, err := storage.ListPrefix(ctx, a.store, prefix, 1000)
	if err != nil {
		return tessera.ErrStoreUnavailable.Wrap(err)
	}
	for _, key := range keys {
		if err := a.store.Delete(ctx, key); err != nil && !storage.ErrKeyNotFound.Has(err) {
			return tessera.ErrStoreUnavailable.Wrap(err)
		}
	}

	a.log.Info("repository erased", zap.String("repository", a.config.RepositoryID))
	return nil
}
