// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package tessera

// CommitLogEntry is one immutable entry of the commit log. Its hash is
// computed over the serialized form of every other field, so identical
// entries deduplicate and re-serialization round-trips byte-equal.
type CommitLogEntry struct {
	// Hash is the entry's own address. Not serialized.
	Hash Hash

	// CreatedTime is microseconds since the Unix epoch.
	CreatedTime int64
	// CommitSeq is one more than the primary parent's sequence; the
	// sentinel ancestor has sequence zero.
	CommitSeq int64
	// Parents holds the primary parent first. Additional entries are
	// secondary ancestors recorded to shortcut lookups; traversal always
	// follows the primary parent.
	Parents []Hash
	// Metadata is opaque commit metadata (author, message, ...).
	Metadata []byte

	Puts    []KeyWithBytes
	Deletes []Key

	// KeyListDistance is the number of commits since the nearest entry
	// with an embedded key list. Zero means this entry embeds one.
	KeyListDistance int32
	// KeyList is the full set of live keys at this commit, present only
	// when KeyListDistance is zero.
	KeyList []KeyWithType
}

// HasKeyList reports whether the entry embeds a materialized key list.
func (entry *CommitLogEntry) HasKeyList() bool { return entry.KeyListDistance == 0 }

// GlobalLogEntry is one immutable entry of the global state log, recording
// replacement values for content ids whose type carries global state.
type GlobalLogEntry struct {
	// ID is the entry's own address. Not serialized.
	ID Hash

	CreatedTime int64
	// Parents holds the previous global-log head first, plus a bounded
	// tail of older heads.
	Parents []Hash
	Puts    []ContentIDAndBytes
}

// RefLogOp enumerates the reference operations recorded in the ref log.
type RefLogOp int32

const (
	RefLogOpCreate     RefLogOp = 1
	RefLogOpCommit     RefLogOp = 2
	RefLogOpDelete     RefLogOp = 3
	RefLogOpAssign     RefLogOp = 4
	RefLogOpMerge      RefLogOp = 5
	RefLogOpTransplant RefLogOp = 6
)

// String returns the operation name as recorded by the original audit
// surface.
func (op RefLogOp) String() string {
	switch op {
	case RefLogOpCreate:
		return "CREATE_REFERENCE"
	case RefLogOpCommit:
		return "COMMIT"
	case RefLogOpDelete:
		return "DELETE_REFERENCE"
	case RefLogOpAssign:
		return "ASSIGN_REFERENCE"
	case RefLogOpMerge:
		return "MERGE"
	case RefLogOpTransplant:
		return "TRANSPLANT"
	default:
		return "UNKNOWN"
	}
}

// RefLogEntry is one immutable entry of the reference audit log.
type RefLogEntry struct {
	// ID is the entry's own address. Not serialized.
	ID Hash

	// Parents holds the previous ref-log head first, plus a bounded tail
	// of older heads.
	Parents []Hash
	RefName string
	RefType RefType
	// CommitHash is the reference's HEAD after the operation, except for
	// DELETE_REFERENCE where it is the dropped HEAD.
	CommitHash    Hash
	Operation     RefLogOp
	OperationTime int64
	// SourceHashes records the operation's inputs: the previous HEAD for
	// ASSIGN_REFERENCE, the source commits for MERGE and TRANSPLANT.
	SourceHashes []Hash
}

// RefPointer is the HEAD of one named reference inside the global pointer.
type RefPointer struct {
	Ref  NamedRef
	Hash Hash
}

// GlobalPointer is the single mutable root record of a repository. Every
// successful write replaces it atomically via compare-and-swap; all other
// records are write-once.
type GlobalPointer struct {
	// GlobalID is the current head of the global state log.
	GlobalID Hash
	// NamedReferences is ordered most-recently-updated first.
	NamedReferences []RefPointer
	// RefLogID is the current head of the ref log.
	RefLogID Hash
	// GlobalParents is a bounded ring of recent global-log heads,
	// including the current one.
	GlobalParents []Hash
	// RefLogParents is a bounded ring of recent ref-log heads, including
	// the current one.
	RefLogParents []Hash
}

// Reference returns the pointer for the named reference, or nil.
func (p *GlobalPointer) Reference(name string) *RefPointer {
	for i := range p.NamedReferences {
		if p.NamedReferences[i].Ref.Name == name {
			return &p.NamedReferences[i]
		}
	}
	return nil
}

// RepoDescription carries the repository format version and free-form
// properties. It is updated through a pure updater function and persisted
// by compare-and-swap on its serialized form.
type RepoDescription struct {
	RepoVersion int32
	Properties  map[string]string
}
