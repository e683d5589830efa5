// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package tessera

// RefType distinguishes branches from tags.
type RefType uint8

const (
	// RefTypeBranch is a mutable reference that advances through commits.
	RefTypeBranch RefType = 1
	// RefTypeTag is a reference intended to stay fixed, reassignable only
	// through an explicit assign operation.
	RefTypeTag RefType = 2
)

// String returns the reference type name.
func (t RefType) String() string {
	switch t {
	case RefTypeBranch:
		return "branch"
	case RefTypeTag:
		return "tag"
	default:
		return "unknown"
	}
}

// NamedRef is a named reference: a branch or a tag.
type NamedRef struct {
	Name string
	Type RefType
}

// BranchName returns a branch reference.
func BranchName(name string) NamedRef {
	return NamedRef{Name: name, Type: RefTypeBranch}
}

// TagName returns a tag reference.
func TagName(name string) NamedRef {
	return NamedRef{Name: name, Type: RefTypeTag}
}

// String renders the reference as "type name".
func (ref NamedRef) String() string { return ref.Type.String() + " " + ref.Name }

// ReferenceInfo is a named reference with its current HEAD and any
// optional details requested through RefInfoParams.
type ReferenceInfo struct {
	Ref  NamedRef
	Head Hash

	// CommitMeta is the metadata of the HEAD commit, when requested.
	CommitMeta []byte
	// NumCommitsAhead is the number of commits between the common ancestor
	// and HEAD, when a base reference was requested.
	NumCommitsAhead int
	// NumTotalCommits is the length of the commit log behind HEAD, when
	// requested.
	NumTotalCommits int
	// CommonAncestor is the common ancestor with the requested base
	// reference, when requested.
	CommonAncestor Hash
}

// RefInfoParams controls which optional fields NamedRef and NamedRefs
// compute. Implementations walk the log only as far as the requested
// fields require.
type RefInfoParams struct {
	IncludeCommitMeta      bool
	IncludeNumCommitsAhead bool
	IncludeNumTotalCommits bool
	// RetrieveCommonAncestor names the reference to compute the common
	// ancestor with; empty disables the computation.
	RetrieveCommonAncestor string
}
