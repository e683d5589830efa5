// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package tessera

import "github.com/zeebo/errs"

var (
	// ErrReferenceNotFound means a named reference does not exist, or a
	// hash is not reachable from the reference it was given with.
	ErrReferenceNotFound = errs.Class("reference not found")

	// ErrReferenceAlreadyExists means a reference with the requested name
	// already exists.
	ErrReferenceAlreadyExists = errs.Class("reference already exists")

	// ErrReferenceConflict means an expected HEAD did not match, conflicting
	// keys were detected during merge or transplant, or the commit retry
	// budget was exhausted.
	ErrReferenceConflict = errs.Class("reference conflict")

	// ErrInvalidArgument means the caller passed malformed input, for
	// example odd-length hex or an empty transplant sequence. It indicates
	// a caller bug and is never retried.
	ErrInvalidArgument = errs.Class("invalid argument")

	// ErrRefLogNotFound means a requested ref-log offset is unreachable.
	ErrRefLogNotFound = errs.Class("ref log not found")

	// ErrStoreUnavailable wraps transient failures of the underlying store.
	ErrStoreUnavailable = errs.Class("store unavailable")
)
