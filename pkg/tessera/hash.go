// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package tessera

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSize is the length of a commit, global-log or ref-log hash in bytes.
const HashSize = sha256.Size

// Hash is the content address of a persisted record. Hashes are computed
// over the record's canonical serialized form.
type Hash [HashSize]byte

// NoAncestor is the sentinel hash marking the beginning of history. It is
// the hash of the empty byte sequence, so it can never collide with the
// hash of a serialized record.
var NoAncestor = HashOf(nil)

// HashOf returns the hash of the given serialized record.
func HashOf(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// HashFromString parses a hash from its lowercase hex representation.
func HashFromString(s string) (Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, ErrInvalidArgument.New("invalid hash %q: %v", s, err)
	}
	return HashFromBytes(raw)
}

// HashFromBytes converts a raw byte slice to a hash.
func HashFromBytes(data []byte) (Hash, error) {
	if len(data) != HashSize {
		return Hash{}, ErrInvalidArgument.New("invalid hash length %d, expected %d", len(data), HashSize)
	}
	var h Hash
	copy(h[:], data)
	return h, nil
}

// String returns the lowercase hex representation of the hash.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns the raw bytes of the hash.
func (h Hash) Bytes() []byte { return h[:] }

// IsZero returns whether the hash is the all-zero value, which is never a
// valid record address.
func (h Hash) IsZero() bool { return h == Hash{} }

// IsNoAncestor returns whether the hash is the beginning-of-history sentinel.
func (h Hash) IsNoAncestor() bool { return h == NoAncestor }
