// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

// Package bloomfilter implements a bloom filter over fixed-length content
// fingerprints, used by garbage collection to track live content values.
package bloomfilter

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/zeebo/errs"
)

// Error is the class for bloom filter errors.
var Error = errs.Class("bloomfilter")

// FingerprintSize is the length of the fingerprints the filter accepts.
const FingerprintSize = sha256.Size

// Fingerprint identifies one content value.
type Fingerprint [FingerprintSize]byte

// Of computes the fingerprint of a content value.
func Of(value []byte) Fingerprint {
	return Fingerprint(sha256.Sum256(value))
}

// Filter is a bloom filter implementation.
type Filter struct {
	seed      byte
	hashCount byte
	table     []byte
}

// New returns a new filter with the given parameters.
func New(seed, hashCount byte, sizeInBytes int) *Filter {
	if hashCount == 0 {
		hashCount = 1
	}
	if sizeInBytes <= 0 {
		sizeInBytes = 1
	}
	return &Filter{
		seed:      seed,
		hashCount: hashCount,
		table:     make([]byte, sizeInBytes),
	}
}

// NewOptimal returns a filter sized for the expected number of elements
// and the given false positive rate. Filters built with the same seed
// and sizing parameters can be merged.
func NewOptimal(seed byte, expectedElements int64, falsePositiveRate float64) *Filter {
	if expectedElements <= 0 {
		expectedElements = 1
	}
	// https://en.wikipedia.org/wiki/Bloom_filter#Optimal_number_of_hash_functions
	bitsPerElement := int(-1.44*math.Log2(falsePositiveRate)) + 1
	hashCount := int(float64(bitsPerElement)*math.Log(2)) + 1
	if hashCount > 32 {
		hashCount = 32
	}
	sizeInBytes := int(int64(bitsPerElement) * expectedElements / 8)

	return New(seed, byte(hashCount), sizeInBytes)
}

// Add adds a fingerprint to the set.
func (filter *Filter) Add(fingerprint Fingerprint) {
	offset, rangeOffset := initialConditions(filter.seed)

	for k := byte(0); k < filter.hashCount; k++ {
		hash, bit := subrange(offset, fingerprint)

		offset += rangeOffset
		if offset >= FingerprintSize {
			offset -= FingerprintSize
		}

		bucket := hash % uint64(len(filter.table))
		filter.table[bucket] |= 1 << (bit % 8)
	}
}

// Contains returns true if the fingerprint may be in the set.
func (filter *Filter) Contains(fingerprint Fingerprint) bool {
	offset, rangeOffset := initialConditions(filter.seed)

	for k := byte(0); k < filter.hashCount; k++ {
		hash, bit := subrange(offset, fingerprint)

		offset += rangeOffset
		if offset >= FingerprintSize {
			offset -= FingerprintSize
		}

		bucket := hash % uint64(len(filter.table))
		if filter.table[bucket]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

// Merge ors the other filter's table into this one. The filters must
// have been created with identical parameters.
func (filter *Filter) Merge(other *Filter) error {
	if other == nil {
		return nil
	}
	if filter.seed != other.seed || filter.hashCount != other.hashCount || len(filter.table) != len(other.table) {
		return Error.New("cannot merge filters with different parameters")
	}
	for i, v := range other.table {
		filter.table[i] |= v
	}
	return nil
}

// FillRate returns the fraction of set bits in the table.
func (filter *Filter) FillRate() float64 {
	total := 0
	for _, b := range filter.table {
		total += bits.OnesCount8(b)
	}
	return float64(total) / float64(len(filter.table)*8)
}

// ObservedFalsePositiveRate estimates the current false positive
// probability from the table's fill rate.
func (filter *Filter) ObservedFalsePositiveRate() float64 {
	return math.Pow(filter.FillRate(), float64(filter.hashCount))
}

// initialConditions returns the starting offset and the offset step for
// a given seed.
func initialConditions(seed byte) (initialOffset, rangeOffset int) {
	initialOffset = int(seed % FingerprintSize)
	rangeOffset = int(seed/FingerprintSize)*2 + 1
	return initialOffset, rangeOffset
}

// subrange interprets a 9 byte window of the fingerprint, wrapping
// around its end, as a 64 bit bucket index and a bit offset.
func subrange(offset int, fingerprint Fingerprint) (uint64, byte) {
	if offset > FingerprintSize-9 {
		var unwrap [9]byte
		n := copy(unwrap[:], fingerprint[offset:])
		copy(unwrap[n:], fingerprint[:])
		return binary.BigEndian.Uint64(unwrap[:]), unwrap[8]
	}
	return binary.BigEndian.Uint64(fingerprint[offset : offset+8]), fingerprint[offset+8]
}
