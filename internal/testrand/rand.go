// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

// Package testrand implements random data generation for tests.
package testrand

import (
	"math/rand"

	"github.com/tessera-io/tessera/pkg/tessera"
)

// Read reads pseudo-random data into data.
func Read(data []byte) {
	const newSourceThreshold = 64
	if len(data) < newSourceThreshold {
		_, _ = rand.Read(data)
		return
	}

	src := rand.NewSource(rand.Int63())
	r := rand.New(src)
	_, _ = r.Read(data)
}

// Bytes generates size amount of random data.
func Bytes(size int) []byte {
	data := make([]byte, size)
	Read(data)
	return data
}

// Hash returns a random hash.
func Hash() tessera.Hash {
	var h tessera.Hash
	Read(h[:])
	return h
}

// Metadata returns random commit metadata bytes.
func Metadata() []byte {
	return Bytes(32)
}
