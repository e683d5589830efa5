// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package bloomfilter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/internal/testrand"
	"github.com/tessera-io/tessera/pkg/bloomfilter"
)

func TestNoFalseNegatives(t *testing.T) {
	filter := bloomfilter.NewOptimal(7, 1000, 0.01)

	var added []bloomfilter.Fingerprint
	for i := 0; i < 1000; i++ {
		fingerprint := bloomfilter.Of(testrand.Bytes(48))
		filter.Add(fingerprint)
		added = append(added, fingerprint)
	}

	for _, fingerprint := range added {
		assert.True(t, filter.Contains(fingerprint))
	}
}

func TestFalsePositiveRateIsBounded(t *testing.T) {
	filter := bloomfilter.NewOptimal(3, 10000, 0.01)

	for i := 0; i < 10000; i++ {
		filter.Add(bloomfilter.Of(testrand.Bytes(32)))
	}

	positives := 0
	const probes = 10000
	for i := 0; i < probes; i++ {
		if filter.Contains(bloomfilter.Of(testrand.Bytes(33))) {
			positives++
		}
	}
	// generous margin over the configured 1%
	assert.Less(t, float64(positives)/probes, 0.05)
	assert.Less(t, filter.ObservedFalsePositiveRate(), 0.05)
}

func TestMerge(t *testing.T) {
	a := bloomfilter.NewOptimal(9, 100, 0.01)
	b := bloomfilter.NewOptimal(9, 100, 0.01)

	fpA := bloomfilter.Of([]byte("in a"))
	fpB := bloomfilter.Of([]byte("in b"))
	a.Add(fpA)
	b.Add(fpB)

	require.NoError(t, a.Merge(b))
	assert.True(t, a.Contains(fpA))
	assert.True(t, a.Contains(fpB))

	// filters with different parameters do not merge
	c := bloomfilter.NewOptimal(10, 100, 0.01)
	assert.Error(t, a.Merge(c))
}

func TestEncodingRoundTrip(t *testing.T) {
	filter := bloomfilter.NewOptimal(5, 100, 0.01)
	fingerprint := bloomfilter.Of([]byte("durable"))
	filter.Add(fingerprint)

	decoded, err := bloomfilter.NewFromBytes(filter.Bytes())
	require.NoError(t, err)
	assert.True(t, decoded.Contains(fingerprint))
	assert.Equal(t, filter.Bytes(), decoded.Bytes())

	_, err = bloomfilter.NewFromBytes([]byte{99, 0, 1, 0})
	assert.Error(t, err)
	_, err = bloomfilter.NewFromBytes(nil)
	assert.Error(t, err)
}
