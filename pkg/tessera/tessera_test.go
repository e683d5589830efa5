// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package tessera_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/pkg/tessera"
)

func TestHashEncoding(t *testing.T) {
	hash := tessera.HashOf([]byte("some record"))

	parsed, err := tessera.HashFromString(hash.String())
	require.NoError(t, err)
	assert.Equal(t, hash, parsed)

	fromBytes, err := tessera.HashFromBytes(hash.Bytes())
	require.NoError(t, err)
	assert.Equal(t, hash, fromBytes)
}

func TestHashInvalidInput(t *testing.T) {
	// odd-length hex
	_, err := tessera.HashFromString("abc")
	assert.True(t, tessera.ErrInvalidArgument.Has(err), "expected invalid argument, got %v", err)

	// not hex at all
	_, err = tessera.HashFromString("zz")
	assert.True(t, tessera.ErrInvalidArgument.Has(err), "expected invalid argument, got %v", err)

	// wrong length
	_, err = tessera.HashFromString("abcd")
	assert.True(t, tessera.ErrInvalidArgument.Has(err), "expected invalid argument, got %v", err)

	_, err = tessera.HashFromBytes([]byte{1, 2, 3})
	assert.True(t, tessera.ErrInvalidArgument.Has(err), "expected invalid argument, got %v", err)
}

func TestNoAncestor(t *testing.T) {
	assert.True(t, tessera.NoAncestor.IsNoAncestor())
	assert.False(t, tessera.NoAncestor.IsZero())
	assert.Equal(t, tessera.HashOf(nil), tessera.NoAncestor)

	other := tessera.HashOf([]byte("x"))
	assert.False(t, other.IsNoAncestor())
}

func TestKeyEquality(t *testing.T) {
	a := tessera.NewKey("db", "table")
	b := tessera.NewKey("db", "table")
	c := tessera.NewKey("db", "table", "col")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, c.Equal(a))
	assert.Equal(t, "db.table", a.String())
	assert.True(t, tessera.NewKey().IsZero())
}
