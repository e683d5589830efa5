// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

// Package testsuite runs a common set of tests against every
// storage.KeyValueStore binding.
package testsuite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/internal/testcontext"
	"github.com/tessera-io/tessera/storage"
)

// RunTests runs the common storage tests against store.
func RunTests(t *testing.T, store storage.KeyValueStore) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, store) })
	t.Run("List", func(t *testing.T) { testList(t, store) })
	t.Run("GetAll", func(t *testing.T) { testGetAll(t, store) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, store) })
}

func testCRUD(t *testing.T, store storage.KeyValueStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key := storage.Key("crud/alpha")
	value := storage.Value("first")

	_, err := store.Get(ctx, key)
	assert.True(t, storage.ErrKeyNotFound.Has(err), "expected key not found, got %v", err)

	require.NoError(t, store.Put(ctx, key, value))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, value, got)

	require.NoError(t, store.Put(ctx, key, storage.Value("second")))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, storage.Value("second"), got)

	require.NoError(t, store.Delete(ctx, key))
	err = store.Delete(ctx, key)
	assert.True(t, storage.ErrKeyNotFound.Has(err), "expected key not found, got %v", err)

	err = store.Put(ctx, nil, value)
	assert.True(t, storage.ErrEmptyKey.Has(err), "expected empty key, got %v", err)
}

func testList(t *testing.T, store storage.KeyValueStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	items := []string{"list/a", "list/b", "list/c", "list/d"}
	for _, item := range items {
		require.NoError(t, store.Put(ctx, storage.Key(item), storage.Value("v")))
	}

	keys, err := store.List(ctx, storage.Key("list/"), 0)
	require.NoError(t, err)
	require.True(t, len(keys) >= len(items))
	assert.Equal(t, items, keys.Strings()[:len(items)])

	keys, err = store.List(ctx, storage.Key("list/b"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"list/b", "list/c"}, keys.Strings())

	for _, item := range items {
		require.NoError(t, store.Delete(ctx, storage.Key(item)))
	}
}

func testGetAll(t *testing.T, store storage.KeyValueStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	require.NoError(t, store.Put(ctx, storage.Key("all/x"), storage.Value("1")))
	require.NoError(t, store.Put(ctx, storage.Key("all/z"), storage.Value("3")))

	values, err := store.GetAll(ctx, storage.Keys{
		storage.Key("all/x"),
		storage.Key("all/y"),
		storage.Key("all/z"),
	})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, storage.Value("1"), values[0])
	assert.Nil(t, values[1])
	assert.Equal(t, storage.Value("3"), values[2])

	require.NoError(t, store.Delete(ctx, storage.Key("all/x")))
	require.NoError(t, store.Delete(ctx, storage.Key("all/z")))
}

func testCompareAndSwap(t *testing.T, store storage.KeyValueStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key := storage.Key("cas/pointer")

	// create requires the key to be absent
	err := store.CompareAndSwap(ctx, key, storage.Value("stale"), storage.Value("new"))
	assert.True(t, storage.ErrKeyNotFound.Has(err), "expected key not found, got %v", err)

	require.NoError(t, store.CompareAndSwap(ctx, key, nil, storage.Value("one")))

	// create again must conflict
	err = store.CompareAndSwap(ctx, key, nil, storage.Value("two"))
	assert.True(t, storage.ErrValueChanged.Has(err), "expected value changed, got %v", err)

	// swap with wrong expectation must conflict
	err = store.CompareAndSwap(ctx, key, storage.Value("stale"), storage.Value("two"))
	assert.True(t, storage.ErrValueChanged.Has(err), "expected value changed, got %v", err)

	require.NoError(t, store.CompareAndSwap(ctx, key, storage.Value("one"), storage.Value("two")))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, storage.Value("two"), got)

	// swap to nil deletes
	require.NoError(t, store.CompareAndSwap(ctx, key, storage.Value("two"), nil))
	_, err = store.Get(ctx, key)
	assert.True(t, storage.ErrKeyNotFound.Has(err), "expected key not found, got %v", err)
}
