// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package teststore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/internal/testcontext"
	"github.com/tessera-io/tessera/storage"
	"github.com/tessera-io/tessera/storage/teststore"
	"github.com/tessera-io/tessera/storage/testsuite"
)

func TestSuite(t *testing.T) {
	store := teststore.New()
	testsuite.RunTests(t, store)
}

func TestForceError(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	store.ForceError(1)

	err := store.Put(ctx, storage.Key("k"), storage.Value("v"))
	assert.Equal(t, teststore.ErrForced, err)

	require.NoError(t, store.Put(ctx, storage.Key("k"), storage.Value("v")))
	assert.Equal(t, 2, store.CallCount.Put)
}
