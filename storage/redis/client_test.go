// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package redis_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/storage/redis"
	"github.com/tessera-io/tessera/storage/testsuite"
)

func TestSuite(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := redis.New(server.Addr(), "", 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close()) }()

	testsuite.RunTests(t, client)
}

func TestNewClientFrom(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := redis.NewClientFrom("redis://" + server.Addr() + "/?db=0")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = redis.NewClientFrom("http://localhost:6379")
	require.Error(t, err)
}
