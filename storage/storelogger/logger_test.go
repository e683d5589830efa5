// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package storelogger_test

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tessera-io/tessera/storage/storelogger"
	"github.com/tessera-io/tessera/storage/teststore"
	"github.com/tessera-io/tessera/storage/testsuite"
)

func TestSuite(t *testing.T) {
	store := teststore.New()
	logged := storelogger.New(zaptest.NewLogger(t), store)
	testsuite.RunTests(t, logged)
}
