// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrump/ldb/internal/storage"
)

func TestNewControllerZeroRateIsUnthrottled(t *testing.T) {
	c := newController(0)
	require.Nil(t, c.limiter)
	c.waitN(1 << 20) // must not block
}

func TestNewControllerPositiveRateInstallsLimiter(t *testing.T) {
	c := newController(1024)
	require.NotNil(t, c.limiter)
}

type countingFile struct {
	storage.File
	written int
}

func (f *countingFile) Write(p []byte) (int, error) {
	f.written += len(p)
	return len(p), nil
}

func TestRateLimitedFilePassesThroughUnthrottled(t *testing.T) {
	f := &countingFile{}
	wrapped := newRateLimitedFile(f, newController(0))
	n, err := wrapped.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, 5, f.written)
}

func TestRateLimitedFileWrapsWhenControllerSet(t *testing.T) {
	f := &countingFile{}
	wrapped := newRateLimitedFile(f, newController(1<<20))
	_, ok := wrapped.(*rateLimitedFile)
	require.True(t, ok)

	n, err := wrapped.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
}
