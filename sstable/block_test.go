// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrump/ldb/internal/base"
)

func buildBlock(t *testing.T, restartInterval, n int) block {
	t.Helper()
	var w blockWriter
	w.restartInterval = restartInterval
	for i := 0; i < n; i++ {
		k := base.MakeInternalKey([]byte(fmt.Sprintf("k%03d", i)), uint64(i), base.InternalKeyKindSet)
		w.add(k, []byte(fmt.Sprintf("v%d", i)))
	}
	return block(w.finish())
}

func TestBlockIterForwardIteration(t *testing.T) {
	b := buildBlock(t, 3, 20)
	it, err := newBlockIter(base.DefaultCompare, b)
	require.NoError(t, err)

	it.First()
	count := 0
	for it.Valid() {
		require.Equal(t, fmt.Sprintf("k%03d", count), string(it.Key().UserKey))
		count++
		it.Next()
	}
	require.Equal(t, 20, count)
}

func TestBlockIterSeekGE(t *testing.T) {
	b := buildBlock(t, 4, 30)
	it, err := newBlockIter(base.DefaultCompare, b)
	require.NoError(t, err)

	it.SeekGE([]byte("k015"))
	require.True(t, it.Valid())
	require.Equal(t, "k015", string(it.Key().UserKey))
}

func TestBlockIterReverseIteration(t *testing.T) {
	b := buildBlock(t, 2, 10)
	it, err := newBlockIter(base.DefaultCompare, b)
	require.NoError(t, err)

	it.Last()
	require.Equal(t, "k009", string(it.Key().UserKey))

	var keys []string
	for it.Valid() {
		keys = append(keys, string(it.Key().UserKey))
		it.Prev()
	}
	require.Equal(t, 10, len(keys))
	require.Equal(t, "k009", keys[0])
	require.Equal(t, "k000", keys[len(keys)-1])
}

func TestBlockIterEmptyBlock(t *testing.T) {
	var w blockWriter
	w.restartInterval = 16
	b := block(w.finish())
	it, err := newBlockIter(base.DefaultCompare, b)
	require.NoError(t, err)
	it.First()
	require.False(t, it.Valid())
}

func TestBlockIterTruncatedBlockIsCorruption(t *testing.T) {
	_, err := newBlockIter(base.DefaultCompare, block([]byte{1, 2}))
	require.Error(t, err)
}
