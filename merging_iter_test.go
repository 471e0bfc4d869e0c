// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrump/ldb/internal/base"
)

func memTableWith(t *testing.T, seqNumBase uint64, kvs ...string) *memTable {
	t.Helper()
	require.Equal(t, 0, len(kvs)%2)
	m := newMemTable(testOptions())
	for i := 0; i < len(kvs); i += 2 {
		b := newBatch(nil)
		require.NoError(t, b.Set([]byte(kvs[i]), []byte(kvs[i+1]), nil))
		require.NoError(t, m.prepare(b))
		require.NoError(t, m.apply(b, seqNumBase+uint64(i/2)))
	}
	return m
}

func collectForward(it internalIterator) []string {
	var out []string
	for it.First(); it.Valid(); it.Next() {
		out = append(out, string(it.Key().UserKey))
	}
	return out
}

func TestMergingIterInterleavesSortedOrder(t *testing.T) {
	m1 := memTableWith(t, 10, "a", "1", "c", "3", "e", "5")
	m2 := memTableWith(t, 20, "b", "2", "d", "4")

	mi := newMergingIter(base.DefaultCompare, m1.NewIter(nil), m2.NewIter(nil))
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, collectForward(mi))
}

func TestMergingIterLastAndPrev(t *testing.T) {
	m1 := memTableWith(t, 10, "a", "1", "c", "3")
	m2 := memTableWith(t, 20, "b", "2")

	mi := newMergingIter(base.DefaultCompare, m1.NewIter(nil), m2.NewIter(nil))
	mi.Last()
	var keys []string
	for mi.Valid() {
		keys = append(keys, string(mi.Key().UserKey))
		mi.Prev()
	}
	require.Equal(t, []string{"c", "b", "a"}, keys)
}

func TestMergingIterSeekGE(t *testing.T) {
	m1 := memTableWith(t, 10, "a", "1", "c", "3")
	m2 := memTableWith(t, 20, "b", "2", "d", "4")

	mi := newMergingIter(base.DefaultCompare, m1.NewIter(nil), m2.NewIter(nil))
	mi.SeekGE([]byte("bb"))
	require.True(t, mi.Valid())
	require.Equal(t, "c", string(mi.Key().UserKey))
}

func TestMergingIterEmptyIsInvalid(t *testing.T) {
	m1 := newMemTable(testOptions())
	mi := newMergingIter(base.DefaultCompare, m1.NewIter(nil))
	mi.First()
	require.False(t, mi.Valid())
}

func TestMergingIterChangeOfDirection(t *testing.T) {
	m1 := memTableWith(t, 10, "a", "1", "c", "3")
	m2 := memTableWith(t, 20, "b", "2")
	mi := newMergingIter(base.DefaultCompare, m1.NewIter(nil), m2.NewIter(nil))

	mi.SeekGE([]byte("b"))
	require.Equal(t, "b", string(mi.Key().UserKey))
	mi.Prev()
	require.Equal(t, "a", string(mi.Key().UserKey))
	mi.Next()
	require.Equal(t, "b", string(mi.Key().UserKey))
}
