// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrump/ldb/internal/arenaskl"
	"github.com/mkrump/ldb/internal/base"
)

func testOptions() *Options {
	return (&Options{WriteBufferSize: 1 << 20}).EnsureDefaults()
}

func TestMemTableApplyAndGet(t *testing.T) {
	m := newMemTable(testOptions())
	require.True(t, m.empty())

	b := newBatch(nil)
	require.NoError(t, b.Set([]byte("a"), []byte("1"), nil))
	require.NoError(t, b.Set([]byte("b"), []byte("2"), nil))
	require.NoError(t, m.prepare(b))
	require.NoError(t, m.apply(b, 1))
	require.False(t, m.empty())

	v, deleted, found := m.get(base.MakeInternalKey([]byte("a"), base.InternalKeySeqNumMax, base.InternalKeyKindMax))
	require.True(t, found)
	require.False(t, deleted)
	require.Equal(t, "1", string(v))

	_, _, found = m.get(base.MakeInternalKey([]byte("missing"), base.InternalKeySeqNumMax, base.InternalKeyKindMax))
	require.False(t, found)
}

func TestMemTableDeleteMarksTombstone(t *testing.T) {
	m := newMemTable(testOptions())
	b := newBatch(nil)
	require.NoError(t, b.Set([]byte("a"), []byte("1"), nil))
	require.NoError(t, m.prepare(b))
	require.NoError(t, m.apply(b, 1))

	b2 := newBatch(nil)
	require.NoError(t, b2.Delete([]byte("a"), nil))
	require.NoError(t, m.prepare(b2))
	require.NoError(t, m.apply(b2, 2))

	_, deleted, found := m.get(base.MakeInternalKey([]byte("a"), base.InternalKeySeqNumMax, base.InternalKeyKindMax))
	require.True(t, found)
	require.True(t, deleted)
}

func TestMemTablePrepareReturnsArenaFullWhenOverBudget(t *testing.T) {
	o := &Options{WriteBufferSize: 64}
	o.EnsureDefaults()
	m := newMemTable(o)

	b := newBatch(nil)
	require.NoError(t, b.Set([]byte("key"), make([]byte, 1024), nil))
	err := m.prepare(b)
	require.ErrorIs(t, err, arenaskl.ErrArenaFull)
}

func TestMemTableRefUnref(t *testing.T) {
	m := newMemTable(testOptions())
	m.ref()
	require.False(t, m.unref())
	require.True(t, m.unref())
	require.True(t, m.readyForFlush())
}

func TestMemTableIterOrdering(t *testing.T) {
	m := newMemTable(testOptions())
	b := newBatch(nil)
	require.NoError(t, b.Set([]byte("c"), []byte("3"), nil))
	require.NoError(t, b.Set([]byte("a"), []byte("1"), nil))
	require.NoError(t, b.Set([]byte("b"), []byte("2"), nil))
	require.NoError(t, m.prepare(b))
	require.NoError(t, m.apply(b, 1))

	it := m.NewIter(nil)
	it.First()
	var keys []string
	for it.Valid() {
		keys = append(keys, string(it.Key().UserKey))
		it.Next()
	}
	require.Equal(t, []string{"a", "b", "c"}, keys)
}
