// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrump/ldb/internal/base"
)

func TestBatchAppendRecordAndIter(t *testing.T) {
	b := newBatch(nil)
	require.NoError(t, b.Set([]byte("a"), []byte("1"), nil))
	require.NoError(t, b.Delete([]byte("b"), nil))
	require.NoError(t, b.Merge([]byte("c"), []byte("2"), nil))
	require.Equal(t, uint32(3), b.count())

	r := b.iter()
	kind, key, value, ok := r.next()
	require.True(t, ok)
	require.Equal(t, base.InternalKeyKindSet, kind)
	require.Equal(t, []byte("a"), key)
	require.Equal(t, []byte("1"), value)

	kind, key, _, ok = r.next()
	require.True(t, ok)
	require.Equal(t, base.InternalKeyKindDelete, kind)
	require.Equal(t, []byte("b"), key)

	kind, key, value, ok = r.next()
	require.True(t, ok)
	require.Equal(t, base.InternalKeyKindMerge, kind)
	require.Equal(t, []byte("c"), key)
	require.Equal(t, []byte("2"), value)

	_, _, _, ok = r.next()
	require.False(t, ok)
}

func TestBatchSeqNumRoundTrip(t *testing.T) {
	b := newBatch(nil)
	b.setSeqNum(42)
	require.Equal(t, uint64(42), b.seqNum())
}

func TestBatchDeleteRangeUnsupported(t *testing.T) {
	b := newBatch(nil)
	err := b.DeleteRange([]byte("a"), []byte("z"), nil)
	require.Error(t, err)
}

func TestDumpBatch(t *testing.T) {
	b := newBatch(nil)
	b.setSeqNum(7)
	require.NoError(t, b.Set([]byte("k1"), []byte("v1"), nil))
	require.NoError(t, b.Delete([]byte("k2"), nil))

	var buf bytes.Buffer
	require.NoError(t, DumpBatch(b.data, &buf))
	out := buf.String()
	require.Contains(t, out, "seq=7 count=2")
	require.Contains(t, out, "SET(k1,2 bytes)")
	require.Contains(t, out, "DEL(k2)")
}

func TestDumpBatchRejectsShortData(t *testing.T) {
	err := DumpBatch([]byte{1, 2, 3}, &bytes.Buffer{})
	require.Error(t, err)
}
