// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrump/ldb/internal/base"
)

func ikey(s string) base.InternalKey {
	return base.MakeInternalKey([]byte(s), 0, base.InternalKeyKindSet)
}

func TestComputeCompactionScoreL0FileCount(t *testing.T) {
	opts := testOptions()
	v := &version{}
	v.files[0] = []fileMetadata{{}, {}, {}, {}, {}} // 5 files, threshold 4
	v.computeCompactionScore(opts)
	require.Equal(t, 0, v.compactionLevel)
	require.InDelta(t, 1.25, v.compactionScore, 1e-9)
}

func TestComputeCompactionScoreByteBudget(t *testing.T) {
	opts := testOptions()
	v := &version{}
	v.files[1] = []fileMetadata{{size: uint64(levelByteBudget(1))}}
	v.computeCompactionScore(opts)
	require.Equal(t, 1, v.compactionLevel)
	require.InDelta(t, 1.0, v.compactionScore, 1e-9)
}

func TestComputeCompactionScoreNoWorkNeeded(t *testing.T) {
	opts := testOptions()
	v := &version{}
	v.files[0] = []fileMetadata{{}}
	v.computeCompactionScore(opts)
	require.Equal(t, -1, v.compactionLevel)
}

func TestFileMetadataOverlaps(t *testing.T) {
	f := fileMetadata{smallest: ikey("d"), largest: ikey("m")}
	require.True(t, f.overlaps(base.DefaultCompare, []byte("a"), []byte("e")))
	require.True(t, f.overlaps(base.DefaultCompare, nil, nil))
	require.False(t, f.overlaps(base.DefaultCompare, []byte("n"), []byte("z")))
	require.False(t, f.overlaps(base.DefaultCompare, []byte("a"), []byte("b")))
}

func TestVersionOverlapsLevel0(t *testing.T) {
	v := &version{}
	v.files[0] = []fileMetadata{
		{smallest: ikey("a"), largest: ikey("f")},
		{smallest: ikey("e"), largest: ikey("j")},
		{smallest: ikey("z"), largest: ikey("zz")},
	}
	got := v.overlaps(0, base.DefaultCompare, []byte("c"), []byte("g"))
	require.Len(t, got, 2)
}

func TestSearchLevel(t *testing.T) {
	files := []fileMetadata{
		{smallest: ikey("a"), largest: ikey("c")},
		{smallest: ikey("d"), largest: ikey("f")},
		{smallest: ikey("g"), largest: ikey("i")},
	}
	require.Equal(t, 0, searchLevel(base.DefaultCompare, files, []byte("b")))
	require.Equal(t, 1, searchLevel(base.DefaultCompare, files, []byte("e")))
	require.Equal(t, 3, searchLevel(base.DefaultCompare, files, []byte("z")))
}

func TestVersionListPushBack(t *testing.T) {
	var l versionList
	l.init()
	require.True(t, l.empty())

	v1 := &version{}
	l.pushBack(v1)
	require.False(t, l.empty())
	require.Equal(t, v1, l.back())

	v2 := &version{}
	l.pushBack(v2)
	require.Equal(t, v2, l.back())
}
