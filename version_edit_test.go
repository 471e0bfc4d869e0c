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

func TestVersionEditEncodeDecodeRoundTrip(t *testing.T) {
	ve := versionEdit{
		comparatorName: "leveldb.BytewiseComparator",
		logNumber:      3,
		nextFileNumber: 4,
		lastSequence:   100,
		newFiles: []newFileEntry{
			{level: 0, meta: fileMetadata{fileNum: 7, size: 1234, smallest: ikey("a"), largest: ikey("m")}},
		},
		deletedFiles: []deletedFileEntry{{level: 1, fileNum: 5}},
	}
	ve.compactPointers = append(ve.compactPointers, struct {
		level int
		key   []byte
	}{level: 0, key: []byte("n")})

	var buf bytes.Buffer
	require.NoError(t, ve.encode(&buf))

	var got versionEdit
	require.NoError(t, got.decode(&buf))
	require.Equal(t, ve.comparatorName, got.comparatorName)
	require.Equal(t, ve.logNumber, got.logNumber)
	require.Equal(t, ve.nextFileNumber, got.nextFileNumber)
	require.Equal(t, ve.lastSequence, got.lastSequence)
	require.Len(t, got.newFiles, 1)
	require.Equal(t, uint64(7), got.newFiles[0].meta.fileNum)
	require.Len(t, got.deletedFiles, 1)
	require.Len(t, got.compactPointers, 1)
	require.Equal(t, []byte("n"), got.compactPointers[0].key)
}

func TestBulkVersionEditApplyAddsAndDeletes(t *testing.T) {
	curr := &version{}
	curr.files[0] = []fileMetadata{{fileNum: 1, smallest: ikey("a"), largest: ikey("b")}}

	var bve bulkVersionEdit
	bve.accumulate(&versionEdit{
		newFiles:     []newFileEntry{{level: 0, meta: fileMetadata{fileNum: 2, smallest: ikey("c"), largest: ikey("d")}}},
		deletedFiles: []deletedFileEntry{{level: 0, fileNum: 1}},
	})

	out, err := bve.apply(curr, base.DefaultCompare, testOptions())
	require.NoError(t, err)
	require.Len(t, out.files[0], 1)
	require.Equal(t, uint64(2), out.files[0][0].fileNum)
}

func TestBulkVersionEditApplyRejectsOverlappingLevel(t *testing.T) {
	var bve bulkVersionEdit
	bve.accumulate(&versionEdit{
		newFiles: []newFileEntry{
			{level: 1, meta: fileMetadata{fileNum: 1, smallest: ikey("a"), largest: ikey("m")}},
			{level: 1, meta: fileMetadata{fileNum: 2, smallest: ikey("h"), largest: ikey("z")}},
		},
	})
	_, err := bve.apply(nil, base.DefaultCompare, testOptions())
	require.Error(t, err)
}

func TestBulkVersionEditCarriesCompactPointerForward(t *testing.T) {
	curr := &version{}
	curr.compactPointer[2] = []byte("existing")

	var bve bulkVersionEdit
	out, err := bve.apply(curr, base.DefaultCompare, testOptions())
	require.NoError(t, err)
	require.Equal(t, []byte("existing"), out.compactPointer[2])

	bve2 := bulkVersionEdit{}
	bve2.accumulate(&versionEdit{compactPointers: []struct {
		level int
		key   []byte
	}{{level: 2, key: []byte("advanced")}}})
	out2, err := bve2.apply(out, base.DefaultCompare, testOptions())
	require.NoError(t, err)
	require.Equal(t, []byte("advanced"), out2.compactPointer[2])
}
