// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrump/ldb/internal/base"
)

// fakeTableNewIter opens a memTable-backed iterator for each fileMetadata,
// keyed by fileNum, letting levelIter be exercised without real sstables.
func fakeTableNewIter(contents map[uint64]*memTable) tableNewIter {
	return func(f *fileMetadata) (internalIterator, error) {
		m, ok := contents[f.fileNum]
		if !ok {
			return nil, base.NotFoundErrorf("ldb: no fake table for file %d", f.fileNum)
		}
		return m.NewIter(nil), nil
	}
}

func levelFiles(t *testing.T, ranges ...[2]string) ([]fileMetadata, map[uint64]*memTable) {
	t.Helper()
	files := make([]fileMetadata, len(ranges))
	contents := make(map[uint64]*memTable)
	for i, r := range ranges {
		fileNum := uint64(i + 1)
		files[i] = fileMetadata{
			fileNum:  fileNum,
			smallest: ikey(r[0]),
			largest:  ikey(r[1]),
		}
		contents[fileNum] = memTableWith(t, uint64(i*10+1), r[0], "v"+r[0], r[1], "v"+r[1])
	}
	return files, contents
}

func TestLevelIterForwardAcrossFiles(t *testing.T) {
	files, contents := levelFiles(t, [2]string{"a", "b"}, [2]string{"c", "d"})
	li := newLevelIter(base.DefaultCompare, fakeTableNewIter(contents), files)

	li.First()
	var keys []string
	for li.Valid() {
		keys = append(keys, string(li.Key().UserKey))
		li.Next()
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, keys)
}

func TestLevelIterSeekGEJumpsToFile(t *testing.T) {
	files, contents := levelFiles(t, [2]string{"a", "b"}, [2]string{"c", "d"}, [2]string{"e", "f"})
	li := newLevelIter(base.DefaultCompare, fakeTableNewIter(contents), files)

	li.SeekGE([]byte("cc"))
	require.True(t, li.Valid())
	require.Equal(t, "d", string(li.Key().UserKey))
}

func TestLevelIterLastAndPrevAcrossFiles(t *testing.T) {
	files, contents := levelFiles(t, [2]string{"a", "b"}, [2]string{"c", "d"})
	li := newLevelIter(base.DefaultCompare, fakeTableNewIter(contents), files)

	li.Last()
	var keys []string
	for li.Valid() {
		keys = append(keys, string(li.Key().UserKey))
		li.Prev()
	}
	require.Equal(t, []string{"d", "c", "b", "a"}, keys)
}

func TestLevelIterEmptyFileListIsInvalid(t *testing.T) {
	li := newLevelIter(base.DefaultCompare, fakeTableNewIter(nil), nil)
	li.First()
	require.False(t, li.Valid())
}
