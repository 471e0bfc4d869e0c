// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrump/ldb/internal/base"
	"github.com/mkrump/ldb/internal/storage"
	"github.com/mkrump/ldb/sstable"
)

func writeTestTable(t *testing.T, fs storage.Storage, dirname string, fileNum uint64, keys ...string) fileMetadata {
	t.Helper()
	name := dbFilename(dirname, fileTypeTable, fileNum)
	f, err := fs.Create(name)
	require.NoError(t, err)

	w := sstable.NewWriter(f, sstable.WriterOptions{})
	for i, k := range keys {
		require.NoError(t, w.Add(base.MakeInternalKey([]byte(k), uint64(i+1), base.InternalKeyKindSet), []byte("v"+k)))
	}
	require.NoError(t, w.Close())

	return fileMetadata{
		fileNum:  fileNum,
		smallest: base.MakeInternalKey([]byte(keys[0]), uint64(1), base.InternalKeyKindSet),
		largest:  base.MakeInternalKey([]byte(keys[len(keys)-1]), uint64(len(keys)), base.InternalKeyKindSet),
	}
}

func TestTableCacheFindOrOpenAndIter(t *testing.T) {
	fs := storage.NewMem()
	dirname := "db"
	require.NoError(t, fs.MkdirAll(dirname))
	meta := writeTestTable(t, fs, dirname, 7, "a", "b", "c")

	opts := testOptions()
	tc := newTableCache(dirname, fs, opts)
	defer tc.close()

	it, err := tc.newIter(&meta)
	require.NoError(t, err)
	defer it.Close()

	it.First()
	var keys []string
	for it.Valid() {
		keys = append(keys, string(it.Key().UserKey))
		it.Next()
	}
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestTableCacheReusesOpenReader(t *testing.T) {
	fs := storage.NewMem()
	dirname := "db"
	require.NoError(t, fs.MkdirAll(dirname))
	meta := writeTestTable(t, fs, dirname, 1, "x")

	tc := newTableCache(dirname, fs, testOptions())
	defer tc.close()

	r1, err := tc.findOrOpen(meta.fileNum)
	require.NoError(t, err)
	r2, err := tc.findOrOpen(meta.fileNum)
	require.NoError(t, err)
	require.Same(t, r1, r2)
}

func TestTableCacheMissingFileReturnsError(t *testing.T) {
	fs := storage.NewMem()
	dirname := "db"
	require.NoError(t, fs.MkdirAll(dirname))

	tc := newTableCache(dirname, fs, testOptions())
	defer tc.close()

	_, err := tc.findOrOpen(999)
	require.Error(t, err)
}

func TestTableCacheEvictDropsEntry(t *testing.T) {
	fs := storage.NewMem()
	dirname := "db"
	require.NoError(t, fs.MkdirAll(dirname))
	meta := writeTestTable(t, fs, dirname, 3, "k")

	tc := newTableCache(dirname, fs, testOptions())
	defer tc.close()

	_, err := tc.findOrOpen(meta.fileNum)
	require.NoError(t, err)
	tc.evict(meta.fileNum)
	require.Equal(t, 0, tc.cache.Len())
}

func TestTableCacheRespectsMaxOpenFiles(t *testing.T) {
	fs := storage.NewMem()
	dirname := "db"
	require.NoError(t, fs.MkdirAll(dirname))
	m1 := writeTestTable(t, fs, dirname, 1, "a")
	m2 := writeTestTable(t, fs, dirname, 2, "b")

	opts := testOptions()
	opts.MaxOpenFiles = 1
	tc := newTableCache(dirname, fs, opts)
	defer tc.close()

	_, err := tc.findOrOpen(m1.fileNum)
	require.NoError(t, err)
	_, err = tc.findOrOpen(m2.fileNum)
	require.NoError(t, err)
	require.Equal(t, 1, tc.cache.Len())
}
