// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrump/ldb/internal/base"
	"github.com/mkrump/ldb/internal/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	opts := &Options{
		CreateIfMissing: true,
		Storage:         storage.NewMem(),
		WriteBufferSize: 1 << 20,
	}
	d, err := Open("test", opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, d.Close()) })
	return d
}

func TestOpenCreatesEmptyDB(t *testing.T) {
	d := openTestDB(t)
	_, err := d.Get([]byte("missing"))
	require.ErrorIs(t, err, base.ErrNotFound)
}

func TestOpenRejectsMissingDBWithoutCreateIfMissing(t *testing.T) {
	_, err := Open("test", &Options{Storage: storage.NewMem()})
	require.True(t, base.IsNotFound(err))
}

func TestOpenRejectsExistingDBWithErrorIfExists(t *testing.T) {
	fs := storage.NewMem()
	d, err := Open("test", &Options{CreateIfMissing: true, Storage: fs})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = Open("test", &Options{CreateIfMissing: true, ErrorIfExists: true, Storage: fs})
	require.Error(t, err)
}

func TestSetGetDelete(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.Set([]byte("a"), []byte("1"), nil))
	v, err := d.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "1", string(v))

	require.NoError(t, d.Set([]byte("a"), []byte("2"), nil))
	v, err = d.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "2", string(v))

	require.NoError(t, d.Delete([]byte("a"), nil))
	_, err = d.Get([]byte("a"))
	require.ErrorIs(t, err, base.ErrNotFound)
}

func TestDeleteRangeReturnsNotSupported(t *testing.T) {
	d := openTestDB(t)
	err := d.DeleteRange([]byte("a"), []byte("z"), nil)
	require.Error(t, err)
}

func TestFlushPersistsToL0(t *testing.T) {
	d := openTestDB(t)
	for i := 0; i < 50; i++ {
		key := []byte{byte('a' + i%26), byte(i)}
		require.NoError(t, d.Set(key, []byte("value"), nil))
	}
	require.NoError(t, d.Flush())

	cur := d.mu.versions.currentVersion()
	require.NotEmpty(t, cur.files[0])

	v, err := d.Get([]byte{byte('a'), byte(3)})
	require.NoError(t, err)
	require.Equal(t, "value", string(v))
}

func TestReopenRecoversFromWAL(t *testing.T) {
	fs := storage.NewMem()
	opts := &Options{CreateIfMissing: true, Storage: fs, WriteBufferSize: 1 << 20}

	d, err := Open("test", opts)
	require.NoError(t, err)
	require.NoError(t, d.Set([]byte("a"), []byte("1"), nil))
	require.NoError(t, d.Set([]byte("b"), []byte("2"), nil))
	require.NoError(t, d.Close())

	d2, err := Open("test", opts)
	require.NoError(t, err)
	defer d2.Close()

	v, err := d2.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "1", string(v))
	v, err = d2.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, "2", string(v))
}

func TestApplyEmptyBatchIsNoOp(t *testing.T) {
	d := openTestDB(t)
	b := d.NewBatch()
	require.NoError(t, d.Apply(b, nil))
}
