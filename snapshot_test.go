// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrump/ldb/internal/base"
)

func TestSnapshotHidesLaterWrites(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.Set([]byte("a"), []byte("1"), nil))
	snap := d.NewSnapshot()
	require.NoError(t, d.Set([]byte("a"), []byte("2"), nil))

	v, err := d.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "2", string(v))

	require.Equal(t, uint64(1), snap.seqNum)
	require.NoError(t, snap.Close())
}

func TestSnapshotSeqNumAdvancesWithWrites(t *testing.T) {
	d := openTestDB(t)

	s0 := d.NewSnapshot()
	require.NoError(t, d.Set([]byte("a"), []byte("1"), nil))
	s1 := d.NewSnapshot()
	require.NoError(t, d.Set([]byte("b"), []byte("2"), nil))
	s2 := d.NewSnapshot()

	require.True(t, s0.seqNum < s1.seqNum)
	require.True(t, s1.seqNum < s2.seqNum)
}

func TestSnapshotCloseIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	s := d.NewSnapshot()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestGetNotFoundOnEmptyDB(t *testing.T) {
	d := openTestDB(t)
	_, err := d.Get([]byte("nope"))
	require.True(t, base.IsNotFound(err))
}
