// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternalKeyEncodeDecode(t *testing.T) {
	k := MakeInternalKey([]byte("hello"), 42, InternalKeyKindSet)
	buf := make([]byte, k.Size())
	k.Encode(buf)

	got := DecodeInternalKey(buf)
	require.Equal(t, []byte("hello"), got.UserKey)
	require.Equal(t, uint64(42), got.SeqNum())
	require.Equal(t, InternalKeyKindSet, got.Kind())
}

func TestInternalCompareOrdering(t *testing.T) {
	a := MakeInternalKey([]byte("a"), 10, InternalKeyKindSet)
	b := MakeInternalKey([]byte("b"), 10, InternalKeyKindSet)
	require.Negative(t, InternalCompare(DefaultCompare, a, b))
	require.Positive(t, InternalCompare(DefaultCompare, b, a))

	// Same user key: higher sequence number sorts first.
	newer := MakeInternalKey([]byte("a"), 11, InternalKeyKindSet)
	older := MakeInternalKey([]byte("a"), 10, InternalKeyKindSet)
	require.Negative(t, InternalCompare(DefaultCompare, newer, older))

	// Same user key and sequence number: higher kind sorts first.
	del := MakeInternalKey([]byte("a"), 10, InternalKeyKindDelete)
	set := MakeInternalKey([]byte("a"), 10, InternalKeyKindSet)
	require.Negative(t, InternalCompare(DefaultCompare, set, del))
}

func TestMakeSearchKeyFindsNewest(t *testing.T) {
	search := MakeSearchKey([]byte("a"))
	newer := MakeInternalKey([]byte("a"), 5, InternalKeyKindSet)
	require.Negative(t, InternalCompare(DefaultCompare, search, newer))
}

func TestSeparatorLiesBetweenKeys(t *testing.T) {
	s := Separator(DefaultCompare, nil, []byte("green"), []byte("hello"))
	require.True(t, DefaultCompare(s, []byte("green")) >= 0)
	require.True(t, DefaultCompare(s, []byte("hello")) < 0)
}

func TestSeparatorNoShorteningWhenPrefix(t *testing.T) {
	s := Separator(DefaultCompare, nil, []byte("abc"), []byte("abcdef"))
	require.Equal(t, []byte("abc"), s)
}

func TestSuccessorIsAtLeastKey(t *testing.T) {
	s := Successor(DefaultCompare, nil, []byte("abc"))
	require.True(t, DefaultCompare(s, []byte("abc")) >= 0)
}

func TestSharedPrefixLen(t *testing.T) {
	require.Equal(t, 3, SharedPrefixLen([]byte("abcdef"), []byte("abcxyz")))
	require.Equal(t, 0, SharedPrefixLen([]byte("abc"), []byte("xyz")))
}

func TestInternalKeyValid(t *testing.T) {
	require.True(t, MakeInternalKey(nil, 0, InternalKeyKindSet).Valid())
	require.False(t, InternalKey{Trailer: makeTrailer(0, InternalKeyKindInvalid)}.Valid())
}
