// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorMarking(t *testing.T) {
	err := CorruptionErrorf("bad block at offset %d", 17)
	require.True(t, errors.Is(err, ErrCorruption))
	require.False(t, errors.Is(err, ErrIO))
	require.Contains(t, err.Error(), "bad block at offset 17")

	require.True(t, IsCorruption(err))
	require.True(t, IsNotFound(NotFoundErrorf("no such key")))
	require.False(t, IsNotFound(err))
}

func TestMarkCorruptionPreservesChain(t *testing.T) {
	require.Nil(t, MarkCorruption(nil))

	base := errors.New("disk read failed")
	marked := MarkCorruption(base)
	require.True(t, errors.Is(marked, ErrCorruption))
	require.True(t, errors.Is(marked, base))
}
