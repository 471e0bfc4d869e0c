// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrump/ldb/internal/base"
)

func buildTable(t *testing.T, opts WriterOptions, n int) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, opts)
	for i := 0; i < n; i++ {
		key := base.MakeInternalKey([]byte(fmt.Sprintf("key%04d", i)), uint64(i), base.InternalKeyKindSet)
		require.NoError(t, w.Add(key, []byte(fmt.Sprintf("value%d", i))))
	}
	require.NoError(t, w.Finish())
	return bytes.NewReader(buf.Bytes())
}

func TestWriterReaderRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 5, 500} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			r := buildTable(t, WriterOptions{BlockSize: 256}, n)
			reader, err := NewReader(r, int64(r.Len()), ReaderOptions{VerifyChecksums: true})
			require.NoError(t, err)

			it, err := reader.NewIter()
			require.NoError(t, err)
			count := 0
			for it.First(); it.Valid(); it.Next() {
				want := fmt.Sprintf("key%04d", count)
				require.Equal(t, want, string(it.Key().UserKey))
				require.Equal(t, fmt.Sprintf("value%d", count), string(it.Value()))
				count++
			}
			require.NoError(t, it.Error())
			require.Equal(t, n, count)
			require.NoError(t, it.Close())
		})
	}
}

func TestReaderGet(t *testing.T) {
	r := buildTable(t, WriterOptions{BlockSize: 256}, 100)
	reader, err := NewReader(r, int64(r.Len()), ReaderOptions{VerifyChecksums: true})
	require.NoError(t, err)

	v, err := reader.Get([]byte("key0042"))
	require.NoError(t, err)
	require.Equal(t, "value42", string(v))

	_, err = reader.Get([]byte("missing"))
	require.ErrorIs(t, err, base.ErrNotFound)
}

func TestReaderGetWithBloomFilter(t *testing.T) {
	policy := NewBloomFilterPolicy(10)
	r := buildTable(t, WriterOptions{BlockSize: 256, FilterPolicy: policy}, 200)
	reader, err := NewReader(r, int64(r.Len()), ReaderOptions{FilterPolicy: policy, VerifyChecksums: true})
	require.NoError(t, err)

	v, err := reader.Get([]byte("key0099"))
	require.NoError(t, err)
	require.Equal(t, "value99", string(v))

	_, err = reader.Get([]byte("not-in-the-table"))
	require.ErrorIs(t, err, base.ErrNotFound)
}

func TestWriterWithSnappyCompression(t *testing.T) {
	r := buildTable(t, WriterOptions{BlockSize: 256, Compression: SnappyCompression}, 300)
	reader, err := NewReader(r, int64(r.Len()), ReaderOptions{VerifyChecksums: true})
	require.NoError(t, err)

	v, err := reader.Get([]byte("key0150"))
	require.NoError(t, err)
	require.Equal(t, "value150", string(v))
}

func TestReaderDump(t *testing.T) {
	r := buildTable(t, WriterOptions{BlockSize: 256}, 3)
	reader, err := NewReader(r, int64(r.Len()), ReaderOptions{VerifyChecksums: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, reader.Dump(&buf))
	require.Contains(t, buf.String(), "3 entries")
	require.Contains(t, buf.String(), "SET")
}

func TestReaderSeekLTAndLast(t *testing.T) {
	r := buildTable(t, WriterOptions{BlockSize: 256}, 50)
	reader, err := NewReader(r, int64(r.Len()), ReaderOptions{VerifyChecksums: true})
	require.NoError(t, err)

	it, err := reader.NewIter()
	require.NoError(t, err)
	defer it.Close()

	it.Last()
	require.True(t, it.Valid())
	require.Equal(t, "key0049", string(it.Key().UserKey))

	it.SeekLT([]byte("key0010"))
	require.True(t, it.Valid())
	require.Equal(t, "key0009", string(it.Key().UserKey))
}

func TestFooterRoundTrip(t *testing.T) {
	f := footer{
		metaIndexHandle: blockHandle{offset: 10, length: 20},
		indexHandle:     blockHandle{offset: 40, length: 50},
	}
	enc := f.encode()
	got, err := decodeFooter(enc)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestDecodeFooterRejectsBadMagic(t *testing.T) {
	f := footer{
		metaIndexHandle: blockHandle{offset: 1, length: 2},
		indexHandle:     blockHandle{offset: 3, length: 4},
	}
	enc := f.encode()
	enc[len(enc)-1] ^= 0xff
	_, err := decodeFooter(enc)
	require.Error(t, err)
}
