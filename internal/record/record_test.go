// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTripSingleRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	rw, err := w.Next()
	require.NoError(t, err)
	_, err = rw.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	got, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))

	_, err = r.Next()
	require.Equal(t, io.EOF, err)
}

func TestWriterReaderRoundTripMultipleRecords(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	records := []string{"a", "bb", "ccc", strings.Repeat("d", 100)}
	for _, s := range records {
		rw, err := w.Next()
		require.NoError(t, err)
		_, err = rw.Write([]byte(s))
		require.NoError(t, err)
		require.NoError(t, w.Flush())
	}

	r := NewReader(&buf)
	for _, want := range records {
		got, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
	_, err := r.Next()
	require.Equal(t, io.EOF, err)
}

func TestWriterReaderRecordSpanningMultipleBlocks(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	big := strings.Repeat("x", blockSize*2+100)
	rw, err := w.Next()
	require.NoError(t, err)
	_, err = rw.Write([]byte(big))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	got, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, big, string(got))
}

func TestLogWriterWriteRecordAndSync(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLogWriter(&buf)
	n, err := lw.WriteRecord([]byte("payload"))
	require.NoError(t, err)
	require.EqualValues(t, 7, n)
	require.NoError(t, lw.Sync())
	require.NoError(t, lw.Close())

	r := NewReader(&buf)
	got, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestReaderRejectsChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	rw, err := w.Next()
	require.NoError(t, err)
	_, err = rw.Write([]byte("corrupt me"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	corrupted := buf.Bytes()
	corrupted[0] ^= 0xff

	r := NewReader(bytes.NewReader(corrupted))
	_, err = r.Next()
	require.Error(t, err)
}

func TestReaderEmptyInputReturnsEOF(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.Next()
	require.Equal(t, io.EOF, err)
}

func TestMaskCRCRoundTrip(t *testing.T) {
	crc := crc32CastagnoliWith(fullChunkType, []byte("some payload"))
	require.Equal(t, crc, unmaskCRC(maskCRC(crc)))
}
