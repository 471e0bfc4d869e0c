// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/mkrump/ldb/internal/base"
)

// Tags for the versionEdit disk format (§4.G), following the LevelDB
// MANIFEST record layout: one tag per field, repeated per-file entries for
// additions and deletions.
const (
	tagComparator     = 1
	tagLogNumber      = 2
	tagNextFileNumber = 3
	tagLastSequence   = 4
	tagCompactPointer = 5
	tagDeletedFile    = 6
	tagNewFile        = 7
	tagPrevLogNumber  = 9
)

type deletedFileEntry struct {
	level   int
	fileNum uint64
}

type newFileEntry struct {
	level int
	meta  fileMetadata
}

// versionEdit describes a change to apply atomically to the current version
// (§4.G): new log/file numbers, an updated last sequence number, and the
// set of files added to / removed from each level by a flush or compaction.
type versionEdit struct {
	comparatorName string
	logNumber      uint64
	prevLogNumber  uint64
	nextFileNumber uint64
	lastSequence   uint64

	compactPointers []struct {
		level int
		key   []byte
	}
	deletedFiles []deletedFileEntry
	newFiles     []newFileEntry
}

type byteReader interface {
	io.ByteReader
	io.Reader
}

// decode parses a versionEdit record previously written by encode, from one
// MANIFEST record (§4.G).
func (v *versionEdit) decode(r io.Reader) error {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	for {
		tag, err := binary.ReadUvarint(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch tag {
		case tagComparator:
			s, err := readBytes(br)
			if err != nil {
				return err
			}
			v.comparatorName = string(s)

		case tagLogNumber:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			v.logNumber = n

		case tagPrevLogNumber:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			v.prevLogNumber = n

		case tagNextFileNumber:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			v.nextFileNumber = n

		case tagLastSequence:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			v.lastSequence = n

		case tagCompactPointer:
			level, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			key, err := readBytes(br)
			if err != nil {
				return err
			}
			v.compactPointers = append(v.compactPointers, struct {
				level int
				key   []byte
			}{int(level), key})

		case tagDeletedFile:
			level, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			fileNum, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			v.deletedFiles = append(v.deletedFiles, deletedFileEntry{int(level), fileNum})

		case tagNewFile:
			level, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			fileNum, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			size, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			smallest, err := readBytes(br)
			if err != nil {
				return err
			}
			largest, err := readBytes(br)
			if err != nil {
				return err
			}
			v.newFiles = append(v.newFiles, newFileEntry{
				level: int(level),
				meta: fileMetadata{
					fileNum:  fileNum,
					size:     size,
					smallest: base.DecodeInternalKey(smallest),
					largest:  base.DecodeInternalKey(largest),
				},
			})

		default:
			return base.CorruptionErrorf("ldb: corrupt manifest: unknown tag %d", tag)
		}
	}
}

func readBytes(br byteReader) ([]byte, error) {
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, base.CorruptionErrorf("ldb: corrupt manifest: %w", err)
	}
	return b, nil
}

func writeUvarint(buf *bytes.Buffer, u uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], u)
	buf.Write(tmp[:n])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func writeKey(buf *bytes.Buffer, k base.InternalKey) {
	enc := make([]byte, k.Size())
	k.Encode(enc)
	writeBytes(buf, enc)
}

// encode serializes the edit as one MANIFEST record.
func (v *versionEdit) encode(w io.Writer) error {
	var buf bytes.Buffer

	if v.comparatorName != "" {
		writeUvarint(&buf, tagComparator)
		writeBytes(&buf, []byte(v.comparatorName))
	}
	if v.logNumber != 0 {
		writeUvarint(&buf, tagLogNumber)
		writeUvarint(&buf, v.logNumber)
	}
	if v.prevLogNumber != 0 {
		writeUvarint(&buf, tagPrevLogNumber)
		writeUvarint(&buf, v.prevLogNumber)
	}
	if v.nextFileNumber != 0 {
		writeUvarint(&buf, tagNextFileNumber)
		writeUvarint(&buf, v.nextFileNumber)
	}
	if v.lastSequence != 0 || v.comparatorName != "" {
		writeUvarint(&buf, tagLastSequence)
		writeUvarint(&buf, v.lastSequence)
	}
	for _, cp := range v.compactPointers {
		writeUvarint(&buf, tagCompactPointer)
		writeUvarint(&buf, uint64(cp.level))
		writeBytes(&buf, cp.key)
	}
	for _, df := range v.deletedFiles {
		writeUvarint(&buf, tagDeletedFile)
		writeUvarint(&buf, uint64(df.level))
		writeUvarint(&buf, df.fileNum)
	}
	for _, nf := range v.newFiles {
		writeUvarint(&buf, tagNewFile)
		writeUvarint(&buf, uint64(nf.level))
		writeUvarint(&buf, nf.meta.fileNum)
		writeUvarint(&buf, nf.meta.size)
		writeKey(&buf, nf.meta.smallest)
		writeKey(&buf, nf.meta.largest)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// bulkVersionEdit accumulates a sequence of versionEdits (replayed from a
// MANIFEST, or a single in-flight edit) into one net set of additions and
// deletions per level, then applies that delta to a base version (§4.G).
type bulkVersionEdit struct {
	added          [numLevels][]fileMetadata
	deleted        [numLevels]map[uint64]bool
	compactPointer [numLevels][]byte
}

func (b *bulkVersionEdit) accumulate(ve *versionEdit) {
	for _, cp := range ve.compactPointers {
		b.compactPointer[cp.level] = cp.key
	}
	for _, df := range ve.deletedFiles {
		dmap := b.deleted[df.level]
		if dmap == nil {
			dmap = make(map[uint64]bool)
			b.deleted[df.level] = dmap
		}
		dmap[df.fileNum] = true
	}
	for _, nf := range ve.newFiles {
		b.added[nf.level] = append(b.added[nf.level], nf.meta)
	}
}

// apply produces the version resulting from layering b on top of curr (curr
// may be nil, meaning an empty database).
func (b *bulkVersionEdit) apply(curr *version, cmp base.Compare, opts *Options) (*version, error) {
	out := &version{}
	for level := 0; level < numLevels; level++ {
		if curr != nil {
			out.compactPointer[level] = curr.compactPointer[level]
		}
		if cp := b.compactPointer[level]; cp != nil {
			out.compactPointer[level] = cp
		}
	}
	for level := 0; level < numLevels; level++ {
		dmap := b.deleted[level]
		var cur []fileMetadata
		if curr != nil {
			cur = curr.files[level]
		}
		files := make([]fileMetadata, 0, len(cur)+len(b.added[level]))
		for _, f := range cur {
			if dmap != nil && dmap[f.fileNum] {
				continue
			}
			files = append(files, f)
		}
		for _, f := range b.added[level] {
			if dmap != nil && dmap[f.fileNum] {
				continue
			}
			files = append(files, f)
		}
		if level == 0 {
			sortBySeqNum(files)
		} else {
			sortBySmallest(cmp, files)
			for i := 1; i < len(files); i++ {
				if cmp(files[i-1].largest.UserKey, files[i].smallest.UserKey) >= 0 {
					return nil, base.CorruptionErrorf(
						"ldb: level %d files %d and %d have overlapping ranges", level,
						files[i-1].fileNum, files[i].fileNum)
				}
			}
		}
		out.files[level] = files
	}
	out.computeCompactionScore(opts)
	return out, nil
}

func sortBySeqNum(files []fileMetadata) {
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j].largest.SeqNum() > files[j-1].largest.SeqNum(); j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
}

func sortBySmallest(cmp base.Compare, files []fileMetadata) {
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && cmp(files[j].smallest.UserKey, files[j-1].smallest.UserKey) < 0; j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
}
