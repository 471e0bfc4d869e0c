// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package record implements the write-ahead-log framing described in §4.F:
// records are split into fragments that fit within successive 32 KiB
// physical blocks, each fragment carrying its own masked CRC-32C. The same
// framing doubles as the manifest's on-disk format (§4.G): a VersionEdit is
// just another record.
package record

import (
	"encoding/binary"
	"io"

	"github.com/mkrump/ldb/internal/base"
)

const (
	blockSize  = 32 * 1024
	headerSize = 7 // crc(4) + length(2) + type(1)

	fullChunkType   = 1
	firstChunkType  = 2
	middleChunkType = 3
	lastChunkType   = 4
)

// maskDelta is the constant added (mod 2^32) to a CRC before storing it, so
// that a CRC of a CRC does not trivially match the identity transform (§3).
const maskDelta = 0xa282ead8

func maskCRC(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

func unmaskCRC(masked uint32) uint32 {
	rot := masked - maskDelta
	return (rot << 15) | (rot >> 17)
}

// Writer appends length-framed, CRC-protected records to an underlying
// io.Writer, used directly for the manifest and wrapped by LogWriter for the
// WAL.
type Writer struct {
	w       io.Writer
	buf     [blockSize]byte
	used    int // bytes already written into the current physical block
	pending []byte
	err     error
}

// NewWriter returns a Writer appending to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

type singleWriter struct{ w *Writer }

func (s singleWriter) Write(p []byte) (int, error) {
	s.w.pending = append(s.w.pending, p...)
	return len(p), nil
}

// Next returns an io.Writer for the next record's payload. The caller must
// call Flush once it has finished writing the payload, before calling Next
// again.
func (w *Writer) Next() (io.Writer, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.pending = w.pending[:0]
	return singleWriter{w}, nil
}

// Flush fragments and emits the record accumulated since the last Next.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.emit(w.pending)
	return w.err
}

func (w *Writer) emit(data []byte) error {
	first := true
	for {
		leftover := blockSize - w.used
		if leftover < headerSize {
			// Not enough room for even a header; zero-pad and roll to a new
			// block.
			if leftover > 0 {
				for i := 0; i < leftover; i++ {
					w.buf[w.used+i] = 0
				}
				if _, err := w.w.Write(w.buf[w.used : w.used+leftover]); err != nil {
					return err
				}
			}
			w.used = 0
			leftover = blockSize
		}

		avail := leftover - headerSize
		n := len(data)
		last := true
		if n > avail {
			n = avail
			last = false
		}

		var typ byte
		switch {
		case first && last:
			typ = fullChunkType
		case first && !last:
			typ = firstChunkType
		case !first && last:
			typ = lastChunkType
		default:
			typ = middleChunkType
		}

		if err := w.writeFragment(typ, data[:n]); err != nil {
			return err
		}
		data = data[n:]
		first = false
		if last {
			return nil
		}
	}
}

func (w *Writer) writeFragment(typ byte, payload []byte) error {
	var header [headerSize]byte
	crc := crc32CastagnoliWith(typ, payload)
	binary.LittleEndian.PutUint32(header[0:4], maskCRC(crc))
	binary.LittleEndian.PutUint16(header[4:6], uint16(len(payload)))
	header[6] = typ
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.w.Write(payload); err != nil {
			return err
		}
	}
	w.used += headerSize + len(payload)
	return nil
}

// syncer is implemented by writers that support durability, e.g. *os.File.
type syncer interface {
	Sync() error
}

// LogWriter wraps Writer with the whole-record and Sync conveniences the
// write coordinator needs (§4.I): WriteRecord appends one atomic record (a
// serialised Batch) and Sync flushes it to stable storage.
type LogWriter struct {
	*Writer
	f io.Writer
}

// NewLogWriter returns a LogWriter appending to w.
func NewLogWriter(w io.Writer) *LogWriter {
	return &LogWriter{Writer: NewWriter(w), f: w}
}

// WriteRecord appends data as a single record and returns the number of
// bytes written.
func (w *LogWriter) WriteRecord(data []byte) (int64, error) {
	rw, err := w.Next()
	if err != nil {
		return 0, err
	}
	if _, err := rw.Write(data); err != nil {
		return 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// Sync flushes any OS-level write buffers. It is a no-op if the underlying
// writer does not support syncing.
func (w *LogWriter) Sync() error {
	if s, ok := w.f.(syncer); ok {
		return s.Sync()
	}
	return nil
}

// Close closes the underlying writer if it is an io.Closer.
func (w *LogWriter) Close() error {
	if c, ok := w.f.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Reader reads records written by Writer, reassembling fragments (§4.F). It
// tolerates a truncated trailing record at end of file (reports io.EOF) but
// reports mid-stream corruption.
type Reader struct {
	r        io.Reader
	buf      [blockSize]byte
	pos, end int
	last     bool // true once a short read has been observed
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) fill() error {
	n, err := io.ReadFull(r.r, r.buf[:])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return base.IOErrorf("record: reading block: %w", err)
	}
	r.pos, r.end = 0, n
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		r.last = true
	}
	return nil
}

// Next returns the next record as a byte slice valid until the following
// call to Next.
func (r *Reader) Next() ([]byte, error) {
	var record []byte
	inFragment := false
	for {
		if r.end-r.pos < headerSize {
			if r.last {
				if r.end != r.pos {
					// Trailing partial header: treat as a benign truncated
					// tail, not mid-file corruption.
					return nil, io.EOF
				}
				return nil, io.EOF
			}
			if err := r.fill(); err != nil {
				return nil, err
			}
			if r.end-r.pos < headerSize {
				if r.end == r.pos {
					return nil, io.EOF
				}
				return nil, io.EOF
			}
		}

		header := r.buf[r.pos : r.pos+headerSize]
		crc := unmaskCRC(binary.LittleEndian.Uint32(header[0:4]))
		length := int(binary.LittleEndian.Uint16(header[4:6]))
		typ := header[6]
		r.pos += headerSize

		if r.end-r.pos < length {
			if r.last {
				return nil, io.EOF
			}
			return nil, base.CorruptionErrorf("record: fragment length %d exceeds block", length)
		}
		payload := r.buf[r.pos : r.pos+length]
		r.pos += length

		gotCRC := crc32CastagnoliWith(typ, payload)
		if gotCRC != crc {
			if inFragment {
				return nil, base.CorruptionErrorf("record: checksum mismatch mid-record")
			}
			return nil, base.CorruptionErrorf("record: checksum mismatch")
		}

		switch typ {
		case fullChunkType:
			return payload, nil
		case firstChunkType:
			record = append(record[:0], payload...)
			inFragment = true
		case middleChunkType:
			if !inFragment {
				return nil, base.CorruptionErrorf("record: missing first fragment")
			}
			record = append(record, payload...)
		case lastChunkType:
			if !inFragment {
				return nil, base.CorruptionErrorf("record: missing first fragment")
			}
			record = append(record, payload...)
			return record, nil
		default:
			return nil, base.CorruptionErrorf("record: invalid chunk type %d", typ)
		}
	}
}
