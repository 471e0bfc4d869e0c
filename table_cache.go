// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/mkrump/ldb/internal/base"
	"github.com/mkrump/ldb/internal/storage"
	"github.com/mkrump/ldb/sstable"
)

// tableNewIter opens (or reuses) an iterator over the table described by f;
// version.get calls this once per candidate file during a point lookup
// (§4.C, §4.D).
type tableNewIter func(f *fileMetadata) (internalIterator, error)

// tableCacheValue is what's stored in the LRU: an open file and the Reader
// built on top of it, kept alive until eviction closes them.
type tableCacheValue struct {
	file   storage.File
	reader *sstable.Reader
	err    error
}

// tableCache bounds the number of simultaneously open table files (§4.D):
// an LRU of opts.MaxOpenFiles Readers, with singleflight coalescing
// concurrent opens of the same file number so a burst of readers hitting a
// cold file shares one Open/NewReader call instead of stampeding storage.
type tableCache struct {
	dirname string
	fs      storage.Storage
	opts    *Options

	cache *lru.Cache[uint64, *tableCacheValue]
	group singleflight.Group
}

func newTableCache(dirname string, fs storage.Storage, opts *Options) *tableCache {
	capacity := opts.MaxOpenFiles
	if capacity < 1 {
		capacity = 1
	}
	c, _ := lru.NewWithEvict[uint64, *tableCacheValue](capacity, func(_ uint64, v *tableCacheValue) {
		if v.file != nil {
			_ = v.file.Close()
		}
	})
	return &tableCache{dirname: dirname, fs: fs, opts: opts, cache: c}
}

func (c *tableCache) findOrOpen(fileNum uint64) (*sstable.Reader, error) {
	if v, ok := c.cache.Get(fileNum); ok {
		return v.reader, v.err
	}

	v, err, _ := c.group.Do(fileNumKey(fileNum), func() (interface{}, error) {
		if v, ok := c.cache.Get(fileNum); ok {
			return v, nil
		}
		name := dbFilename(c.dirname, fileTypeTable, fileNum)
		f, openErr := c.fs.Open(name)
		if openErr != nil {
			cv := &tableCacheValue{err: base.IOErrorf("ldb: opening table %d: %w", fileNum, openErr)}
			c.cache.Add(fileNum, cv)
			return cv, nil
		}
		stat, statErr := f.Stat()
		if statErr != nil {
			_ = f.Close()
			cv := &tableCacheValue{err: base.IOErrorf("ldb: stat table %d: %w", fileNum, statErr)}
			c.cache.Add(fileNum, cv)
			return cv, nil
		}
		reader, readerErr := sstable.NewReader(f, stat.Size(), sstable.ReaderOptions{
			Compare:         c.opts.Comparer.Compare,
			FilterPolicy:    c.opts.FilterPolicy,
			VerifyChecksums: c.opts.ParanoidChecks,
		})
		cv := &tableCacheValue{file: f, reader: reader, err: readerErr}
		if readerErr != nil {
			_ = f.Close()
			cv.file = nil
		}
		c.cache.Add(fileNum, cv)
		return cv, nil
	})
	if err != nil {
		return nil, err
	}
	cv := v.(*tableCacheValue)
	return cv.reader, cv.err
}

func fileNumKey(fileNum uint64) string {
	var buf [20]byte
	n := len(buf)
	if fileNum == 0 {
		n--
		buf[n] = '0'
	} else {
		for fileNum > 0 {
			n--
			buf[n] = byte('0' + fileNum%10)
			fileNum /= 10
		}
	}
	return string(buf[n:])
}

// newIter adapts findOrOpen to the tableNewIter shape version.get expects.
func (c *tableCache) newIter(f *fileMetadata) (internalIterator, error) {
	r, err := c.findOrOpen(f.fileNum)
	if err != nil {
		return nil, err
	}
	return r.NewIter()
}

// evict drops a table from the cache without closing it underneath an
// in-flight reader; used by the compactor once an input file's last
// reference is known to be gone (after the new version is installed).
func (c *tableCache) evict(fileNum uint64) {
	c.cache.Remove(fileNum)
}

func (c *tableCache) close() error {
	c.cache.Purge()
	return nil
}
