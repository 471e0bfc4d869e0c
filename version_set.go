// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"io"
	"sync/atomic"

	"github.com/mkrump/ldb/internal/base"
	"github.com/mkrump/ldb/internal/record"
	"github.com/mkrump/ldb/internal/storage"
)

// versionSet tracks the current version plus the on-disk bookkeeping
// (log/file numbers, the manifest writer) needed to persist every change to
// it (§4.G). DB.mu guards every field here; only currentVersion's return
// value escapes that lock (after the caller takes its own reference).
type versionSet struct {
	dirname string
	opts    *Options
	fs      storage.Storage
	cmp     base.Compare
	cmpName string

	versions versionList

	logNumber          uint64
	prevLogNumber      uint64
	nextFileNumber     uint64
	logSeqNum          uint64 // last seqNum handed out
	visibleSeqNum      uint64 // highest seqNum visible to new reads/iterators
	manifestFileNumber uint64

	manifestFile storage.File
	manifest     *record.Writer

	// snapshots holds the sequence number of every open Snapshot (§3's Data
	// Model: "a sequence number recorded in a list owned by VersionSet").
	// compactDiskTables consults it so a key still visible to a live
	// snapshot is never dropped out from under it.
	snapshots []uint64
}

// addSnapshot registers seqNum as pinned by a newly created Snapshot.
func (vs *versionSet) addSnapshot(seqNum uint64) {
	vs.snapshots = append(vs.snapshots, seqNum)
}

// removeSnapshot unregisters one occurrence of seqNum, called when its
// Snapshot is closed.
func (vs *versionSet) removeSnapshot(seqNum uint64) {
	for i, s := range vs.snapshots {
		if s == seqNum {
			vs.snapshots = append(vs.snapshots[:i], vs.snapshots[i+1:]...)
			return
		}
	}
}

// smallestSnapshot returns the sequence number of the oldest live snapshot,
// or base.InternalKeySeqNumMax if none are open — which lets
// compactDiskTables's comparisons fall through to "nothing is pinned, keep
// only the newest version" without a separate code path.
func (vs *versionSet) smallestSnapshot() uint64 {
	smallest := base.InternalKeySeqNumMax
	for _, s := range vs.snapshots {
		if s < smallest {
			smallest = s
		}
	}
	return smallest
}

// load opens an existing database by following CURRENT to its manifest and
// replaying every versionEdit record in it (§4.G, §6).
func (vs *versionSet) load(dirname string, opts *Options) error {
	vs.dirname = dirname
	vs.opts = opts
	vs.fs = opts.Storage
	vs.cmp = opts.Comparer.Compare
	vs.cmpName = opts.Comparer.Name
	vs.versions.init()
	vs.nextFileNumber = 2

	current, err := vs.fs.Open(dbFilename(dirname, fileTypeCurrent, 0))
	if err != nil {
		return base.IOErrorf("ldb: could not open CURRENT file for DB %q: %w", dirname, err)
	}
	defer current.Close()
	stat, err := current.Stat()
	if err != nil {
		return err
	}
	n := stat.Size()
	if n == 0 {
		return base.CorruptionErrorf("ldb: CURRENT file for DB %q is empty", dirname)
	}
	if n > 4096 {
		return base.CorruptionErrorf("ldb: CURRENT file for DB %q is too large", dirname)
	}
	b := make([]byte, n)
	if _, err := current.ReadAt(b, 0); err != nil {
		return err
	}
	if b[n-1] != '\n' {
		return base.CorruptionErrorf("ldb: CURRENT file for DB %q is malformed", dirname)
	}
	b = b[:n-1]

	var bve bulkVersionEdit
	manifest, err := vs.fs.Open(dirname + "/" + string(b))
	if err != nil {
		return base.IOErrorf("ldb: could not open manifest file %q for DB %q: %w", b, dirname, err)
	}
	defer manifest.Close()
	rr := record.NewReader(manifest)
	for {
		r, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		var ve versionEdit
		if err := ve.decode(bytesReaderOf(r)); err != nil {
			return err
		}
		if ve.comparatorName != "" && ve.comparatorName != vs.cmpName {
			return base.CorruptionErrorf(
				"ldb: manifest file %q for DB %q: comparer name from file %q != comparer from Options %q",
				b, dirname, ve.comparatorName, vs.cmpName)
		}
		bve.accumulate(&ve)
		if ve.logNumber != 0 {
			vs.logNumber = ve.logNumber
		}
		if ve.prevLogNumber != 0 {
			vs.prevLogNumber = ve.prevLogNumber
		}
		if ve.nextFileNumber != 0 {
			vs.nextFileNumber = ve.nextFileNumber
		}
		if ve.lastSequence != 0 {
			vs.logSeqNum = ve.lastSequence
		}
	}
	if vs.logNumber == 0 || vs.nextFileNumber == 0 {
		if vs.nextFileNumber != 2 {
			return base.CorruptionErrorf("ldb: incomplete manifest file %q for DB %q", b, dirname)
		}
	}
	vs.markFileNumUsed(vs.logNumber)
	vs.markFileNumUsed(vs.prevLogNumber)
	vs.manifestFileNumber = vs.nextFileNum()

	newVersion, err := bve.apply(nil, vs.cmp, vs.opts)
	if err != nil {
		return err
	}
	vs.append(newVersion)
	vs.visibleSeqNum = vs.logSeqNum
	return nil
}

// create initializes the versionSet for a brand-new, empty database.
func (vs *versionSet) create(dirname string, opts *Options) error {
	vs.dirname = dirname
	vs.opts = opts
	vs.fs = opts.Storage
	vs.cmp = opts.Comparer.Compare
	vs.cmpName = opts.Comparer.Name
	vs.versions.init()
	vs.nextFileNumber = 2
	vs.manifestFileNumber = vs.nextFileNum()
	vs.append(&version{})
	return nil
}

// logAndApply durably records ve (assigning it the current next-file-number
// and last-sequence state) and installs the resulting version as current
// (§4.G). The caller must hold DB.mu.
func (vs *versionSet) logAndApply(ve *versionEdit) error {
	if ve.logNumber != 0 {
		if ve.logNumber < vs.logNumber || vs.nextFileNumber <= ve.logNumber {
			panic("ldb: inconsistent versionEdit logNumber")
		}
	}
	ve.nextFileNumber = vs.nextFileNumber
	ve.lastSequence = atomic.LoadUint64(&vs.logSeqNum)

	var bve bulkVersionEdit
	bve.accumulate(ve)
	newVersion, err := bve.apply(vs.currentVersion(), vs.cmp, vs.opts)
	if err != nil {
		return err
	}

	if vs.manifest == nil {
		if err := vs.createManifest(vs.dirname); err != nil {
			return err
		}
	}

	w, err := vs.manifest.Next()
	if err != nil {
		return err
	}
	if err := ve.encode(w); err != nil {
		return err
	}
	if err := vs.manifest.Flush(); err != nil {
		return err
	}
	if err := vs.manifestFile.Sync(); err != nil {
		return err
	}
	if err := setCurrentFile(vs.dirname, vs.opts.Storage, vs.manifestFileNumber); err != nil {
		return err
	}

	vs.append(newVersion)
	if ve.logNumber != 0 {
		vs.logNumber = ve.logNumber
	}
	if ve.prevLogNumber != 0 {
		vs.prevLogNumber = ve.prevLogNumber
	}
	return nil
}

// createManifest writes a fresh manifest containing a full snapshot of the
// current version, then points vs.manifest/vs.manifestFile at it.
func (vs *versionSet) createManifest(dirname string) (err error) {
	var (
		filename     = dbFilename(dirname, fileTypeManifest, vs.manifestFileNumber)
		manifestFile storage.File
		manifest     *record.Writer
	)
	defer func() {
		if manifestFile != nil {
			manifestFile.Sync()
			manifestFile.Close()
		}
		if err != nil {
			vs.fs.Remove(filename)
		}
	}()
	manifestFile, err = vs.fs.Create(filename)
	if err != nil {
		return err
	}
	manifest = record.NewWriter(manifestFile)

	snapshot := versionEdit{comparatorName: vs.cmpName}
	for level, files := range vs.currentVersion().files {
		for _, f := range files {
			snapshot.newFiles = append(snapshot.newFiles, newFileEntry{level: level, meta: f})
		}
	}

	w, err := manifest.Next()
	if err != nil {
		return err
	}
	if err := snapshot.encode(w); err != nil {
		return err
	}
	if err := manifest.Flush(); err != nil {
		return err
	}

	vs.manifest, manifest = manifest, nil
	vs.manifestFile, manifestFile = manifestFile, nil
	return nil
}

func (vs *versionSet) markFileNumUsed(fileNum uint64) {
	if vs.nextFileNumber <= fileNum {
		vs.nextFileNumber = fileNum + 1
	}
}

func (vs *versionSet) nextFileNum() uint64 {
	x := vs.nextFileNumber
	vs.nextFileNumber++
	return x
}

func (vs *versionSet) append(v *version) {
	if v.refs != 0 {
		panic("ldb: version should be unreferenced")
	}
	if !vs.versions.empty() {
		vs.versions.back().unrefLocked()
	}
	v.ref()
	vs.versions.pushBack(v)
}

func (vs *versionSet) currentVersion() *version {
	return vs.versions.back()
}

func (vs *versionSet) addLiveFileNums(m map[uint64]struct{}) {
	for v := vs.versions.root.next; v != &vs.versions.root; v = v.next {
		for _, files := range v.files {
			for _, f := range files {
				m[f.fileNum] = struct{}{}
			}
		}
	}
}

// bytesReaderOf adapts the []byte a record.Reader hands back into an
// io.Reader the versionEdit decoder can consume.
func bytesReaderOf(b []byte) io.Reader {
	return &sliceReader{b: b}
}

type sliceReader struct {
	b []byte
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}

func (r *sliceReader) ReadByte() (byte, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	c := r.b[0]
	r.b = r.b[1:]
	return c, nil
}
