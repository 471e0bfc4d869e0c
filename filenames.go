// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mkrump/ldb/internal/storage"
)

// fileType enumerates the kinds of file named in §6's on-disk layout.
type fileType int

const (
	fileTypeLog fileType = iota
	fileTypeLock
	fileTypeTable
	fileTypeManifest
	fileTypeCurrent
	fileTypeTemp
	fileTypeInfoLog
)

// dbFilename returns the path of the named file within dirname.
func dbFilename(dirname string, fileType fileType, fileNum uint64) string {
	switch fileType {
	case fileTypeLog:
		return fmt.Sprintf("%s/%06d.log", dirname, fileNum)
	case fileTypeLock:
		return fmt.Sprintf("%s/LOCK", dirname)
	case fileTypeTable:
		return fmt.Sprintf("%s/%06d.sst", dirname, fileNum)
	case fileTypeManifest:
		return fmt.Sprintf("%s/MANIFEST-%06d", dirname, fileNum)
	case fileTypeCurrent:
		return fmt.Sprintf("%s/CURRENT", dirname)
	case fileTypeTemp:
		return fmt.Sprintf("%s/%06d.dbtmp", dirname, fileNum)
	case fileTypeInfoLog:
		return fmt.Sprintf("%s/LOG", dirname)
	}
	panic("ldb: unknown file type")
}

// infoLogOldFilename returns the path LOG is rotated to when a database is
// reopened (§6), mirroring LOG.old in LevelDB's own on-disk layout.
func infoLogOldFilename(dirname string) string {
	return fmt.Sprintf("%s/LOG.old", dirname)
}

// setCurrentFile atomically replaces the CURRENT file to name the manifest
// with number manifestFileNum, via write-tmp-then-rename (§4.G).
func setCurrentFile(dirname string, fs storage.Storage, manifestFileNum uint64) error {
	newManifest := fmt.Sprintf("MANIFEST-%06d\n", manifestFileNum)
	tmpName := dbFilename(dirname, fileTypeTemp, manifestFileNum)

	f, err := fs.Create(tmpName)
	if err != nil {
		return err
	}
	if _, err := f.Write([]byte(newManifest)); err != nil {
		f.Close()
		fs.Remove(tmpName)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		fs.Remove(tmpName)
		return err
	}
	if err := f.Close(); err != nil {
		fs.Remove(tmpName)
		return err
	}
	return fs.Rename(tmpName, dbFilename(dirname, fileTypeCurrent, 0))
}

// parseDBFilename recognizes the file name patterns dbFilename produces,
// used by deleteObsoleteFiles to classify every entry of a directory
// listing (§4.G).
func parseDBFilename(name string) (fileType fileType, fileNum uint64, ok bool) {
	switch {
	case name == "CURRENT":
		return fileTypeCurrent, 0, true
	case name == "LOCK":
		return fileTypeLock, 0, true
	case name == "LOG":
		return fileTypeInfoLog, 0, true
	case strings.HasPrefix(name, "MANIFEST-"):
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "MANIFEST-"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return fileTypeManifest, n, true
	case strings.HasSuffix(name, ".log"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".log"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return fileTypeLog, n, true
	case strings.HasSuffix(name, ".sst"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".sst"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return fileTypeTable, n, true
	case strings.HasSuffix(name, ".dbtmp"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".dbtmp"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return fileTypeTemp, n, true
	}
	return 0, 0, false
}
