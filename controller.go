// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"context"

	"github.com/mkrump/ldb/internal/storage"
	"golang.org/x/time/rate"
)

// controller throttles bytes/sec for one I/O path (commits, flushes,
// compactions). A zero-value controller (no limiter) never blocks; DB only
// installs a real limiter when the corresponding Options field asks for
// one (see DESIGN.md on Options' rate-limit knobs).
type controller struct {
	limiter *rate.Limiter
}

func newController(bytesPerSec int) *controller {
	if bytesPerSec <= 0 {
		return &controller{}
	}
	return &controller{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)}
}

func (c *controller) waitN(n int) {
	if c == nil || c.limiter == nil || n <= 0 {
		return
	}
	_ = c.limiter.WaitN(context.Background(), n)
}

func (c *controller) setLimit(bytesPerSec float64) {
	if c == nil || c.limiter == nil {
		return
	}
	c.limiter.SetLimit(rate.Limit(bytesPerSec))
}

// rateLimitedFile wraps a storage.File so every Write passes through a
// controller before hitting the underlying file, used while writing
// flush/compaction output tables (§4.G, §4.J).
type rateLimitedFile struct {
	storage.File
	c *controller
}

func newRateLimitedFile(f storage.File, c *controller) storage.File {
	if c == nil || c.limiter == nil {
		return f
	}
	return &rateLimitedFile{File: f, c: c}
}

func (f *rateLimitedFile) Write(p []byte) (int, error) {
	f.c.waitN(len(p))
	return f.File.Write(p)
}
