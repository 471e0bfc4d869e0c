// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// LevelMetrics holds the per-level counters Metrics reports (§4.J).
type LevelMetrics struct {
	NumFiles        int64
	Size            int64
	Score           float64
	BytesCompacted  uint64
	TablesCompacted uint64
}

// Metrics aggregates the counters DB.Metrics reports: per-level file
// counts/sizes/scores plus running totals for flushes and compactions
// (§4.J).
type Metrics struct {
	Levels [numLevels]LevelMetrics

	Flush struct {
		Count        int64
		BytesWritten uint64
	}

	Compact struct {
		Count        int64
		MoveCount    int64
		BytesRead    uint64
		BytesWritten uint64
	}
}

// Metrics reports a point-in-time snapshot of the DB's level shape and
// cumulative flush/compaction activity (§4.J).
func (d *DB) Metrics() Metrics {
	d.mu.Lock()
	cur := d.mu.versions.currentVersion()
	cur.ref()
	d.mu.Unlock()
	defer cur.unref()

	var m Metrics
	for level := 0; level < numLevels; level++ {
		lm := &m.Levels[level]
		lm.NumFiles = int64(len(cur.files[level]))
		for _, f := range cur.files[level] {
			lm.Size += int64(f.size)
		}
		if level == cur.compactionLevel {
			lm.Score = cur.compactionScore
		}
	}
	m.Flush.Count = atomic.LoadInt64(&d.metrics.flushCount)
	m.Flush.BytesWritten = atomic.LoadUint64(&d.metrics.flushBytes)
	m.Compact.Count = atomic.LoadInt64(&d.metrics.compactCount)
	m.Compact.MoveCount = atomic.LoadInt64(&d.metrics.compactMoveCount)
	m.Compact.BytesRead = atomic.LoadUint64(&d.metrics.compactBytesRead)
	m.Compact.BytesWritten = atomic.LoadUint64(&d.metrics.compactBytesWritten)
	return m
}

// dbMetrics holds the atomic counters DB updates as flushes and compactions
// run; Metrics() reads them into the point-in-time snapshot above.
type dbMetrics struct {
	flushCount          int64
	flushBytes          uint64
	compactCount        int64
	compactMoveCount    int64
	compactBytesRead    uint64
	compactBytesWritten uint64
}

// prometheusMetrics exposes Metrics as per-level prometheus.GaugeVec and
// DB-wide prometheus.Counter collectors, registered with Options.MetricsRegisterer when set (§4.J).
type prometheusMetrics struct {
	levelFiles      *prometheus.GaugeVec
	levelSize       *prometheus.GaugeVec
	levelScore      *prometheus.GaugeVec
	flushCount      prometheus.Counter
	flushBytes      prometheus.Counter
	compactCount    prometheus.Counter
	compactMove     prometheus.Counter
	compactBytesIn  prometheus.Counter
	compactBytesOut prometheus.Counter
}

func newPrometheusMetrics(reg prometheus.Registerer) *prometheusMetrics {
	if reg == nil {
		return nil
	}
	labels := []string{"level"}
	p := &prometheusMetrics{
		levelFiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ldb", Name: "level_files", Help: "Number of sstables in a level.",
		}, labels),
		levelSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ldb", Name: "level_bytes", Help: "Total size in bytes of a level.",
		}, labels),
		levelScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ldb", Name: "level_score", Help: "Compaction score of a level.",
		}, labels),
		flushCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldb", Name: "flush_total", Help: "Total number of memtable flushes.",
		}),
		flushBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldb", Name: "flush_bytes_total", Help: "Total bytes written by flushes.",
		}),
		compactCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldb", Name: "compaction_total", Help: "Total number of compactions.",
		}),
		compactMove: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldb", Name: "compaction_move_total", Help: "Total number of trivial-move compactions.",
		}),
		compactBytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldb", Name: "compaction_bytes_read_total", Help: "Total bytes read by compactions.",
		}),
		compactBytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldb", Name: "compaction_bytes_written_total", Help: "Total bytes written by compactions.",
		}),
	}
	reg.MustRegister(p.levelFiles, p.levelSize, p.levelScore,
		p.flushCount, p.flushBytes, p.compactCount, p.compactMove,
		p.compactBytesIn, p.compactBytesOut)
	return p
}

// refresh updates the gauges from a freshly computed Metrics snapshot; the
// monotonic counters are incremented at the call site instead (see
// recordFlush/recordCompaction) so Prometheus sees each event exactly once.
func (p *prometheusMetrics) refresh(m *Metrics) {
	if p == nil {
		return
	}
	for level := 0; level < numLevels; level++ {
		label := strconv.Itoa(level)
		lm := &m.Levels[level]
		p.levelFiles.WithLabelValues(label).Set(float64(lm.NumFiles))
		p.levelSize.WithLabelValues(label).Set(float64(lm.Size))
		p.levelScore.WithLabelValues(label).Set(lm.Score)
	}
}

func (d *DB) recordFlush(bytesWritten uint64) {
	atomic.AddInt64(&d.metrics.flushCount, 1)
	atomic.AddUint64(&d.metrics.flushBytes, bytesWritten)
	if d.prometheus != nil {
		d.prometheus.flushCount.Inc()
		d.prometheus.flushBytes.Add(float64(bytesWritten))
	}
}

func (d *DB) recordCompaction(move bool, bytesRead, bytesWritten uint64) {
	atomic.AddInt64(&d.metrics.compactCount, 1)
	atomic.AddUint64(&d.metrics.compactBytesRead, bytesRead)
	atomic.AddUint64(&d.metrics.compactBytesWritten, bytesWritten)
	if move {
		atomic.AddInt64(&d.metrics.compactMoveCount, 1)
	}
	if d.prometheus != nil {
		d.prometheus.compactCount.Inc()
		d.prometheus.compactBytesIn.Add(float64(bytesRead))
		d.prometheus.compactBytesOut.Add(float64(bytesWritten))
		if move {
			d.prometheus.compactMove.Inc()
		}
		m := d.Metrics()
		d.prometheus.refresh(&m)
	}
}
