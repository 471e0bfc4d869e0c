// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetricsReflectsLevelZeroFiles(t *testing.T) {
	d := openTestDB(t)
	for i := 0; i < 50; i++ {
		key := []byte{byte('a' + i%26), byte(i)}
		require.NoError(t, d.Set(key, []byte("value"), nil))
	}
	require.NoError(t, d.Flush())

	m := d.Metrics()
	require.EqualValues(t, 1, m.Flush.Count)
	require.Greater(t, m.Flush.BytesWritten, uint64(0))
	require.EqualValues(t, len(d.mu.versions.currentVersion().files[0]), m.Levels[0].NumFiles)
}

func TestRecordFlushUpdatesCounters(t *testing.T) {
	d := openTestDB(t)
	d.recordFlush(100)
	d.recordFlush(50)

	m := d.Metrics()
	require.EqualValues(t, 2, m.Flush.Count)
	require.EqualValues(t, 150, m.Flush.BytesWritten)
}

func TestRecordCompactionUpdatesCounters(t *testing.T) {
	d := openTestDB(t)
	d.recordCompaction(false, 10, 20)
	d.recordCompaction(true, 5, 5)

	m := d.Metrics()
	require.EqualValues(t, 2, m.Compact.Count)
	require.EqualValues(t, 1, m.Compact.MoveCount)
	require.EqualValues(t, 15, m.Compact.BytesRead)
	require.EqualValues(t, 25, m.Compact.BytesWritten)
}

func TestNewPrometheusMetricsNilRegistererIsNoop(t *testing.T) {
	p := newPrometheusMetrics(nil)
	require.Nil(t, p)
	p.refresh(&Metrics{})
}

func TestNewPrometheusMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := &Options{Storage: nil, MetricsRegisterer: reg}
	_ = opts
	p := newPrometheusMetrics(reg)
	require.NotNil(t, p)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
