// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSlice(t *testing.T) {
	var recorded []Metric
	orig := record
	record = func(_ context.Context, m Metric) {
		recorded = append(recorded, m)
	}
	t.Cleanup(func() { record = orig })

	AddSlice([]Metric{
		{IDNativeToILCacheHit, 3},
		{IDNativeToILCacheMiss, 0}, // zero counters are dropped
		{IDInvalid, 1},
		{IDMax, 1},
		{IDILOffsetResolveFailure, 2},
		{IDNativeToILCacheSlots, 0}, // gauges are kept at zero
	})
	Add(IDCaptureTruncated, 1)
	AddSlice(nil)

	assert.Equal(t, []Metric{
		{IDNativeToILCacheHit, 3},
		{IDILOffsetResolveFailure, 2},
		{IDNativeToILCacheSlots, 0},
		{IDCaptureTruncated, 1},
	}, recorded)
}

func TestDefinitions(t *testing.T) {
	defs := GetDefinitions()
	require.Len(t, defs, int(IDMax)-1)

	seenIDs := make(map[MetricID]bool)
	seenNames := make(map[string]bool)
	for _, d := range defs {
		assert.False(t, seenIDs[d.ID], "duplicate id %d", d.ID)
		assert.False(t, seenNames[d.Name], "duplicate name %s", d.Name)
		seenIDs[d.ID] = true
		seenNames[d.Name] = true
		switch d.Type {
		case MetricTypeCounter:
			assert.Contains(t, counters, d.ID)
		case MetricTypeGauge:
			assert.Contains(t, gauges, d.ID)
		}
	}
}

func TestSummary(t *testing.T) {
	s := Summary{}
	s.Add([]Metric{{IDNativeToILCacheHit, 2}, {IDNativeToILCacheMiss, 1}})
	s.Add([]Metric{{IDNativeToILCacheHit, 5}})
	assert.Equal(t, MetricValue(7), s[IDNativeToILCacheHit])
	assert.Equal(t, MetricValue(1), s[IDNativeToILCacheMiss])
}
