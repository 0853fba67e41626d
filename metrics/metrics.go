// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "go.opentelemetry.io/ilstack/metrics"

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	// Used in fallback checks, e.g. to avoid sending "counters" with 0 values
	metricTypes map[MetricID]MetricType

	// mutex serializes the concurrent calls to AddSlice()
	mutex sync.Mutex

	meter    = otel.Meter("go.opentelemetry.io/ilstack")
	counters = map[MetricID]metric.Int64Counter{}
	gauges   = map[MetricID]metric.Int64Gauge{}
)

func init() {
	defs := GetDefinitions()
	metricTypes = make(map[MetricID]MetricType, len(defs))
	for _, md := range defs {
		if md.Obsolete {
			continue
		}
		metricTypes[md.ID] = md.Type
		switch typ := md.Type; typ {
		case MetricTypeCounter:
			counter, err := meter.Int64Counter(md.Name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Counter: %v", err)
				continue
			}
			counters[md.ID] = counter
		case MetricTypeGauge:
			gauge, err := meter.Int64Gauge(md.Name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Gauge: %v", err)
				continue
			}
			gauges[md.ID] = gauge
		default:
			panic(fmt.Sprintf("Unknown metric type: %v", typ))
		}
	}
}

// record hands one validated metric to OTel. Tests replace it.
var record = func(ctx context.Context, m Metric) {
	switch metricTypes[m.ID] {
	case MetricTypeCounter:
		if counter, ok := counters[m.ID]; ok {
			counter.Add(ctx, int64(m.Value))
		}
	case MetricTypeGauge:
		if gauge, ok := gauges[m.ID]; ok {
			gauge.Record(ctx, int64(m.Value))
		}
	}
}

// AddSlice records a batch of metrics from a metric provider.
// Unknown IDs are logged and skipped, and counters with a zero value are dropped.
func AddSlice(newMetrics []Metric) {
	if len(newMetrics) == 0 {
		return
	}

	ctx := context.Background()

	mutex.Lock()
	defer mutex.Unlock()

	for _, m := range newMetrics {
		if m.ID <= IDInvalid || m.ID >= IDMax {
			log.Errorf("Metric value %d out of range [%d,%d]- needs investigation",
				m.ID, IDInvalid+1, IDMax-1)
			continue
		}

		typ, ok := metricTypes[m.ID]
		if !ok {
			log.Warnf("Invalid metric id %d, skipping", m.ID)
			continue
		}

		if m.Value == 0 && typ == MetricTypeCounter {
			continue
		}

		record(ctx, m)
	}
}

// Add records a single metric (id and value) from a metric provider.
func Add(id MetricID, value MetricValue) {
	AddSlice([]Metric{{id, value}})
}

// Summary helps summarizing metrics of the same ID from different sources before
// processing it further.
type Summary map[MetricID]MetricValue

// Add sums the given metrics into the summary.
func (s Summary) Add(ms []Metric) {
	for _, m := range ms {
		s[m.ID] += m.Value
	}
}
