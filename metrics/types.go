// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "go.opentelemetry.io/ilstack/metrics"

// MetricID is the type for metric IDs.
type MetricID uint16

// MetricValue is the type for metric values.
type MetricValue int64

// Metric is the type for a metric id/value pair.
type Metric struct {
	ID    MetricID
	Value MetricValue
}

// MetricType distinguishes monotonic counters from point-in-time gauges.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// MetricDefinition describes how a MetricID is exported.
type MetricDefinition struct {
	ID          MetricID
	Name        string
	Description string
	Unit        string
	Type        MetricType
	// Obsolete definitions keep their ID reserved but are not exported.
	Obsolete bool
}
