// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package metrics receives counters from the stack trace components and records
them as OpenTelemetry metrics.

Components keep their own atomic counters and hand them over in batches:

	metrics.AddSlice(cache.GetAndResetMetrics())
	metrics.AddSlice(resolver.GetAndResetMetrics())

The meter is obtained from the global OpenTelemetry MeterProvider, so nothing
is exported until the application installs one.
*/
package metrics // import "go.opentelemetry.io/ilstack/metrics"
