// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "go.opentelemetry.io/ilstack/metrics"

// To add a new metric append a constant below and a matching entry in
// definitions. Never reuse or renumber an ID.
const (
	// Leave out the 0 value. It's an indication of not explicitly initialized variables.
	IDInvalid MetricID = 0

	// Number of native to IL offset cache lookups that found an entry
	IDNativeToILCacheHit MetricID = 1

	// Number of native to IL offset cache lookups that did not find an entry
	IDNativeToILCacheMiss MetricID = 2

	// Number of entries written into the native to IL offset cache
	IDNativeToILCacheInsert MetricID = 3

	// Number of cache inserts skipped because another writer held the cache
	IDNativeToILCacheInsertContended MetricID = 4

	// Number of failures to allocate the native to IL offset cache table
	IDNativeToILCacheAllocFailure MetricID = 5

	// Number of frames whose IL offset was resolved
	IDILOffsetResolveSuccess MetricID = 6

	// Number of frames whose IL offset is unknown
	IDILOffsetResolveFailure MetricID = 7

	// Number of JIT debug info blobs decoded successfully
	IDDebugInfoDecodeSuccess MetricID = 8

	// Number of JIT debug info blobs that failed to decode
	IDDebugInfoDecodeFailure MetricID = 9

	// Number of decoded bounds found in the LRU
	IDDebugInfoBoundsHit MetricID = 10

	// Number of decoded bounds not found in the LRU
	IDDebugInfoBoundsMiss MetricID = 11

	// Number of stack captures cut short because the frame buffer could not grow
	IDCaptureTruncated MetricID = 12

	// Number of native to IL offset cache slots backed by memory
	IDNativeToILCacheSlots MetricID = 13

	// Max number of ID values, keep this as *last entry*
	IDMax MetricID = 14
)

var definitions = []MetricDefinition{
	{
		ID:          IDNativeToILCacheHit,
		Name:        "ilstack.cache.hits",
		Description: "Native to IL offset cache lookups that found an entry",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDNativeToILCacheMiss,
		Name:        "ilstack.cache.misses",
		Description: "Native to IL offset cache lookups that did not find an entry",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDNativeToILCacheInsert,
		Name:        "ilstack.cache.inserts",
		Description: "Entries written into the native to IL offset cache",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDNativeToILCacheInsertContended,
		Name:        "ilstack.cache.inserts_contended",
		Description: "Cache inserts skipped because another writer held the cache",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDNativeToILCacheAllocFailure,
		Name:        "ilstack.cache.alloc_failures",
		Description: "Failures to allocate the native to IL offset cache table",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDILOffsetResolveSuccess,
		Name:        "ilstack.resolve.successes",
		Description: "Frames whose IL offset was resolved",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDILOffsetResolveFailure,
		Name:        "ilstack.resolve.failures",
		Description: "Frames whose IL offset is unknown",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDDebugInfoDecodeSuccess,
		Name:        "ilstack.debuginfo.decode_successes",
		Description: "JIT debug info blobs decoded successfully",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDDebugInfoDecodeFailure,
		Name:        "ilstack.debuginfo.decode_failures",
		Description: "JIT debug info blobs that failed to decode",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDDebugInfoBoundsHit,
		Name:        "ilstack.debuginfo.bounds_hits",
		Description: "Decoded bounds found in the LRU",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDDebugInfoBoundsMiss,
		Name:        "ilstack.debuginfo.bounds_misses",
		Description: "Decoded bounds not found in the LRU",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDCaptureTruncated,
		Name:        "ilstack.capture.truncated",
		Description: "Stack captures cut short because the frame buffer could not grow",
		Type:        MetricTypeCounter,
	},
	{
		ID:          IDNativeToILCacheSlots,
		Name:        "ilstack.cache.slots",
		Description: "Native to IL offset cache slots backed by memory",
		Unit:        "{slot}",
		Type:        MetricTypeGauge,
	},
}

// GetDefinitions returns the metric definitions.
func GetDefinitions() []MetricDefinition {
	return definitions
}
