// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"slices"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/ilstack/config"
	"go.opentelemetry.io/ilstack/iloffset"
	"go.opentelemetry.io/ilstack/iloffsetcache"
	"go.opentelemetry.io/ilstack/metrics"
	"go.opentelemetry.io/ilstack/stacktrace"
)

// pipeline is the capture stack for one environment.
type pipeline struct {
	env       *environment
	cache     *iloffsetcache.Cache
	resolver  *iloffset.Resolver
	collector *stacktrace.Collector
}

// newPipeline builds the capture stack of env. A nil cache selects the
// process wide cache.
func newPipeline(cfg *config.Config, env *environment, cache *iloffsetcache.Cache) *pipeline {
	resolver := iloffset.NewResolver(cache, env.provider)
	return &pipeline{
		env:      env,
		cache:    resolver.Cache(),
		resolver: resolver,
		collector: stacktrace.NewCollector(resolver,
			stacktrace.WithCodeMap(env.provider),
			stacktrace.WithMaxFrames(cfg.MaxFrames)),
	}
}

// getAndResetMetrics collects the counters of every component.
func (p *pipeline) getAndResetMetrics() []metrics.Metric {
	return slices.Concat(
		p.cache.GetAndResetMetrics(),
		p.resolver.GetAndResetMetrics(),
		p.collector.GetAndResetMetrics(),
		p.env.provider.GetAndResetMetrics(),
	)
}

// reportMetrics hands the metrics to OTel and logs the non-zero ones.
func reportMetrics(ms []metrics.Metric) {
	metrics.AddSlice(ms)

	summary := metrics.Summary{}
	summary.Add(ms)
	for _, md := range metrics.GetDefinitions() {
		if v := summary[md.ID]; v != 0 {
			log.WithField("metric", md.Name).Infof("%d", v)
		}
	}
}
