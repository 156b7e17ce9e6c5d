// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/industrial-twin/twinhub/discovery"
	"github.com/industrial-twin/twinhub/registry"
)

var _ discovery.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     discovery.Service
}

// Metrics instruments a discovery service with request count and latency
// metrics.
func Metrics(counter metrics.Counter, latency metrics.Histogram, svc discovery.Service) discovery.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) DiscoverShells(ctx context.Context, bpn string, query discovery.QuerySpec, policies []discovery.Policy) (discovery.ShellsResult, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "discover_shells").Add(1)
		mm.latency.With("method", "discover_shells").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.DiscoverShells(ctx, bpn, query, policies)
}

func (mm *metricsMiddleware) DiscoverShell(ctx context.Context, bpn, shellID string, policies []discovery.Policy) (registry.ShellDescriptor, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "discover_shell").Add(1)
		mm.latency.With("method", "discover_shell").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.DiscoverShell(ctx, bpn, shellID, policies)
}

func (mm *metricsMiddleware) DiscoverSubmodels(ctx context.Context, bpn, shellID string, governance discovery.Governance) (discovery.SubmodelsResult, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "discover_submodels").Add(1)
		mm.latency.With("method", "discover_submodels").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.DiscoverSubmodels(ctx, bpn, shellID, governance)
}

func (mm *metricsMiddleware) DiscoverSubmodel(ctx context.Context, bpn, shellID, submodelID string, governance discovery.Governance) (discovery.SubmodelOutcome, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "discover_submodel").Add(1)
		mm.latency.With("method", "discover_submodel").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.DiscoverSubmodel(ctx, bpn, shellID, submodelID, governance)
}

func (mm *metricsMiddleware) DiscoverSubmodelBySemanticIDs(ctx context.Context, bpn, shellID string, semanticIDs []string, governance discovery.Governance) (discovery.SubmodelsResult, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "discover_submodel_by_semantic_ids").Add(1)
		mm.latency.With("method", "discover_submodel_by_semantic_ids").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.DiscoverSubmodelBySemanticIDs(ctx, bpn, shellID, semanticIDs, governance)
}

func (mm *metricsMiddleware) KnownRegistries(ctx context.Context, bpn string) ([]discovery.Entry, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "known_registries").Add(1)
		mm.latency.With("method", "known_registries").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.KnownRegistries(ctx, bpn)
}

func (mm *metricsMiddleware) ForgetPartner(ctx context.Context, bpn string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "forget_partner").Add(1)
		mm.latency.With("method", "forget_partner").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.ForgetPartner(ctx, bpn)
}
